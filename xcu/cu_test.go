package xcu

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mipres/XRT/ert"
)

// fakeModel gives tests deterministic control over credits and completion
// counts without register emulation.
type fakeModel struct {
	creditPool
	mu       sync.Mutex
	started  [][]uint32
	pendDone uint32
	resets   int
	resetOK  bool
	intr     uint32
	clears   int
}

func newFakeModel(credits int) *fakeModel {
	return &fakeModel{creditPool: newCreditPool(credits), resetOK: true}
}

func (m *fakeModel) Configure(data []uint32, ct ConfigType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]uint32, len(data))
	copy(cp, data)
	m.started = append(m.started, cp)
}

func (m *fakeModel) Start() {}

func (m *fakeModel) Check(st *Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.NumDone += m.pendDone
	st.NumReady += m.pendDone
	m.pendDone = 0
}

func (m *fakeModel) finish(n uint32) {
	m.mu.Lock()
	m.pendDone += n
	m.mu.Unlock()
}

func (m *fakeModel) numStarted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

func (m *fakeModel) Reset() {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
}

func (m *fakeModel) ResetDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetOK
}

func (m *fakeModel) EnableIntr(kind uint32) {
	m.mu.Lock()
	m.intr |= kind
	m.mu.Unlock()
}

func (m *fakeModel) DisableIntr(kind uint32) {
	m.mu.Lock()
	m.intr &^= kind
	m.mu.Unlock()
}

func (m *fakeModel) ClearIntr() uint32 {
	m.mu.Lock()
	m.clears++
	m.mu.Unlock()
	return 0
}

func (m *fakeModel) intrKind() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intr
}

func (m *fakeModel) numClears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

type testCmd struct {
	owner    any
	data     []uint32
	ct       ConfigType
	state    atomic.Uint32
	notifies atomic.Int32
	done     chan ert.CmdState
}

func newTestCmd(owner any, data ...uint32) *testCmd {
	return &testCmd{owner: owner, data: data, done: make(chan ert.CmdState, 2)}
}

func (c *testCmd) Owner() any             { return c.owner }
func (c *testCmd) RegData() []uint32      { return c.data }
func (c *testCmd) ConfigType() ConfigType { return c.ct }
func (c *testCmd) State() ert.CmdState    { return ert.CmdState(c.state.Load()) }
func (c *testCmd) SetState(s ert.CmdState) {
	c.state.Store(uint32(s))
}
func (c *testCmd) Notify() {
	c.notifies.Add(1)
	c.done <- c.State()
}

func (c *testCmd) wait(t *testing.T) ert.CmdState {
	t.Helper()
	select {
	case s := <-c.done:
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("command never notified")
		return 0
	}
}

func startTestCU(t *testing.T, credits int) (*CU, *fakeModel) {
	t.Helper()
	model := newFakeModel(credits)
	cu := NewCU(Info{CUIdx: 0, KernelName: "vadd", InstName: "vadd_1"}, model)
	cu.SetPollInterval(200 * time.Microsecond)
	require.NoError(t, cu.Start())
	t.Cleanup(cu.Stop)
	return cu, model
}

func TestCUCompletesInOrder(t *testing.T) {
	cu, model := startTestCU(t, 4)

	a := newTestCmd("clientA", 1)
	b := newTestCmd("clientA", 2)
	c := newTestCmd("clientA", 3)
	for _, cmd := range []*testCmd{a, b, c} {
		require.NoError(t, cu.Submit(cmd))
	}

	require.Eventually(t, func() bool { return model.numStarted() == 3 },
		time.Second, time.Millisecond)

	model.finish(3)
	for _, cmd := range []*testCmd{a, b, c} {
		assert.Equal(t, ert.CmdStateCompleted, cmd.wait(t))
		assert.Equal(t, int32(1), cmd.notifies.Load())
	}
	// FIFO: argument blocks reached the hardware in submission order.
	assert.Equal(t, [][]uint32{{1}, {2}, {3}}, model.started)
}

func TestCUCreditBackpressure(t *testing.T) {
	cu, model := startTestCU(t, 2)

	cmds := []*testCmd{newTestCmd("c", 1), newTestCmd("c", 2), newTestCmd("c", 3)}
	for _, cmd := range cmds {
		require.NoError(t, cu.Submit(cmd))
	}

	// Two credits: the first two issue, the third waits in the run queue.
	require.Eventually(t, func() bool { return model.numStarted() == 2 },
		time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, model.numStarted())
	assert.Equal(t, 0, model.PeekCredit())

	model.finish(1)
	assert.Equal(t, ert.CmdStateCompleted, cmds[0].wait(t))
	require.Eventually(t, func() bool { return model.numStarted() == 3 },
		time.Second, time.Millisecond)

	model.finish(2)
	assert.Equal(t, ert.CmdStateCompleted, cmds[1].wait(t))
	assert.Equal(t, ert.CmdStateCompleted, cmds[2].wait(t))
}

func TestCUAbortOwnerOnly(t *testing.T) {
	cu, model := startTestCU(t, 4)

	a1 := newTestCmd("clientA", 1)
	a2 := newTestCmd("clientA", 2)
	b1 := newTestCmd("clientB", 3)
	for _, cmd := range []*testCmd{a1, a2, b1} {
		require.NoError(t, cu.Submit(cmd))
	}
	require.Eventually(t, func() bool { return model.numStarted() == 3 },
		time.Second, time.Millisecond)

	n := cu.Abort("clientA")
	assert.Equal(t, 2, n)
	assert.Equal(t, ert.CmdStateAbort, a1.wait(t))
	assert.Equal(t, ert.CmdStateAbort, a2.wait(t))
	assert.True(t, cu.AbortDone("clientA"))
	assert.False(t, cu.AbortDone("clientB"))

	// clientB's command is unaffected and still completes.
	model.finish(3)
	assert.Equal(t, ert.CmdStateCompleted, b1.wait(t))
	assert.Equal(t, int32(1), a1.notifies.Load())
	assert.Equal(t, int32(1), a2.notifies.Load())
	assert.True(t, cu.AbortDone("clientB"))
}

func TestCUAbortedCreditsReturned(t *testing.T) {
	cu, model := startTestCU(t, 2)

	a := newTestCmd("clientA", 1)
	require.NoError(t, cu.Submit(a))
	require.Eventually(t, func() bool { return model.numStarted() == 1 },
		time.Second, time.Millisecond)
	assert.Equal(t, 1, model.PeekCredit())

	cu.Abort("clientA")
	a.wait(t)
	assert.Equal(t, 2, model.PeekCredit())
}

func TestCUAbortKeepsOtherClientsInFlight(t *testing.T) {
	cu, model := startTestCU(t, 2)

	a := newTestCmd("clientA", 1)
	b := newTestCmd("clientB", 2)
	require.NoError(t, cu.Submit(a))
	require.NoError(t, cu.Submit(b))
	require.Eventually(t, func() bool { return model.numStarted() == 2 },
		time.Second, time.Millisecond)

	require.Equal(t, 1, cu.Abort("clientA"))
	assert.Equal(t, ert.CmdStateAbort, a.wait(t))

	// The hardware still finishes the aborted command; its completion
	// must not retire the other client's command.
	model.finish(1)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(0), b.notifies.Load())
	assert.Equal(t, ert.CmdStateSubmitted, b.State())

	model.finish(1)
	assert.Equal(t, ert.CmdStateCompleted, b.wait(t))
	assert.Equal(t, int32(1), b.notifies.Load())
}

func TestCUInterruptDrivenCompletion(t *testing.T) {
	cu, model := startTestCU(t, 2)
	// Poll ticks cannot help here: in interrupt mode the engine sleeps the
	// whole run timeout unless the ISR kicks it.
	cu.SetRunTimeout(time.Minute)
	require.NoError(t, cu.CfgUpdate(true))
	assert.Equal(t, IntrDone, model.intrKind())

	cmd := newTestCmd("clientA", 1)
	require.NoError(t, cu.Submit(cmd))
	require.Eventually(t, func() bool { return model.numStarted() == 1 },
		time.Second, time.Millisecond)

	model.finish(1)
	cu.Interrupt()
	assert.Equal(t, ert.CmdStateCompleted, cmd.wait(t))
	assert.GreaterOrEqual(t, model.numClears(), 1)
}

func TestCUHangRecovers(t *testing.T) {
	cu, model := startTestCU(t, 2)
	cu.SetRunTimeout(20 * time.Millisecond)

	stuck := newTestCmd("clientA", 1)
	require.NoError(t, cu.Submit(stuck))

	// Never finished by the model: the engine resets the CU and fails the
	// stuck command with a timeout.
	assert.Equal(t, ert.CmdStateTimeout, stuck.wait(t))
	assert.False(t, cu.BadState())
	assert.GreaterOrEqual(t, model.resets, 1)
	assert.Equal(t, 2, model.PeekCredit())
}

func TestCUHangEscalatesToBadState(t *testing.T) {
	cu, model := startTestCU(t, 2)
	cu.SetRunTimeout(20 * time.Millisecond)
	model.resetOK = false

	var reported atomic.Bool
	cu.OnBadState = func(*CU) { reported.Store(true) }

	stuck := newTestCmd("clientA", 1)
	queued := newTestCmd("clientB", 2)
	require.NoError(t, cu.Submit(stuck))
	require.NoError(t, cu.Submit(queued))

	assert.Equal(t, ert.CmdStateError, stuck.wait(t))
	assert.Equal(t, ert.CmdStateError, queued.wait(t))
	assert.True(t, cu.BadState())
	assert.True(t, reported.Load())

	// Bad state is sticky: nothing new is admitted.
	require.Error(t, cu.Submit(newTestCmd("clientA", 3)))

	// Recover clears it (engine stopped first, as in device reset).
	cu.Stop()
	model.resetOK = true
	require.NoError(t, cu.Recover())
	assert.False(t, cu.BadState())
}

func TestCUEchoMode(t *testing.T) {
	model := newFakeModel(1)
	cu := NewCU(Info{CUIdx: 1, KernelName: "vadd"}, model)
	cu.SetPollInterval(200 * time.Microsecond)
	cu.Echo = true
	require.NoError(t, cu.Start())
	defer cu.Stop()

	cmd := newTestCmd("clientA", 1)
	require.NoError(t, cu.Submit(cmd))
	assert.Equal(t, ert.CmdStateCompleted, cmd.wait(t))
	assert.Zero(t, model.numStarted(), "echo mode never touches hardware")
}

func TestCUCfgUpdateBusy(t *testing.T) {
	cu, model := startTestCU(t, 1)

	cmd := newTestCmd("clientA", 1)
	require.NoError(t, cu.Submit(cmd))
	require.Eventually(t, func() bool { return model.numStarted() == 1 },
		time.Second, time.Millisecond)

	require.Error(t, cu.CfgUpdate(true), "in-flight command blocks reconfiguration")

	model.finish(1)
	cmd.wait(t)
	require.Eventually(t, func() bool { return cu.CfgUpdate(true) == nil },
		time.Second, time.Millisecond)
}

func TestCUStat(t *testing.T) {
	cu, model := startTestCU(t, 2)
	cmd := newTestCmd("clientA", 1)
	require.NoError(t, cu.Submit(cmd))
	require.Eventually(t, func() bool { return model.numStarted() == 1 },
		time.Second, time.Millisecond)
	model.finish(1)
	cmd.wait(t)

	stat := cu.Stat()
	assert.Contains(t, stat, "completed:       1")
	assert.Contains(t, stat, "bad state:       false")
	info := cu.InfoString()
	assert.Contains(t, info, "vadd")
}
