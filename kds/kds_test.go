package kds

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mipres/XRT/ert"
	"github.com/mipres/XRT/xcu"
)

// fakeLocker emulates the icap bitstream lock: one active id, refcounted.
type fakeLocker struct {
	mu     sync.Mutex
	active *uuid.UUID
	refs   int
}

func (l *fakeLocker) Lock(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil && *l.active != id {
		return errors.Errorf("bitstream %s is active", l.active)
	}
	if l.active == nil {
		cp := id
		l.active = &cp
	}
	l.refs++
	return nil
}

func (l *fakeLocker) Unlock(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil || *l.active != id {
		return errors.Errorf("bitstream %s is not locked", id)
	}
	l.refs--
	if l.refs == 0 {
		l.active = nil
	}
	return nil
}

func (l *fakeLocker) locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

// fakeBuf is a resolved exec buffer with a release tally.
type fakeBuf struct {
	words    []uint32
	released atomic.Int32
}

func (b *fakeBuf) Words() []uint32 { return b.words }
func (b *fakeBuf) Release()        { b.released.Add(1) }

func (b *fakeBuf) state() ert.CmdState {
	pkt, err := ert.DecodePacket(b.words)
	if err != nil {
		return 0
	}
	return pkt.State
}

// fakeResolver hands out registered buffers by handle.
type fakeResolver struct {
	mu    sync.Mutex
	next  BufferHandle
	bufs  map[BufferHandle]*fakeBuf
	calls int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{bufs: make(map[BufferHandle]*fakeBuf)}
}

func (r *fakeResolver) add(words []uint32) (BufferHandle, *fakeBuf) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	b := &fakeBuf{words: words}
	r.bufs[r.next] = b
	return r.next, b
}

func (r *fakeResolver) Get(h BufferHandle) (ExecBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	b, ok := r.bufs[h]
	if !ok {
		return nil, errors.Errorf("no exec buffer %d", h)
	}
	return b, nil
}

// fakeERT records commands handed to the micro-scheduler channel.
type fakeERT struct {
	mu   sync.Mutex
	cmds []*Command
}

func (e *fakeERT) Forward(cmd *Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
	return nil
}

func (e *fakeERT) forwarded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cmds)
}

// autoRegs emulates an HLS register window. In automatic mode a started
// command is done on the next status read; in manual mode the test releases
// completions with finish.
type autoRegs struct {
	mu        sync.Mutex
	regs      map[uint32]uint32
	manual    bool
	running   int
	doneLatch int
}

func newAutoRegs(manual bool) *autoRegs {
	return &autoRegs{regs: make(map[uint32]uint32), manual: manual}
}

func (r *autoRegs) Read32(off uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off != 0 {
		return r.regs[off]
	}
	if !r.manual && r.running > 0 {
		r.running--
		r.doneLatch++
	}
	var v uint32
	if r.doneLatch > 0 {
		v |= xcu.APDone | xcu.APReady
		r.doneLatch--
	}
	if r.running == 0 && r.doneLatch == 0 {
		v |= xcu.APIdle
	}
	return v
}

func (r *autoRegs) Write32(off, val uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off == 0 {
		switch {
		case val&xcu.APStart != 0:
			r.running++
		case val&xcu.APReset != 0:
			r.running = 0
			r.doneLatch = 0
		}
		return
	}
	r.regs[off] = val
}

func (r *autoRegs) setManual(manual bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual = manual
}

func (r *autoRegs) finish(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.running {
		n = r.running
	}
	r.running -= n
	r.doneLatch += n
}

// startPacket builds an encoded START command buffer.
func startPacket(cuMask uint32, args ...uint32) []uint32 {
	p := &ert.Packet{
		State:   ert.CmdStateNew,
		Opcode:  ert.OpStartCU,
		Payload: append([]uint32{cuMask}, args...),
	}
	return p.Encode()
}

// keyValPacket builds an encoded START command whose arguments are
// {offset, value} register pairs.
func keyValPacket(cuMask uint32, pairs ...uint32) []uint32 {
	p := &ert.Packet{
		State:   ert.CmdStateNew,
		Opcode:  ert.OpStartKeyVal,
		Payload: append([]uint32{cuMask}, pairs...),
	}
	return p.Encode()
}

func configurePacket(cfg *ert.ConfigureCmd) []uint32 {
	p := &ert.Packet{
		State:   ert.CmdStateNew,
		Opcode:  ert.OpConfigure,
		Payload: cfg.Encode(),
	}
	return p.Encode()
}

// testSched wires a scheduler over fakes with numCUs HLS compute units.
type testSched struct {
	sched    *Sched
	locker   *fakeLocker
	resolver *fakeResolver
	ert      *fakeERT
	regs     []*autoRegs
}

func newTestSched(numCUs int, manual bool, withERT bool) (*testSched, error) {
	ts := &testSched{
		locker:   &fakeLocker{},
		resolver: newFakeResolver(),
	}
	var ertCh ERTChannel
	if withERT {
		ts.ert = &fakeERT{}
		ertCh = ts.ert
	}
	ts.sched = New(ts.locker, ts.resolver, ertCh, nil)
	for i := 0; i < numCUs; i++ {
		regs := newAutoRegs(manual)
		ts.regs = append(ts.regs, regs)
		cu, err := xcu.New(xcu.Info{
			Model:      xcu.ModelHLS,
			CUIdx:      i,
			Protocol:   xcu.CtrlHS,
			KernelName: "vadd",
			InstName:   "vadd_" + string(rune('1'+i)),
		}, regs, nil)
		if err != nil {
			return nil, err
		}
		cu.SetPollInterval(200 * time.Microsecond)
		if err := ts.sched.AddCU(cu); err != nil {
			return nil, err
		}
	}
	if err := ts.sched.Start(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *testSched) stop() { ts.sched.Stop() }
