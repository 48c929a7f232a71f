package xcu

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/mipres/XRT/ert"
)

// Command is the engine's view of a scheduled command. Implementations are
// owned by the engine from Submit until Notify fires with a terminal state.
type Command interface {
	// Owner identifies the submitting client, used by Abort.
	Owner() any
	// RegData is the argument block written to the CU before start.
	RegData() []uint32
	ConfigType() ConfigType
	State() ert.CmdState
	SetState(ert.CmdState)
	// Notify delivers the terminal state to the submitter, exactly once.
	Notify()
}

const (
	// DefaultRunTimeout bounds how long a submitted command may sit on the
	// hardware with no completion before the CU is declared hung.
	DefaultRunTimeout = 5 * time.Second

	// DefaultPollInterval is the check cadence when CU interrupts are off.
	DefaultPollInterval = time.Millisecond

	resetRetries      = 20
	resetPollInterval = 100 * time.Microsecond
)

// CU is one compute unit: a hardware model plus the four-queue command
// pipeline (pending, run, submitted, completed) and a dedicated goroutine
// moving commands through it.
//
// The pending queue is the producer side and has its own lock; the other
// three queues belong to the engine goroutine and share a second lock that
// abort paths also take. A command is a member of exactly one queue at any
// time.
type CU struct {
	Info  Info
	model Model

	// Engine tuning, adjustable while running.
	runTimeoutNs atomic.Int64
	pollNs       atomic.Int64

	// Echo completes commands at dispatch without touching hardware.
	// Throughput measurement aid.
	Echo bool

	// OnBadState, if set, reports an unrecoverable fault upward.
	OnBadState func(*CU)

	pqMu sync.Mutex
	pq   *list.List

	qMu sync.Mutex
	rq  *list.List
	sq  *list.List
	cq  *list.List

	// Terminal-state tallies, guarded by qMu.
	counts map[ert.CmdState]uint64

	wakeup chan struct{}
	stopC  chan struct{}
	wg     sync.WaitGroup

	lifeMu  sync.Mutex
	started bool

	badState atomic.Bool
	intr     atomic.Bool

	// Engine-goroutine state.
	doneCnt    uint32
	readyTotal uint64
	lastAlive  time.Time

	// Completions still owed by commands aborted out of the submitted
	// queue, guarded by qMu. The hardware finishes them anyway; their
	// dones must not be matched against live commands.
	abortCnt uint32

	metrics *Metrics
}

// NewCU builds a CU over an already-constructed model.
func NewCU(info Info, model Model) *CU {
	cu := &CU{
		Info:   info,
		model:  model,
		pq:     list.New(),
		rq:     list.New(),
		sq:     list.New(),
		cq:     list.New(),
		counts: make(map[ert.CmdState]uint64),
		wakeup: make(chan struct{}, 1),
	}
	cu.runTimeoutNs.Store(int64(DefaultRunTimeout))
	cu.pollNs.Store(int64(DefaultPollInterval))
	return cu
}

// SetRunTimeout changes the hung-CU detection bound.
func (cu *CU) SetRunTimeout(d time.Duration) { cu.runTimeoutNs.Store(int64(d)) }

// SetPollInterval changes the completion-check cadence used when interrupts
// are off.
func (cu *CU) SetPollInterval(d time.Duration) { cu.pollNs.Store(int64(d)) }

func (cu *CU) runTimeout() time.Duration { return time.Duration(cu.runTimeoutNs.Load()) }
func (cu *CU) pollInterval() time.Duration { return time.Duration(cu.pollNs.Load()) }

// New builds a CU and its model from the instance descriptor and register
// windows.
func New(info Info, regs RegMap, plram RegMap) (*CU, error) {
	model, err := NewModel(info, regs, plram)
	if err != nil {
		return nil, errors.WithMessagef(err, "CU %d (%s)", info.CUIdx, info.InstName)
	}
	return NewCU(info, model), nil
}

// SetMetrics attaches prometheus instrumentation. Call before Start.
func (cu *CU) SetMetrics(m *Metrics) { cu.metrics = m }

// Model exposes the hardware model, mainly for diagnostics.
func (cu *CU) Model() Model { return cu.model }

// BadState reports whether the CU has entered the unrecoverable-fault state.
func (cu *CU) BadState() bool { return cu.badState.Load() }

// Start launches the engine goroutine.
func (cu *CU) Start() error {
	cu.lifeMu.Lock()
	defer cu.lifeMu.Unlock()
	if cu.started {
		return errors.Errorf("CU %d engine already running", cu.Info.CUIdx)
	}
	cu.stopC = make(chan struct{})
	cu.started = true
	cu.wg.Add(1)
	go cu.run()
	return nil
}

// Stop requests teardown and waits for the engine goroutine to exit.
// Queued commands stay queued; the caller decides whether to abort them.
func (cu *CU) Stop() {
	cu.lifeMu.Lock()
	if !cu.started {
		cu.lifeMu.Unlock()
		return
	}
	cu.started = false
	close(cu.stopC)
	cu.lifeMu.Unlock()
	cu.wg.Wait()
}

// Submit appends a command to the pending queue and wakes the engine.
// It never blocks on the engine's progress.
func (cu *CU) Submit(cmd Command) error {
	if cu.badState.Load() {
		return errors.Errorf("CU %d is in bad state", cu.Info.CUIdx)
	}
	cmd.SetState(ert.CmdStateQueued)
	cu.pqMu.Lock()
	cu.pq.PushBack(cmd)
	cu.pqMu.Unlock()
	cu.signal()
	return nil
}

// Interrupt is the ISR entry point: acknowledge the hardware and kick the
// engine to harvest completions.
func (cu *CU) Interrupt() {
	cu.model.ClearIntr()
	cu.signal()
}

// CfgUpdate switches between interrupt-driven and polled completion.
// Rejected while commands are outstanding.
func (cu *CU) CfgUpdate(intr bool) error {
	cu.pqMu.Lock()
	pending := cu.pq.Len()
	cu.pqMu.Unlock()
	cu.qMu.Lock()
	outstanding := cu.rq.Len() + cu.sq.Len() + cu.cq.Len()
	cu.qMu.Unlock()
	if pending+outstanding > 0 {
		return errors.Errorf("CU %d busy, cannot reconfigure interrupts", cu.Info.CUIdx)
	}
	if intr == cu.intr.Load() {
		return nil
	}
	if intr {
		cu.model.EnableIntr(IntrDone)
	} else {
		cu.model.DisableIntr(IntrDone | IntrReady)
	}
	cu.intr.Store(intr)
	klog.V(1).Infof("CU[%d] completion mode: interrupt=%v", cu.Info.CUIdx, intr)
	return nil
}

// Abort force-completes every queued or in-flight command belonging to
// owner (all commands when owner is nil) with CmdStateAbort and notifies
// each exactly once. Returns the number of commands aborted.
func (cu *CU) Abort(owner any) int {
	return cu.forceComplete(owner, ert.CmdStateAbort)
}

// AbortDone reports whether no command of owner remains in any queue.
func (cu *CU) AbortDone(owner any) bool {
	cu.pqMu.Lock()
	n := countMatching(cu.pq, owner)
	cu.pqMu.Unlock()
	cu.qMu.Lock()
	n += countMatching(cu.rq, owner) + countMatching(cu.sq, owner) + countMatching(cu.cq, owner)
	cu.qMu.Unlock()
	return n == 0
}

// SetBadState marks the CU unusable, fails everything outstanding and
// reports upward. Sticky until Recover.
func (cu *CU) SetBadState() {
	if cu.badState.Swap(true) {
		return
	}
	klog.Errorf("CU[%d] %s entered bad state", cu.Info.CUIdx, cu.Info.InstName)
	if cu.metrics != nil {
		cu.metrics.badState.WithLabelValues(cu.label()).Set(1)
	}
	cu.forceComplete(nil, ert.CmdStateError)
	if cu.OnBadState != nil {
		cu.OnBadState(cu)
	}
}

// Recover resets the hardware and clears the bad-state flag. The engine
// must be stopped. Part of the device-reset path.
func (cu *CU) Recover() error {
	cu.model.Reset()
	if !cu.waitResetDone() {
		return errors.Errorf("CU %d reset did not complete", cu.Info.CUIdx)
	}
	cu.doneCnt = 0
	cu.qMu.Lock()
	cu.abortCnt = 0
	cu.qMu.Unlock()
	cu.badState.Store(false)
	if cu.metrics != nil {
		cu.metrics.badState.WithLabelValues(cu.label()).Set(0)
	}
	return nil
}

func (cu *CU) signal() {
	select {
	case cu.wakeup <- struct{}{}:
	default:
	}
}

func (cu *CU) label() string {
	return fmt.Sprintf("%s:%d", cu.Info.KernelName, cu.Info.CUIdx)
}

func (cu *CU) run() {
	defer cu.wg.Done()
	klog.V(1).Infof("CU[%d] %s engine started (%s, %s)",
		cu.Info.CUIdx, cu.Info.InstName, cu.Info.Model, cu.Info.Protocol)
	cu.lastAlive = time.Now()
	for {
		cu.drainPending()
		cu.issueReady()
		cu.harvestDone()
		cu.notifyCompleted()
		if cu.metrics != nil {
			cu.updateDepths()
		}
		if !cu.waitForWork() {
			klog.V(1).Infof("CU[%d] engine stopped", cu.Info.CUIdx)
			return
		}
	}
}

// drainPending moves everything from the pending queue to the run queue.
func (cu *CU) drainPending() {
	cu.pqMu.Lock()
	if cu.pq.Len() == 0 {
		cu.pqMu.Unlock()
		return
	}
	cmds := make([]Command, 0, cu.pq.Len())
	for e := cu.pq.Front(); e != nil; e = e.Next() {
		cmds = append(cmds, e.Value.(Command))
	}
	cu.pq.Init()
	cu.pqMu.Unlock()

	cu.qMu.Lock()
	for _, cmd := range cmds {
		cmd.SetState(ert.CmdStateRunning)
		cu.rq.PushBack(cmd)
	}
	cu.qMu.Unlock()
}

// issueReady submits run-queue commands to the hardware while credit lasts.
// The whole run→submitted transition happens under qMu so a command is never
// observable outside a queue.
func (cu *CU) issueReady() {
	if cu.badState.Load() {
		return
	}
	for {
		cu.qMu.Lock()
		e := cu.rq.Front()
		if e == nil {
			cu.qMu.Unlock()
			return
		}
		if !cu.model.AllocCredit() {
			cu.qMu.Unlock()
			return
		}
		cmd := cu.rq.Remove(e).(Command)
		if cu.Echo {
			cmd.SetState(ert.CmdStateCompleted)
			cu.cq.PushBack(cmd)
			cu.qMu.Unlock()
			cu.model.FreeCredit(1)
			continue
		}
		cu.model.Configure(cmd.RegData(), cmd.ConfigType())
		cu.model.Start()
		cmd.SetState(ert.CmdStateSubmitted)
		cu.sq.PushBack(cmd)
		cu.qMu.Unlock()
		cu.lastAlive = time.Now()
		klog.V(2).Infof("CU[%d] issued command for %v", cu.Info.CUIdx, cmd.Owner())
	}
}

// harvestDone asks the model for aggregate completion counts and retires the
// oldest submitted commands against them. The hardware completes strictly in
// issue order, so counts are enough to identify the finished commands.
func (cu *CU) harvestDone() {
	cu.qMu.Lock()
	inflight := cu.sq.Len()
	cu.qMu.Unlock()
	if inflight == 0 && cu.doneCnt == 0 {
		return
	}

	var st Status
	cu.model.Check(&st)
	cu.doneCnt += st.NumDone
	cu.readyTotal += uint64(st.NumReady)
	if cu.doneCnt == 0 {
		return
	}

	cu.qMu.Lock()
	for cu.doneCnt > 0 {
		if cu.abortCnt > 0 {
			// Owed by an aborted command; swallowing it keeps live
			// entries from retiring before their own completion.
			cu.abortCnt--
			cu.doneCnt--
			continue
		}
		e := cu.sq.Front()
		if e == nil {
			// More completions than live or aborted commands issued.
			klog.V(2).Infof("CU[%d] dropping %d unmatched completions", cu.Info.CUIdx, cu.doneCnt)
			cu.doneCnt = 0
			break
		}
		cmd := cu.sq.Remove(e).(Command)
		cmd.SetState(ert.CmdStateCompleted)
		cu.cq.PushBack(cmd)
		cu.doneCnt--
		cu.model.FreeCredit(1)
	}
	cu.qMu.Unlock()
	cu.lastAlive = time.Now()
}

// notifyCompleted drains the completed queue, delivering notifications
// outside the queue lock.
func (cu *CU) notifyCompleted() {
	for {
		cu.qMu.Lock()
		e := cu.cq.Front()
		if e == nil {
			cu.qMu.Unlock()
			return
		}
		cmd := cu.cq.Remove(e).(Command)
		cu.counts[cmd.State()]++
		cu.qMu.Unlock()
		if cu.metrics != nil {
			cu.metrics.completed.WithLabelValues(cu.label(), cmd.State().String()).Inc()
		}
		cmd.Notify()
	}
}

// waitForWork blocks until new work, an interrupt, a timeout tick or
// teardown. Returns false on teardown.
func (cu *CU) waitForWork() bool {
	cu.pqMu.Lock()
	pending := cu.pq.Len()
	cu.pqMu.Unlock()
	if pending > 0 {
		// Raced submissions; go around again.
		return true
	}

	cu.qMu.Lock()
	inflight := cu.sq.Len()
	backlog := cu.rq.Len()
	cu.qMu.Unlock()

	if inflight == 0 && backlog > 0 && cu.model.PeekCredit() > 0 && !cu.badState.Load() {
		return true
	}

	if inflight == 0 {
		select {
		case <-cu.wakeup:
			return true
		case <-cu.stopC:
			return false
		}
	}

	// Commands on hardware: poll, or sleep until the interrupt arrives.
	wait := cu.pollInterval()
	if cu.intr.Load() {
		wait = cu.runTimeout()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-cu.wakeup:
	case <-timer.C:
		if time.Since(cu.lastAlive) > cu.runTimeout() {
			cu.handleHang()
		}
	case <-cu.stopC:
		return false
	}
	return true
}

// handleHang deals with a CU that stopped completing: one last check in case
// a completion raced the timer, then hardware reset. A reset that settles
// fails only the stuck command with CmdStateTimeout; a reset that does not
// settle escalates to bad state.
func (cu *CU) handleHang() {
	cu.harvestDone()
	cu.qMu.Lock()
	stuck := cu.sq.Len()
	cu.qMu.Unlock()
	if stuck == 0 {
		return
	}

	klog.Errorf("CU[%d] %s hung: %d commands with no completion in %s, resetting",
		cu.Info.CUIdx, cu.Info.InstName, stuck, cu.runTimeout())
	cu.model.Reset()
	if !cu.waitResetDone() {
		cu.SetBadState()
		return
	}

	cu.qMu.Lock()
	// The reset flushed the hardware; completions owed by aborted
	// commands will never arrive.
	cu.abortCnt = 0
	var victim Command
	if e := cu.sq.Front(); e != nil {
		victim = cu.sq.Remove(e).(Command)
		victim.SetState(ert.CmdStateTimeout)
		cu.cq.PushBack(victim)
	}
	cu.qMu.Unlock()
	if victim != nil {
		cu.model.FreeCredit(1)
	}
	cu.lastAlive = time.Now()
}

func (cu *CU) waitResetDone() bool {
	for i := 0; i < resetRetries; i++ {
		if cu.model.ResetDone() {
			return true
		}
		time.Sleep(resetPollInterval)
	}
	return false
}

// forceComplete pulls matching commands out of every queue and notifies them
// with the given terminal state.
func (cu *CU) forceComplete(owner any, st ert.CmdState) int {
	var victims []Command
	cu.pqMu.Lock()
	victims = append(victims, removeMatching(cu.pq, owner)...)
	cu.pqMu.Unlock()

	cu.qMu.Lock()
	victims = append(victims, removeMatching(cu.rq, owner)...)
	fromSQ := removeMatching(cu.sq, owner)
	victims = append(victims, fromSQ...)
	victims = append(victims, removeMatching(cu.cq, owner)...)
	cu.counts[st] += uint64(len(victims))
	cu.abortCnt += uint32(len(fromSQ))
	cu.qMu.Unlock()

	if len(fromSQ) > 0 {
		cu.model.FreeCredit(uint32(len(fromSQ)))
	}
	for _, cmd := range victims {
		cmd.SetState(st)
		if cu.metrics != nil {
			cu.metrics.completed.WithLabelValues(cu.label(), st.String()).Inc()
		}
		cmd.Notify()
	}
	cu.signal()
	return len(victims)
}

func removeMatching(l *list.List, owner any) []Command {
	var out []Command
	for e := l.Front(); e != nil; {
		next := e.Next()
		cmd := e.Value.(Command)
		if owner == nil || cmd.Owner() == owner {
			l.Remove(e)
			out = append(out, cmd)
		}
		e = next
	}
	return out
}

func countMatching(l *list.List, owner any) int {
	n := 0
	for e := l.Front(); e != nil; e = e.Next() {
		if owner == nil || e.Value.(Command).Owner() == owner {
			n++
		}
	}
	return n
}

func (cu *CU) updateDepths() {
	cu.pqMu.Lock()
	pending := cu.pq.Len()
	cu.pqMu.Unlock()
	cu.qMu.Lock()
	run, sub := cu.rq.Len(), cu.sq.Len()
	cu.qMu.Unlock()
	l := cu.label()
	cu.metrics.queueDepth.WithLabelValues(l, "pending").Set(float64(pending))
	cu.metrics.queueDepth.WithLabelValues(l, "run").Set(float64(run))
	cu.metrics.queueDepth.WithLabelValues(l, "submitted").Set(float64(sub))
}

// Stat renders queue depths and terminal-state tallies, one line per field.
func (cu *CU) Stat() string {
	var b strings.Builder
	cu.pqMu.Lock()
	fmt.Fprintf(&b, "pending queue:   %d\n", cu.pq.Len())
	cu.pqMu.Unlock()
	cu.qMu.Lock()
	fmt.Fprintf(&b, "run queue:       %d\n", cu.rq.Len())
	fmt.Fprintf(&b, "submitted queue: %d\n", cu.sq.Len())
	fmt.Fprintf(&b, "completed:       %d\n", cu.counts[ert.CmdStateCompleted])
	fmt.Fprintf(&b, "errors:          %d\n", cu.counts[ert.CmdStateError])
	fmt.Fprintf(&b, "timeouts:        %d\n", cu.counts[ert.CmdStateTimeout])
	fmt.Fprintf(&b, "aborted:         %d\n", cu.counts[ert.CmdStateAbort])
	cu.qMu.Unlock()
	fmt.Fprintf(&b, "credits:         %d\n", cu.model.PeekCredit())
	fmt.Fprintf(&b, "bad state:       %v\n", cu.badState.Load())
	return b.String()
}

// InfoString renders the static CU descriptor.
func (cu *CU) InfoString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kernel:   %s\n", cu.Info.KernelName)
	fmt.Fprintf(&b, "instance: %s\n", cu.Info.InstName)
	fmt.Fprintf(&b, "model:    %s\n", cu.Info.Model)
	fmt.Fprintf(&b, "protocol: %s\n", cu.Info.Protocol)
	fmt.Fprintf(&b, "address:  0x%x\n", cu.Info.Addr)
	fmt.Fprintf(&b, "intr id:  %d (enabled=%v)\n", cu.Info.IntrID, cu.Info.IntrEnable)
	for _, a := range cu.Info.Args {
		fmt.Fprintf(&b, "arg %-16s off 0x%03x size %d\n", a.Name, a.Offset, a.Size)
	}
	return b.String()
}
