package kds

import (
	"math/bits"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/mipres/XRT/ert"
	"github.com/mipres/XRT/xcu"
)

const abortPollInterval = 100 * time.Microsecond

// cuRef tracks context registrations on one CU.
type cuRef struct {
	refcnt    int
	exclusive bool
}

// Sched is the scheduler core: the CU registry, the device-wide flags and
// the client set. All command traffic flows through it.
type Sched struct {
	locker   BitstreamLocker
	resolver BufferResolver
	ertCh    ERTChannel

	mu      sync.Mutex
	cus     []*xcu.CU
	refs    []cuRef
	clients map[*Client]struct{}

	badState   atomic.Bool
	ertDisable atomic.Bool
	cuIntrCap  atomic.Bool
	cuIntr     atomic.Bool

	// Echo completes commands at dispatch without hardware; applied to
	// CUs as they are added.
	Echo bool

	cuMetrics *xcu.Metrics
	metrics   *schedMetrics
}

// New builds a scheduler over the external collaborators. ertCh may be nil
// when the device has no hardware micro-scheduler; reg may be nil to skip
// metric registration.
func New(locker BitstreamLocker, resolver BufferResolver, ertCh ERTChannel, reg prometheus.Registerer) *Sched {
	s := &Sched{
		locker:    locker,
		resolver:  resolver,
		ertCh:     ertCh,
		clients:   make(map[*Client]struct{}),
		cuMetrics: xcu.NewMetrics(reg),
	}
	// Direct CU dispatch until a CONFIGURE enables the micro-scheduler.
	s.ertDisable.Store(true)
	s.metrics = newSchedMetrics(reg, s)
	return s
}

// AddCU registers a compute unit with the core. Call before Start.
func (s *Sched) AddCU(cu *xcu.CU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cus) >= MaxCUs {
		return errors.Errorf("CU registry full (%d)", MaxCUs)
	}
	if cu.Info.CUIdx != len(s.cus) {
		return errors.Errorf("CU index %d out of order, expected %d", cu.Info.CUIdx, len(s.cus))
	}
	cu.Echo = s.Echo
	cu.OnBadState = s.cuFault
	cu.SetMetrics(s.cuMetrics)
	s.cus = append(s.cus, cu)
	s.refs = append(s.refs, cuRef{})
	return nil
}

// NumCUs returns the number of registered compute units.
func (s *Sched) NumCUs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cus)
}

// CU returns the registered CU at idx, or nil.
func (s *Sched) CU(idx int) *xcu.CU {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.cus) {
		return nil
	}
	return s.cus[idx]
}

// Start launches every CU engine.
func (s *Sched) Start() error {
	for _, cu := range s.snapshotCUs() {
		if err := cu.Start(); err != nil {
			return errors.WithMessagef(err, "starting CU %d", cu.Info.CUIdx)
		}
	}
	klog.V(1).Infof("scheduler started with %d CUs", s.NumCUs())
	return nil
}

// Stop quiesces every CU engine and aborts whatever they still held.
func (s *Sched) Stop() {
	for _, cu := range s.snapshotCUs() {
		cu.Stop()
		cu.Abort(nil)
	}
	klog.V(1).Infof("scheduler stopped")
}

// BadState reports the sticky device-wide fault flag.
func (s *Sched) BadState() bool { return s.badState.Load() }

// SetBadState forces the device-wide fault flag; submissions are rejected
// until Reset.
func (s *Sched) SetBadState() { s.badState.Store(true) }

// cuFault is the CU engines' upward escalation path.
func (s *Sched) cuFault(cu *xcu.CU) {
	klog.Errorf("device entering bad state: fault on CU %d", cu.Info.CUIdx)
	s.badState.Store(true)
}

// NewClient admits a process and returns its scheduler handle.
func (s *Sched) NewClient(pid int) *Client {
	c := newClient(s, pid)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	klog.V(1).Infof("created client for pid %d", pid)
	return c
}

// DestroyClient tears a client down: abort its commands on every CU, wait
// for them to drain, drop leaked context registrations and roll back the
// bitstream lock if the process died with contexts open.
func (s *Sched) DestroyClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	cus := slices.Clone(s.cus)
	s.mu.Unlock()

	g := new(errgroup.Group)
	for _, cu := range cus {
		cu := cu
		g.Go(func() error {
			if n := cu.Abort(c); n > 0 {
				klog.Warningf("pid %d exit aborted %d commands on CU %d", c.pid, n, cu.Info.CUIdx)
			}
			for !cu.AbortDone(c) {
				time.Sleep(abortPollInterval)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	if c.bitstream != nil {
		id := *c.bitstream
		klog.Warningf("pid %d exited with %d open contexts, rolling back", c.pid, c.numCtx)
		s.releaseClientRefs(c)
		c.numCtx = 0
		c.bitstream = nil
		if err := s.locker.Unlock(id); err != nil {
			klog.Errorf("rollback unlock of bitstream %s failed: %v", id, err)
		}
	}
	c.mu.Unlock()
	klog.V(1).Infof("client pid %d destroyed", c.pid)
}

// LiveClients returns the pids holding at least one open context.
func (s *Sched) LiveClients() []int {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var pids []int
	for _, c := range clients {
		if c.NumContexts() > 0 {
			pids = append(pids, c.pid)
		}
	}
	slices.Sort(pids)
	return pids
}

// addCommand routes an accepted command: direct CU dispatch or handoff to
// the hardware micro-scheduler.
func (s *Sched) addCommand(cmd *Command) error {
	switch cmd.class {
	case ClassERT:
		if s.ertCh == nil {
			return errors.WithMessagef(ErrInvalid, "no micro-scheduler channel configured")
		}
		cmd.SetState(ert.CmdStateQueued)
		return s.ertCh.Forward(cmd)
	case ClassCU:
		cu, err := s.selectCU(cmd)
		if err != nil {
			return err
		}
		return cu.Submit(cmd)
	}
	return errors.WithMessagef(ErrInvalid, "unknown command class %d", cmd.class)
}

// selectCU picks the first CU in the command's mask that the client may
// target and that is healthy. Caller holds cmd.client.mu.
func (s *Sched) selectCU(cmd *Command) (*xcu.CU, error) {
	c := cmd.client
	s.mu.Lock()
	defer s.mu.Unlock()
	for mask := cmd.cuMask; mask != 0; mask &= mask - 1 {
		idx := bits.TrailingZeros32(mask)
		if idx >= len(s.cus) {
			break
		}
		if c.virtCtx == 0 && c.cuCtx[idx] == 0 {
			continue
		}
		if s.cus[idx].BadState() {
			continue
		}
		return s.cus[idx], nil
	}
	return nil, errors.WithMessagef(ErrInvalid, "pid %d has no usable CU in mask %#x", c.pid, cmd.cuMask)
}

// Update records whether the shell can route CU interrupts to the host and
// reconciles every CU's completion mode. Interrupt mode is off after an
// update until a CONFIGURE turns it on.
func (s *Sched) Update(cuIntrCap bool) {
	if cuIntrCap {
		klog.V(1).Infof("shell supports CU to host interrupts")
	} else {
		klog.V(1).Infof("shell does not support CU to host interrupts")
	}
	s.cuIntrCap.Store(cuIntrCap)
	s.cuIntr.Store(false)
	s.cfgUpdate()
}

// cfgUpdate pushes the current interrupt-vs-poll decision to every CU.
func (s *Sched) cfgUpdate() {
	want := s.cuIntrCap.Load() && s.cuIntr.Load()
	for _, cu := range s.snapshotCUs() {
		err := cu.CfgUpdate(want && cu.Info.IntrEnable)
		if err != nil {
			klog.Warningf("CU %d kept its completion mode: %v", cu.Info.CUIdx, err)
		}
	}
}

// applyConfigure applies a CONFIGURE command's scheduler tuning.
func (s *Sched) applyConfigure(cfg *ert.ConfigureCmd) {
	if int(cfg.NumCUs) != s.NumCUs() {
		klog.Warningf("CONFIGURE names %d CUs, %d registered", cfg.NumCUs, s.NumCUs())
	}
	ertEnable := cfg.EnableERT && s.ertCh != nil
	if cfg.EnableERT && s.ertCh == nil {
		klog.Warningf("CONFIGURE requested the micro-scheduler, none present")
	}
	s.ertDisable.Store(!ertEnable)
	if cfg.PollingMs > 0 {
		d := time.Duration(cfg.PollingMs) * time.Millisecond
		for _, cu := range s.snapshotCUs() {
			cu.SetPollInterval(d)
		}
	}
	s.cuIntr.Store(cfg.CUInterrupts)
	s.cfgUpdate()
	klog.V(1).Infof("configured: ert=%v polling=%dms cu_intr=%v", ertEnable, cfg.PollingMs, cfg.CUInterrupts)
}

// Reset is the stop-the-world recovery path: quiesce every CU engine, abort
// everything outstanding, reset the hardware, clear the fault flags and
// resume admission. Commands in flight surface CmdStateAbort through their
// normal notification.
func (s *Sched) Reset() error {
	klog.V(1).Infof("scheduler reset")
	cus := s.snapshotCUs()
	for _, cu := range cus {
		cu.Stop()
	}

	g := new(errgroup.Group)
	for _, cu := range cus {
		cu := cu
		g.Go(func() error {
			cu.Abort(nil)
			return cu.Recover()
		})
	}
	if err := g.Wait(); err != nil {
		// Hardware did not come back; stay in bad state.
		s.badState.Store(true)
		return errors.WithMessagef(err, "reset failed")
	}

	s.badState.Store(false)
	for _, cu := range cus {
		if err := cu.Start(); err != nil {
			return errors.WithMessagef(err, "restarting CU %d", cu.Info.CUIdx)
		}
	}
	return nil
}

func (s *Sched) snapshotCUs() []*xcu.CU {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cus)
}
