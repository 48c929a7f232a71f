package kds

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/mipres/XRT/ert"
	"github.com/mipres/XRT/xcu"
)

// CommandClass is the routing classification of an accepted command.
type CommandClass int

const (
	// ClassCU dispatches directly to a software-driven CU engine.
	ClassCU CommandClass = iota
	// ClassERT forwards to the hardware-resident micro-scheduler.
	ClassERT
)

// InKernelCB is the deferred in-driver completion callback alternative to
// the client event counter. Func runs off the engine goroutine; err is nil
// only for a clean completion.
type InKernelCB struct {
	Func func(data any, err error)
	Data any
}

// Command is the scheduler-internal form of a submitted instruction buffer.
// The scheduler owns it, and the underlying exec buffer reference, until the
// terminal notification fires.
type Command struct {
	client *Client
	opcode ert.Opcode
	class  CommandClass

	cuMask  uint32
	regData []uint32
	cfgType xcu.ConfigType

	buf  ExecBuffer
	cb   *InKernelCB
	sink notifier

	state    atomic.Uint32
	notified atomic.Bool
}

// Client returns the submitting client.
func (c *Command) Client() *Client { return c.client }

// Opcode returns the packet opcode the command was built from.
func (c *Command) Opcode() ert.Opcode { return c.opcode }

// Class returns the routing classification.
func (c *Command) Class() CommandClass { return c.class }

// CUMask returns the candidate CU bitmask of a START command.
func (c *Command) CUMask() uint32 { return c.cuMask }

// Owner implements xcu.Command.
func (c *Command) Owner() any { return c.client }

// RegData implements xcu.Command.
func (c *Command) RegData() []uint32 { return c.regData }

// ConfigType implements xcu.Command.
func (c *Command) ConfigType() xcu.ConfigType { return c.cfgType }

// State implements xcu.Command.
func (c *Command) State() ert.CmdState { return ert.CmdState(c.state.Load()) }

// SetState implements xcu.Command.
func (c *Command) SetState(s ert.CmdState) { c.state.Store(uint32(s)) }

// Notify writes the terminal state back into the exec buffer header,
// releases the buffer reference and delivers the completion signal. It fires
// exactly once; queue ownership makes a second call a bug, not a race.
func (c *Command) Notify() {
	if c.notified.Swap(true) {
		klog.Errorf("duplicate notification for command of pid %d dropped", c.client.pid)
		return
	}
	st := c.State()
	ert.WriteState(c.buf.Words(), st)
	c.buf.Release()
	c.sink.notify(c, st)
	klog.V(2).Infof("command of pid %d finished: %s", c.client.pid, st)
}

// notifier is the completion sink capability. The gateway picks the
// implementation at submission; everything downstream is agnostic.
type notifier interface {
	notify(cmd *Command, st ert.CmdState)
}

// eventNotifier bumps the client's event counter and wakes waiters.
type eventNotifier struct{}

func (eventNotifier) notify(cmd *Command, _ ert.CmdState) {
	cmd.client.postEvent()
}

// callbackNotifier schedules the in-kernel callback on its own goroutine.
type callbackNotifier struct{}

func (callbackNotifier) notify(cmd *Command, st ert.CmdState) {
	cb := cmd.cb
	var err error
	if st != ert.CmdStateCompleted {
		err = errors.Errorf("command finished with %s", st)
	}
	go cb.Func(cb.Data, err)
}
