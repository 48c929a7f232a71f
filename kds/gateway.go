package kds

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/mipres/XRT/ert"
	"github.com/mipres/XRT/xcu"
)

// SubmitExecBuf is the command gateway: it validates the client, resolves
// and translates the instruction buffer, attaches the completion sink and
// hands the command to the core. Admission failures are synchronous and
// leave no scheduler-visible state; once this returns nil the command's
// outcome arrives only through its notification.
//
// With cb set, completion schedules the in-kernel callback; otherwise it
// bumps the client's event counter for PollForCompletion.
func (s *Sched) SubmitExecBuf(c *Client, h BufferHandle, cb *InKernelCB) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bitstream == nil {
		s.metrics.rejected.Inc()
		return errors.WithMessagef(ErrInvalid, "pid %d has no open context", c.pid)
	}
	if s.badState.Load() {
		s.metrics.rejected.Inc()
		return errors.WithMessagef(ErrBadState, "submission from pid %d rejected", c.pid)
	}

	buf, err := s.resolver.Get(h)
	if err != nil {
		s.metrics.rejected.Inc()
		return errors.WithMessagef(err, "looking up exec buffer %d", h)
	}

	if err := s.submitResolved(c, buf, cb); err != nil {
		// Admission failed after resolution: the reference must not leak.
		buf.Release()
		s.metrics.rejected.Inc()
		return err
	}
	s.metrics.submitted.Inc()
	return nil
}

func (s *Sched) submitResolved(c *Client, buf ExecBuffer, cb *InKernelCB) error {
	words := buf.Words()
	ert.WriteState(words, ert.CmdStateNew)
	pkt, err := ert.DecodePacket(words)
	if err != nil {
		return errors.WithMessagef(ErrInvalid, "pid %d submitted a malformed packet: %v", c.pid, err)
	}

	cmd := &Command{
		client: c,
		opcode: pkt.Opcode,
		buf:    buf,
		sink:   eventNotifier{},
	}
	if cb != nil && cb.Func != nil {
		cmd.cb = cb
		cmd.sink = callbackNotifier{}
	}

	switch pkt.Opcode {
	case ert.OpStartCU:
		start, err := ert.ParseStart(pkt.Payload)
		if err != nil {
			return errors.WithMessagef(ErrInvalid, "pid %d: %v", c.pid, err)
		}
		cmd.cuMask = start.CUMask
		cmd.regData = start.Args
		cmd.cfgType = xcu.Consecutive
	case ert.OpStartKeyVal:
		start, err := ert.ParseStart(pkt.Payload)
		if err != nil {
			return errors.WithMessagef(ErrInvalid, "pid %d: %v", c.pid, err)
		}
		if len(start.Args)%2 != 0 {
			return errors.WithMessagef(ErrInvalid, "pid %d: key-val payload of %d words cannot form pairs", c.pid, len(start.Args))
		}
		cmd.cuMask = start.CUMask
		cmd.regData = start.Args
		cmd.cfgType = xcu.Pairs
	case ert.OpConfigure:
		cfg, err := ert.ParseConfigure(pkt.Payload)
		if err != nil {
			return errors.WithMessagef(ErrInvalid, "pid %d: %v", c.pid, err)
		}
		s.applyConfigure(cfg)
		// Tuning is applied; the command needs no hardware and
		// completes through the normal notification path.
		cmd.SetState(ert.CmdStateCompleted)
		cmd.Notify()
		return nil
	default:
		return errors.WithMessagef(ErrInvalid, "pid %d submitted unsupported opcode %d", c.pid, pkt.Opcode)
	}

	if s.ertDisable.Load() {
		cmd.class = ClassCU
	} else {
		cmd.class = ClassERT
	}
	klog.V(2).Infof("pid %d submitted %s (mask %#x, class %d)", c.pid, pkt.Opcode, cmd.cuMask, cmd.class)
	return s.addCommand(cmd)
}
