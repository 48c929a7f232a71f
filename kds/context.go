package kds

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// OpenContext registers the client's right to target cuSel (or VirtualCU)
// under the given bitstream. The client's first context acquires the
// device-wide bitstream lock; a registration failure right after a fresh
// acquisition rolls the lock back.
func (s *Sched) OpenContext(c *Client, bitstream uuid.UUID, cuSel int, exclusive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	freshLock := false
	if c.numCtx == 0 {
		if err := s.locker.Lock(bitstream); err != nil {
			return errors.WithMessagef(err, "locking bitstream %s", bitstream)
		}
		id := bitstream
		c.bitstream = &id
		freshLock = true
	}

	// Lock held: nobody can load another bitstream until this client
	// closes all of its contexts.
	if err := s.addContext(c, cuSel, exclusive); err != nil {
		if freshLock {
			c.bitstream = nil
			if uerr := s.locker.Unlock(bitstream); uerr != nil {
				klog.Errorf("rollback unlock of bitstream %s failed: %v", bitstream, uerr)
			}
		}
		return err
	}
	c.numCtx++
	klog.V(1).Infof("pid %d opened context on CU %d (exclusive=%v), %d open", c.pid, cuSel, exclusive, c.numCtx)
	return nil
}

// CloseContext drops one context registration. Sanity checks guard against
// stale requests: there must be a remembered bitstream id and it must match.
// The last close releases the bitstream lock.
func (s *Sched) CloseContext(c *Client, bitstream uuid.UUID, cuSel int, exclusive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bitstream == nil {
		return errors.WithMessagef(ErrInvalid, "pid %d has no open context", c.pid)
	}
	if *c.bitstream != bitstream {
		return errors.WithMessagef(ErrBusy, "pid %d tried to close context on wrong bitstream %s", c.pid, bitstream)
	}

	if err := s.delContext(c, cuSel, exclusive); err != nil {
		return err
	}
	c.numCtx--
	if c.numCtx == 0 {
		c.bitstream = nil
		if err := s.locker.Unlock(bitstream); err != nil {
			klog.Errorf("unlock of bitstream %s failed: %v", bitstream, err)
		}
	}
	klog.V(1).Infof("pid %d closed context on CU %d, %d open", c.pid, cuSel, c.numCtx)
	return nil
}

// addContext is the scheduler-core registration: per-CU refcount with an
// exclusive bit. Caller holds c.mu.
func (s *Sched) addContext(c *Client, cuSel int, exclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cuSel == VirtualCU {
		c.virtCtx++
		return nil
	}
	if cuSel < 0 || cuSel >= len(s.cus) {
		return errors.WithMessagef(ErrInvalid, "no CU %d", cuSel)
	}
	ref := &s.refs[cuSel]
	if exclusive && ref.refcnt > 0 {
		return errors.WithMessagef(ErrBusy, "CU %d already open, exclusive context denied", cuSel)
	}
	if !exclusive && ref.exclusive {
		return errors.WithMessagef(ErrBusy, "CU %d held exclusively", cuSel)
	}
	ref.refcnt++
	ref.exclusive = exclusive
	c.cuCtx[cuSel]++
	return nil
}

// delContext reverses addContext. Caller holds c.mu.
func (s *Sched) delContext(c *Client, cuSel int, exclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cuSel == VirtualCU {
		if c.virtCtx == 0 {
			return errors.WithMessagef(ErrInvalid, "pid %d holds no virtual CU context", c.pid)
		}
		c.virtCtx--
		return nil
	}
	if cuSel < 0 || cuSel >= len(s.cus) || c.cuCtx[cuSel] == 0 {
		return errors.WithMessagef(ErrInvalid, "pid %d holds no context on CU %d", c.pid, cuSel)
	}
	c.cuCtx[cuSel]--
	if c.cuCtx[cuSel] == 0 {
		delete(c.cuCtx, cuSel)
	}
	ref := &s.refs[cuSel]
	ref.refcnt--
	if ref.refcnt == 0 {
		ref.exclusive = false
	}
	return nil
}

// releaseClientRefs force-drops every registration a disappearing client
// still holds. Caller holds c.mu.
func (s *Sched) releaseClientRefs(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for cuSel, n := range c.cuCtx {
		ref := &s.refs[cuSel]
		ref.refcnt -= n
		if ref.refcnt <= 0 {
			ref.refcnt = 0
			ref.exclusive = false
		}
		delete(c.cuCtx, cuSel)
	}
	c.virtCtx = 0
}
