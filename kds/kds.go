// Package kds is the kernel driver scheduler: it admits clients and their CU
// contexts, translates submitted instruction buffers into internal commands
// and routes them onto the compute-unit engines (or the hardware-resident
// micro-scheduler), and delivers exactly one completion notification per
// accepted command.
//
// Memory mapping, bitstream reconfiguration and interrupt wiring belong to
// the surrounding driver; they appear here only as the collaborator
// interfaces below.
package kds

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// MaxCUs bounds the CU registry.
	MaxCUs = 128

	// VirtualCU is the context selector for clients that target no
	// specific CU.
	VirtualCU = -1
)

// Sentinel admission and context errors. They mirror the errno contract of
// the driver surface; callers classify with errors.Is.
var (
	// ErrInvalid rejects malformed requests: no open context on submit,
	// close with no context, unknown CU index, undecodable packet.
	ErrInvalid = errors.New("invalid argument")

	// ErrBusy rejects context opens that conflict with existing holders
	// and closes naming the wrong bitstream.
	ErrBusy = errors.New("device or resource busy")

	// ErrBadState rejects all submissions after a device-fatal fault,
	// until an explicit reset.
	ErrBadState = errors.New("scheduler in bad state")
)

// BufferHandle names a mapped instruction buffer owned by the memory
// subsystem.
type BufferHandle uint32

// ExecBuffer is a resolved instruction buffer. The scheduler holds the
// reference from submission until the terminal notification, then releases
// it exactly once.
type ExecBuffer interface {
	// Words is the live view of the buffer; the header writeback goes
	// through it.
	Words() []uint32
	Release()
}

// BufferResolver resolves submit-time handles to mapped buffers.
type BufferResolver interface {
	Get(h BufferHandle) (ExecBuffer, error)
}

// BitstreamLocker serializes bitstream ownership device-wide. Lock fails
// while a different bitstream is active or reconfiguration is in progress.
type BitstreamLocker interface {
	Lock(id uuid.UUID) error
	Unlock(id uuid.UUID) error
}

// ERTChannel forwards commands to the hardware-resident micro-scheduler.
type ERTChannel interface {
	Forward(cmd *Command) error
}
