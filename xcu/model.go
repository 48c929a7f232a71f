// Package xcu implements the per-compute-unit execution engine: a pluggable
// hardware model, the four-queue command pipeline and the dedicated goroutine
// that drives commands through it.
package xcu

import (
	"github.com/pkg/errors"
)

//go:generate go tool enumer -type=ModelKind model.go
//go:generate go tool enumer -type=Protocol model.go
//go:generate go tool enumer -type=ConfigType model.go

// ModelKind selects a concrete CU hardware model.
type ModelKind int

const (
	ModelHLS ModelKind = iota
	ModelACC
	ModelPLRAM
)

// Protocol is the control protocol a CU instance implements.
type Protocol int

const (
	CtrlHS Protocol = iota
	CtrlChain
	CtrlNone
	CtrlME
	CtrlACC
)

// ConfigType selects how argument words are written to the CU.
type ConfigType int

const (
	// Consecutive is a blind block copy into the argument window.
	Consecutive ConfigType = iota
	// Pairs interprets the data as {offset, value} pairs.
	Pairs
)

// Interrupt kinds understood by Model.EnableIntr / Model.DisableIntr.
const (
	IntrDone  uint32 = 0x1
	IntrReady uint32 = 0x2
)

// HLS control register bits (offset 0 of the register window).
const (
	APStart    uint32 = 1 << 0
	APDone     uint32 = 1 << 1
	APIdle     uint32 = 1 << 2
	APReady    uint32 = 1 << 3
	APContinue uint32 = 1 << 4
	APReset    uint32 = 1 << 5
)

// RegMap is the register-window accessor of one CU instance. Offsets are in
// bytes from the CU base address. Implementations wrap mapped device memory;
// tests and the simulator substitute emulations.
type RegMap interface {
	Read32(off uint32) uint32
	Write32(off, val uint32)
}

// Status is the aggregate completion report of one Model.Check call. The
// hardware completes strictly in issue order, so only counts are reported and
// the engine matches them against the oldest submitted commands.
type Status struct {
	NumDone  uint32
	NumReady uint32
}

// Model is the capability set of one CU hardware implementation. The engine
// holds a Model and is otherwise agnostic to the control protocol behind it.
//
// A credit must be held before Start; it bounds commands concurrently
// in flight on the CU. Check may be called from the engine goroutine only;
// credit calls are also engine-side except FreeCredit from abort paths.
type Model interface {
	// AllocCredit grabs one credit; false when the CU is saturated.
	AllocCredit() bool
	// FreeCredit returns n credits.
	FreeCredit(n uint32)
	// PeekCredit reports available credits without side effect.
	PeekCredit() int

	// Configure writes the argument words for the next start.
	Configure(data []uint32, ct ConfigType)
	// Start kicks the CU.
	Start()
	// Check accumulates done/ready counts since the previous call.
	Check(st *Status)

	// Reset asserts CU reset; ResetDone reports whether it settled.
	Reset()
	ResetDone() bool

	EnableIntr(kind uint32)
	DisableIntr(kind uint32)
	ClearIntr() uint32
}

// ArgDir is the direction of one kernel argument.
type ArgDir int

const (
	DirNone ArgDir = iota
	DirInput
	DirOutput
)

// ArgInfo describes one argument slot in the CU register window.
type ArgInfo struct {
	Name   string
	Offset uint32
	Size   uint32
	Dir    ArgDir
}

// Info is the static descriptor of one CU instance, extracted from the
// active bitstream's metadata by the loader.
type Info struct {
	Model      ModelKind
	CUIdx      int
	InstIdx    int
	Addr       uint64
	Protocol   Protocol
	IntrID     uint32
	IntrEnable bool
	KernelName string
	InstName   string
	Args       []ArgInfo
}

// NewModel builds the concrete model for info over the given register
// window. PLRAM models additionally need the plram window; others ignore it.
func NewModel(info Info, regs RegMap, plram RegMap) (Model, error) {
	if regs == nil {
		return nil, errors.New("nil register map")
	}
	switch info.Model {
	case ModelHLS:
		return newHLSModel(regs, info.Protocol == CtrlChain), nil
	case ModelACC:
		return newACCModel(regs), nil
	case ModelPLRAM:
		if plram == nil {
			return nil, errors.Errorf("CU %d: PLRAM model needs a PLRAM window", info.CUIdx)
		}
		return newPLRAMModel(regs, plram), nil
	}
	return nil, errors.Errorf("unknown CU model %v", info.Model)
}
