// Package ert defines the wire format of execution-runtime command packets.
//
// A command packet is a fixed one-word header followed by an opcode-specific
// payload of 32-bit words. The header encodes the command state, a custom
// field, the payload word count, the opcode and the command type. The same
// buffer is shared with the submitting process: the scheduler writes the
// terminal state back into the header word when the command finishes.
package ert

import (
	"math/bits"

	"github.com/pkg/errors"
)

//go:generate go tool enumer -type=Opcode ert.go
//go:generate go tool enumer -type=CmdState ert.go

// Opcode selects the payload layout of a command packet.
type Opcode uint32

const (
	OpStartCU   Opcode = 1
	OpConfigure Opcode = 2
	// OpStartKeyVal starts a CU with {offset, value} register pairs
	// instead of a consecutive argument block.
	OpStartKeyVal Opcode = 3
)

// CmdState is the command state carried in the packet header.
type CmdState uint32

const (
	CmdStateNew CmdState = iota + 1
	CmdStateQueued
	CmdStateRunning
	CmdStateCompleted
	CmdStateError
	CmdStateAbort
	CmdStateSubmitted
	CmdStateTimeout
)

// Terminal reports whether s ends a command's lifecycle.
func (s CmdState) Terminal() bool {
	switch s {
	case CmdStateCompleted, CmdStateError, CmdStateAbort, CmdStateTimeout:
		return true
	}
	return false
}

// Header word layout, LSB first:
//
//	[3:0]   state
//	[11:4]  custom
//	[22:12] count (payload words, excluding the header)
//	[27:23] opcode
//	[31:28] type
const (
	stateShift  = 0
	stateMask   = 0xf
	customShift = 4
	customMask  = 0xff
	countShift  = 12
	countMask   = 0x7ff
	opcodeShift = 23
	opcodeMask  = 0x1f
	typeShift   = 28
	typeMask    = 0xf
)

// MaxPayloadWords is the largest payload expressible in the header count field.
const MaxPayloadWords = countMask

// Packet is a decoded command packet. Payload aliases the words of the buffer
// it was decoded from; Count is derived from len(Payload) on encode.
type Packet struct {
	State   CmdState
	Custom  uint32
	Opcode  Opcode
	Type    uint32
	Payload []uint32
}

// EncodeHeader packs the header fields into one word.
func (p *Packet) EncodeHeader() uint32 {
	return uint32(p.State)<<stateShift |
		(p.Custom&customMask)<<customShift |
		uint32(len(p.Payload)&countMask)<<countShift |
		uint32(p.Opcode&opcodeMask)<<opcodeShift |
		(p.Type&typeMask)<<typeShift
}

// Encode serializes the packet into a fresh buffer, header first.
func (p *Packet) Encode() []uint32 {
	buf := make([]uint32, 1+len(p.Payload))
	buf[0] = p.EncodeHeader()
	copy(buf[1:], p.Payload)
	return buf
}

// DecodePacket interprets buf as a command packet. The returned packet's
// Payload aliases buf, so header writebacks through WriteState remain visible
// to the caller that owns the buffer.
func DecodePacket(buf []uint32) (*Packet, error) {
	if len(buf) == 0 {
		return nil, errors.New("empty command buffer")
	}
	h := buf[0]
	count := int(h >> countShift & countMask)
	if count > len(buf)-1 {
		return nil, errors.Errorf("header declares %d payload words, buffer has %d", count, len(buf)-1)
	}
	return &Packet{
		State:   CmdState(h >> stateShift & stateMask),
		Custom:  h >> customShift & customMask,
		Opcode:  Opcode(h >> opcodeShift & opcodeMask),
		Type:    h >> typeShift & typeMask,
		Payload: buf[1 : 1+count],
	}, nil
}

// WriteState patches the state field of the header word in place. It is how
// terminal states reach the submitter's view of the buffer.
func WriteState(buf []uint32, s CmdState) {
	if len(buf) == 0 {
		return
	}
	buf[0] = buf[0]&^uint32(stateMask<<stateShift) | uint32(s)<<stateShift
}

// StartCmd is the payload view of an OpStartCU packet: one CU mask word
// followed by the argument words written to the target CU's register window.
type StartCmd struct {
	CUMask uint32
	Args   []uint32
}

// ParseStart validates and splits a START payload.
func ParseStart(payload []uint32) (*StartCmd, error) {
	if len(payload) < 1 {
		return nil, errors.New("START payload missing CU mask word")
	}
	if payload[0] == 0 {
		return nil, errors.New("START payload has empty CU mask")
	}
	return &StartCmd{CUMask: payload[0], Args: payload[1:]}, nil
}

// CUIndices expands the mask into ascending CU indices.
func (s *StartCmd) CUIndices() []int {
	idx := make([]int, 0, bits.OnesCount32(s.CUMask))
	for mask := s.CUMask; mask != 0; mask &= mask - 1 {
		idx = append(idx, bits.TrailingZeros32(mask))
	}
	return idx
}

// ConfigureCmd is the payload view of an OpConfigure packet. It carries the
// scheduler tuning fields plus the base address of each CU register window.
type ConfigureCmd struct {
	SlotSize     uint32
	NumCUs       uint32
	PollingMs    uint32
	EnableERT    bool
	CUInterrupts bool
	CUBaseAddrs  []uint32
}

const cfgFixedWords = 4

// Configure payload word 3 flag bits.
const (
	cfgFlagERT     = 1 << 0
	cfgFlagPolling = 1 << 1
	cfgFlagCUIntr  = 1 << 2
)

// ParseConfigure validates and splits a CONFIGURE payload.
func ParseConfigure(payload []uint32) (*ConfigureCmd, error) {
	if len(payload) < cfgFixedWords {
		return nil, errors.Errorf("CONFIGURE payload too short: %d words", len(payload))
	}
	c := &ConfigureCmd{
		SlotSize:     payload[0],
		NumCUs:       payload[1],
		PollingMs:    payload[2],
		EnableERT:    payload[3]&cfgFlagERT != 0,
		CUInterrupts: payload[3]&cfgFlagCUIntr != 0,
	}
	if int(c.NumCUs) > len(payload)-cfgFixedWords {
		return nil, errors.Errorf("CONFIGURE declares %d CUs, payload carries %d addresses",
			c.NumCUs, len(payload)-cfgFixedWords)
	}
	c.CUBaseAddrs = payload[cfgFixedWords : cfgFixedWords+int(c.NumCUs)]
	return c, nil
}

// Encode serializes the configure command as a packet payload.
func (c *ConfigureCmd) Encode() []uint32 {
	var flags uint32
	if c.EnableERT {
		flags |= cfgFlagERT
	}
	if c.PollingMs != 0 {
		flags |= cfgFlagPolling
	}
	if c.CUInterrupts {
		flags |= cfgFlagCUIntr
	}
	payload := make([]uint32, cfgFixedWords, cfgFixedWords+len(c.CUBaseAddrs))
	payload[0] = c.SlotSize
	payload[1] = uint32(len(c.CUBaseAddrs))
	payload[2] = c.PollingMs
	payload[3] = flags
	return append(payload, c.CUBaseAddrs...)
}
