package ert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketHeaderLayout(t *testing.T) {
	p := &Packet{
		State:   CmdStateNew,
		Custom:  0xa5,
		Opcode:  OpStartCU,
		Type:    2,
		Payload: []uint32{0x1, 0x10, 0x20},
	}
	h := p.EncodeHeader()
	assert.Equal(t, uint32(CmdStateNew), h&0xf)
	assert.Equal(t, uint32(0xa5), h>>4&0xff)
	assert.Equal(t, uint32(3), h>>12&0x7ff)
	assert.Equal(t, uint32(OpStartCU), h>>23&0x1f)
	assert.Equal(t, uint32(2), h>>28&0xf)
}

func TestDecodePacket(t *testing.T) {
	p := &Packet{State: CmdStateNew, Opcode: OpStartCU, Payload: []uint32{0x2, 42}}
	buf := p.Encode()

	got, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Equal(t, OpStartCU, got.Opcode)
	assert.Equal(t, CmdStateNew, got.State)
	assert.Equal(t, []uint32{0x2, 42}, got.Payload)

	// Decoded payload aliases the buffer.
	buf[2] = 43
	assert.Equal(t, uint32(43), got.Payload[1])
}

func TestDecodePacketShortBuffer(t *testing.T) {
	_, err := DecodePacket(nil)
	require.Error(t, err)

	// Header claims 4 payload words, buffer holds 1.
	p := &Packet{Opcode: OpStartCU, Payload: []uint32{1, 2, 3, 4}}
	buf := p.Encode()[:2]
	_, err = DecodePacket(buf)
	require.Error(t, err)
}

func TestWriteState(t *testing.T) {
	p := &Packet{State: CmdStateNew, Opcode: OpStartCU, Custom: 0x7, Payload: []uint32{0x1}}
	buf := p.Encode()

	WriteState(buf, CmdStateCompleted)
	got, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Equal(t, CmdStateCompleted, got.State)
	// Only the state nibble changes.
	assert.Equal(t, uint32(0x7), got.Custom)
	assert.Equal(t, OpStartCU, got.Opcode)
}

func TestParseStart(t *testing.T) {
	_, err := ParseStart(nil)
	require.Error(t, err)
	_, err = ParseStart([]uint32{0})
	require.Error(t, err, "empty CU mask targets nothing")

	s, err := ParseStart([]uint32{0b1010, 7, 8})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, s.CUIndices())
	assert.Equal(t, []uint32{7, 8}, s.Args)
}

func TestParseConfigure(t *testing.T) {
	c := &ConfigureCmd{
		SlotSize:    4096,
		NumCUs:      2,
		PollingMs:   2,
		EnableERT:   true,
		CUBaseAddrs: []uint32{0x1800000, 0x1810000},
	}
	got, err := ParseConfigure(c.Encode())
	require.NoError(t, err)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("configure round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigureTruncated(t *testing.T) {
	_, err := ParseConfigure([]uint32{4096, 1})
	require.Error(t, err)

	// Declares 3 CUs but carries one address.
	_, err = ParseConfigure([]uint32{4096, 3, 0, 0, 0x1800000})
	require.Error(t, err)
}

func TestCmdStateTerminal(t *testing.T) {
	for _, s := range CmdStateValues() {
		switch s {
		case CmdStateCompleted, CmdStateError, CmdStateAbort, CmdStateTimeout:
			assert.True(t, s.Terminal(), "%s", s)
		default:
			assert.False(t, s.Terminal(), "%s", s)
		}
	}
}
