package xcu

import (
	"sync"

	"k8s.io/klog/v2"
)

// HLS register window offsets.
const (
	hlsCtrlReg uint32 = 0x00
	hlsGIEReg  uint32 = 0x04
	hlsIERReg  uint32 = 0x08
	hlsISRReg  uint32 = 0x0c
	// Argument slots start after the control block.
	hlsArgBase uint32 = 0x10
)

// In-flight depth of a chained (ap_ctrl_chain) CU. Plain handshake CUs can
// only hold one command.
const hlsChainCredits = 8

// creditPool is the credit accounting shared by the CU models. Alloc runs on
// the engine goroutine; Free may also come from abort paths, hence the lock.
type creditPool struct {
	mu    sync.Mutex
	max   int
	avail int
}

func newCreditPool(max int) creditPool {
	return creditPool{max: max, avail: max}
}

func (p *creditPool) AllocCredit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.avail == 0 {
		return false
	}
	p.avail--
	return true
}

func (p *creditPool) FreeCredit(n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.avail += int(n)
	if p.avail > p.max {
		klog.Errorf("credit overflow: %d > max %d, clamping", p.avail, p.max)
		p.avail = p.max
	}
}

func (p *creditPool) PeekCredit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avail
}

// hlsModel drives an HLS-generated CU over the ap_ctrl_hs or ap_ctrl_chain
// handshake. For the chain protocol the CU pipelines commands and AP_DONE is
// acknowledged by writing AP_CONTINUE; for plain handshake AP_DONE clears on
// read and the CU holds a single command.
type hlsModel struct {
	creditPool
	regs      RegMap
	ctrlChain bool
	runCnts   uint32
}

func newHLSModel(regs RegMap, ctrlChain bool) *hlsModel {
	credits := 1
	if ctrlChain {
		credits = hlsChainCredits
	}
	return &hlsModel{
		creditPool: newCreditPool(credits),
		regs:       regs,
		ctrlChain:  ctrlChain,
	}
}

func (m *hlsModel) Configure(data []uint32, ct ConfigType) {
	switch ct {
	case Consecutive:
		for i, w := range data {
			m.regs.Write32(hlsArgBase+uint32(i)*4, w)
		}
	case Pairs:
		for i := 0; i+1 < len(data); i += 2 {
			m.regs.Write32(data[i], data[i+1])
		}
	}
}

func (m *hlsModel) Start() {
	m.runCnts++
	m.regs.Write32(hlsCtrlReg, APStart)
}

func (m *hlsModel) Check(st *Status) {
	if m.runCnts == 0 {
		return
	}
	ctrl := m.regs.Read32(hlsCtrlReg)
	if ctrl&APDone == 0 {
		return
	}
	if m.ctrlChain {
		// Acknowledge so the pipeline can retire the next command.
		m.regs.Write32(hlsCtrlReg, APContinue)
	}
	m.runCnts--
	st.NumDone++
	if m.ctrlChain {
		if ctrl&APReady != 0 {
			st.NumReady++
		}
	} else {
		// Plain handshake: done implies ready for the next command.
		st.NumReady++
	}
}

func (m *hlsModel) Reset() {
	m.regs.Write32(hlsCtrlReg, APReset)
}

func (m *hlsModel) ResetDone() bool {
	ctrl := m.regs.Read32(hlsCtrlReg)
	if ctrl&APReset != 0 {
		return false
	}
	m.runCnts = 0
	return true
}

func (m *hlsModel) EnableIntr(kind uint32) {
	m.regs.Write32(hlsGIEReg, 1)
	ier := m.regs.Read32(hlsIERReg)
	m.regs.Write32(hlsIERReg, ier|kind)
}

func (m *hlsModel) DisableIntr(kind uint32) {
	ier := m.regs.Read32(hlsIERReg) &^ kind
	m.regs.Write32(hlsIERReg, ier)
	if ier == 0 {
		m.regs.Write32(hlsGIEReg, 0)
	}
}

func (m *hlsModel) ClearIntr() uint32 {
	isr := m.regs.Read32(hlsISRReg)
	// Toggle-on-write clear.
	m.regs.Write32(hlsISRReg, isr)
	return isr
}
