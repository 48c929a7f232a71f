package xcu

// PLRAM slot layout: word 0 is the slot status, argument words follow.
const (
	plramStatusOff uint32 = 0x0
	plramArgBase   uint32 = 0x4

	plramStatusDone uint32 = 0x1
)

// plramModel drives a CU whose command slot lives in PLRAM: arguments are
// written into the PLRAM window, the start is signalled through the control
// register, and the hardware reports completion by setting the slot status
// word. One slot, one credit.
type plramModel struct {
	creditPool
	regs  RegMap
	plram RegMap
}

func newPLRAMModel(regs RegMap, plram RegMap) *plramModel {
	return &plramModel{creditPool: newCreditPool(1), regs: regs, plram: plram}
}

func (m *plramModel) Configure(data []uint32, ct ConfigType) {
	switch ct {
	case Consecutive:
		for i, w := range data {
			m.plram.Write32(plramArgBase+uint32(i)*4, w)
		}
	case Pairs:
		for i := 0; i+1 < len(data); i += 2 {
			m.plram.Write32(data[i], data[i+1])
		}
	}
}

func (m *plramModel) Start() {
	m.plram.Write32(plramStatusOff, 0)
	m.regs.Write32(hlsCtrlReg, APStart)
}

func (m *plramModel) Check(st *Status) {
	status := m.plram.Read32(plramStatusOff)
	if status&plramStatusDone == 0 {
		return
	}
	m.plram.Write32(plramStatusOff, 0)
	st.NumDone++
	st.NumReady++
}

func (m *plramModel) Reset() {
	m.regs.Write32(hlsCtrlReg, APReset)
	m.plram.Write32(plramStatusOff, 0)
}

func (m *plramModel) ResetDone() bool {
	return m.regs.Read32(hlsCtrlReg)&APReset == 0
}

func (m *plramModel) EnableIntr(kind uint32) {
	m.regs.Write32(hlsGIEReg, 1)
	ier := m.regs.Read32(hlsIERReg)
	m.regs.Write32(hlsIERReg, ier|kind)
}

func (m *plramModel) DisableIntr(kind uint32) {
	ier := m.regs.Read32(hlsIERReg) &^ kind
	m.regs.Write32(hlsIERReg, ier)
	if ier == 0 {
		m.regs.Write32(hlsGIEReg, 0)
	}
}

func (m *plramModel) ClearIntr() uint32 {
	isr := m.regs.Read32(hlsISRReg)
	m.regs.Write32(hlsISRReg, isr)
	return isr
}
