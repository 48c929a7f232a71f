package xcu

// accModel drives a CTRL_ACC accumulator CU. The CU latches its arguments,
// starts on the control write and signals completion by returning to idle;
// there is no done/ready pipelining, so it carries a single credit and
// completion is inferred from the idle bit while a command is outstanding.
type accModel struct {
	creditPool
	regs    RegMap
	started bool
}

func newACCModel(regs RegMap) *accModel {
	return &accModel{creditPool: newCreditPool(1), regs: regs}
}

func (m *accModel) Configure(data []uint32, ct ConfigType) {
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

func (m *accModel) Start() {
	m.started = true
	m.regs.Write32(hlsCtrlReg, APStart)
}

func (m *accModel) Check(st *Status) {
	if !m.started {
		return
	}
	ctrl := m.regs.Read32(hlsCtrlReg)
	if ctrl&APStart != 0 || ctrl&APIdle == 0 {
		return
	}
	m.started = false
	st.NumDone++
	st.NumReady++
}

func (m *accModel) Reset() {
	m.regs.Write32(hlsCtrlReg, APReset)
}

func (m *accModel) ResetDone() bool {
	ctrl := m.regs.Read32(hlsCtrlReg)
	if ctrl&APReset != 0 {
		return false
	}
	m.started = false
	return true
}

// The accumulator protocol has no interrupt lines; polling only.

func (m *accModel) EnableIntr(kind uint32)  {}
func (m *accModel) DisableIntr(kind uint32) {}
func (m *accModel) ClearIntr() uint32       { return 0 }
