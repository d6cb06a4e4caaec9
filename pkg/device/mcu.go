package device

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
	"github.com/openjtaghal/jtaghal/pkg/idcode/deviceinfo"
)

// mcuDAP represents a boundary-scan-enumerated microcontroller whose part
// number is recognized by pkg/idcode/deviceinfo's device database (the
// teacher's STM32/ARM core table), as opposed to armDAP's plain
// Cortex-M debug-port handling of an unrecognized ARM part number.
//
// Grounded on deviceinfo.DeviceInfo's HasARMCore/ARMCore/Family fields,
// carried over from the teacher's pkg/idcode/deviceinfo package and wired
// here into the catalog dispatch it previously had no caller for.
type mcuDAP struct {
	baseDevice
	info deviceinfo.DeviceInfo
}

func newMCUDAP(idc idcode.IDCode, pos int, c *chain.Chain, info deviceinfo.DeviceInfo) *mcuDAP {
	irLength := info.IRLength
	if irLength <= 0 {
		irLength = 4
	}
	desc := info.Name
	if info.ARMCore != "" {
		desc = fmt.Sprintf("%s (%s)", info.Name, info.ARMCore)
	}
	return &mcuDAP{
		baseDevice: baseDevice{
			base: Base{
				IDCode:      idc.Raw,
				Position:    pos,
				IRLength:    irLength,
				Description: desc,
			},
			c: c,
		},
		info: info,
	}
}

func (m *mcuDAP) NumTargets() int {
	if m.info.HasARMCore {
		return 1
	}
	return 0
}

func (m *mcuDAP) Target(i int) (DebugTarget, error) {
	if i != 0 || !m.info.HasARMCore {
		return DebugTarget{}, jtagerr.New(jtagerr.GIGO, "mcu: target index %d out of range for %s", i, m.info.Name)
	}
	return DebugTarget{Index: 0, Description: fmt.Sprintf("%s core on %s", m.info.ARMCore, m.info.Name)}, nil
}
