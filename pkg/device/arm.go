package device

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
)

// armDAP represents an ARM Debug Access Port. Full debug-target
// enumeration over SWD/JTAG-DP APB bus access is out of scope; this
// driver exposes the single core implied by the chain position as a
// placeholder target, matching the spec's device-catalog dispatch
// requirement without implementing a full DAP register model.
type armDAP struct {
	baseDevice
}

func newARMDAP(idc idcode.IDCode, pos int, c *chain.Chain) *armDAP {
	return &armDAP{baseDevice{
		base: Base{
			IDCode:      idc.Raw,
			Position:    pos,
			IRLength:    4,
			Description: fmt.Sprintf("ARM Debug Access Port (part 0x%04X)", idc.PartNumber),
		},
		c: c,
	}}
}

func (a *armDAP) NumTargets() int { return 1 }

func (a *armDAP) Target(i int) (DebugTarget, error) {
	if i != 0 {
		return DebugTarget{}, jtagerr.New(jtagerr.GIGO, "arm: target index %d out of range", i)
	}
	return DebugTarget{Index: 0, Description: a.base.Description}, nil
}
