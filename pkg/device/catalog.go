package device

import (
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
	"github.com/openjtaghal/jtaghal/pkg/idcode/deviceinfo"
)

// Create instantiates the driver matching a discovered device's IDCODE.
//
// Grounded on antikernel's JtagDevice::CreateDevice/XilinxDevice::CreateDevice
// switch-on-manufacturer-then-family dispatch, collapsed into a single
// factory function since Go has no equivalent of the two-level virtual
// dispatch the original used. Never returns nil or an error: an
// unrecognized manufacturer yields a generic OpaqueDevice, matching the
// spec's "an unrecognized chip is not a fault" rule.
func Create(raw uint32, pos int, c *chain.Chain) Device {
	idc := idcode.ParseIDCode(raw)

	switch idc.ManufacturerCode {
	case idcode.XilinxManufacturer:
		switch idcode.XilinxFamily(idc.PartNumber) {
		case idcode.XilinxFamilyCoolRunner2A, idcode.XilinxFamilyCoolRunner2B:
			return newCoolRunnerCPLD(idc, pos, c)
		case idcode.XilinxFamilySpartan3A, idcode.XilinxFamilySpartan6, idcode.XilinxFamily7Series:
			return newXilinxFPGA(idc, pos, c)
		default:
			return newOpaqueDevice(idc, pos, c)
		}
	case idcode.MicrochipManufacturer:
		return newMicrochipPIC32(idc, pos, c)
	case idcode.ARMManufacturer:
		return newARMDAP(idc, pos, c)
	case idcode.STMicroelectronicsManufacturer:
		if info, ok := deviceinfo.LookupKnown(raw); ok {
			return newMCUDAP(idc, pos, c, info)
		}
		return newOpaqueDevice(idc, pos, c)
	default:
		return newOpaqueDevice(idc, pos, c)
	}
}
