package idcode

// Xilinx JEP106 manufacturer code and known family codes carried in the
// low bits of the part-number field, used to pick a concrete driver.
const (
	XilinxManufacturer    = 0x049
	MicrochipManufacturer = 0x04A
	ARMManufacturer       = 0x23B

	// STMicroelectronicsManufacturer identifies STM32 parts enumerated on
	// the boundary-scan chain under their own TAP, as opposed to the
	// Cortex-M debug-port TAP which reports ARMManufacturer instead.
	STMicroelectronicsManufacturer = 0x020

	XilinxFamilySpartan3A    = 0x11
	XilinxFamily7Series      = 0x1B
	XilinxFamilySpartan6     = 0x20
	XilinxFamilyCoolRunner2A = 0x36
	XilinxFamilyCoolRunner2B = 0x37
)

// XilinxFamily extracts the family code from a Xilinx part number: the
// low byte of the part-number field, which dispatch uses to pick a
// concrete Spartan-3A/Spartan-6/CoolRunner-II/7-series driver.
func XilinxFamily(partNumber uint16) uint8 {
	return uint8(partNumber & 0xFF)
}
