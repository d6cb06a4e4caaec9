package idcode

import "testing"

func TestParseIDCode(t *testing.T) {
	// 0x4BA00477: ARM DAP-style IDCODE used in discovery examples.
	id := ParseIDCode(0x4BA00477)
	if !id.HasIDCode {
		t.Fatalf("HasIDCode = false, want true")
	}
	if id.ManufacturerCode != ARMManufacturer {
		t.Errorf("ManufacturerCode = 0x%03X, want 0x%03X", id.ManufacturerCode, ARMManufacturer)
	}
	if id.PartNumber != 0xBA00 {
		t.Errorf("PartNumber = 0x%04X, want 0xBA00", id.PartNumber)
	}
	if id.Version != 0x4 {
		t.Errorf("Version = 0x%X, want 0x4", id.Version)
	}
}

func TestParseIDCodeBit0Clear(t *testing.T) {
	id := ParseIDCode(0x12345678 &^ 1)
	if id.HasIDCode {
		t.Fatalf("HasIDCode = true for an even raw IDCODE, want false")
	}
}

func TestLookupManufacturerKnownCodes(t *testing.T) {
	tests := []struct {
		code uint16
		want string
	}{
		{XilinxManufacturer, "Xilinx"},
		{MicrochipManufacturer, "Microchip"},
		{ARMManufacturer, "ARM"},
	}
	for _, tt := range tests {
		m, ok := LookupManufacturer(tt.code)
		if !ok {
			t.Errorf("LookupManufacturer(0x%03X): not found", tt.code)
			continue
		}
		if m.Name != tt.want {
			t.Errorf("LookupManufacturer(0x%03X).Name = %q, want %q", tt.code, m.Name, tt.want)
		}
	}
}

func TestLookupManufacturerUnknown(t *testing.T) {
	m, ok := LookupManufacturer(0x7FF)
	if ok {
		t.Fatalf("expected unknown manufacturer, got %+v", m)
	}
	if m.Abbreviation != "Unknown" {
		t.Errorf("Abbreviation = %q, want Unknown", m.Abbreviation)
	}
}

func TestXilinxFamily(t *testing.T) {
	tests := []struct {
		name       string
		partNumber uint16
		want       uint8
	}{
		{"Spartan-3A", 0xAB11, XilinxFamilySpartan3A},
		{"7-series", 0x021B, XilinxFamily7Series},
		{"Spartan-6", 0x0020, XilinxFamilySpartan6},
		{"CoolRunner-II (0x36)", 0x1236, XilinxFamilyCoolRunner2A},
		{"CoolRunner-II (0x37)", 0x1237, XilinxFamilyCoolRunner2B},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := XilinxFamily(tt.partNumber); got != tt.want {
				t.Errorf("XilinxFamily(0x%04X) = 0x%02X, want 0x%02X", tt.partNumber, got, tt.want)
			}
		})
	}
}
