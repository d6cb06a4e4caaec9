package daemonconfig

import "testing"

func TestLoadParsesAllForms(t *testing.T) {
	doc := `(adapter (kind usbprobe) (serial "FT123")) (repository (dir "./devices")) (listen (host "0.0.0.0") (port 2542))`

	cfg, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdapterKind != "usbprobe" {
		t.Errorf("AdapterKind = %q, want usbprobe", cfg.AdapterKind)
	}
	if cfg.AdapterSerial != "FT123" {
		t.Errorf("AdapterSerial = %q, want FT123", cfg.AdapterSerial)
	}
	if cfg.RepositoryDir != "./devices" {
		t.Errorf("RepositoryDir = %q, want ./devices", cfg.RepositoryDir)
	}
	if cfg.ListenPort != 2542 {
		t.Errorf("ListenPort = %d, want 2542", cfg.ListenPort)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", cfg.Warnings)
	}
}

// TestLoadFallsBackToDefaultsForMissingForms matches §3's "a missing
// adapter form defaults to the in-memory simulator" and the analogous
// rule for an absent listen form.
func TestLoadFallsBackToDefaultsForMissingForms(t *testing.T) {
	cfg, err := Load([]byte(`(repository (dir "./devices"))`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if cfg.AdapterKind != want.AdapterKind {
		t.Errorf("AdapterKind = %q, want default %q", cfg.AdapterKind, want.AdapterKind)
	}
	if cfg.ListenHost != want.ListenHost || cfg.ListenPort != want.ListenPort {
		t.Errorf("listen = %s:%d, want default %s:%d", cfg.ListenHost, cfg.ListenPort, want.ListenHost, want.ListenPort)
	}
}

func TestLoadWarnsOnUnrecognizedTopLevelForm(t *testing.T) {
	cfg, err := Load([]byte(`(future-feature (flag on))`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly one", cfg.Warnings)
	}
}

func TestLoadRejectsMalformedDocument(t *testing.T) {
	if _, err := Load([]byte(`(adapter (kind usbprobe)`)); err == nil {
		t.Fatal("Load accepted an unterminated form, want error")
	}
}
