package pki

import (
	"strings"
	"testing"
)

func TestFingerprintFormat(t *testing.T) {
	fp := Fingerprint([]byte("some leaf certificate bytes"))
	if !strings.HasPrefix(fp, "SHA256:") {
		t.Errorf("expected fingerprint to start with SHA256:, got %q", fp)
	}
	parts := strings.Split(strings.TrimPrefix(fp, "SHA256:"), ":")
	if len(parts) != 32 {
		t.Errorf("expected 32 colon-separated hex bytes, got %d", len(parts))
	}
	for _, p := range parts {
		if len(p) != 2 {
			t.Errorf("expected 2-hex-digit byte group, got %q", p)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	data := []byte("identical input")
	if Fingerprint(data) != Fingerprint(data) {
		t.Error("expected fingerprint to be deterministic for identical input")
	}
}

func TestLoadOrGenerateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cert1, fp1, err := LoadOrGenerate(dir, "desk-left")
	if err != nil {
		t.Fatalf("LoadOrGenerate (generate) failed: %v", err)
	}
	if fp1 == "" {
		t.Fatal("expected non-empty fingerprint")
	}

	cert2, fp2, err := LoadOrGenerate(dir, "desk-left")
	if err != nil {
		t.Fatalf("LoadOrGenerate (reload) failed: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("expected persisted certificate to reload with the same fingerprint: %q vs %q", fp1, fp2)
	}
	if len(cert1.Certificate) == 0 || len(cert2.Certificate) == 0 {
		t.Fatal("expected non-empty certificate chains")
	}
	if string(cert1.Certificate[0]) != string(cert2.Certificate[0]) {
		t.Error("expected reloaded leaf certificate bytes to match the generated one")
	}
}
