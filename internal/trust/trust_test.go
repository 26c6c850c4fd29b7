package trust

import "testing"

func TestPairAndVerify(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, pinned := store.Lookup("desk-right"); pinned {
		t.Fatal("expected no pin for an unpaired peer")
	}
	if store.Verify("desk-right", "SHA256:aa") {
		t.Fatal("expected Verify to fail for an unpaired peer")
	}

	if err := store.Pair("desk-right", "SHA256:aa:bb"); err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if !store.Verify("desk-right", "SHA256:aa:bb") {
		t.Error("expected Verify to succeed after pairing with the matching fingerprint")
	}
	if store.Verify("desk-right", "SHA256:cc:dd") {
		t.Error("expected Verify to fail for a mismatched fingerprint")
	}
}

func TestPersistenceAcrossReload(t *testing.T) {
	dir := t.TempDir()
	first, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := first.Pair("desk-right", "SHA256:aa:bb"); err != nil {
		t.Fatalf("Pair failed: %v", err)
	}

	second, err := Load(dir)
	if err != nil {
		t.Fatalf("reload Load failed: %v", err)
	}
	if !second.Verify("desk-right", "SHA256:aa:bb") {
		t.Error("expected pin to survive a reload from disk")
	}
}

func TestForget(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Pair("desk-right", "SHA256:aa:bb"); err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if err := store.Forget("desk-right"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, pinned := store.Lookup("desk-right"); pinned {
		t.Error("expected no pin after Forget")
	}
}
