package utils

import "testing"

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("doc"), "pdf", "json")
	b := Fingerprint([]byte("doc"), "pdf", "json")
	if a != b {
		t.Fatalf("fingerprint not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}

	if Fingerprint([]byte("doc"), "pdfjson") == a {
		t.Fatal("part boundaries must change the fingerprint")
	}
	if Fingerprint([]byte("doc"), "pdf", "markdown") == a {
		t.Fatal("options must change the fingerprint")
	}
}
