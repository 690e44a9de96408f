package contenthash

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("the same content")
	b := Fingerprint("the same content")
	if a != b {
		t.Errorf("Fingerprint() not deterministic: %s vs %s", a, b)
	}
}

func TestFingerprint_KnownVector(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Fingerprint("abc"); got != want {
		t.Errorf("Fingerprint(\"abc\") = %s, want %s", got, want)
	}
}

func TestFingerprint_Length(t *testing.T) {
	if got := len(Fingerprint("")); got != 64 {
		t.Errorf("Fingerprint length = %d, want 64", got)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"matching", Fingerprint("x"), Fingerprint("x"), true},
		{"different", Fingerprint("x"), Fingerprint("y"), false},
		{"empty never matches", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
