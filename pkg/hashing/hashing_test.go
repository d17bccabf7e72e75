package hashing

import "testing"

func TestHashIsValidCID(t *testing.T) {
	h, err := Hash([]byte("hello world"), CodecRaw)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !Validate(h) {
		t.Fatalf("Validate(%q) = false, want true", h)
	}
}

func TestHashDeterministic(t *testing.T) {
	a, err := Hash([]byte("same bytes"), CodecDagJSON)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := Hash([]byte("same bytes"), CodecDagJSON)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a != b {
		t.Fatalf("Hash() not deterministic: %q != %q", a, b)
	}
}

func TestHashDiffersByCodec(t *testing.T) {
	raw, _ := Hash([]byte("x"), CodecRaw)
	dag, _ := Hash([]byte("x"), CodecDagJSON)
	if raw == dag {
		t.Fatalf("expected different CIDs for different codecs, got %q for both", raw)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-cid", "123456"} {
		if Validate(s) {
			t.Errorf("Validate(%q) = true, want false", s)
		}
	}
}
