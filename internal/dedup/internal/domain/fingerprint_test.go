package domain

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	payload := map[string]interface{}{
		"score":     9,
		"comment":   "great product",
		"data_type": "nps",
	}

	first, err := Fingerprint(payload)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}

	second, err := Fingerprint(payload)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}

	if first != second {
		t.Errorf("Fingerprint() not deterministic: %s != %s", first, second)
	}

	if len(first) != 64 {
		t.Errorf("Fingerprint() length = %d, want 64 hex chars", len(first))
	}
}

func TestFingerprint_KeyOrderIndependent(t *testing.T) {
	// Two maps built in different insertion orders, logically identical.
	a := map[string]interface{}{}
	a["zeta"] = "last"
	a["alpha"] = "first"
	a["nested"] = map[string]interface{}{"b": 2.0, "a": 1.0}

	b := map[string]interface{}{}
	b["nested"] = map[string]interface{}{"a": 1.0, "b": 2.0}
	b["alpha"] = "first"
	b["zeta"] = "last"

	fpA, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint(a) error = %v", err)
	}
	fpB, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("Fingerprint(b) error = %v", err)
	}

	if fpA != fpB {
		t.Errorf("fingerprints differ for logically identical payloads: %s vs %s", fpA, fpB)
	}
}

func TestFingerprint_ValueSensitive(t *testing.T) {
	base := map[string]interface{}{"id": "42", "score": 7.0}
	changed := map[string]interface{}{"id": "42", "score": 8.0}

	fpBase, err := Fingerprint(base)
	if err != nil {
		t.Fatalf("Fingerprint(base) error = %v", err)
	}
	fpChanged, err := Fingerprint(changed)
	if err != nil {
		t.Fatalf("Fingerprint(changed) error = %v", err)
	}

	if fpBase == fpChanged {
		t.Error("fingerprints equal for payloads with different values")
	}
}

func TestFingerprint_UnserializablePayload(t *testing.T) {
	payload := map[string]interface{}{"bad": make(chan int)}

	if _, err := Fingerprint(payload); err == nil {
		t.Error("Fingerprint() error = nil for unserializable payload, want error")
	}
}
