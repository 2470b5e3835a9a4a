package devicestate

import "testing"

func TestPropertyListRoundTrip(t *testing.T) {
	entries := []string{"org.example.A/x", "org.example.B/y/z"}

	payload, err := EncodePropertyList(entries)
	if err != nil {
		t.Fatalf("EncodePropertyList: %v", err)
	}

	got, err := DecodePropertyList(payload)
	if err != nil {
		t.Fatalf("DecodePropertyList: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], entries[i])
		}
	}
}

func TestPropertyListRoundTripEmpty(t *testing.T) {
	payload, err := EncodePropertyList(nil)
	if err != nil {
		t.Fatalf("EncodePropertyList: %v", err)
	}
	got, err := DecodePropertyList(payload)
	if err != nil {
		t.Fatalf("DecodePropertyList: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries for an empty list, want 0", len(got))
	}
}

func TestDecodePropertyListRejectsShortPayload(t *testing.T) {
	if _, err := DecodePropertyList([]byte{1, 2}); err == nil {
		t.Error("expected an error for a payload shorter than the length prefix")
	}
}

func TestDecodePropertyListRejectsCorruptZlib(t *testing.T) {
	payload := []byte{0, 0, 0, 5, 0xff, 0xff, 0xff, 0xff}
	if _, err := DecodePropertyList(payload); err == nil {
		t.Error("expected an error for corrupt zlib data")
	}
}
