package audio

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestToEngineFormatPassesBytesThroughUnmodified(t *testing.T) {
	raw := []byte{0x7f, 0x00, 0xff, 0x55, 0xaa}
	payload := base64.StdEncoding.EncodeToString(raw)

	out, err := ToEngineFormat(payload)
	if err != nil {
		t.Fatalf("ToEngineFormat returned error: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(out)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("expected bytes %v, got %v", raw, decoded)
	}
}

func TestToTransportFormatRoundTrip(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello world"))

	out, err := ToTransportFormat(payload)
	if err != nil {
		t.Fatalf("ToTransportFormat returned error: %v", err)
	}
	if out != payload {
		t.Fatalf("expected %q, got %q", payload, out)
	}
}

func TestMalformedPayloadReportsInvalidFrame(t *testing.T) {
	for _, payload := range []string{"not base64!!!", "a", "====", "aGVsbG8"} {
		if _, err := ToEngineFormat(payload); !errors.Is(err, ErrInvalidFrame) {
			t.Fatalf("ToEngineFormat(%q): expected ErrInvalidFrame, got %v", payload, err)
		}
		if _, err := ToTransportFormat(payload); !errors.Is(err, ErrInvalidFrame) {
			t.Fatalf("ToTransportFormat(%q): expected ErrInvalidFrame, got %v", payload, err)
		}
	}
}

func TestDecodeEncode(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	decoded, err := Decode(Encode(raw))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("expected %v, got %v", raw, decoded)
	}
}
