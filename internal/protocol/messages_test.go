// ABOUTME: Tests for the wire envelope
// ABOUTME: Verifies payloads stay raw until typed and optional fields decode
package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeKeepsPayloadRaw(t *testing.T) {
	frame := []byte(`{"type":"PAUSE","payload":{"offsetSeconds":12.5,"responseDeadlineServerTs":1700000005000}}`)

	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if msg.Type != TypePause {
		t.Fatalf("expected PAUSE, got %q", msg.Type)
	}

	var pause PausePayload
	if err := json.Unmarshal(msg.Payload, &pause); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if pause.OffsetSeconds != 12.5 {
		t.Errorf("expected offset 12.5, got %v", pause.OffsetSeconds)
	}
	if pause.ResponseDeadlineServerTs == nil || *pause.ResponseDeadlineServerTs != 1700000005000 {
		t.Errorf("expected deadline pointer set, got %v", pause.ResponseDeadlineServerTs)
	}
}

func TestPauseWithoutDeadlineLeavesNil(t *testing.T) {
	var pause PausePayload
	if err := json.Unmarshal([]byte(`{"offsetSeconds":3}`), &pause); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if pause.ResponseDeadlineServerTs != nil {
		t.Error("absent deadline must stay nil, not zero")
	}
}

func TestOutboundEnvelopeShape(t *testing.T) {
	data, err := json.Marshal(Envelope{Type: TypeGuess, Payload: GuessPayload{GuessText: "some band"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"GUESS","payload":{"guessText":"some band"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestEmptyPayloadOmitted(t *testing.T) {
	data, err := json.Marshal(Envelope{Type: TypeBuzz})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"BUZZ"}` {
		t.Errorf("expected payload omitted, got %s", data)
	}
}
