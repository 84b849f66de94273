package pbapi

import "testing"

func TestDecodeIntoKeepsStringBodies(t *testing.T) {
	var str string
	if !DecodeInto([]byte(` "{\"count\":1}" `), &str) || str != `{"count":1}` {
		t.Fatalf("string body must decode as the string itself, got %q", str)
	}

	var generic any
	if !DecodeInto([]byte(`"{\"count\":1}"`), &generic) {
		t.Fatalf("DecodeInto string body into any: ok=false")
	}
	if s, ok := generic.(string); !ok || s != `{"count":1}` {
		t.Fatalf("string body must not be unwrapped, got %#v", generic)
	}

	var m map[string]any
	if DecodeInto([]byte(`"{\"count\":1}"`), &m) {
		t.Fatalf("a string body must not decode into an object, got %#v", m)
	}
}

func TestDecodeInto(t *testing.T) {
	var payload struct {
		Value string `json:"value"`
	}
	if !DecodeInto([]byte(`{"value":"ok"}`), &payload) || payload.Value != "ok" {
		t.Fatalf("DecodeInto object: ok=false or value=%q", payload.Value)
	}

	var out any
	if DecodeInto(nil, &out) {
		t.Fatalf("DecodeInto must report false for an empty body")
	}
	if DecodeInto([]byte("<html>oops</html>"), &out) {
		t.Fatalf("DecodeInto must report false for non-JSON bodies")
	}
	var list []string
	if DecodeInto([]byte(`{"not":"a list"}`), &list) {
		t.Fatalf("DecodeInto must report false on shape mismatch")
	}
}

func TestErrorPayloadAndMessage(t *testing.T) {
	data := ErrorPayload([]byte(`{"code":404,"message":"not found","data":{}}`))
	if got := Message(data); got != "not found" {
		t.Fatalf("Message mismatch: %q", got)
	}

	empty := ErrorPayload([]byte("gateway timeout"))
	if empty == nil || len(empty) != 0 {
		t.Fatalf("ErrorPayload must return an empty map for non-JSON bodies, got %#v", empty)
	}
	if got := Message(empty); got != GenericMessage {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := Message(map[string]any{"message": ""}); got != GenericMessage {
		t.Fatalf("expected generic message for blank message, got %q", got)
	}
}
