// Package pbapi decodes record-store API response bodies.
package pbapi

import (
	"bytes"
	"encoding/json"
)

// GenericMessage is reported when a failed response carries no usable message.
const GenericMessage = "Something went wrong while processing your request."

// DecodeInto decodes body into out. It reports false for empty bodies and
// bodies that are not valid JSON for out; decode failures are never errors.
// A JSON string body decodes as that string, whatever its content.
func DecodeInto(body []byte, out any) bool {
	payload := bytes.TrimSpace(body)
	if len(payload) == 0 {
		return false
	}
	return json.Unmarshal(payload, out) == nil
}

// ErrorPayload returns body as a JSON object, or an empty map when the body
// is not one.
func ErrorPayload(body []byte) map[string]any {
	data := map[string]any{}
	var decoded map[string]any
	if DecodeInto(body, &decoded) && decoded != nil {
		data = decoded
	}
	return data
}

// Message extracts the "message" field of an error payload, falling back to
// GenericMessage.
func Message(payload map[string]any) string {
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	return GenericMessage
}
