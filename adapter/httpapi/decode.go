package httpapi

import json "github.com/goccy/go-json"

// decodeInto parses the pipeline's stored JSON body into dest so the HTTP
// layer re-serializes it as the envelope's data field, rather than nesting a
// JSON string inside JSON.
func decodeInto(body []byte, dest interface{}) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dest)
}
