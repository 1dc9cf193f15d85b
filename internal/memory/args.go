package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ParseObject parses a metadata or filter argument. Comments and trailing
// commas are accepted; the value must be a JSON object. An empty string
// yields a nil map.
func ParseObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	stripped := jsonc.ToJSON([]byte(raw))
	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing JSON object: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("parsing JSON object: expected an object")
	}
	return out, nil
}
