package agents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sotruth/dualtrack/internal/domain"
)

// fencedJSON matches a ```json fenced block. The opening fence must be
// followed by a line break and the closing fence must start a line.
var fencedJSON = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

// extractJSONBlock returns the content of the single ```json block in
// response. A response with no block, or with more than one, is a
// ParseError.
func extractJSONBlock(document, response string) (string, error) {
	matches := fencedJSON.FindAllStringSubmatch(response, -1)
	switch len(matches) {
	case 0:
		return "", domain.NewParseError(document, "extract", len(response), domain.ErrNoJSONBlock)
	case 1:
		return strings.TrimSpace(matches[0][1]), nil
	default:
		return "", domain.NewParseError(document, "extract", len(response),
			fmt.Errorf("%w: expected exactly one block, found %d", domain.ErrMalformedJSON, len(matches)))
	}
}

// decodeStrict decodes a JSON object into out, rejecting unknown fields,
// trailing data and type mismatches.
func decodeStrict(document string, responseLength int, raw string, out any) error {
	if !bytes.HasPrefix(bytes.TrimSpace([]byte(raw)), []byte("{")) {
		return domain.NewParseError(document, "decode", responseLength,
			fmt.Errorf("%w: top-level value is not an object", domain.ErrMalformedJSON))
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.NewParseError(document, "decode", responseLength,
			fmt.Errorf("%w: %v", domain.ErrMalformedJSON, err))
	}
	if dec.More() {
		return domain.NewParseError(document, "decode", responseLength,
			fmt.Errorf("%w: trailing data after json object", domain.ErrMalformedJSON))
	}
	return nil
}

// parseDocument runs the extract and decode stages.
func parseDocument(document, response string, out any) error {
	raw, err := extractJSONBlock(document, response)
	if err != nil {
		return err
	}
	return decodeStrict(document, len(response), raw, out)
}
