package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/domain"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  error
	}{
		{
			name:     "single block with prose",
			response: "Here you go.\n\n```json\n{\"a\": 1}\n```\nThanks.",
			want:     `{"a": 1}`,
		},
		{
			name:     "windows line endings",
			response: "```json\r\n{\"a\": 1}\r\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "multi-line body",
			response: "```json\n{\n  \"a\": [1, 2]\n}\n```",
			want:     "{\n  \"a\": [1, 2]\n}",
		},
		{
			name:     "no block",
			response: `{"a": 1}`,
			wantErr:  domain.ErrNoJSONBlock,
		},
		{
			name:     "untagged fence is not a json block",
			response: "```\n{\"a\": 1}\n```",
			wantErr:  domain.ErrNoJSONBlock,
		},
		{
			name:     "two blocks",
			response: "```json\n{\"a\": 1}\n```\n\n```json\n{\"b\": 2}\n```",
			wantErr:  domain.ErrMalformedJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONBlock("evaluation", tt.response)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var perr *domain.ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, "extract", perr.Stage)
				assert.Equal(t, "evaluation", perr.Document)
				assert.Equal(t, len(tt.response), perr.ResponseLength)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeStrict(t *testing.T) {
	type doc struct {
		A int      `json:"a"`
		B []string `json:"b"`
	}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid object", raw: `{"a": 1, "b": ["x"]}`},
		{name: "unknown field", raw: `{"a": 1, "c": true}`, wantErr: true},
		{name: "type mismatch", raw: `{"a": "one"}`, wantErr: true},
		{name: "trailing object", raw: `{"a": 1} {"a": 2}`, wantErr: true},
		{name: "top-level array", raw: `[1, 2]`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "truncated", raw: `{"a": 1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out doc
			err := decodeStrict("evaluation", 100, tt.raw, &out)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, 1, out.A)
				return
			}
			require.ErrorIs(t, err, domain.ErrMalformedJSON)
			var perr *domain.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "decode", perr.Stage)
			assert.Equal(t, 100, perr.ResponseLength)
		})
	}
}
