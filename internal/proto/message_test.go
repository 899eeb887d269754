package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "valid", raw: `{"message":"hi"}`, want: "hi", ok: true},
		{name: "keeps inner spacing", raw: `{"message":" hi there "}`, want: " hi there ", ok: true},
		{name: "extra fields", raw: `{"message":"hi","name":"x"}`, want: "hi", ok: true},
		{name: "empty", raw: `{"message":""}`},
		{name: "whitespace", raw: `{"message":"   "}`},
		{name: "missing field", raw: `{}`},
		{name: "null", raw: `{"message":null}`},
		{name: "number", raw: `{"message":42}`},
		{name: "object", raw: `{"message":{"text":"hi"}}`},
		{name: "array payload", raw: `["hi"]`},
		{name: "not json", raw: `hi`},
		{name: "empty payload", raw: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeMessage([]byte(tt.raw))
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
