package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		id, err := Generate("test")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"alternative", NewAlternativeID, PrefixAlternative},
		{"mirror", NewMirrorID, PrefixMirror},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.gen()

			assert.True(t, strings.HasPrefix(id, tt.prefix+"-"))
			// NanoID default is 21 characters.
			assert.Len(t, id, len(tt.prefix)+1+21, "ID: %s", id)
		})
	}
}

func TestToken(t *testing.T) {
	tok, err := Token(12)
	require.NoError(t, err)
	assert.Len(t, tok, 12)

	for _, c := range tok {
		assert.True(t, (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'), "unexpected character %c", c)
	}
}
