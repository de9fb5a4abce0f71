package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func nested(depth int) map[string]interface{} {
	root := map[string]interface{}{}
	cur := root
	for i := 0; i < depth; i++ {
		next := map[string]interface{}{}
		cur["k"] = next
		cur = next
	}
	return root
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		wantErr bool
	}{
		{"flat", map[string]interface{}{"url": "https://promo.example", "n": 1.0}, false},
		{"nested within limit", nested(MaxPayloadDepth - 1), false},
		{"too deep", nested(MaxPayloadDepth + 1), true},
		{"too large", map[string]interface{}{"blob": strings.Repeat("x", MaxPayloadSize)}, true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	assert.Error(t, ValidateString("", "token", 1, 10, true))
	assert.NoError(t, ValidateString("", "token", 1, 10, false))
	assert.Error(t, ValidateString(strings.Repeat("a", 11), "token", 1, 10, true))
	assert.Error(t, ValidateString("a\x00b", "token", 1, 10, true))
	assert.NoError(t, ValidateString("héllo", "token", 1, 5, true))
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("surf_01HZX3K5Q8W9R2T4Y6U8I0O2P4", "surface_id", true))
	assert.NoError(t, ValidateID("", "surface_id", false))
	assert.Error(t, ValidateID("surf/../1", "surface_id", true))
	assert.Error(t, ValidateID(strings.Repeat("a", MaxIDLength+1), "surface_id", true))
}
