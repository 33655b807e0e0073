package iap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRecord_Versioned(t *testing.T) {
	data, err := EncodeRecord([]string{"com.app.pro", "com.app.coins"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"product_ids":["com.app.coins","com.app.pro"]}`, string(data))

	data, err = EncodeRecord(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"product_ids":[]}`, string(data))
}

func TestDecodeRecord(t *testing.T) {
	long := strings.Repeat("x", 200)

	tests := []struct {
		name        string
		input       string
		wantIDs     []string
		wantVersion int
		wantSkipped int
		wantErr     bool
	}{
		{
			name:        "current version",
			input:       `{"version":1,"product_ids":["a","b"]}`,
			wantIDs:     []string{"a", "b"},
			wantVersion: 1,
		},
		{
			name:        "legacy array",
			input:       `["a","b"]`,
			wantIDs:     []string{"a", "b"},
			wantVersion: 0,
		},
		{
			name:        "duplicates collapse",
			input:       `["a","a","b","a"]`,
			wantIDs:     []string{"a", "b"},
			wantVersion: 0,
		},
		{
			name:        "malformed entries skipped",
			input:       `{"version":1,"product_ids":["com.app.10","` + long + `","",42,null,{"id":"x"}]}`,
			wantIDs:     []string{"com.app.10"},
			wantVersion: 1,
			wantSkipped: 5,
		},
		{
			name:        "exactly max length is kept",
			input:       `["` + strings.Repeat("y", 100) + `"]`,
			wantIDs:     []string{strings.Repeat("y", 100)},
			wantVersion: 0,
		},
		{name: "empty", input: "  ", wantErr: true},
		{name: "garbage", input: "bplist00", wantErr: true},
		{name: "truncated", input: `{"version":1,"product_ids":["a"`, wantErr: true},
		{name: "missing version", input: `{"product_ids":["a"]}`, wantErr: true},
		{name: "future version", input: `{"version":9,"product_ids":["a"]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, version, skipped, err := DecodeRecord([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantSkipped, skipped)
		})
	}
}

func TestValidProductID(t *testing.T) {
	assert.True(t, ValidProductID("com.app.pro"))
	assert.False(t, ValidProductID(""))
	assert.False(t, ValidProductID(strings.Repeat("z", 101)))
}
