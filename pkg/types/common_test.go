package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "Valid Hash (40 chars)",
			input: strings.Repeat("ab", 20),
		},
		{
			name:    "Too Short",
			input:   "abc",
			wantErr: true,
		},
		{
			name:    "Empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "Not Hex",
			input:   strings.Repeat("zz", 20),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHash(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, h.String())
		})
	}
}

func TestHash_Zero(t *testing.T) {
	var zero Hash
	assert.True(t, zero.IsZero())

	h, err := HashFromBytes([]byte("0123456789abcdefghij"))
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.Equal(t, "30313233", h.Short())

	_, err = HashFromBytes([]byte("short"))
	assert.Error(t, err)
}

func TestManifestNode_RoundTrip(t *testing.T) {
	s := strings.Repeat("0f", 20)
	n, err := ParseManifestNode(s)
	require.NoError(t, err)
	assert.Equal(t, s, n.String())

	n2, err := ManifestNodeFromBytes(n.Bytes())
	require.NoError(t, err)
	assert.Equal(t, n, n2)
}

func TestFileNodeAsBlob(t *testing.T) {
	n, err := ParseManifestNode(strings.Repeat("12", 20))
	require.NoError(t, err)
	// 文件节点的字节原样成为 Blob Hash
	assert.Equal(t, n.String(), FileNodeAsBlob(n).String())
}

func TestRelativePath(t *testing.T) {
	p := RelativePath("").Join("a").Join("b").Join("c.txt")
	assert.Equal(t, "a/b/c.txt", p.String())
	assert.Equal(t, RelativePath("a/b"), p.Dir())
	assert.Equal(t, "c.txt", p.Base())
	assert.Equal(t, RelativePath(""), RelativePath("top").Dir())
	assert.True(t, RelativePath("").IsRoot())
}

func TestRelativePath_Validate(t *testing.T) {
	valid := []string{"", "a", "a/b", "a.txt", "dir/.hidden"}
	for _, p := range valid {
		assert.NoError(t, RelativePath(p).Validate(), p)
	}

	invalid := []string{"/abs", "a//b", "a/", "./a", "a/../b", "a/\x00"}
	for _, p := range invalid {
		assert.Error(t, RelativePath(p).Validate(), p)
	}
}
