package core

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. Link 测试
// -----------------------------------------------------------------------------

func TestLink_Marshal_Compliance(t *testing.T) {
	link := NewLink(mockHash("test-content"))

	data, err := link.MarshalCBOR()
	require.NoError(t, err)

	// Tag 42 (0xd82a) + ByteString 21 bytes (0x55) + Prefix (0x00)
	expectedPrefix := "d82a5500"
	encodedHex := hex.EncodeToString(data)

	assert.Equal(t, expectedPrefix, encodedHex[:8], "Link 序列化必须包含 Tag 42 和 0x00 前缀")
}

func TestLink_Unmarshal_RoundTrip(t *testing.T) {
	original := mockHash("round-trip-test")
	link := NewLink(original)

	data, err := link.MarshalCBOR()
	require.NoError(t, err)

	var l2 Link
	require.NoError(t, l2.UnmarshalCBOR(data))
	assert.Equal(t, original, l2.Hash)
}

func TestLink_Unmarshal_Strictness(t *testing.T) {
	h := mockHash("bad")

	// Case A: 缺少 0x00 前缀 (Tag 42 + 20 字节)
	badPrefix, _ := hex.DecodeString("d82a54" + hex.EncodeToString(h[:]))
	var l Link
	err := l.UnmarshalCBOR(badPrefix)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 0x00 multibase prefix")

	// Case B: 错误的 Tag (43)
	wrongTag, _ := hex.DecodeString("d82b5500" + hex.EncodeToString(h[:]))
	assert.Error(t, l.UnmarshalCBOR(wrongTag))

	// Case C: 长度不是 20 字节
	shortHash, _ := hex.DecodeString("d82a43000102")
	assert.Error(t, l.UnmarshalCBOR(shortHash))
}

// -----------------------------------------------------------------------------
// 2. 确定性哈希测试
// -----------------------------------------------------------------------------

func TestTree_OrderIndependence(t *testing.T) {
	a := NewTreeEntry("a", mockHash("dir-a"), ModeDir)
	b := NewTreeEntry("b.txt", mockHash("file-b"), ModeRegular)
	c := NewTreeEntry("c", mockHash("link-c"), ModeSymlink)

	t1 := mustNewTree(t, []TreeEntry{a, b, c})
	t2 := mustNewTree(t, []TreeEntry{c, a, b})
	t3 := mustNewTree(t, []TreeEntry{b, c, a})

	assert.Equal(t, t1.ID(), t2.ID())
	assert.Equal(t, t1.ID(), t3.ID())
	assert.Equal(t, t1.Bytes(), t3.Bytes())

	// 条目已按名字排序
	names := []string{t1.Entries[0].Name, t1.Entries[1].Name, t1.Entries[2].Name}
	assert.Equal(t, []string{"a", "b.txt", "c"}, names)
}

func TestTree_ContentChangesHash(t *testing.T) {
	base := mustNewTree(t, []TreeEntry{NewTreeEntry("f", mockHash("1"), ModeRegular)})

	tests := []struct {
		name  string
		entry TreeEntry
	}{
		{"Different hash", NewTreeEntry("f", mockHash("2"), ModeRegular)},
		{"Different mode", NewTreeEntry("f", mockHash("1"), ModeExecutable)},
		{"Different name", NewTreeEntry("g", mockHash("1"), ModeRegular)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := mustNewTree(t, []TreeEntry{tt.entry})
			assert.NotEqual(t, base.ID(), other.ID())
		})
	}
}

func TestTree_Empty(t *testing.T) {
	t1 := mustNewTree(t, nil)
	t2 := mustNewTree(t, []TreeEntry{})
	assert.Equal(t, t1.ID(), t2.ID())
	assert.Equal(t, CalculateBlobHash(t1.Bytes()), t1.ID())
}

func TestTree_Rejects(t *testing.T) {
	h := mockHash("x")
	tests := []struct {
		name    string
		entries []TreeEntry
	}{
		{"Duplicate", []TreeEntry{NewTreeEntry("a", h, ModeRegular), NewTreeEntry("a", h, ModeDir)}},
		{"Slash", []TreeEntry{NewTreeEntry("a/b", h, ModeRegular)}},
		{"Empty name", []TreeEntry{NewTreeEntry("", h, ModeRegular)}},
		{"Dot dot", []TreeEntry{NewTreeEntry("..", h, ModeDir)}},
		{"Bad mode", []TreeEntry{NewTreeEntry("a", h, EntryMode(0o777))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.entries)
			assert.Error(t, err)
		})
	}
}

// -----------------------------------------------------------------------------
// 3. 完整对象 Round-Trip 测试
// -----------------------------------------------------------------------------

func TestTree_DecodeRoundTrip(t *testing.T) {
	tree := mustNewTree(t, []TreeEntry{
		NewTreeEntry("src", mockHash("src"), ModeDir),
		NewTreeEntry("run.sh", mockHash("run"), ModeExecutable),
		NewTreeEntry("README", mockHash("readme"), ModeRegular),
	})

	decoded, err := DecodeTree(tree.Bytes())
	require.NoError(t, err)

	assert.Equal(t, tree.ID(), decoded.ID())
	if diff := cmp.Diff(tree.Entries, decoded.Entries); diff != "" {
		t.Errorf("decoded entries mismatch (-want +got):\n%s", diff)
	}

	e, ok := decoded.Find("run.sh")
	require.True(t, ok)
	assert.Equal(t, ModeExecutable, e.Mode)
	_, ok = decoded.Find("missing")
	assert.False(t, ok)
}

func TestDecodeTree_WrongType(t *testing.T) {
	data, err := EncodeObject(map[string]string{"t": "blob"})
	require.NoError(t, err)

	_, err = DecodeTree(data)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a tree"))
}

func TestBlob(t *testing.T) {
	h := mockHash("blob")
	b := NewBlob(h, []byte("hello"))
	assert.Equal(t, TypeBlob, b.Type())
	assert.Equal(t, h, b.ID())
	assert.Equal(t, int64(5), b.Size())
}

func TestEntryMode_Kind(t *testing.T) {
	assert.Equal(t, "tree", ModeDir.Kind())
	assert.Equal(t, "blob", ModeSymlink.Kind())
	assert.True(t, ModeDir.IsDir())
	assert.False(t, ModeRegular.IsDir())
}
