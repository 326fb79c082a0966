package wire

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"hgimport/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. 块头编解码
// -----------------------------------------------------------------------------

func TestHeader_RoundTrip(t *testing.T) {
	tests := []ChunkHeader{
		{RequestID: 0, Command: CmdStarted},
		{RequestID: 1, Command: CmdResponse, Flags: FlagMoreChunks, DataLength: 10},
		{RequestID: 7, Command: CmdResponse, Flags: FlagError | FlagMoreChunks, DataLength: MaxChunkSize},
		{RequestID: 0xffffffff, Command: CmdFetchTree, DataLength: 0},
	}
	for _, h := range tests {
		buf := EncodeHeader(h)
		got, err := DecodeHeader(buf[:])
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}

	// 随机覆盖所有合法取值
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		h := ChunkHeader{
			RequestID:  rng.Uint32(),
			Command:    Command(rng.IntN(int(CmdFetchTree) + 1)),
			Flags:      Flags(rng.IntN(int(knownFlags) + 1)),
			DataLength: uint32(rng.IntN(MaxChunkSize + 1)),
		}
		buf := EncodeHeader(h)
		got, err := DecodeHeader(buf[:])
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
}

func TestHeader_ByteOrder(t *testing.T) {
	buf := EncodeHeader(ChunkHeader{RequestID: 1, Command: CmdCatFile, Flags: FlagMoreChunks, DataLength: 0x0102})
	assert.Equal(t, []byte{
		0, 0, 0, 1,
		0, 0, 0, 3,
		0, 0, 0, 2,
		0, 0, 1, 2,
	}, buf[:])
}

func TestHeader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"Short", []byte{0, 0, 0, 1}},
		{"Unknown command", headerBytes(1, 99, 0, 0)},
		{"Unknown flag", headerBytes(1, 1, 0x4, 0)},
		{"Too long", headerBytes(1, 1, 0, MaxChunkSize+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(tt.buf)
			var fe *FramingError
			assert.True(t, errors.As(err, &fe), "expected FramingError, got %v", err)
		})
	}
}

func headerBytes(id, cmd, flags, length uint32) []byte {
	var b Builder
	return b.Uint32(id).Uint32(cmd).Uint32(flags).Uint32(length).Bytes()
}

// -----------------------------------------------------------------------------
// 2. 多块响应
// -----------------------------------------------------------------------------

func TestReadResponse_Concatenates(t *testing.T) {
	var pipe bytes.Buffer
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 3, Command: CmdResponse, Flags: FlagMoreChunks}, []byte("hello ")))
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 3, Command: CmdResponse, Flags: FlagMoreChunks}, nil))
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 3, Command: CmdResponse}, []byte("world")))

	h, data, err := NewReader(&pipe).ReadResponse(3)
	require.NoError(t, err)
	assert.Equal(t, CmdResponse, h.Command)
	assert.Equal(t, "hello world", string(data))
	assert.Zero(t, pipe.Len())
}

func TestWriteResponse_SplitEquivalence(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)

	for _, chunkSize := range []int{0, 1, 7, 500, 999, 1000, 5000} {
		var pipe bytes.Buffer
		require.NoError(t, WriteResponse(&pipe, 9, CmdResponse, payload, chunkSize))

		_, data, err := NewReader(&pipe).ReadResponse(9)
		require.NoError(t, err)
		assert.Equal(t, payload, data, "chunk size %d", chunkSize)
	}
}

func TestReadResponse_ErrorFlag(t *testing.T) {
	var pipe bytes.Buffer
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 4, Command: CmdResponse, Flags: FlagError | FlagMoreChunks}, []byte("KeyError: ")))
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 4, Command: CmdResponse, Flags: FlagError}, []byte("no such rev \xe2\x9c\x93")))
	// 下一个响应必须仍然可读
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 5, Command: CmdResponse}, []byte("ok")))

	r := NewReader(&pipe)
	_, data, err := r.ReadResponse(4)
	assert.Nil(t, data)

	var he *HelperError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "KeyError: no such rev \xe2\x9c\x93", he.Message)
	assert.True(t, he.NotFound())

	_, data, err = r.ReadResponse(5)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestReadResponse_ContinuityBroken(t *testing.T) {
	tests := []struct {
		name   string
		second ChunkHeader
	}{
		{"Different request", ChunkHeader{RequestID: 2, Command: CmdResponse}},
		{"Different command", ChunkHeader{RequestID: 1, Command: CmdManifest}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pipe bytes.Buffer
			require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 1, Command: CmdResponse, Flags: FlagMoreChunks}, []byte("a")))
			require.NoError(t, WriteChunk(&pipe, tt.second, []byte("b")))

			_, _, err := NewReader(&pipe).ReadResponse(1)
			var fe *FramingError
			assert.True(t, errors.As(err, &fe), "got %v", err)
		})
	}
}

func TestReadResponse_UnexpectedID(t *testing.T) {
	var pipe bytes.Buffer
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 8, Command: CmdResponse}, nil))

	_, _, err := NewReader(&pipe).ReadResponse(7)
	var fe *FramingError
	assert.True(t, errors.As(err, &fe))
}

func TestReadResponse_Truncated(t *testing.T) {
	var pipe bytes.Buffer
	require.NoError(t, WriteChunk(&pipe, ChunkHeader{RequestID: 1, Command: CmdResponse, Flags: FlagMoreChunks}, []byte("abc")))

	_, _, err := NewReader(&pipe).ReadResponse(1)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// 块内截断
	full := bytes.Buffer{}
	require.NoError(t, WriteChunk(&full, ChunkHeader{RequestID: 1, Command: CmdResponse}, []byte("abcdef")))
	short := bytes.NewReader(full.Bytes()[:HeaderSize+2])
	_, _, err = NewReader(short).ReadResponse(1)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// 响应一个块都没有
	_, _, err = NewReader(&bytes.Buffer{}).ReadResponse(1)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// ReadChunk 在块边界上原样返回 io.EOF
	_, _, err = NewReader(&bytes.Buffer{}).ReadChunk()
	assert.Equal(t, io.EOF, err)
}

func TestStream_DrainLeavesBoundary(t *testing.T) {
	var pipe bytes.Buffer
	require.NoError(t, WriteResponse(&pipe, 1, CmdResponse, bytes.Repeat([]byte("x"), 100), 10))
	require.NoError(t, WriteResponse(&pipe, 2, CmdResponse, []byte("next"), 0))

	r := NewReader(&pipe)
	s := r.Stream(1)
	buf := make([]byte, 15)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.False(t, s.Done())

	require.NoError(t, s.Drain())
	assert.True(t, s.Done())

	_, data, err := r.ReadResponse(2)
	require.NoError(t, err)
	assert.Equal(t, "next", string(data))
}

// -----------------------------------------------------------------------------
// 3. 负载格式
// -----------------------------------------------------------------------------

func TestStarted_RoundTrip(t *testing.T) {
	s := Started{
		Version:   ProtocolVersion,
		Flags:     StartTreeManifestSupported,
		PackPaths: []string{"/repo/.hg/store/packs/manifests", "/cache/packs"},
	}
	got, err := DecodeStarted(EncodeStarted(s))
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.True(t, got.TreeManifestSupported())

	empty, err := DecodeStarted(EncodeStarted(Started{Version: 1}))
	require.NoError(t, err)
	assert.False(t, empty.TreeManifestSupported())
	assert.Empty(t, empty.PackPaths)
}

func TestStarted_Garbled(t *testing.T) {
	full := EncodeStarted(Started{Version: 1, PackPaths: []string{"abc"}})
	for i := 0; i < len(full); i++ {
		_, err := DecodeStarted(full[:i])
		assert.Error(t, err, "prefix of %d bytes", i)
	}
	_, err := DecodeStarted(append(full, 0))
	assert.Error(t, err)

	var b Builder
	_, err = DecodeStarted(b.Uint32(1).Uint32(0).Uint32(1 << 30).Bytes())
	assert.Error(t, err)
}

func TestRequestPayloads(t *testing.T) {
	blob, _ := types.ParseHash("0123456789abcdef0123456789abcdef01234567")
	h, p, err := DecodeCatFile(EncodeCatFile(blob, "dir/file.txt"))
	require.NoError(t, err)
	assert.Equal(t, blob, h)
	assert.Equal(t, types.RelativePath("dir/file.txt"), p)

	node, _ := types.ParseManifestNode("fedcba9876543210fedcba9876543210fedcba98")
	n, p, err := DecodeFetchTree(EncodeFetchTree(node, ""))
	require.NoError(t, err)
	assert.Equal(t, node, n)
	assert.True(t, p.IsRoot())

	_, _, err = DecodeFetchTree([]byte("short"))
	assert.Error(t, err)
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "FETCH_TREE", CmdFetchTree.String())
	assert.Equal(t, "Command(42)", Command(42).String())
}
