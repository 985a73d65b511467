package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

type closeTracker struct {
	io.Reader
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestStream_Inline(t *testing.T) {
	id := msgid.ID{Lo: 42, Sequence: 1}
	s := NewInline(id, []byte("hello"))
	assert.Equal(t, HeaderPending, s.State())
	assert.False(t, s.HasBlob())

	item, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "uuid=42-1?hello", string(item))
	assert.Equal(t, Done, s.State())

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, s.Close())
}

func TestStream_BlobChunks(t *testing.T) {
	id := msgid.ID{Lo: 7}
	size := ChunkSize*2 + 100
	data := bytes.Repeat([]byte{'b'}, size)
	file := &closeTracker{Reader: bytes.NewReader(data)}

	s := NewBlob(id, []byte("byteSizeOverride=1024"), file, int64(size))
	assert.True(t, s.HasBlob())
	assert.Equal(t, int64(len("uuid=7-0&byteSizeOverride=1024?")+size), s.Len())

	header, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "uuid=7-0&byteSizeOverride=1024?", string(header))
	assert.Equal(t, StreamingBody, s.State())

	var sizes []int
	var body []byte
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
		body = append(body, chunk...)
	}
	assert.Equal(t, []int{ChunkSize, ChunkSize, 100}, sizes)
	assert.Equal(t, data, body)
	assert.Equal(t, Done, s.State())
	assert.Equal(t, 1, file.closed)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, file.closed)
}

func TestStream_ServesFullBlobRegardlessOfOverride(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 2048)
	s := NewBlob(msgid.ID{Lo: 1}, []byte("byteSizeOverride=1024"), &closeTracker{Reader: bytes.NewReader(data)}, 2048)

	var out bytes.Buffer
	n, err := s.WriteTo(&out)
	require.NoError(t, err)

	header := "uuid=1-0&byteSizeOverride=1024?"
	assert.Equal(t, int64(len(header)+2048), n)
	assert.Equal(t, header, out.String()[:len(header)])
	assert.Equal(t, data, out.Bytes()[len(header):])
}

func TestStream_Truncated(t *testing.T) {
	file := &closeTracker{Reader: bytes.NewReader([]byte("short"))}
	s := NewBlob(msgid.ID{Lo: 1}, nil, file, 100)

	var out bytes.Buffer
	_, err := s.WriteTo(&out)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, Done, s.State())
	assert.Equal(t, 1, file.closed)
}

func TestStream_ReadError(t *testing.T) {
	boom := errors.New("disk gone")
	s := NewBlob(msgid.ID{Lo: 1}, nil, &closeTracker{Reader: errReader{err: boom}}, 10)

	_, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorIs(t, err, boom)
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_CloseBeforeDone(t *testing.T) {
	file := &closeTracker{Reader: bytes.NewReader(make([]byte, 10))}
	s := NewBlob(msgid.ID{Lo: 1}, nil, file, 10)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, file.closed)
	_, err := s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "header-pending", HeaderPending.String())
	assert.Equal(t, "streaming-body", StreamingBody.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "state(9)", State(9).String())
}
