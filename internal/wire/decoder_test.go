package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	var de *DecodeError
	require.True(t, errors.As(err, &de), "expected DecodeError, got %v", err)
	return de.Code
}

func TestDecode_Inline(t *testing.T) {
	sub, err := Decode(strings.NewReader("priority=5?hello"), false)
	require.NoError(t, err)

	assert.Equal(t, uint32(5), sub.Priority)
	assert.Equal(t, uint32(5), sub.ByteSize)
	assert.Equal(t, "hello", string(sub.Body))
	assert.False(t, sub.SaveToFile)
	assert.Nil(t, sub.Blob)
	assert.Empty(t, sub.Metadata)
}

func TestDecode_KeepsUnknownKeysAndBodyWithSeparator(t *testing.T) {
	sub, err := Decode(strings.NewReader("  \n priority=1&topic=news ?what? now"), false)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"topic": "news"}, sub.Metadata)
	assert.Equal(t, "what? now", string(sub.Body))
	assert.Equal(t, uint32(9), sub.ByteSize)
}

func TestDecode_Blob(t *testing.T) {
	blob := bytes.Repeat([]byte{0xff, 0x00}, 1024)
	input := append([]byte("priority=2&saveToFile=TRUE&byteSizeOverride=1024&name=a.bin?"), blob...)

	sub, err := Decode(bytes.NewReader(input), true)
	require.NoError(t, err)

	assert.True(t, sub.SaveToFile)
	assert.Equal(t, uint32(2), sub.Priority)
	assert.Equal(t, uint32(1024), sub.ByteSize)
	assert.Equal(t, "byteSizeOverride=1024&name=a.bin", string(sub.Body))

	got, err := io.ReadAll(sub.Blob)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestDecode_SaveToFileFalseIsInline(t *testing.T) {
	sub, err := Decode(strings.NewReader("priority=2&saveToFile=false?text"), false)
	require.NoError(t, err)
	assert.False(t, sub.SaveToFile)
	assert.Equal(t, "text", string(sub.Body))
}

type trackingReader struct {
	r        io.Reader
	drained  bool
	failWith error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if errors.Is(err, io.EOF) {
		t.drained = true
		if t.failWith != nil {
			return n, t.failWith
		}
	}
	return n, err
}

func TestDecode_FileStorageNotConfiguredDrains(t *testing.T) {
	src := &trackingReader{r: strings.NewReader("priority=1&saveToFile=true&byteSizeOverride=3?" + strings.Repeat("z", 100000))}

	_, err := Decode(src, false)
	assert.Equal(t, CodeFileStorageNotConfigured, decodeCode(t, err))
	assert.True(t, src.drained)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		fileStorage bool
		want        ErrorCode
	}{
		{name: "empty stream", input: "", want: CodeMissingHeaders},
		{name: "no separator", input: "priority=1", want: CodeMissingHeaders},
		{name: "empty header", input: "?body", want: CodeMissingHeaders},
		{name: "whitespace header", input: "  \t?body", want: CodeMissingHeaders},
		{name: "pair without value", input: "priority?body", want: CodeMalformedHeaders},
		{name: "pair with two equals", input: "priority=1=2?body", want: CodeMalformedHeaders},
		{name: "empty pair", input: "priority=1&?body", want: CodeMalformedHeaders},
		{name: "missing priority", input: "topic=x?body", want: CodeMissingPriority},
		{name: "invalid priority", input: "priority=high?body", want: CodeInvalidPriority},
		{name: "negative priority", input: "priority=-1?body", want: CodeInvalidPriority},
		{name: "priority overflow", input: "priority=4294967296?body", want: CodeInvalidPriority},
		{name: "missing override", input: "priority=1&saveToFile=true?blob", fileStorage: true, want: CodeMissingBytesizeOverride},
		{name: "invalid override", input: "priority=1&saveToFile=true&byteSizeOverride=big?blob", fileStorage: true, want: CodeInvalidBytesizeOverride},
		{name: "invalid utf8 body", input: "priority=1?\xff\xfe", want: CodeCouldNotParseChunk},
		{name: "invalid utf8 header", input: "priority=1&k=\xff?x", want: CodeCouldNotParseChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), tt.fileStorage)
			assert.Equal(t, tt.want, decodeCode(t, err))
		})
	}
}

func TestDecode_HeaderTooLarge(t *testing.T) {
	input := "priority=1&k=" + strings.Repeat("a", MaxHeaderSize) + "?body"
	_, err := Decode(strings.NewReader(input), false)
	assert.Equal(t, CodeMalformedHeaders, decodeCode(t, err))
}

func TestDecode_TransportErrors(t *testing.T) {
	boom := errors.New("connection reset")

	_, err := Decode(&trackingReader{r: strings.NewReader("priority=1"), failWith: boom}, false)
	assert.Equal(t, CodeCouldNotGetChunk, decodeCode(t, err))
	assert.ErrorIs(t, err, boom)

	_, err = Decode(&trackingReader{r: strings.NewReader("priority=1?partial"), failWith: boom}, false)
	assert.Equal(t, CodeCouldNotGetChunk, decodeCode(t, err))
}

func TestEncodeSubmission_RoundTrip(t *testing.T) {
	raw := EncodeSubmission(7, map[string]string{"b": "2", "a": "1"}, []byte("body"))
	assert.Equal(t, "a=1&b=2&priority=7?body", string(raw))

	sub, err := Decode(bytes.NewReader(raw), false)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), sub.Priority)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, sub.Metadata)
	assert.Equal(t, "body", string(sub.Body))
}

func TestDecodeError_Message(t *testing.T) {
	assert.Equal(t, "MISSING_PRIORITY", (&DecodeError{Code: CodeMissingPriority}).Error())
	assert.Equal(t, "INVALID_PRIORITY: bad", (&DecodeError{Code: CodeInvalidPriority, Err: errors.New("bad")}).Error())
}
