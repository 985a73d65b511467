// Package wire implements the message submission and retrieval format:
//
//	key1=val1&key2=val2?<body or blob>
//
// The reserved keys are priority, saveToFile and byteSizeOverride. All other
// keys are carried through unexamined.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxHeaderSize bounds the metadata section.
	MaxHeaderSize = 64 * 1024

	KeyPriority         = "priority"
	KeySaveToFile       = "saveToFile"
	KeyByteSizeOverride = "byteSizeOverride"

	headerSeparator = '?'
)

// Submission is a decoded message submission.
type Submission struct {
	Priority uint32
	// ByteSize is the body length, or byteSizeOverride for blob submissions.
	ByteSize uint32
	// Body is the message text. For blob submissions it holds the echoed
	// metadata instead.
	Body       []byte
	SaveToFile bool
	// Metadata holds every header pair except priority and saveToFile.
	Metadata map[string]string
	// Blob yields the remaining stream for blob submissions. Nil otherwise.
	Blob io.Reader
}

// Decode reads a submission from r. For blob submissions the returned Blob
// reads the rest of r, so r must stay valid until the blob is consumed. When
// fileStorageEnabled is false a blob submission drains r before failing.
func Decode(r io.Reader, fileStorageEnabled bool) (*Submission, error) {
	br := bufio.NewReader(r)

	header, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	metadata, err := parseMetadata(header)
	if err != nil {
		return nil, err
	}

	saveToFile := false
	if v, ok := metadata[KeySaveToFile]; ok {
		delete(metadata, KeySaveToFile)
		if strings.EqualFold(v, "true") {
			if !fileStorageEnabled {
				_, _ = io.Copy(io.Discard, br)
				return nil, decodeErr(CodeFileStorageNotConfigured, nil)
			}
			saveToFile = true
		}
	}

	rawPriority, ok := metadata[KeyPriority]
	if !ok {
		return nil, decodeErr(CodeMissingPriority, nil)
	}
	delete(metadata, KeyPriority)
	priority, err := strconv.ParseUint(rawPriority, 10, 32)
	if err != nil {
		return nil, decodeErr(CodeInvalidPriority, err)
	}

	sub := &Submission{
		Priority:   uint32(priority),
		SaveToFile: saveToFile,
		Metadata:   metadata,
	}

	if saveToFile {
		rawOverride, ok := metadata[KeyByteSizeOverride]
		if !ok {
			return nil, decodeErr(CodeMissingBytesizeOverride, nil)
		}
		override, err := strconv.ParseUint(rawOverride, 10, 32)
		if err != nil {
			return nil, decodeErr(CodeInvalidBytesizeOverride, err)
		}
		sub.ByteSize = uint32(override)
		sub.Body = []byte(EncodeMetadata(metadata))
		sub.Blob = br
		return sub, nil
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, decodeErr(CodeCouldNotGetChunk, err)
	}
	if !utf8.Valid(body) {
		return nil, decodeErr(CodeCouldNotParseChunk, errors.New("message body is not valid utf-8"))
	}
	if uint64(len(body)) > uint64(^uint32(0)) {
		return nil, decodeErr(CodeMalformedHeaders, errors.New("message body too large"))
	}
	sub.Body = body
	sub.ByteSize = uint32(len(body))
	return sub, nil
}

// readHeader returns the metadata section with leading whitespace removed and
// consumes the separator.
func readHeader(br *bufio.Reader) (string, error) {
	var buf bytes.Buffer
	for {
		chunk, err := br.ReadSlice(headerSeparator)
		buf.Write(chunk)
		if buf.Len() > MaxHeaderSize+1 {
			return "", decodeErr(CodeMalformedHeaders, errors.New("header section too large"))
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return "", decodeErr(CodeMissingHeaders, nil)
		}
		return "", decodeErr(CodeCouldNotGetChunk, err)
	}

	raw := buf.Bytes()[:buf.Len()-1]
	if !utf8.Valid(raw) {
		return "", decodeErr(CodeCouldNotParseChunk, errors.New("header section is not valid utf-8"))
	}
	header := strings.TrimLeftFunc(string(raw), isSpace)
	if header == "" {
		return "", decodeErr(CodeMissingHeaders, nil)
	}
	return header, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func parseMetadata(header string) (map[string]string, error) {
	metadata := make(map[string]string)
	for _, pair := range strings.Split(header, "&") {
		kv := strings.Split(strings.TrimSpace(pair), "=")
		if len(kv) != 2 || kv[0] == "" {
			return nil, decodeErr(CodeMalformedHeaders, errors.New("expected key=value pair"))
		}
		metadata[kv[0]] = kv[1]
	}
	return metadata, nil
}

// EncodeMetadata joins pairs as k=v with '&', keys sorted.
func EncodeMetadata(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(metadata[k])
	}
	return sb.String()
}

// EncodeSubmission renders a submission in wire form. Used by clients and tests.
func EncodeSubmission(priority uint32, metadata map[string]string, body []byte) []byte {
	pairs := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		pairs[k] = v
	}
	pairs[KeyPriority] = strconv.FormatUint(uint64(priority), 10)

	var buf bytes.Buffer
	buf.WriteString(EncodeMetadata(pairs))
	buf.WriteByte(headerSeparator)
	buf.Write(body)
	return buf.Bytes()
}
