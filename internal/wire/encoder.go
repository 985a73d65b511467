package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

// ChunkSize is the largest body chunk yielded by a Stream.
const ChunkSize = 665600

// ErrTruncated is returned when a blob ends before its recorded size.
var ErrTruncated = errors.New("blob ended before its recorded size")

// State is the position of a Stream.
type State int

const (
	HeaderPending State = iota
	StreamingBody
	Done
)

func (s State) String() string {
	switch s {
	case HeaderPending:
		return "header-pending"
	case StreamingBody:
		return "streaming-body"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stream produces a retrieval response. The first item is the header; for
// blob messages the file follows in chunks of at most ChunkSize bytes. A Stream
// is finite and cannot be restarted.
type Stream struct {
	id     msgid.ID
	header []byte

	blob     io.ReadCloser
	blobSize int64
	read     int64
	buf      []byte

	state State
}

// NewInline builds a stream that yields "uuid=<id>?<body>" as a single item.
func NewInline(id msgid.ID, body []byte) *Stream {
	header := make([]byte, 0, len(body)+48)
	header = append(header, "uuid="...)
	header = append(header, id.String()...)
	header = append(header, headerSeparator)
	header = append(header, body...)
	return &Stream{id: id, header: header}
}

// NewBlob builds a stream that yields "uuid=<id>&<metadata>?" followed by
// size bytes read from blob. The stream closes blob when it finishes.
func NewBlob(id msgid.ID, metadata []byte, blob io.ReadCloser, size int64) *Stream {
	header := make([]byte, 0, len(metadata)+48)
	header = append(header, "uuid="...)
	header = append(header, id.String()...)
	header = append(header, '&')
	header = append(header, metadata...)
	header = append(header, headerSeparator)
	return &Stream{id: id, header: header, blob: blob, blobSize: size}
}

// ID returns the message id.
func (s *Stream) ID() msgid.ID { return s.id }

// HasBlob reports whether the body is streamed from a blob file.
func (s *Stream) HasBlob() bool { return s.blob != nil }

// Header returns the header item. For inline messages this includes the body.
func (s *Stream) Header() []byte { return s.header }

// BlobSize returns the number of blob bytes that follow the header.
func (s *Stream) BlobSize() int64 { return s.blobSize }

// Len returns the total number of bytes the stream yields.
func (s *Stream) Len() int64 { return int64(len(s.header)) + s.blobSize }

// State returns the current state.
func (s *Stream) State() State { return s.state }

// Next returns the next item, or io.EOF once the stream is done. The returned
// slice is only valid until the following call.
func (s *Stream) Next() ([]byte, error) {
	switch s.state {
	case HeaderPending:
		if s.blob == nil {
			s.state = Done
		} else {
			s.state = StreamingBody
		}
		return s.header, nil

	case StreamingBody:
		remaining := s.blobSize - s.read
		if remaining <= 0 {
			s.finish()
			return nil, io.EOF
		}
		n := int64(ChunkSize)
		if remaining < n {
			n = remaining
		}
		if s.buf == nil {
			s.buf = make([]byte, min(int64(ChunkSize), s.blobSize))
		}
		chunk := s.buf[:n]
		if _, err := io.ReadFull(s.blob, chunk); err != nil {
			s.finish()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncated
			}
			return nil, fmt.Errorf("failed to read blob %s: %w", s.id, err)
		}
		s.read += n
		return chunk, nil
	}
	return nil, io.EOF
}

// WriteTo writes every remaining item to w.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			s.finish()
			return total, err
		}
	}
}

func (s *Stream) finish() {
	s.state = Done
	if s.blob != nil {
		_ = s.blob.Close()
	}
}

// Close releases the blob file. It is safe to call at any point.
func (s *Stream) Close() error {
	if s.state == Done {
		return nil
	}
	s.state = Done
	if s.blob != nil {
		return s.blob.Close()
	}
	return nil
}
