package wire

import "fmt"

// ErrorCode identifies why a submission was rejected.
type ErrorCode string

const (
	CodeMissingHeaders           ErrorCode = "MISSING_HEADERS"
	CodeMalformedHeaders         ErrorCode = "MALFORMED_HEADERS"
	CodeMissingPriority          ErrorCode = "MISSING_PRIORITY"
	CodeInvalidPriority          ErrorCode = "INVALID_PRIORITY"
	CodeMissingBytesizeOverride  ErrorCode = "MISSING_BYTESIZE_OVERRIDE"
	CodeInvalidBytesizeOverride  ErrorCode = "INVALID_BYTESIZE_OVERRIDE"
	CodeFileStorageNotConfigured ErrorCode = "FILE_STORAGE_NOT_CONFIGURED"
	CodeCouldNotParseChunk       ErrorCode = "COULD_NOT_PARSE_CHUNK"
	CodeCouldNotGetChunk         ErrorCode = "COULD_NOT_GET_CHUNK_FROM_PAYLOAD"
)

// DecodeError is a client error raised while decoding a submission.
type DecodeError struct {
	Code ErrorCode
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(code ErrorCode, err error) *DecodeError {
	return &DecodeError{Code: code, Err: err}
}
