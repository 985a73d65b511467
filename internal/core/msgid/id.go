// Package msgid provides message identifiers: a 128-bit timestamp paired with a
// 32-bit sequence counter, rendered as "<u128>-<u32>".
package msgid

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strconv"
	"strings"
)

// KeySize is the length of the binary key form of an ID.
const KeySize = 20

// ErrInvalidID is returned when a string or key is not a valid message id.
var ErrInvalidID = errors.New("uuid string must be of <u128>-<u32>")

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ID identifies a message across the priority index, the record store and the
// blob store. IDs are immutable and never reused.
type ID struct {
	Hi       uint64 // upper 64 bits of the timestamp
	Lo       uint64 // lower 64 bits of the timestamp
	Sequence uint32
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0 && id.Sequence == 0
}

// Compare orders ids by timestamp, then by sequence.
func (id ID) Compare(other ID) int {
	switch {
	case id.Hi != other.Hi:
		return cmpUint64(id.Hi, other.Hi)
	case id.Lo != other.Lo:
		return cmpUint64(id.Lo, other.Lo)
	case id.Sequence < other.Sequence:
		return -1
	case id.Sequence > other.Sequence:
		return 1
	}
	return 0
}

// Less reports whether id sorts before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

func cmpUint64(a, b uint64) int {
	if a < b {
		return -1
	}
	return 1
}

// String returns the canonical "<u128>-<u32>" form.
func (id ID) String() string {
	var ts string
	if id.Hi == 0 {
		ts = strconv.FormatUint(id.Lo, 10)
	} else {
		ts = id.timestamp().String()
	}
	return ts + "-" + strconv.FormatUint(uint64(id.Sequence), 10)
}

func (id ID) timestamp() *big.Int {
	v := new(big.Int).SetUint64(id.Hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(id.Lo))
}

// Parse parses the canonical string form. Leading zeros are rejected so that
// every id has exactly one textual form.
func Parse(s string) (ID, error) {
	tsPart, seqPart, ok := strings.Cut(s, "-")
	if !ok || !isCanonical(tsPart) || !isCanonical(seqPart) {
		return ID{}, ErrInvalidID
	}

	seq, err := strconv.ParseUint(seqPart, 10, 32)
	if err != nil {
		return ID{}, ErrInvalidID
	}

	ts, ok := new(big.Int).SetString(tsPart, 10)
	if !ok || ts.Cmp(maxU128) > 0 {
		return ID{}, ErrInvalidID
	}

	lo := new(big.Int).And(ts, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(ts, 64).Uint64()

	return ID{Hi: hi, Lo: lo, Sequence: uint32(seq)}, nil
}

// MustParse is like Parse but panics on error. Intended for tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// isCanonical reports whether s is a decimal number with no sign and no
// leading zero.
func isCanonical(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Key returns the big-endian binary form. Byte order of keys equals id order.
func (id ID) Key() []byte {
	key := make([]byte, KeySize)
	binary.BigEndian.PutUint64(key[0:8], id.Hi)
	binary.BigEndian.PutUint64(key[8:16], id.Lo)
	binary.BigEndian.PutUint32(key[16:20], id.Sequence)
	return key
}

// FromKey decodes a key produced by Key.
func FromKey(key []byte) (ID, error) {
	if len(key) != KeySize {
		return ID{}, ErrInvalidID
	}
	return ID{
		Hi:       binary.BigEndian.Uint64(key[0:8]),
		Lo:       binary.BigEndian.Uint64(key[8:16]),
		Sequence: binary.BigEndian.Uint32(key[16:20]),
	}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
