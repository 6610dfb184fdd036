package manifest

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Hash is an 8-byte CRC-64 digest. Manifests publish it as a decimal
// uint64; it is held in little-endian byte order.
type Hash [8]byte

// HashFromUint64 returns v laid out little-endian.
func HashFromUint64(v uint64) Hash {
	var h Hash
	binary.LittleEndian.PutUint64(h[:], v)
	return h
}

// ParseHash decodes the decimal form used by manifests.
func ParseHash(s string) (Hash, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Hash{}, errors.Wrapf(err, "invalid hash %q", s)
	}
	return HashFromUint64(v), nil
}

// Uint64 interprets the hash as a little-endian integer.
func (h Hash) Uint64() uint64 {
	return binary.LittleEndian.Uint64(h[:])
}

// Reversed returns the hash with its byte order flipped.
func (h Hash) Reversed() Hash {
	var r Hash
	for i := range h {
		r[i] = h[len(h)-1-i]
	}
	return r
}

// String renders the decimal form.
func (h Hash) String() string {
	return strconv.FormatUint(h.Uint64(), 10)
}

// Hex renders the raw bytes, used in mismatch diagnostics.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON accepts both "123" and 123.
func (h *Hash) UnmarshalJSON(data []byte) error {
	s, err := numericToken(data)
	if err != nil {
		return errors.Wrap(err, "hash")
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func numericToken(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
