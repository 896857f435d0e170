package jetruntime

import (
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode returns s as the engine reads it: UTF-16LE when Wide, the raw
// bytes otherwise, followed by a NUL terminator of the matching width.
func (s String) Encode() ([]byte, error) {
	if !s.Wide {
		b := make([]byte, len(s.Value)+1)
		copy(b, s.Value)
		return b, nil
	}
	b, err := utf16le.NewEncoder().Bytes([]byte(s.Value))
	if err != nil {
		return nil, err
	}
	return append(b, 0, 0), nil
}

// DecodeString is the inverse of Encode for a buffer without its
// terminator.
func DecodeString(b []byte, wide bool) (string, error) {
	if !wide {
		return string(b), nil
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
