package codec

import (
	"fmt"
	"strings"
)

// Chip image geometry
const (
	NumBytes  = 32           // chip capacity in bytes
	HexLen    = 2 * NumBytes // hex digits in a full image
	BinaryLen = 8 * NumBytes // bits in a full image
)

// FillChar pads incomplete entries.
const FillChar = '0'

// Digit alphabets
const (
	HexDigits    = "0123456789ABCDEFabcdef"
	BinaryDigits = "01"
)

const upperHex = "0123456789ABCDEF"

// InvalidDigitError reports a character outside the expected alphabet.
type InvalidDigitError struct {
	Digit    rune
	Pos      int
	Alphabet string
}

func (e *InvalidDigitError) Error() string {
	return fmt.Sprintf("invalid digit %q at position %d (allowed: %s)", e.Digit, e.Pos, e.Alphabet)
}

// ValidateHex checks that s contains only hex digits.
func ValidateHex(s string) error {
	return validate(s, HexDigits)
}

// ValidateBinary checks that s contains only '0' and '1'.
func ValidateBinary(s string) error {
	return validate(s, BinaryDigits)
}

func validate(s, alphabet string) error {
	for i, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return &InvalidDigitError{Digit: r, Pos: i, Alphabet: alphabet}
		}
	}
	return nil
}

// NormalizeHex validates s and returns it uppercased.
func NormalizeHex(s string) (string, error) {
	if err := ValidateHex(s); err != nil {
		return "", err
	}
	return strings.ToUpper(s), nil
}

// HexToBinary expands each hex digit into 4 bits, most significant first.
func HexToBinary(hex string) (string, error) {
	if err := ValidateHex(hex); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(4 * len(hex))
	for i := 0; i < len(hex); i++ {
		v := nibble(hex[i])
		for bit := 3; bit >= 0; bit-- {
			if v&(1<<bit) != 0 {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String(), nil
}

// BinaryToHex converts a bit string to uppercase hex. Input of any length is
// right-padded with '0' to a whole number of nibbles, so the result always
// has ceil(len(bin)/4) digits, leading zeros included.
func BinaryToHex(bin string) (string, error) {
	if err := ValidateBinary(bin); err != nil {
		return "", err
	}

	nibbles := (len(bin) + 3) / 4
	bin = Pad(bin, nibbles*4, FillChar)

	out := make([]byte, nibbles)
	for i := 0; i < nibbles; i++ {
		var v byte
		for _, c := range bin[i*4 : i*4+4] {
			v <<= 1
			if c == '1' {
				v |= 1
			}
		}
		out[i] = upperHex[v]
	}
	return string(out), nil
}

// Pad appends fill until s reaches length. It never truncates.
func Pad(s string, length int, fill byte) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(string([]byte{fill}), length-len(s))
}

// PadHex pads a hex image to HexLen digits.
func PadHex(s string) string {
	return Pad(s, HexLen, FillChar)
}

// PadBinary pads a binary image to BinaryLen bits.
func PadBinary(s string) string {
	return Pad(s, BinaryLen, FillChar)
}

// ZeroImage returns the hex form of an erased chip.
func ZeroImage() string {
	return strings.Repeat("0", HexLen)
}

// IsErased reports whether a hex image is all zeros at full width.
func IsErased(hex string) bool {
	return hex == ZeroImage()
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
