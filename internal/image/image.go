package image

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/bigbag/geeprog/internal/codec"
)

// Format is the on-disk representation of a chip image.
type Format int

const (
	// FormatBinary is raw bytes, the first 32 of the file
	FormatBinary Format = iota
	// FormatText is ASCII hex digits; other characters are skipped
	FormatText
	// FormatIntelHex is an Intel HEX record file addressed from 0
	FormatIntelHex
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatIntelHex:
		return "Intel HEX"
	default:
		return "binary"
	}
}

// FormatFor picks the format from the file extension. Unknown extensions
// are treated as raw binary.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatText
	case ".hex", ".ihex", ".ihx":
		return FormatIntelHex
	default:
		return FormatBinary
	}
}

// Load reads a chip image from path and returns it as uppercase hex. The
// result can be shorter than a full image when the file is; callers pad.
func Load(path string) (string, Format, error) {
	format := FormatFor(path)

	f, err := os.Open(path)
	if err != nil {
		return "", format, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	var image string
	switch format {
	case FormatText:
		image, err = ReadText(f)
	case FormatIntelHex:
		image, err = ReadIntelHex(f)
	default:
		image, err = ReadBinary(f)
	}
	if err != nil {
		return "", format, fmt.Errorf("failed to read %s image %s: %w", format, path, err)
	}
	return image, format, nil
}

// Save writes a full hex image to path in the format its extension implies.
func Save(path, hexImage string) (Format, error) {
	format := FormatFor(path)

	image, err := checkFull(hexImage)
	if err != nil {
		return format, err
	}

	f, err := os.Create(path)
	if err != nil {
		return format, fmt.Errorf("failed to create image file: %w", err)
	}

	switch format {
	case FormatText:
		err = WriteText(f, image)
	case FormatIntelHex:
		err = WriteIntelHex(f, image)
	default:
		err = WriteBinary(f, image)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return format, fmt.Errorf("failed to write %s image %s: %w", format, path, err)
	}
	return format, nil
}

// ReadText collects the first 64 hex digits, skipping anything else.
func ReadText(r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	var b strings.Builder
	for b.Len() < codec.HexLen {
		c, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if strings.IndexByte(codec.HexDigits, c) >= 0 {
			b.WriteByte(c)
		}
	}
	return strings.ToUpper(b.String()), nil
}

// ReadBinary reads up to the first 32 bytes.
func ReadBinary(r io.Reader) (string, error) {
	buf := make([]byte, codec.NumBytes)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf[:n])), nil
}

// ReadIntelHex parses Intel HEX records and returns the first 32 bytes from
// address 0. Gaps are filled with zero bytes.
func ReadIntelHex(r io.Reader) (string, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return "", err
	}

	inRange := false
	for _, segment := range mem.GetDataSegments() {
		if segment.Address < codec.NumBytes {
			inRange = true
			break
		}
	}
	if !inRange {
		return "", fmt.Errorf("no data in the first %d bytes", codec.NumBytes)
	}

	data := mem.ToBinary(0, codec.NumBytes, 0x00)
	return strings.ToUpper(hex.EncodeToString(data)), nil
}

// WriteText writes the hex digits followed by a newline.
func WriteText(w io.Writer, hexImage string) error {
	_, err := io.WriteString(w, hexImage+"\n")
	return err
}

// WriteBinary writes the raw image bytes.
func WriteBinary(w io.Writer, hexImage string) error {
	data, err := hex.DecodeString(hexImage)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteIntelHex writes the image as Intel HEX data records at address 0.
func WriteIntelHex(w io.Writer, hexImage string) error {
	data, err := hex.DecodeString(hexImage)
	if err != nil {
		return err
	}

	mem := gohex.NewMemory()
	if err := mem.AddBinary(0, data); err != nil {
		return err
	}
	return mem.DumpIntelHex(w, 16)
}

// Scrub keeps only digits valid for the chosen representation, uppercases
// hex and truncates to a full image. It never pads.
func Scrub(text string, binary bool) string {
	alphabet, limit := codec.HexDigits, codec.HexLen
	if binary {
		alphabet, limit = codec.BinaryDigits, codec.BinaryLen
	}

	var b strings.Builder
	for i := 0; i < len(text) && b.Len() < limit; i++ {
		if strings.IndexByte(alphabet, text[i]) >= 0 {
			b.WriteByte(text[i])
		}
	}
	return strings.ToUpper(b.String())
}

func checkFull(hexImage string) (string, error) {
	image, err := codec.NormalizeHex(hexImage)
	if err != nil {
		return "", err
	}
	if len(image) != codec.HexLen {
		return "", fmt.Errorf("image must be %d hex digits, got %d", codec.HexLen, len(image))
	}
	return image, nil
}
