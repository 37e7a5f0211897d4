package image

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigbag/geeprog/internal/codec"
)

func testImage() string {
	return strings.Repeat("0123456789ABCDEF", 4)
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
	}{
		{"chip.txt", FormatText},
		{"CHIP.TXT", FormatText},
		{"chip.hex", FormatIntelHex},
		{"chip.ihex", FormatIntelHex},
		{"chip.bin", FormatBinary},
		{"chip.rom", FormatBinary},
		{"chip", FormatBinary},
	}

	for _, tc := range tests {
		if result := FormatFor(tc.path); result != tc.expected {
			t.Errorf("FormatFor(%q) = %s, want %s", tc.path, result, tc.expected)
		}
	}
}

func TestReadText_SkipsNonHex(t *testing.T) {
	input := "de ad-be:ef\nxyz 01"
	image, err := ReadText(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadText error: %v", err)
	}
	if image != "DEADBEEF01" {
		t.Errorf("ReadText = %q, want %q", image, "DEADBEEF01")
	}
}

func TestReadText_StopsAtFullImage(t *testing.T) {
	input := strings.Repeat("A", codec.HexLen) + "BBBB"
	image, err := ReadText(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadText error: %v", err)
	}
	if image != strings.Repeat("A", codec.HexLen) {
		t.Errorf("ReadText = %q, want 64 A digits", image)
	}
}

func TestReadBinary_FirstBytes(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	image, err := ReadBinary(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadBinary error: %v", err)
	}
	if len(image) != codec.HexLen {
		t.Fatalf("len(ReadBinary) = %d, want %d", len(image), codec.HexLen)
	}
	if !strings.HasPrefix(image, "0001020304") {
		t.Errorf("ReadBinary = %q", image)
	}
	if !strings.HasSuffix(image, "1E1F") {
		t.Errorf("ReadBinary = %q, want to end at byte 0x1F", image)
	}
}

func TestReadBinary_ShortFile(t *testing.T) {
	image, err := ReadBinary(bytes.NewReader([]byte{0xAB, 0x01}))
	if err != nil {
		t.Fatalf("ReadBinary error: %v", err)
	}
	if image != "AB01" {
		t.Errorf("ReadBinary = %q, want AB01", image)
	}

	image, err = ReadBinary(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ReadBinary(empty) error: %v", err)
	}
	if image != "" {
		t.Errorf("ReadBinary(empty) = %q, want empty", image)
	}
}

func TestIntelHex_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteIntelHex(&buf, testImage()); err != nil {
		t.Fatalf("WriteIntelHex error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), ":") {
		t.Errorf("WriteIntelHex output does not start with a record: %q", buf.String())
	}

	image, err := ReadIntelHex(&buf)
	if err != nil {
		t.Fatalf("ReadIntelHex error: %v", err)
	}
	if image != testImage() {
		t.Errorf("ReadIntelHex = %q, want %q", image, testImage())
	}
}

func TestReadIntelHex_OutOfRange(t *testing.T) {
	// 4 data bytes at 0x0100, then EOF
	records := ":0401000001020304F1\n:00000001FF\n"
	if _, err := ReadIntelHex(strings.NewReader(records)); err == nil {
		t.Error("ReadIntelHex with data only above the chip should fail")
	}
}

func TestReadIntelHex_PartialFillsZero(t *testing.T) {
	// 2 data bytes at 0x0000, then EOF
	records := ":02000000ABCD86\n:00000001FF\n"
	image, err := ReadIntelHex(strings.NewReader(records))
	if err != nil {
		t.Fatalf("ReadIntelHex error: %v", err)
	}
	want := codec.PadHex("ABCD")
	if image != want {
		t.Errorf("ReadIntelHex = %q, want %q", image, want)
	}
}

func TestSaveLoad_AllFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chip.txt", "chip.bin", "chip.hex", "chip.dat"} {
		path := filepath.Join(dir, name)

		if _, err := Save(path, strings.ToLower(testImage())); err != nil {
			t.Fatalf("Save(%s) error: %v", name, err)
		}

		image, format, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error: %v", name, err)
		}
		if format != FormatFor(name) {
			t.Errorf("Load(%s) format = %s, want %s", name, format, FormatFor(name))
		}
		if image != testImage() {
			t.Errorf("Load(%s) = %q, want %q", name, image, testImage())
		}
	}
}

func TestSave_RejectsPartialImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chip.bin")
	if _, err := Save(path, "ABC"); err == nil {
		t.Error("Save with a partial image should fail")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Save should not create a file for an invalid image")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestScrub(t *testing.T) {
	tests := []struct {
		text     string
		binary   bool
		expected string
	}{
		{"de:ad be-ef", false, "DEADBEEF"},
		{"0x1F", false, "01F"},
		{"10 21 01", true, "10101"},
		{strings.Repeat("f", 70), false, strings.Repeat("F", codec.HexLen)},
		{strings.Repeat("1", 300), true, strings.Repeat("1", codec.BinaryLen)},
	}

	for _, tc := range tests {
		if result := Scrub(tc.text, tc.binary); result != tc.expected {
			t.Errorf("Scrub(%q, %v) = %q, want %q", tc.text, tc.binary, result, tc.expected)
		}
	}
}
