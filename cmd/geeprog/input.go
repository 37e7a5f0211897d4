package main

import (
	"fmt"

	"github.com/bigbag/geeprog/internal/codec"
	"github.com/bigbag/geeprog/internal/image"
)

// loadImage returns a full-width hex image from --data or an image file.
// Short input is padded with zeros; long input is rejected.
func loadImage(args []string) (string, error) {
	switch {
	case dataFlag != "" && len(args) > 0:
		return "", fmt.Errorf("give either an image file or --data, not both")
	case dataFlag != "":
		return parseDigits(dataFlag, binaryFlag, scrubFlag)
	case len(args) == 1:
		hexImage, format, err := image.Load(args[0])
		if err != nil {
			return "", err
		}
		fmt.Printf("Image: %s (%s, %d digits)\n", args[0], format, len(hexImage))
		return codec.PadHex(hexImage), nil
	default:
		return "", fmt.Errorf("no image given: pass a file or --data")
	}
}

// parseDigits validates user-typed digits and converts them to a padded
// hex image. With scrub set, characters outside the alphabet are dropped
// first, the way pasted dumps are cleaned up.
func parseDigits(digits string, binary, scrub bool) (string, error) {
	if scrub {
		digits = image.Scrub(digits, binary)
	}

	if binary {
		if err := codec.ValidateBinary(digits); err != nil {
			return "", err
		}
		if len(digits) > codec.BinaryLen {
			return "", fmt.Errorf("image has %d bits, the chip holds %d", len(digits), codec.BinaryLen)
		}
		return codec.BinaryToHex(codec.PadBinary(digits))
	}

	hexImage, err := codec.NormalizeHex(digits)
	if err != nil {
		return "", err
	}
	if len(hexImage) > codec.HexLen {
		return "", fmt.Errorf("image has %d hex digits, the chip holds %d", len(hexImage), codec.HexLen)
	}
	return codec.PadHex(hexImage), nil
}

// printImage writes the image in the representation chosen by --binary.
func printImage(hexImage string) error {
	if !binaryFlag {
		fmt.Println(hexImage)
		return nil
	}

	bin, err := codec.HexToBinary(hexImage)
	if err != nil {
		return err
	}
	fmt.Println(bin)
	return nil
}
