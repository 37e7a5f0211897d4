package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/geeprog/internal/chip"
	"github.com/bigbag/geeprog/internal/codec"
	"github.com/bigbag/geeprog/internal/detect"
	"github.com/bigbag/geeprog/internal/image"
	"github.com/bigbag/geeprog/internal/protocol"
	"github.com/bigbag/geeprog/internal/serial"
	"github.com/bigbag/geeprog/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag    string
	baudFlag    int
	timeoutFlag time.Duration
	verboseFlag bool
	binaryFlag  bool
	scrubFlag   bool
	dataFlag    string
	outFlag     string
	toFlag      string
)

var logger zerolog.Logger

func main() {
	rootCmd := &cobra.Command{
		Use:   "geeprog",
		Short: "Read, program, verify and erase 2801 EEPROMs",
		Long: `geeprog drives a serial-attached EEPROM programmer.

The chip holds 32 bytes. Images are exchanged as 64 hex digits or 256 binary
digits; shorter input is padded with zeros.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log protocol traffic to stderr")

	// Read command
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read chip contents",
		Args:  cobra.NoArgs,
		RunE:  runRead,
	}
	addConnectionFlags(readCmd)
	readCmd.Flags().BoolVar(&binaryFlag, "binary", false, "Print binary digits instead of hex")
	readCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Save the image to a file (.txt, .hex or binary)")

	// Program command
	programCmd := &cobra.Command{
		Use:   "program [image-file]",
		Short: "Program the chip and verify it",
		Long: `Program the chip from an image file or from --data, then read it back.

Files ending in .txt are read as hex text, .hex/.ihex as Intel HEX, anything
else as raw binary (first 32 bytes).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProgram,
	}
	addConnectionFlags(programCmd)
	addImageFlags(programCmd)

	// Verify command
	verifyCmd := &cobra.Command{
		Use:   "verify [image-file]",
		Short: "Compare chip contents against an image",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerify,
	}
	addConnectionFlags(verifyCmd)
	addImageFlags(verifyCmd)

	// Erase command
	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase the chip",
		Args:  cobra.NoArgs,
		RunE:  runErase,
	}
	addConnectionFlags(eraseCmd)

	// Convert command
	convertCmd := &cobra.Command{
		Use:   "convert <digits>",
		Short: "Convert an image between hex and binary digits",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert,
	}
	convertCmd.Flags().StringVar(&toFlag, "to", "binary", "Target representation: hex or binary")

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show connected programmers",
		Long:  "Probe serial ports for a programmer that accepts automation mode.",
		RunE:  runInfo,
	}
	addConnectionFlags(infoCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("geeprog %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	rootCmd.AddCommand(readCmd, programCmd, verifyCmd, eraseCmd, convertCmd, infoCmd, versionCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	cmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")
	cmd.Flags().DurationVarP(&timeoutFlag, "timeout", "t", protocol.DefaultTimeout, "Response timeout")
}

func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&dataFlag, "data", "d", "", "Image digits instead of a file")
	cmd.Flags().BoolVar(&binaryFlag, "binary", false, "Treat --data as binary digits")
	cmd.Flags().BoolVar(&scrubFlag, "scrub", false, "Drop non-digit characters from --data (pasted dumps)")
}

func setupLogger() {
	level := zerolog.WarnLevel
	if verboseFlag {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

func sessionConfig() session.Config {
	return session.Config{
		BaudRate: baudFlag,
		Timeout:  timeoutFlag,
		Logger:   &logger,
	}
}

// connect opens the selected or detected port and enters automation mode.
// The caller must Close the returned session.
func connect() (*session.Session, error) {
	cfg := sessionConfig()

	portName := portFlag
	if portName == "" {
		fmt.Println("Detecting programmer...")
		result, err := detect.DetectDevice(cfg)
		if err != nil {
			return nil, fmt.Errorf("programmer detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found programmer on %s\n", result.Info)
	}

	s, err := session.Connect(portName, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", portName, err)
	}

	fmt.Printf("Port: %s @ %d baud (timeout %s)\n", s.PortName(), baudFlag, s.Timeout())
	return s, nil
}

func newProgrammer(s *session.Session) *chip.Programmer {
	p := chip.New(s)
	p.SetLogger(logger)
	return p
}

func runRead(cmd *cobra.Command, args []string) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.Close()

	hexImage, err := newProgrammer(s).Read()
	if err != nil {
		return err
	}

	if err := printImage(hexImage); err != nil {
		return err
	}

	if outFlag != "" {
		format, err := image.Save(outFlag, hexImage)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s file %s\n", format, outFlag)
	}
	return nil
}

func runProgram(cmd *cobra.Command, args []string) error {
	hexImage, err := loadImage(args)
	if err != nil {
		return err
	}

	s, err := connect()
	if err != nil {
		return err
	}
	defer s.Close()

	p := newProgrammer(s)
	bar := progressbar.NewOptions(2,
		progressbar.OptionSetDescription("Programming"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	p.SetProgressCallback(func(current, total int) {
		bar.Set(current)
	})

	ok, err := p.Program(hexImage)
	bar.Finish()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("verification following program failed; the chip may be bad")
	}

	fmt.Println("Program complete!")
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	hexImage, err := loadImage(args)
	if err != nil {
		return err
	}

	s, err := connect()
	if err != nil {
		return err
	}
	defer s.Close()

	p := newProgrammer(s)
	ok, err := p.Verify(hexImage)
	if err != nil {
		return err
	}
	if ok {
		fmt.Println("Chip passed verification.")
		return nil
	}

	fmt.Println("Chip failed verification.")
	fmt.Printf("  Expected: %s\n", hexImage)
	if actual, err := p.Read(); err == nil {
		fmt.Printf("  Chip has: %s\n", actual)
	}
	return fmt.Errorf("chip contents do not match")
}

func runErase(cmd *cobra.Command, args []string) error {
	s, err := connect()
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := newProgrammer(s).Erase()
	if err != nil {
		return err
	}

	if !codec.IsErased(result) {
		fmt.Printf("Chip still reads: %s\n", result)
		return fmt.Errorf("erase was not successful; the chip may be bad")
	}

	fmt.Println("Chip has been erased.")
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	switch toFlag {
	case "binary":
		hexImage, err := codec.NormalizeHex(args[0])
		if err != nil {
			return err
		}
		bin, err := codec.HexToBinary(hexImage)
		if err != nil {
			return err
		}
		fmt.Println(bin)
	case "hex":
		if err := codec.ValidateBinary(args[0]); err != nil {
			return err
		}
		hexImage, err := codec.BinaryToHex(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hexImage)
	default:
		return fmt.Errorf("unknown representation %q (want hex or binary)", toFlag)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := sessionConfig()

	if portFlag != "" {
		// Check specific port
		result, err := detect.DetectOnPort(portFlag, cfg)
		if err != nil {
			return fmt.Errorf("no programmer on %s: %w", portFlag, err)
		}
		printDeviceInfo(result)
		return nil
	}

	// Auto-detect
	fmt.Println("Scanning for programmers...")
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Probing ports"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	devices, err := detect.ListDevices(cfg, func(current, total int) {
		bar.ChangeMax(total)
		bar.Set(current)
	})
	bar.Finish()
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No programmers found")
		return nil
	}

	fmt.Printf("Found %d programmer(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("Programmer %d:\n", i+1)
		printDeviceInfo(&d)
		fmt.Println()
	}

	return nil
}

func printDeviceInfo(d *detect.Result) {
	fmt.Printf("  Port:     %s\n", d.Port)
	if d.Info.IsUSB {
		fmt.Printf("  USB ID:   %s:%s\n", d.Info.VID, d.Info.PID)
		if d.Info.Product != "" {
			fmt.Printf("  Product:  %s\n", d.Info.Product)
		}
		if d.Info.SerialNumber != "" {
			fmt.Printf("  Serial:   %s\n", d.Info.SerialNumber)
		}
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPortDetails()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}
