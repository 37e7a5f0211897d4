package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port wraps a serial port connected to an EEPROM programmer.
type Port struct {
	port serial.Port
}

// PortInfo describes an available serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Open opens a serial port at 8N1 with the given baud rate and read timeout.
func Open(portName string, baudRate int, timeout time.Duration) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	// Set read timeout
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{port: port}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Write writes data to the serial port.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// Read reads data from the serial port. It returns 0, nil when the read
// timeout expires with nothing received.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// SetReadTimeout changes the read timeout.
func (p *Port) SetReadTimeout(timeout time.Duration) error {
	return p.port.SetReadTimeout(timeout)
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// allow tests to replace the platform port listings
var (
	getPortsList         = serial.GetPortsList
	getDetailedPortsList = enumerator.GetDetailedPortsList
)

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := getPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}

// ListPortDetails returns available serial ports with USB details where the
// platform reports them. If the detailed listing fails, it falls back to
// plain port names.
func ListPortDetails() ([]PortInfo, error) {
	details, err := getDetailedPortsList()
	if err != nil {
		names, nameErr := ListPorts()
		if nameErr != nil {
			return nil, fmt.Errorf("failed to list ports: %w", err)
		}
		ports := make([]PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// String formats the port for listings.
func (i PortInfo) String() string {
	if !i.IsUSB {
		return i.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s", i.Name, i.VID, i.PID)
	if i.Product != "" {
		s += " " + i.Product
	}
	if i.SerialNumber != "" {
		s += " s/n " + i.SerialNumber
	}
	return s + "]"
}
