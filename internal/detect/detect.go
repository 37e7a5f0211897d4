package detect

import (
	"fmt"
	"sort"

	"github.com/bigbag/geeprog/internal/serial"
	"github.com/bigbag/geeprog/internal/session"
)

// Result represents a detected EEPROM programmer.
type Result struct {
	Port string
	Info serial.PortInfo
}

// ProgressCallback is called after each probed port.
type ProgressCallback func(current, total int)

// allow tests to replace port enumeration and the handshake
var (
	listPorts = serial.ListPortDetails
	connect   = session.Connect
)

// DetectDevice returns the first port whose device acknowledges automation
// mode. USB ports are probed first.
func DetectDevice(cfg session.Config) (*Result, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, info := range usbFirst(ports) {
		result, err := tryPort(info, cfg)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no programmer found (last error: %w)", lastErr)
	}
	return nil, fmt.Errorf("no programmer found")
}

// DetectOnPort checks for a programmer on a specific port.
func DetectOnPort(portName string, cfg session.Config) (*Result, error) {
	info := serial.PortInfo{Name: portName}

	// Enrich with USB details when the port is enumerable
	if ports, err := listPorts(); err == nil {
		for _, p := range ports {
			if p.Name == portName {
				info = p
				break
			}
		}
	}

	return tryPort(info, cfg)
}

// ListDevices probes every port and returns all programmers found.
func ListDevices(cfg session.Config, progress ProgressCallback) ([]Result, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	var results []Result
	for i, info := range usbFirst(ports) {
		result, err := tryPort(info, cfg)
		if err == nil {
			results = append(results, *result)
		}
		if progress != nil {
			progress(i+1, len(ports))
		}
	}

	return results, nil
}

func tryPort(info serial.PortInfo, cfg session.Config) (*Result, error) {
	s, err := connect(info.Name, cfg)
	if err != nil {
		return nil, err
	}

	// The handshake succeeded; a failing close does not change that
	s.Close()

	return &Result{
		Port: info.Name,
		Info: info,
	}, nil
}

func usbFirst(ports []serial.PortInfo) []serial.PortInfo {
	sorted := make([]serial.PortInfo, len(ports))
	copy(sorted, ports)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].IsUSB && !sorted[j].IsUSB
	})
	return sorted
}
