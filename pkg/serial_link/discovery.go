package serial_link

import (
	"io"
	"strings"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial/enumerator"
)

// USB vendor ids whose product strings are often missing or generic.
var vendorHints = map[string]string{
	"2341": "Arduino",
	"2a03": "Arduino",
	"1a86": "CH340",
}

// EnumeratePorts lists attached serial devices with a human readable
// description built from the USB product string and vendor id.
func EnumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		description := d.Product
		if d.IsUSB {
			if hint, ok := vendorHints[strings.ToLower(d.VID)]; ok && !strings.Contains(strings.ToLower(description), strings.ToLower(hint)) {
				description = strings.TrimSpace(description + " " + hint)
			}
		}
		ports = append(ports, PortInfo{Name: d.Name, Description: description})
	}
	return ports, nil
}

var portPriorities = []func(description string) bool{
	func(d string) bool { return strings.Contains(d, "mega") },
	func(d string) bool { return strings.Contains(d, "arduino") && !strings.Contains(d, "nano") },
	func(d string) bool { return strings.Contains(d, "ch340") },
	func(d string) bool { return strings.Contains(d, "usb serial") || strings.Contains(d, "arduino") },
}

// SelectPort picks the rig's port: a Mega first, then any non-Nano Arduino,
// then a CH340 clone, then any generic USB serial adapter.
func SelectPort(ports []PortInfo) (string, error) {
	for _, matches := range portPriorities {
		for _, p := range ports {
			if matches(strings.ToLower(p.Description)) {
				return p.Name, nil
			}
		}
	}
	return "", errors.New().WithData(errors.ErrPortNotFound, describePorts(ports))
}

func describePorts(ports []PortInfo) string {
	if len(ports) == 0 {
		return "no serial devices attached"
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name+" ("+p.Description+")")
	}
	return "candidates: " + strings.Join(names, ", ")
}

// OpenSerialPort opens name as 8N1 at baudrate. MinimumReadSize 0 makes
// reads return after readTimeout so the reader can observe stop requests.
func OpenSerialPort(name string, baudrate uint, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:              name,
		BaudRate:              baudrate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(readTimeout.Milliseconds()),
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, err
	}
	return wrapTTY(port), nil
}
