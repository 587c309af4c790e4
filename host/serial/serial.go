// Package serial abstracts the serial link to the motion controller so
// the transport can run over real hardware or an in-memory loopback in
// tests.
package serial

import "io"

// Port is a byte-stream connection to an MCU.
type Port interface {
	io.ReadWriteCloser

	// Flush drains any buffered output.
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	// Device is the port path (e.g. "/dev/ttyACM0").
	Device string

	// Baud is the line rate. USB CDC devices ignore it.
	Baud int

	// ReadTimeoutMS bounds a single read; 0 blocks.
	ReadTimeoutMS int
}

// DefaultConfig returns the standard Klipper-compatible settings for a
// device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:        device,
		Baud:          250000,
		ReadTimeoutMS: 100,
	}
}
