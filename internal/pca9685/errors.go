package pca9685

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by every register operation before Initialize
	// has acquired a bus handle (or after Close).
	ErrNotOpen = errors.New("pca9685: device not initialized")

	// ErrInvalidArgument marks inputs that are rejected rather than clamped:
	// channel indices and raw tick values.
	ErrInvalidArgument = errors.New("pca9685: invalid argument")

	errNoOpener  = errors.New("no bus opener configured")
	errNilHandle = errors.New("opener returned nil handle")
)

type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// BusOpenError means the device handle could not be acquired. The
// controller is unusable until a later Initialize succeeds.
type BusOpenError struct {
	Addr uint16
	Err  error
}

func (e *BusOpenError) Error() string {
	return fmt.Sprintf("pca9685: open device 0x%02X failed: %v", e.Addr, e.Err)
}

func (e *BusOpenError) Unwrap() error { return e.Err }

// BusIoError is a failed single-register transaction. The driver never
// retries.
type BusIoError struct {
	Reg   byte
	Op    Op
	Value byte // attempted value, writes only
	Err   error
}

func (e *BusIoError) Error() string {
	if e.Op == OpWrite {
		return fmt.Sprintf("pca9685: write reg 0x%02X=0x%02X failed: %v", e.Reg, e.Value, e.Err)
	}
	return fmt.Sprintf("pca9685: read reg 0x%02X failed: %v", e.Reg, e.Err)
}

func (e *BusIoError) Unwrap() error { return e.Err }

func errInvalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= NumChannels {
		return errInvalidf("channel %d out of range [0,%d]", ch, NumChannels-1)
	}
	return nil
}
