package errors

import "fmt"

// InvalidCommandError is returned when a motor command cannot be encoded, either
// because a drive percentage is out of range or a stop mode is unknown.
type InvalidCommandError struct {
	Value  interface{}
	Reason string
}

func (err InvalidCommandError) Error() string {
	if len(err.Reason) == 0 {
		err.Reason = "UNKNOWN"
	}

	return fmt.Sprintf("invalid motor command %v: %s", err.Value, err.Reason)
}

// WrongPortCountError is returned when a QuickDrive payload is built from
// anything other than exactly four port commands.
type WrongPortCountError struct {
	Count int
}

func (err WrongPortCountError) Error() string {
	return fmt.Sprintf("quickdrive requires exactly 4 ports in order 0-3, got %d", err.Count)
}

// TransportError wraps a failure reported by the BLE collaborator.
type TransportError struct {
	Op     string // read or write
	Handle uint16
	Err    error
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("ble %s on handle 0x%04x: %v", err.Op, err.Handle, err.Err)
}

func (err *TransportError) Unwrap() error {
	return err.Err
}

// WatchdogLostError ends a keep-alive run once too many consecutive
// retransmissions have failed.
type WatchdogLostError struct {
	Failures int
	Err      error
}

func (err *WatchdogLostError) Error() string {
	return fmt.Sprintf("keep alive lost after %d consecutive failures: %v", err.Failures, err.Err)
}

func (err *WatchdogLostError) Unwrap() error {
	return err.Err
}
