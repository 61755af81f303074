package ble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Handle addresses a characteristic value on the SBrick. The values match the
// attribute handles reported by gatttool for firmware 4.x.
type Handle uint16

const (
	HANDLE_FIRMWARE       Handle = 0x000a
	HANDLE_REMOTE_CONTROL Handle = 0x001a
	HANDLE_QUICKDRIVE     Handle = 0x001e

	UUID_FIRMWARE       = "00002a26-0000-1000-8000-00805f9b34fb"
	UUID_REMOTE_CONTROL = "02b8cbcc-0e25-4bda-8790-a15f53e6010f"
	UUID_QUICKDRIVE     = "489a6ae0-c1ab-4c9c-bdb2-11d373c1b7fb"
)

var (
	ERR_UNKNOWN_HANDLE  = errors.New("no characteristic is mapped to this handle")
	ERR_NOT_CONNECTED   = errors.New("ble transport is not connected")
	ERR_DEVICE_NOT_SEEN = errors.New("device was not seen during scan")
)

// Transport is the BLE collaborator. Writes are blocking and are not retried.
type Transport interface {
	Write(handle Handle, data []byte) error
	Read(handle Handle) ([]byte, error)
	Close() error
}

// DefaultCharacteristics maps the handles used by the controller to the
// characteristic UUIDs they are discovered by.
func DefaultCharacteristics() map[Handle]string {
	return map[Handle]string{
		HANDLE_FIRMWARE:       UUID_FIRMWARE,
		HANDLE_REMOTE_CONTROL: UUID_REMOTE_CONTROL,
		HANDLE_QUICKDRIVE:     UUID_QUICKDRIVE,
	}
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%04x", uint16(h))
}

// ParseHandle accepts the gatttool notation ("0x001e") as well as plain decimal.
func ParseHandle(s string) (h Handle, err error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad handle %q: %w", s, err)
	}

	return Handle(v), nil
}

func (h Handle) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

func (h *Handle) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	parsed, err := ParseHandle(raw)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
