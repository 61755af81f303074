package hardware

import (
	"fmt"

	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
)

// Remote control characteristic commands.
const (
	CMD_DRIVE       = 0x01
	CMD_QUERY_ADC   = 0x0F
	CMD_GET_RESETS  = 0x28
	CMD_GET_UPTIME  = 0x29
	ADC_VOLTAGE     = 0x00
	ADC_TEMPERATURE = 0x0E
	LED_CHANNEL     = 0x04

	PORT_COUNT = 4

	// magnitude occupies the upper seven bits, bit 0 carries the direction
	DIRECTION_CCW = 0x01
)

// Payload is one QuickDrive write: one encoded byte per port, port 0 first.
type Payload [PORT_COUNT]byte

func (p Payload) Bytes() []byte {
	b := make([]byte, PORT_COUNT)
	copy(b, p[:])
	return b
}

func (p Payload) String() string {
	return fmt.Sprintf("%02X%02X%02X%02X", p[0], p[1], p[2], p[3])
}

// BrakePayload stops all four ports with the shunt brake engaged.
func BrakePayload() Payload {
	return Payload{byte(Brake), byte(Brake), byte(Brake), byte(Brake)}
}

// EncodePort converts a command into the byte the firmware expects for a port.
//
//	0000000x  brake
//	0000001x  freewheel
//	xxxxxxxd  speed in direction d, d = 1 for counter-clockwise
//
// The magnitude is 255*|percent|/100 truncated, and bit 0 is always replaced by
// the direction.
func EncodePort(cmd MotorCommand) (b byte, err error) {
	if err = cmd.validate(); err != nil {
		return 0, err
	}

	if cmd.IsStop() {
		return byte(cmd.Mode()), nil
	}

	percent := cmd.Percent()
	magnitude := percent
	if magnitude < 0 {
		magnitude = -magnitude
	}

	b = byte(255 * magnitude / 100)
	b &^= DIRECTION_CCW
	if percent < 0 {
		b |= DIRECTION_CCW
	}

	return b, nil
}

// EncodePayload encodes the four ports in fixed order.
func EncodePayload(ports [PORT_COUNT]MotorCommand) (p Payload, err error) {
	for i, cmd := range ports {
		p[i], err = EncodePort(cmd)
		if err != nil {
			return Payload{}, fmt.Errorf("port %d: %w", i, err)
		}
	}

	return p, nil
}

// EncodePorts is EncodePayload for callers holding a slice. It never pads or
// truncates.
func EncodePorts(ports []MotorCommand) (p Payload, err error) {
	if len(ports) != PORT_COUNT {
		return p, deverrors.WrongPortCountError{Count: len(ports)}
	}

	var fixed [PORT_COUNT]MotorCommand
	copy(fixed[:], ports)
	return EncodePayload(fixed)
}
