package hardware

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
	"github.com/Masterminds/semver"
	"github.com/sirupsen/logrus"
)

const (
	FIRMWARE_VERSION = ">= 4.17" // first firmware with the QuickDrive characteristic

	READ_DELAY = 10 * time.Millisecond

	VOLTAGE_SCALE     = 0.000378603
	TEMPERATURE_SCALE = 0.008413396
	TEMPERATURE_SHIFT = 160
)

var (
	ERR_SHORT_RESPONSE = errors.New("response shorter than expected")
)

// Handles names the characteristics a node talks to.
type Handles struct {
	QuickDrive    ble.Handle `yaml:"quickdrive"`
	RemoteControl ble.Handle `yaml:"remote_control"`
	Firmware      ble.Handle `yaml:"firmware"`
}

func DefaultHandles() Handles {
	return Handles{
		QuickDrive:    ble.HANDLE_QUICKDRIVE,
		RemoteControl: ble.HANDLE_REMOTE_CONTROL,
		Firmware:      ble.HANDLE_FIRMWARE,
	}
}

type Telemetry struct {
	Voltage     float64       `json:"voltage"`
	Temperature float64       `json:"temperature"`
	Uptime      time.Duration `json:"uptime"`
	Resets      uint32        `json:"resets"`
}

// Node is a single SBrick reached through a BLE transport. All traffic to the
// device is serialised so a keep-alive retransmission never interleaves with a
// telemetry write/read pair.
type Node struct {
	Handles   Handles
	ReadDelay time.Duration

	transport ble.Transport
	lock      sync.Mutex
	log       *logrus.Entry
}

func NewNode(transport ble.Transport, handles Handles) *Node {
	return &Node{
		Handles:   handles,
		ReadDelay: READ_DELAY,
		transport: transport,
		log:       logrus.WithField("pkg", "hardware"),
	}
}

func (n *Node) write(handle ble.Handle, data []byte) error {
	if err := n.transport.Write(handle, data); err != nil {
		return &deverrors.TransportError{Op: "write", Handle: uint16(handle), Err: err}
	}
	return nil
}

func (n *Node) read(handle ble.Handle) ([]byte, error) {
	resp, err := n.transport.Read(handle)
	if err != nil {
		return nil, &deverrors.TransportError{Op: "read", Handle: uint16(handle), Err: err}
	}
	return resp, nil
}

func (n *Node) Write(handle ble.Handle, data []byte) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.log.WithFields(logrus.Fields{"handle": handle, "value": fmt.Sprintf("%X", data)}).Debug("sbrick command")
	return n.write(handle, data)
}

func (n *Node) Read(handle ble.Handle) ([]byte, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	resp, err := n.read(handle)
	if err != nil {
		return nil, err
	}
	n.log.WithFields(logrus.Fields{"handle": handle, "value": fmt.Sprintf("%X", resp)}).Debug("value read")
	return resp, nil
}

// WriteQuickDrive sends a payload to the QuickDrive characteristic. Keep-alive
// retransmissions are logged separately from commands issued by the caller.
func (n *Node) WriteQuickDrive(p Payload, keepAlive bool) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	entry := n.log.WithFields(logrus.Fields{"handle": n.Handles.QuickDrive, "value": p.String()})
	if keepAlive {
		entry.Debug("keep alive")
	} else {
		entry.Debug("sbrick command")
	}

	return n.write(n.Handles.QuickDrive, p.Bytes())
}

// writeRead issues a remote control query and reads back its answer while
// holding the node for the whole exchange.
func (n *Node) writeRead(query []byte) ([]byte, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if err := n.write(n.Handles.RemoteControl, query); err != nil {
		return nil, err
	}
	time.Sleep(n.ReadDelay)

	resp, err := n.read(n.Handles.RemoteControl)
	if err != nil {
		return nil, err
	}
	n.log.WithFields(logrus.Fields{"query": fmt.Sprintf("%X", query), "value": fmt.Sprintf("%X", resp)}).Debug("value read")
	return resp, nil
}

func (n *Node) readUint16(query ...byte) (uint16, error) {
	resp, err := n.writeRead(query)
	if err != nil {
		return 0, err
	}
	if len(resp) < 2 {
		return 0, ERR_SHORT_RESPONSE
	}
	return binary.LittleEndian.Uint16(resp), nil
}

func (n *Node) readUint32(query ...byte) (uint32, error) {
	resp, err := n.writeRead(query)
	if err != nil {
		return 0, err
	}
	if len(resp) < 4 {
		return 0, ERR_SHORT_RESPONSE
	}
	return binary.LittleEndian.Uint32(resp), nil
}

// Resets returns the number of resets since the last firmware update.
func (n *Node) Resets() (uint32, error) {
	return n.readUint32(CMD_GET_RESETS)
}

// Uptime is reported by the device in tenths of a second.
func (n *Node) Uptime() (time.Duration, error) {
	ticks, err := n.readUint32(CMD_GET_UPTIME)
	if err != nil {
		return 0, err
	}
	return time.Duration(ticks) * time.Second / 10, nil
}

// Temperature in degrees celsius.
func (n *Node) Temperature() (float64, error) {
	raw, err := n.readUint16(CMD_QUERY_ADC, ADC_TEMPERATURE)
	if err != nil {
		return 0, err
	}
	return float64(raw)*TEMPERATURE_SCALE - TEMPERATURE_SHIFT, nil
}

// Voltage of the battery input in volts.
func (n *Node) Voltage() (float64, error) {
	raw, err := n.readUint16(CMD_QUERY_ADC, ADC_VOLTAGE)
	if err != nil {
		return 0, err
	}
	return float64(raw) * VOLTAGE_SCALE, nil
}

func (n *Node) Telemetry() (t Telemetry, err error) {
	if t.Voltage, err = n.Voltage(); err != nil {
		return
	}
	if t.Temperature, err = n.Temperature(); err != nil {
		return
	}
	if t.Uptime, err = n.Uptime(); err != nil {
		return
	}
	t.Resets, err = n.Resets()
	return
}

// LEDTest switches the LED channel on. Current firmware only flashes it.
func (n *Node) LEDTest() error {
	return n.Write(n.Handles.RemoteControl, []byte{CMD_DRIVE, LED_CHANNEL, 0x00, 0xFF})
}

// Version reads the firmware revision string.
func (n *Node) Version() (string, error) {
	raw, err := n.Read(n.Handles.Firmware)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(raw, "\x00 \r\n")), nil
}

// CheckFirmware verifies the firmware satisfies constraint (FIRMWARE_VERSION
// when empty). A "DEV" build is accepted.
func (n *Node) CheckFirmware(constraint string) (version string, err error) {
	if constraint == "" {
		constraint = FIRMWARE_VERSION
	}

	version, err = n.Version()
	if err != nil {
		return
	}

	semVer, err := semver.NewVersion(version)
	if err != nil {
		if version == "DEV" {
			n.log.Warn("running against a development firmware")
			return version, nil
		}
		return version, fmt.Errorf("unrecognised firmware version %q: %w", version, err)
	}

	semVerConstraint, err := semver.NewConstraint(constraint)
	if err != nil {
		return
	}

	if !semVerConstraint.Check(semVer) {
		err = fmt.Errorf("unable to use sbrick: firmware %s - require %s", version, constraint)
	}

	return
}
