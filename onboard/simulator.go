package onboard

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/sirupsen/logrus"
)

const (
	SIM_FIRMWARE    = "4.17"
	SIM_VOLTAGE     = 23771 // ~9.0V
	SIM_TEMPERATURE = 21988 // ~25C
)

type SimulatedWrite struct {
	Handle ble.Handle
	Data   []byte
	At     time.Time
}

// SimulatedTransport stands in for an SBrick over BLE. It remembers every
// write and answers the remote control queries the way the device does, on
// whichever handles it was built with.
type SimulatedTransport struct {
	Handles hardware.Handles

	lock    sync.Mutex
	fail    error
	writes  []SimulatedWrite
	query   []byte
	started time.Time
	resets  uint32
	closed  bool
	log     *logrus.Entry
}

func NewSimulatedTransport(handles hardware.Handles) *SimulatedTransport {
	return &SimulatedTransport{
		Handles: handles,
		started: time.Now(),
		log:     logrus.WithField("pkg", "simulator"),
	}
}

func (s *SimulatedTransport) Write(handle ble.Handle, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.fail != nil {
		return s.fail
	}
	if s.closed {
		return ble.ERR_NOT_CONNECTED
	}

	data = append([]byte(nil), data...)
	s.writes = append(s.writes, SimulatedWrite{handle, data, time.Now()})

	switch handle {
	case s.Handles.QuickDrive:
		if len(data) != hardware.PORT_COUNT {
			return fmt.Errorf("quickdrive expects %d bytes, got %d", hardware.PORT_COUNT, len(data))
		}
		s.log.WithField("ports", hardware.Payload{data[0], data[1], data[2], data[3]}).Debug("simulated quickdrive")
	case s.Handles.RemoteControl:
		s.query = data
	default:
		return ble.ERR_UNKNOWN_HANDLE
	}
	return nil
}

func (s *SimulatedTransport) Read(handle ble.Handle) (data []byte, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.fail != nil {
		return nil, s.fail
	}
	if s.closed {
		return nil, ble.ERR_NOT_CONNECTED
	}

	switch handle {
	case s.Handles.Firmware:
		return []byte(SIM_FIRMWARE), nil
	case s.Handles.RemoteControl:
		return s.answer(), nil
	}
	return nil, ble.ERR_UNKNOWN_HANDLE
}

func (s *SimulatedTransport) answer() (data []byte) {
	if len(s.query) == 0 {
		return nil
	}

	switch s.query[0] {
	case hardware.CMD_QUERY_ADC:
		data = make([]byte, 2)
		if len(s.query) > 1 && s.query[1] == hardware.ADC_TEMPERATURE {
			binary.LittleEndian.PutUint16(data, SIM_TEMPERATURE)
		} else {
			binary.LittleEndian.PutUint16(data, SIM_VOLTAGE)
		}
	case hardware.CMD_GET_UPTIME:
		data = make([]byte, 4)
		binary.LittleEndian.PutUint32(data, uint32(time.Since(s.started)/(time.Second/10)))
	case hardware.CMD_GET_RESETS:
		data = make([]byte, 4)
		binary.LittleEndian.PutUint32(data, s.resets)
	}
	return
}

// SetFail makes every following Write and Read return err. nil clears it.
func (s *SimulatedTransport) SetFail(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fail = err
}

func (s *SimulatedTransport) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	return nil
}

// Writes returns a copy of everything written to the given handle.
func (s *SimulatedTransport) Writes(handle ble.Handle) (writes []SimulatedWrite) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, w := range s.writes {
		if w.Handle == handle {
			writes = append(writes, w)
		}
	}
	return
}

// Ports returns the last QuickDrive payload, if any.
func (s *SimulatedTransport) Ports() (p hardware.Payload, ok bool) {
	writes := s.Writes(s.Handles.QuickDrive)
	if len(writes) == 0 {
		return
	}
	copy(p[:], writes[len(writes)-1].Data)
	return p, true
}
