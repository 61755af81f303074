package onboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/sirupsen/logrus"
)

type SBrick interface {
	Drive(ports [hardware.PORT_COUNT]hardware.MotorCommand) (err error)
	DrivePorts(ports []hardware.MotorCommand) (err error)
	SetPort(index int, cmd hardware.MotorCommand) (err error)
	Mix(x, y float64) (err error)
	Brake() (err error)

	StartKeepAlive() (err error)
	ResetKeepAlive()
	StopKeepAlive()
	KillKeepAlive()
	KeepAliveStatus() hardware.RunStatus
	LastRun() hardware.RunResult
	OnRunExit(fn func(hardware.RunResult))

	Telemetry() (t hardware.Telemetry, err error)
	LEDTest() (err error)
	Version() (version string, err error)
	Close() (err error)
}

type BLESBrick struct {
	Name      string
	Node      *hardware.Node
	KeepAlive *hardware.KeepAlive
	Mixer     TankMixer

	transport ble.Transport
	ports     [hardware.PORT_COUNT]*hardware.Port
	observers []func(hardware.RunResult)
	obsLock   sync.Mutex
	log       *logrus.Entry
}

// Connect finds the configured SBrick over BLE and wraps it.
func Connect(ctx context.Context, config SBrickConfig) (s *BLESBrick, err error) {
	ctx, cancel := context.WithTimeout(ctx, config.ScanTimeout)
	defer cancel()

	adapter, err := ble.Dial(ctx, config.Address, config.Characteristics)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", config.Address, err)
	}

	s, err = NewSBrick(adapter, config)
	if err != nil {
		adapter.Close()
	}
	return
}

// NewSBrick builds a device on an already connected transport and refuses
// firmware without QuickDrive support.
func NewSBrick(transport ble.Transport, config SBrickConfig) (s *BLESBrick, err error) {
	if err = config.Mixer.validate(); err != nil {
		return
	}

	s = &BLESBrick{
		Name:      config.Name,
		Node:      hardware.NewNode(transport, config.Handles),
		Mixer:     config.Mixer,
		transport: transport,
		log:       logrus.WithFields(logrus.Fields{"pkg": "onboard", "sbrick": config.Name}),
	}

	version, err := s.Node.CheckFirmware(config.Firmware)
	if err != nil {
		return nil, err
	}
	s.log.WithField("firmware", version).Info("sbrick ready")

	s.KeepAlive = hardware.NewKeepAlive(s.Node)
	config.KeepAlive.Apply(s.KeepAlive)
	s.KeepAlive.OnExit = s.runExited

	for i := range s.ports {
		s.ports[i] = &hardware.Port{KeepAlive: s.KeepAlive, Index: i}
	}
	return
}

func (s *BLESBrick) Drive(ports [hardware.PORT_COUNT]hardware.MotorCommand) (err error) {
	p, err := hardware.EncodePayload(ports)
	if err != nil {
		return
	}
	return s.KeepAlive.Send(p)
}

func (s *BLESBrick) DrivePorts(ports []hardware.MotorCommand) (err error) {
	p, err := hardware.EncodePorts(ports)
	if err != nil {
		return
	}
	return s.KeepAlive.Send(p)
}

func (s *BLESBrick) SetPort(index int, cmd hardware.MotorCommand) (err error) {
	if index < 0 || index >= len(s.ports) {
		return fmt.Errorf("unable to find port %d", index)
	}
	return s.ports[index].Set(cmd)
}

func (s *BLESBrick) Mix(x, y float64) (err error) {
	ports, err := s.Mixer.Mix(x, y)
	if err != nil {
		return
	}
	return s.Drive(ports)
}

func (s *BLESBrick) Brake() (err error) {
	return s.KeepAlive.Send(hardware.BrakePayload())
}

func (s *BLESBrick) StartKeepAlive() (err error) {
	return s.KeepAlive.Start()
}

func (s *BLESBrick) ResetKeepAlive() {
	s.KeepAlive.Reset()
}

func (s *BLESBrick) StopKeepAlive() {
	s.KeepAlive.Stop()
}

func (s *BLESBrick) KillKeepAlive() {
	s.KeepAlive.Kill()
}

func (s *BLESBrick) KeepAliveStatus() hardware.RunStatus {
	return s.KeepAlive.Status()
}

func (s *BLESBrick) LastRun() hardware.RunResult {
	return s.KeepAlive.Result()
}

// OnRunExit registers fn to be called with the result of every finished run.
func (s *BLESBrick) OnRunExit(fn func(hardware.RunResult)) {
	s.obsLock.Lock()
	defer s.obsLock.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *BLESBrick) runExited(result hardware.RunResult) {
	s.obsLock.Lock()
	observers := append([]func(hardware.RunResult){}, s.observers...)
	s.obsLock.Unlock()

	for _, fn := range observers {
		fn(result)
	}
}

func (s *BLESBrick) Telemetry() (t hardware.Telemetry, err error) {
	return s.Node.Telemetry()
}

func (s *BLESBrick) LEDTest() (err error) {
	return s.Node.LEDTest()
}

func (s *BLESBrick) Version() (version string, err error) {
	return s.Node.Version()
}

// Close ends any keep-alive run before dropping the connection.
func (s *BLESBrick) Close() (err error) {
	s.KeepAlive.Kill()
	return s.transport.Close()
}
