package onboard

import (
	"errors"
	"testing"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	. "github.com/smartystreets/goconvey/convey"
)

func createTestSBrick() (sim *SimulatedTransport, s *BLESBrick) {
	config, err := ParseConfig([]byte("name: test\nkeepalive:\n  interval: 10ms\n  max: 100ms\n"))
	So(err, ShouldBeNil)

	sim = NewSimulatedTransport(config.Handles)
	s, err = NewSBrick(sim, config)
	So(err, ShouldBeNil)
	s.Node.ReadDelay = 0
	return
}

func TestSBrick(t *testing.T) {
	Convey("drive commands reach the quickdrive handle", t, func() {
		sim, s := createTestSBrick()
		defer s.Close()

		err := s.Drive([4]hardware.MotorCommand{
			hardware.Drive(100), hardware.Drive(-50), hardware.Stop(hardware.Freewheel), hardware.Stop(hardware.Brake),
		})
		So(err, ShouldBeNil)
		ports, _ := sim.Ports()
		So(ports, ShouldResemble, hardware.Payload{0xFE, 0x7F, 0x02, 0x01})

		Convey("a single port keeps the others", func() {
			So(s.SetPort(2, hardware.Drive(-100)), ShouldBeNil)
			ports, _ := sim.Ports()
			So(ports, ShouldResemble, hardware.Payload{0xFE, 0x7F, 0xFF, 0x01})

			So(s.SetPort(4, hardware.Drive(10)), ShouldNotBeNil)
		})

		Convey("brake stops every port", func() {
			So(s.Brake(), ShouldBeNil)
			ports, _ := sim.Ports()
			So(ports, ShouldResemble, hardware.BrakePayload())
		})

		Convey("the mixer drives the configured pair", func() {
			So(s.Mix(0, 1), ShouldBeNil)
			ports, _ := sim.Ports()
			So(ports, ShouldResemble, hardware.Payload{0xFE, 0xFE, 0x02, 0x02})
		})

		Convey("bad commands are refused before the wire", func() {
			count := len(sim.Writes(ble.HANDLE_QUICKDRIVE))

			var wrongCount deverrors.WrongPortCountError
			err := s.DrivePorts([]hardware.MotorCommand{hardware.Drive(1)})
			So(errors.As(err, &wrongCount), ShouldBeTrue)

			var invalid deverrors.InvalidCommandError
			err = s.DrivePorts([]hardware.MotorCommand{
				hardware.Drive(101), hardware.Drive(0), hardware.Drive(0), hardware.Drive(0),
			})
			So(errors.As(err, &invalid), ShouldBeTrue)

			So(len(sim.Writes(ble.HANDLE_QUICKDRIVE)), ShouldEqual, count)
		})
	})

	Convey("keep alive runs are observed", t, func() {
		sim, s := createTestSBrick()
		defer s.Close()

		results := make(chan hardware.RunResult, 1)
		s.OnRunExit(func(r hardware.RunResult) {
			results <- r
		})

		So(s.Drive([4]hardware.MotorCommand{
			hardware.Drive(50), hardware.Drive(50), hardware.Drive(50), hardware.Drive(50),
		}), ShouldBeNil)
		So(s.StartKeepAlive(), ShouldBeNil)
		So(s.KeepAliveStatus(), ShouldEqual, hardware.Running)

		select {
		case r := <-results:
			So(r.Status, ShouldEqual, hardware.TimedOut)
			So(r.Retransmissions, ShouldBeGreaterThan, 0)
		case <-time.After(time.Second):
			So("run did not time out", ShouldBeEmpty)
		}

		So(s.LastRun().Status, ShouldEqual, hardware.TimedOut)
		ports, _ := sim.Ports()
		So(ports, ShouldResemble, hardware.BrakePayload())
		So(len(sim.Writes(ble.HANDLE_QUICKDRIVE)), ShouldBeGreaterThan, 2)
	})

	Convey("close kills the run and drops the link", t, func() {
		sim, s := createTestSBrick()
		So(s.Brake(), ShouldBeNil)
		So(s.StartKeepAlive(), ShouldBeNil)
		s.ResetKeepAlive()

		So(s.Close(), ShouldBeNil)
		So(s.KeepAliveStatus(), ShouldEqual, hardware.Killed)
		So(sim.Write(ble.HANDLE_QUICKDRIVE, hardware.BrakePayload().Bytes()), ShouldEqual, ble.ERR_NOT_CONNECTED)
	})

	Convey("telemetry passes through", t, func() {
		_, s := createTestSBrick()
		defer s.Close()

		telemetry, err := s.Telemetry()
		So(err, ShouldBeNil)
		So(telemetry.Voltage, ShouldAlmostEqual, 9.0, 0.001)

		version, err := s.Version()
		So(err, ShouldBeNil)
		So(version, ShouldEqual, SIM_FIRMWARE)
		So(s.LEDTest(), ShouldBeNil)
	})

	Convey("old firmware is refused", t, func() {
		config, _ := ParseConfig([]byte("firmware: \">= 5.0\""))
		_, err := NewSBrick(NewSimulatedTransport(config.Handles), config)
		So(err, ShouldNotBeNil)
	})
}
