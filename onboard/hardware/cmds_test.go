package hardware

import (
	"errors"
	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
	"testing"
)

func TestEncodePort(t *testing.T) {
	Convey("stop commands have fixed values", t, func() {
		for i := 0; i < 3; i++ {
			b, err := EncodePort(Stop(Brake))
			So(err, ShouldBeNil)
			So(b, ShouldEqual, 0x01)

			b, err = EncodePort(Stop(Freewheel))
			So(err, ShouldBeNil)
			So(b, ShouldEqual, 0x02)
		}
	})

	Convey("direction is carried in bit 0", t, func() {
		for p := 0; p <= 100; p++ {
			b, err := EncodePort(Drive(p))
			So(err, ShouldBeNil)
			So(b&0x01, ShouldEqual, 0)
		}
		for p := -100; p < 0; p++ {
			b, err := EncodePort(Drive(p))
			So(err, ShouldBeNil)
			So(b&0x01, ShouldEqual, 1)
		}
	})

	Convey("magnitude is the truncated 255 scale in the upper bits", t, func() {
		for p := -100; p <= 100; p++ {
			abs := p
			if abs < 0 {
				abs = -abs
			}
			b, _ := EncodePort(Drive(p))
			So(b>>1, ShouldEqual, byte(255*abs/100)>>1)
		}
	})

	Convey("boundaries", t, func() {
		b, _ := EncodePort(Drive(100))
		So(b, ShouldEqual, 0xFE)

		b, _ = EncodePort(Drive(-100))
		So(b, ShouldEqual, 0xFF)

		b, _ = EncodePort(Drive(0))
		So(b, ShouldEqual, 0x00)

		// 255*50/100 = 127, the low bit is overwritten either way
		b, _ = EncodePort(Drive(50))
		So(b, ShouldEqual, 0x7E)
		b, _ = EncodePort(Drive(-50))
		So(b, ShouldEqual, 0x7F)

		b, _ = EncodePort(Drive(1))
		So(b, ShouldEqual, 0x02)
	})

	Convey("out of range commands are rejected, never clamped", t, func() {
		var invalid deverrors.InvalidCommandError

		_, err := EncodePort(Drive(101))
		So(errors.As(err, &invalid), ShouldBeTrue)

		_, err = EncodePort(Drive(-150))
		So(errors.As(err, &invalid), ShouldBeTrue)

		_, err = EncodePort(Stop(StopMode(7)))
		So(errors.As(err, &invalid), ShouldBeTrue)
	})
}

func TestEncodePayload(t *testing.T) {
	Convey("ports are encoded in order 0-3", t, func() {
		p, err := EncodePayload([PORT_COUNT]MotorCommand{Drive(100), Drive(-50), Stop(Freewheel), Stop(Brake)})
		So(err, ShouldBeNil)
		So(p, ShouldResemble, Payload{0xFE, 0x7F, 0x02, 0x01})
		So(p.Bytes(), ShouldResemble, []byte{0xFE, 0x7F, 0x02, 0x01})
		So(p.String(), ShouldEqual, "FE7F0201")
	})

	Convey("a bad port fails the whole payload", t, func() {
		p, err := EncodePayload([PORT_COUNT]MotorCommand{Drive(10), Drive(10), Drive(200), Drive(10)})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "port 2")
		So(p, ShouldResemble, Payload{})

		var invalid deverrors.InvalidCommandError
		So(errors.As(err, &invalid), ShouldBeTrue)
	})

	Convey("slices must hold exactly four ports", t, func() {
		var wrong deverrors.WrongPortCountError

		_, err := EncodePorts([]MotorCommand{Drive(1), Drive(2), Drive(3)})
		So(errors.As(err, &wrong), ShouldBeTrue)
		So(wrong.Count, ShouldEqual, 3)

		_, err = EncodePorts([]MotorCommand{Drive(1), Drive(2), Drive(3), Drive(4), Drive(5)})
		So(errors.As(err, &wrong), ShouldBeTrue)
		So(wrong.Count, ShouldEqual, 5)

		_, err = EncodePorts(nil)
		So(errors.As(err, &wrong), ShouldBeTrue)

		p, err := EncodePorts([]MotorCommand{Drive(100), Drive(-50), Stop(Freewheel), Stop(Brake)})
		So(err, ShouldBeNil)
		So(p, ShouldResemble, Payload{0xFE, 0x7F, 0x02, 0x01})
	})

	Convey("brake payload stops every port", t, func() {
		So(BrakePayload(), ShouldResemble, Payload{0x01, 0x01, 0x01, 0x01})
	})
}
