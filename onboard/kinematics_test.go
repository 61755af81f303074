package onboard

import (
	"math"
	"testing"

	"github.com/CodedInternet/gosbrick/onboard/hardware"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTankMixer(t *testing.T) {
	Convey("the default mixer drives ports 0 and 1", t, func() {
		m := DefaultMixer()

		Convey("straight ahead drives both tracks", func() {
			ports, err := m.Mix(0, 1)
			So(err, ShouldBeNil)
			So(ports[0], ShouldResemble, hardware.Drive(100))
			So(ports[1], ShouldResemble, hardware.Drive(100))

			ports, err = m.Mix(0, -0.5)
			So(err, ShouldBeNil)
			So(ports[0], ShouldResemble, hardware.Drive(-50))
			So(ports[1], ShouldResemble, hardware.Drive(-50))
		})

		Convey("full right spins on the spot", func() {
			ports, err := m.Mix(1, 0)
			So(err, ShouldBeNil)
			So(ports[0], ShouldResemble, hardware.Drive(100))
			So(ports[1], ShouldResemble, hardware.Drive(-100))
		})

		Convey("diagonals stop the inner track", func() {
			ports, err := m.Mix(0.5, 0.5)
			So(err, ShouldBeNil)
			So(ports[0], ShouldResemble, hardware.Drive(100))
			So(ports[1], ShouldResemble, hardware.Drive(0))

			ports, err = m.Mix(-1, 1)
			So(err, ShouldBeNil)
			So(ports[0], ShouldResemble, hardware.Drive(0))
			So(ports[1], ShouldResemble, hardware.Drive(100))
		})

		Convey("the centre brakes", func() {
			ports, err := m.Mix(0.01, -0.01)
			So(err, ShouldBeNil)
			So(ports[0], ShouldResemble, hardware.Stop(hardware.Brake))
			So(ports[1], ShouldResemble, hardware.Stop(hardware.Brake))
		})

		Convey("unused ports freewheel", func() {
			ports, err := m.Mix(0.3, 0.7)
			So(err, ShouldBeNil)
			So(ports[2], ShouldResemble, hardware.Stop(hardware.Freewheel))
			So(ports[3], ShouldResemble, hardware.Stop(hardware.Freewheel))
		})

		Convey("every output encodes", func() {
			for _, v := range [][2]float64{{1, 1}, {-1, -1}, {2, -3}, {0.2, 0.9}} {
				ports, err := m.Mix(v[0], v[1])
				So(err, ShouldBeNil)
				_, err = hardware.EncodePayload(ports)
				So(err, ShouldBeNil)
			}
		})

		Convey("NaN is refused", func() {
			_, err := m.Mix(math.NaN(), 0)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("inverted tracks flip direction", t, func() {
		m := TankMixer{Left: 3, Right: 2, InvertRight: true}
		ports, err := m.Mix(0, 1)
		So(err, ShouldBeNil)
		So(ports[3], ShouldResemble, hardware.Drive(100))
		So(ports[2], ShouldResemble, hardware.Drive(-100))
		So(ports[0], ShouldResemble, hardware.Stop(hardware.Freewheel))
	})

	Convey("a mixer sharing one port is refused", t, func() {
		m := TankMixer{Left: 1, Right: 1}
		_, err := m.Mix(0, 1)
		So(err, ShouldNotBeNil)

		m = TankMixer{Left: 0, Right: 4}
		_, err = m.Mix(0, 1)
		So(err, ShouldNotBeNil)
	})
}
