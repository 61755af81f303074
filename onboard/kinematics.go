package onboard

import (
	"fmt"
	. "math"

	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/go-gl/mathgl/mgl64"
)

// TankMixer turns a joystick position into commands for a pair of tracks or
// wheels driven from two ports.
type TankMixer struct {
	Left        int     `yaml:"left"`
	Right       int     `yaml:"right"`
	InvertLeft  bool    `yaml:"invert_left"`
	InvertRight bool    `yaml:"invert_right"`
	Deadzone    float64 `yaml:"deadzone"` // radius around the centre that brakes
}

func DefaultMixer() TankMixer {
	return TankMixer{
		Left:     0,
		Right:    1,
		Deadzone: 0.05,
	}
}

func (m TankMixer) validate() error {
	if m.Left < 0 || m.Left >= hardware.PORT_COUNT || m.Right < 0 || m.Right >= hardware.PORT_COUNT {
		return fmt.Errorf("mixer ports must be within 0-%d", hardware.PORT_COUNT-1)
	}
	if m.Left == m.Right {
		return fmt.Errorf("mixer left and right share port %d", m.Left)
	}
	return nil
}

// Mix maps x (turn, positive right) and y (throttle, positive forward), both
// in [-1, 1], onto the mixer ports. Ports not used by the mixer freewheel.
func (m TankMixer) Mix(x, y float64) (ports [hardware.PORT_COUNT]hardware.MotorCommand, err error) {
	if err = m.validate(); err != nil {
		return
	}
	if IsNaN(x) || IsNaN(y) {
		return ports, fmt.Errorf("mixer input is not a number")
	}

	for i := range ports {
		ports[i] = hardware.Stop(hardware.Freewheel)
	}

	stick := mgl64.Vec2{mgl64.Clamp(x, -1, 1), mgl64.Clamp(y, -1, 1)}
	if stick.Len() > 1 {
		stick = stick.Normalize()
	}

	if stick.Len() < m.Deadzone {
		ports[m.Left] = hardware.Stop(hardware.Brake)
		ports[m.Right] = hardware.Stop(hardware.Brake)
		return
	}

	// a -45 degree rotation scaled by sqrt2 gives left = y + x, right = y - x
	tracks := mgl64.Rotate2D(-Pi / 4).Mul2x1(stick).Mul(Sqrt2)
	left, right := tracks.X(), tracks.Y()
	if scale := Max(Abs(left), Abs(right)); scale > 1 {
		left /= scale
		right /= scale
	}

	ports[m.Left] = hardware.Drive(toPercent(left, m.InvertLeft))
	ports[m.Right] = hardware.Drive(toPercent(right, m.InvertRight))
	return
}

func toPercent(v float64, invert bool) int {
	if invert {
		v = -v
	}
	return int(Round(mgl64.Clamp(v, -1, 1) * hardware.PERCENT_MAX))
}
