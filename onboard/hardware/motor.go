package hardware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
)

// StopMode selects how an unpowered port behaves.
type StopMode uint8

const (
	Brake     StopMode = 0x01 // ports shorted, motor held
	Freewheel StopMode = 0x02
)

const (
	PERCENT_MIN = -100
	PERCENT_MAX = 100
)

func (m StopMode) String() string {
	switch m {
	case Brake:
		return "brake"
	case Freewheel:
		return "freewheel"
	}
	return fmt.Sprintf("StopMode(%d)", uint8(m))
}

// MotorCommand is either a stop in a given mode or a signed drive percentage.
// Negative percentages turn counter-clockwise.
type MotorCommand struct {
	stop    StopMode
	percent int
}

func Stop(mode StopMode) MotorCommand {
	return MotorCommand{stop: mode}
}

func Drive(percent int) MotorCommand {
	return MotorCommand{percent: percent}
}

func (c MotorCommand) IsStop() bool {
	return c.stop != 0
}

func (c MotorCommand) Mode() StopMode {
	return c.stop
}

func (c MotorCommand) Percent() int {
	return c.percent
}

func (c MotorCommand) String() string {
	if c.IsStop() {
		return c.stop.String()
	}
	return fmt.Sprintf("%d%%", c.percent)
}

// ParseCommand reads the textual form used by the shell and the config file:
// "brake", "freewheel" (or "fw"), or a signed integer percentage.
func ParseCommand(s string) (cmd MotorCommand, err error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "brake", "b":
		return Stop(Brake), nil
	case "freewheel", "fw":
		return Stop(Freewheel), nil
	}

	percent, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	if err != nil {
		return cmd, deverrors.InvalidCommandError{Value: s, Reason: "must be brake, freewheel or a percentage"}
	}

	cmd = Drive(percent)
	if err = cmd.validate(); err != nil {
		return MotorCommand{}, err
	}
	return cmd, nil
}

func (c MotorCommand) validate() error {
	if c.IsStop() {
		if c.stop != Brake && c.stop != Freewheel {
			return deverrors.InvalidCommandError{Value: c.stop, Reason: "unknown stop mode"}
		}
		return nil
	}

	if c.percent < PERCENT_MIN || c.percent > PERCENT_MAX {
		return deverrors.InvalidCommandError{Value: c.percent, Reason: "absolute value must be between 0 and 100"}
	}
	return nil
}

func (c MotorCommand) MarshalJSON() ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.IsStop() {
		return json.Marshal(c.stop.String())
	}
	return json.Marshal(c.percent)
}

// UnmarshalJSON accepts either a stop mode string or an integer percentage.
func (c *MotorCommand) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if _, err := strconv.Atoi(s); err == nil {
			return deverrors.InvalidCommandError{Value: s, Reason: "percentages must be numbers, not strings"}
		}
		cmd, err := ParseCommand(s)
		if err != nil {
			return err
		}
		*c = cmd
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return deverrors.InvalidCommandError{Value: string(raw), Reason: "must be brake, freewheel or a percentage"}
	}
	percent, err := strconv.Atoi(n.String())
	if err != nil {
		return deverrors.InvalidCommandError{Value: n.String(), Reason: "percentage must be a whole number"}
	}

	cmd := Drive(percent)
	if err = cmd.validate(); err != nil {
		return err
	}
	*c = cmd
	return nil
}
