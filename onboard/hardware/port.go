package hardware

import "fmt"

// Port drives a single output while leaving the other three as they were last
// sent.
type Port struct {
	KeepAlive *KeepAlive
	Index     int // 0-3, matching the labels on the device
}

func (p *Port) Set(cmd MotorCommand) error {
	if p.Index < 0 || p.Index >= PORT_COUNT {
		return fmt.Errorf("port index %d out of range 0-%d", p.Index, PORT_COUNT-1)
	}

	b, err := EncodePort(cmd)
	if err != nil {
		return err
	}

	payload := BrakePayload()
	if last := p.KeepAlive.Last(); last != nil {
		payload = *last
	}
	payload[p.Index] = b

	return p.KeepAlive.Send(payload)
}
