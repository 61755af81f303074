package comms

import (
	"github.com/CodedInternet/gosbrick/onboard"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
)

type StatePayload struct {
	KeepAlive hardware.RunStatus  `json:"keepalive"`
	LastRun   hardware.RunResult  `json:"last_run"`
	Telemetry *hardware.Telemetry `json:"telemetry,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// NewStatePayload snapshots the device. Telemetry costs a round trip per
// register so it is only read when asked for.
func NewStatePayload(device onboard.SBrick, withTelemetry bool) (state StatePayload) {
	state.KeepAlive = device.KeepAliveStatus()
	state.LastRun = device.LastRun()

	if withTelemetry {
		t, err := device.Telemetry()
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Telemetry = &t
	}
	return
}
