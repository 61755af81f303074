package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/CodedInternet/gosbrick/comms"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/go-chi/chi"
	"github.com/go-chi/render"
)

//---
// Payloads
//---

type DrivePayload struct {
	Ports []hardware.MotorCommand `json:"ports"`
}

func (d *DrivePayload) Bind(r *http.Request) error {
	if d.Ports == nil {
		return errors.New("ports are required")
	}
	return nil
}

type PortPayload struct {
	Command *hardware.MotorCommand `json:"command"`
}

func (p *PortPayload) Bind(r *http.Request) error {
	if p.Command == nil {
		return errors.New("command is required")
	}
	return nil
}

type MixPayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (m *MixPayload) Bind(r *http.Request) error {
	if m.X == nil || m.Y == nil {
		return errors.New("x and y are required")
	}
	return nil
}

//---
// Views
//---

func renderState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, comms.NewStatePayload(ENV.Device, false))
}

func Drive(w http.ResponseWriter, r *http.Request) {
	data := &DrivePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Device.DrivePorts(data.Ports); err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	renderState(w, r)
}

func SetPort(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "port"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	data := &PortPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if index < 0 || index >= hardware.PORT_COUNT {
		render.Render(w, r, ErrNotFound)
		return
	}

	if err := ENV.Device.SetPort(index, *data.Command); err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	renderState(w, r)
}

func Mix(w http.ResponseWriter, r *http.Request) {
	data := &MixPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Device.Mix(*data.X, *data.Y); err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	renderState(w, r)
}

func Brake(w http.ResponseWriter, r *http.Request) {
	if err := ENV.Device.Brake(); err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	renderState(w, r)
}

func KeepAliveStatus(w http.ResponseWriter, r *http.Request) {
	renderState(w, r)
}

func KeepAliveStart(w http.ResponseWriter, r *http.Request) {
	if err := ENV.Device.StartKeepAlive(); err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	renderState(w, r)
}

func KeepAliveReset(w http.ResponseWriter, r *http.Request) {
	ENV.Device.ResetKeepAlive()
	renderState(w, r)
}

func KeepAliveStop(w http.ResponseWriter, r *http.Request) {
	ENV.Device.StopKeepAlive()
	renderState(w, r)
}

func KeepAliveKill(w http.ResponseWriter, r *http.Request) {
	ENV.Device.KillKeepAlive()
	renderState(w, r)
}

func Telemetry(w http.ResponseWriter, r *http.Request) {
	t, err := ENV.Device.Telemetry()
	if err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	render.JSON(w, r, t)
}

// apiRoutes mounts the device API. Everything except login needs a token.
func apiRoutes(r chi.Router) {
	r.Post("/login", Login)

	r.Group(func(r chi.Router) {
		r.Use(ValidateJWT)

		r.Get("/refresh_token", JWTRefresh)

		r.Post("/drive", Drive)
		r.Post("/ports/{port}", SetPort)
		r.Post("/mix", Mix)
		r.Post("/brake", Brake)

		r.Route("/keepalive", func(r chi.Router) {
			r.Get("/", KeepAliveStatus)
			r.Delete("/", KeepAliveKill)
			r.Post("/start", KeepAliveStart)
			r.Post("/reset", KeepAliveReset)
			r.Post("/stop", KeepAliveStop)
		})

		r.Get("/telemetry", Telemetry)
		r.Get("/history", History)
	})
}
