package main

import (
	"errors"
	"net/http"

	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
	"github.com/go-chi/render"
)

// ErrResponse renders any error as a JSON body with a matching status code.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func newErrResponse(err error, status int) render.Renderer {
	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
	}
	if err != nil {
		resp.ErrorText = err.Error()
	}
	return resp
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

func ErrInvalidRequest(err error) render.Renderer {
	return newErrResponse(err, http.StatusBadRequest)
}

func ErrUnauthorized(err error) render.Renderer {
	return newErrResponse(err, http.StatusUnauthorized)
}

func ErrPermissionDenied(err error) render.Renderer {
	return newErrResponse(err, http.StatusForbidden)
}

func ErrRender(err error) render.Renderer {
	return newErrResponse(err, http.StatusInternalServerError)
}

// ErrDevice maps device errors onto the client's fault (bad command) or the
// link's fault (bad gateway).
func ErrDevice(err error) render.Renderer {
	var invalid deverrors.InvalidCommandError
	var wrongCount deverrors.WrongPortCountError
	var transport *deverrors.TransportError
	var lost *deverrors.WatchdogLostError

	switch {
	case errors.As(err, &invalid), errors.As(err, &wrongCount):
		return newErrResponse(err, http.StatusBadRequest)
	case errors.As(err, &transport), errors.As(err, &lost):
		return newErrResponse(err, http.StatusBadGateway)
	}
	return ErrRender(err)
}
