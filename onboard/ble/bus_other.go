//go:build !linux
// +build !linux

package ble

import (
	"context"
	"errors"
)

var ERR_UNSUPPORTED = errors.New("ble transport is only implemented for linux, use the simulator")

type Adapter struct{}

func Dial(ctx context.Context, address string, characteristics map[Handle]string) (*Adapter, error) {
	return nil, ERR_UNSUPPORTED
}

func (a *Adapter) Write(handle Handle, data []byte) error { return ERR_UNSUPPORTED }

func (a *Adapter) Read(handle Handle) ([]byte, error) { return nil, ERR_UNSUPPORTED }

func (a *Adapter) Close() error { return nil }
