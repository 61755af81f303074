package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

const readBufferSize = 512 // maximum attribute value length

var log = logrus.WithField("pkg", "ble")

// Adapter implements Transport on top of BlueZ through tinygo bluetooth.
type Adapter struct {
	adapter *bluetooth.Adapter
	device  bluetooth.Device
	chars   map[Handle]bluetooth.DeviceCharacteristic
	lock    sync.Mutex
	open    bool
}

// Dial scans for the device with the given address, connects to it and maps
// every configured handle onto its discovered characteristic.
func Dial(ctx context.Context, address string, characteristics map[Handle]string) (a *Adapter, err error) {
	if len(characteristics) == 0 {
		characteristics = DefaultCharacteristics()
	}

	want := make(map[bluetooth.UUID]Handle, len(characteristics))
	for handle, raw := range characteristics {
		uuid, err := bluetooth.ParseUUID(raw)
		if err != nil {
			return nil, fmt.Errorf("characteristic %s: %w", handle, err)
		}
		want[uuid] = handle
	}

	a = &Adapter{
		adapter: bluetooth.DefaultAdapter,
		chars:   make(map[Handle]bluetooth.DeviceCharacteristic, len(want)),
	}

	if err = a.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	result, err := a.scan(ctx, address)
	if err != nil {
		return nil, err
	}

	log.WithField("address", address).Info("device found, connecting")
	a.device, err = a.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	if err = a.discover(want); err != nil {
		a.device.Disconnect()
		return nil, err
	}

	a.open = true
	return a, nil
}

func (a *Adapter) scan(ctx context.Context, address string) (result bluetooth.ScanResult, err error) {
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- a.adapter.Scan(func(adapter *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !strings.EqualFold(r.Address.String(), address) {
				return
			}
			select {
			case found <- r:
			default:
			}
			adapter.StopScan()
		})
	}()

	select {
	case result = <-found:
		return result, nil

	case err = <-scanErr:
		// scanning may have stopped because the device was just found
		select {
		case result = <-found:
			return result, nil
		default:
		}
		if err == nil {
			err = ERR_DEVICE_NOT_SEEN
		}
		return result, fmt.Errorf("scan for %s: %w", address, err)

	case <-ctx.Done():
		a.adapter.StopScan()
		return result, ctx.Err()
	}
}

func (a *Adapter) discover(want map[bluetooth.UUID]Handle) error {
	services, err := a.device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}

	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("discover characteristics of %s: %w", svc.UUID().String(), err)
		}

		for _, c := range chars {
			if handle, ok := want[c.UUID()]; ok {
				a.chars[handle] = c
			}
		}
	}

	for uuid, handle := range want {
		if _, ok := a.chars[handle]; !ok {
			return fmt.Errorf("characteristic %s (%s) not found on device", uuid.String(), handle)
		}
	}

	return nil
}

func (a *Adapter) characteristic(handle Handle) (c bluetooth.DeviceCharacteristic, err error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.open {
		return c, ERR_NOT_CONNECTED
	}
	c, ok := a.chars[handle]
	if !ok {
		return c, ERR_UNKNOWN_HANDLE
	}
	return c, nil
}

// Write issues a write command (no response) like gatttool --char-write.
func (a *Adapter) Write(handle Handle, data []byte) error {
	c, err := a.characteristic(handle)
	if err != nil {
		return err
	}

	_, err = c.WriteWithoutResponse(data)
	return err
}

func (a *Adapter) Read(handle Handle) ([]byte, error) {
	c, err := a.characteristic(handle)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, readBufferSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (a *Adapter) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.open {
		return nil
	}
	a.open = false
	return a.device.Disconnect()
}
