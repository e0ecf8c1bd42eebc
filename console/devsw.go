package console

import (
	"context"
	"sync"
)

// The device switch maps small integer device ids to read/write entry
// points, the way the machine's filesystem layer finds its devices.

// DeviceID identifies a registered device.
type DeviceID int

// ConsoleID is the well-known device id of the machine console.
const ConsoleID DeviceID = 1

// Device holds the entry points registered for a device id.
type Device struct {
	Read  func(ctx context.Context, dst []byte) (int, error)
	Write func(src []byte) (int, error)
}

var (
	devMu sync.RWMutex
	devSw = make(map[DeviceID]Device)
)

// RegisterDevice installs d in the device switch, replacing any
// previous registration for id.
func RegisterDevice(id DeviceID, d Device) {
	devMu.Lock()
	devSw[id] = d
	devMu.Unlock()
}

// LookupDevice returns the entry points registered under id.
func LookupDevice(id DeviceID) (Device, bool) {
	devMu.RLock()
	d, ok := devSw[id]
	devMu.RUnlock()
	return d, ok
}
