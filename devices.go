package micframe

import (
	"fmt"

	"github.com/micframe/micframe/driver"
)

// DeviceDescriptor identifies one capture device. The index is a position
// in the enumeration that produced it and may be passed to
// Builder.DeviceIndex; it is only stable for the lifetime of that
// enumeration.
type DeviceDescriptor struct {
	Index int
	Name  string
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf("[%d] %s", d.Index, d.Name)
}

// ListDevices enumerates the capture devices visible to the default
// backend. No devices attached yields an empty slice and a nil error; only
// a failure to initialize the audio subsystem is an error.
func ListDevices() ([]DeviceDescriptor, error) {
	return listDevices(driver.NewMiniaudio())
}

func listDevices(drv driver.Driver) ([]DeviceDescriptor, error) {
	infos, err := drv.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceQuery, err)
	}
	devices := make([]DeviceDescriptor, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceDescriptor{Index: info.Index, Name: info.Name})
	}
	return devices, nil
}
