// Package driver defines the capture backend capability consumed by the
// recorder: open a device, pull raw sample blocks, close, enumerate. The
// recorder never touches a native audio API directly, which keeps backends
// swappable and lets tests substitute a deterministic fake.
package driver

import "errors"

var (
	// ErrDeviceStopped is returned by ReadBlock once the device has stopped
	// streaming, either because Stop was called or because the backend lost
	// the device.
	ErrDeviceStopped = errors.New("driver: device stopped")

	// ErrNoSuchDevice is returned by Open when the requested device index is
	// not present in the backend's enumeration.
	ErrNoSuchDevice = errors.New("driver: no such device")
)

// UseDefaultDevice selects the backend's default capture device.
const UseDefaultDevice = -1

// Info describes one capture device as reported by a backend enumeration.
// Indices are positions in the enumeration and are only stable for the
// lifetime of that enumeration call.
type Info struct {
	Index   int
	Name    string
	Default bool
}

// Config carries the parameters a backend needs to open a capture device.
type Config struct {
	// DeviceIndex is an index from Enumerate, or UseDefaultDevice.
	DeviceIndex int
	// SampleRate in Hz, mono signed 16-bit samples.
	SampleRate int
	// BlockSize is the preferred number of samples per ReadBlock. Backends
	// may deliver blocks of a different size.
	BlockSize int
}

// Driver is a capture backend. Implementations must allow concurrent
// Enumerate calls; Open returns a Device owned exclusively by the caller.
type Driver interface {
	// Name identifies the backend ("miniaudio", "portaudio", ...).
	Name() string

	// Enumerate lists the capture devices currently visible to the backend.
	// An empty slice with a nil error means no devices are attached; an
	// error means the audio subsystem itself could not be initialized.
	Enumerate() ([]Info, error)

	// Open acquires the device without starting capture. On error nothing
	// is left allocated.
	Open(cfg Config) (Device, error)
}

// Device is an open capture device. Start begins streaming, ReadBlock pulls
// the next raw sample block and blocks until one is available, Stop ends
// streaming and unblocks any in-flight ReadBlock, Close releases the device.
// A Device is not safe for concurrent use except that Stop and Close may be
// called while another goroutine is blocked in ReadBlock.
type Device interface {
	Start() error
	ReadBlock() ([]int16, error)
	Stop() error
	Close() error
	Info() Info
}

// VolumeControl is implemented by devices that expose input gain control.
// Volume is in the range [0, 1].
type VolumeControl interface {
	Volume() (float32, error)
	SetVolume(v float32) error
}
