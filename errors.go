package micframe

import "errors"

var (
	// ErrInvalidConfig is returned by Build when a configuration value is
	// out of range. Not retryable; fix the configuration.
	ErrInvalidConfig = errors.New("micframe: invalid configuration")

	// ErrInvalidDevice is returned by Build when the configured device
	// index does not refer to any currently enumerated device.
	ErrInvalidDevice = errors.New("micframe: invalid device index")

	// ErrDeviceInit is returned when a capture device cannot be opened or
	// cannot begin streaming (busy, permissions, unplugged).
	ErrDeviceInit = errors.New("micframe: failed to initialize device")

	// ErrDeviceQuery is returned by ListDevices when the audio subsystem
	// itself cannot be initialized. Zero attached devices is not an error.
	ErrDeviceQuery = errors.New("micframe: failed to query devices")

	// ErrNotRecording is returned by Read when the recorder is not running.
	ErrNotRecording = errors.New("micframe: not recording")

	// ErrAlreadyRecording is returned by Start when the recorder is already
	// running.
	ErrAlreadyRecording = errors.New("micframe: already recording")

	// ErrDeviceLost is returned by Read after the capture loop has died
	// from a device error. The recorder stays in this condition until an
	// explicit Stop followed by Start.
	ErrDeviceLost = errors.New("micframe: capture device lost")

	// ErrStopTimeout is returned by Stop when the capture goroutine did not
	// exit within the join timeout. Resources are force-released; the
	// leaked goroutine is reported, never hidden.
	ErrStopTimeout = errors.New("micframe: timed out waiting for capture to stop")

	// ErrDestroyed is returned by every operation on a recorder after
	// Close.
	ErrDestroyed = errors.New("micframe: recorder has been destroyed")

	// ErrUnsupported is returned by volume operations when the underlying
	// device does not expose volume control.
	ErrUnsupported = errors.New("micframe: operation not supported by device")

	// ErrShortBuffer is returned by ReadInto when the destination cannot
	// hold a full frame.
	ErrShortBuffer = errors.New("micframe: buffer shorter than frame length")
)
