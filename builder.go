package micframe

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/micframe/micframe/driver"
	"github.com/micframe/micframe/internal/logging"
)

// Builder assembles a Recorder configuration. Setters only record values;
// all validation happens in Build.
type Builder struct {
	frameLength    int
	deviceIndex    int
	bufferedFrames int
	sampleRate     int
	logLevel       string
	logger         *zerolog.Logger
	drv            driver.Driver
}

// NewBuilder returns a Builder for recorders producing frames of
// frameLength samples. All other settings start at their defaults: the
// default capture device, DefaultBufferedFrames of buffering,
// DefaultSampleRate and warn-level logging.
func NewBuilder(frameLength int) *Builder {
	return &Builder{
		frameLength:    frameLength,
		deviceIndex:    driver.UseDefaultDevice,
		bufferedFrames: DefaultBufferedFrames,
		sampleRate:     DefaultSampleRate,
		logLevel:       zerolog.WarnLevel.String(),
	}
}

// Default returns a Builder with the default frame length of
// DefaultFrameLength samples.
func Default() *Builder {
	return NewBuilder(DefaultFrameLength)
}

// DeviceIndex selects the capture device by its index from ListDevices.
// Pass -1 (the default) for the system default device.
func (b *Builder) DeviceIndex(index int) *Builder {
	b.deviceIndex = index
	return b
}

// BufferedFrames sets the capacity of the frame ring: how many complete
// frames may sit between capture and Read before the oldest is dropped.
func (b *Builder) BufferedFrames(count int) *Builder {
	b.bufferedFrames = count
	return b
}

// SampleRate sets the capture rate in Hz.
func (b *Builder) SampleRate(hz int) *Builder {
	b.sampleRate = hz
	return b
}

// LogLevel sets the recorder's log verbosity ("debug", "info", "warn",
// "error", "disabled"). Ignored when a Logger is injected.
func (b *Builder) LogLevel(level string) *Builder {
	b.logLevel = level
	return b
}

// Logger injects an application-provided logger in place of the package's
// console logger.
func (b *Builder) Logger(log zerolog.Logger) *Builder {
	b.logger = &log
	return b
}

// Driver overrides the capture backend. The default is the miniaudio
// backend from the driver package.
func (b *Builder) Driver(d driver.Driver) *Builder {
	b.drv = d
	return b
}

func (b *Builder) driverOrDefault() driver.Driver {
	if b.drv != nil {
		return b.drv
	}
	return driver.NewMiniaudio()
}

// ListDevices enumerates the capture devices visible to this builder's
// backend, without constructing a Recorder.
func (b *Builder) ListDevices() ([]DeviceDescriptor, error) {
	return listDevices(b.driverOrDefault())
}

// Build validates the configuration, opens the capture device (without
// starting capture) and returns a Recorder in StateCreated. Build is
// atomic: on any error no resources are left allocated.
func (b *Builder) Build() (*Recorder, error) {
	if b.frameLength <= 0 {
		return nil, fmt.Errorf("%w: frame length must be greater than 0, got %d",
			ErrInvalidConfig, b.frameLength)
	}
	if b.bufferedFrames <= 0 {
		return nil, fmt.Errorf("%w: buffered frame count must be greater than 0, got %d",
			ErrInvalidConfig, b.bufferedFrames)
	}
	if b.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be greater than 0, got %d",
			ErrInvalidConfig, b.sampleRate)
	}
	if b.deviceIndex < driver.UseDefaultDevice {
		return nil, fmt.Errorf("%w: device index must be >= -1, got %d",
			ErrInvalidConfig, b.deviceIndex)
	}

	level, err := zerolog.ParseLevel(b.logLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, b.logLevel)
	}
	log := logging.New(level)
	if b.logger != nil {
		log = *b.logger
	}

	drv := b.driverOrDefault()

	if b.deviceIndex >= 0 {
		devices, err := drv.Enumerate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceQuery, err)
		}
		if b.deviceIndex >= len(devices) {
			return nil, fmt.Errorf("%w: index %d, %d devices available",
				ErrInvalidDevice, b.deviceIndex, len(devices))
		}
	}

	dev, err := drv.Open(driver.Config{
		DeviceIndex: b.deviceIndex,
		SampleRate:  b.sampleRate,
		BlockSize:   b.frameLength,
	})
	if err != nil {
		if errors.Is(err, driver.ErrNoSuchDevice) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDevice, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}

	return &Recorder{
		state:          StateCreated,
		drv:            drv,
		dev:            dev,
		frameLength:    b.frameLength,
		bufferedFrames: b.bufferedFrames,
		sampleRate:     b.sampleRate,
		deviceIndex:    b.deviceIndex,
		info:           dev.Info(),
		ring:           newFrameRing(b.bufferedFrames),
		log: log.With().
			Str("component", "recorder").
			Str("backend", drv.Name()).
			Logger(),
	}, nil
}
