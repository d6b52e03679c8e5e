package driver

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio initialization is process wide; reference count it so multiple
// open devices and enumerations share one Initialize/Terminate pair.
var (
	paMu    sync.Mutex
	paCount int
)

func acquirePortAudio() error {
	paMu.Lock()
	defer paMu.Unlock()

	if paCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
	}
	paCount++
	return nil
}

func releasePortAudio() {
	paMu.Lock()
	defer paMu.Unlock()

	paCount--
	if paCount == 0 {
		_ = portaudio.Terminate()
	}
}

type portAudioDriver struct{}

// NewPortAudio returns the PortAudio-backed capture driver.
func NewPortAudio() Driver {
	return &portAudioDriver{}
}

func (*portAudioDriver) Name() string { return "portaudio" }

// inputDevices returns PortAudio's capture-capable devices in report order.
// Callers must hold a PortAudio reference.
func inputDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	inputs := make([]*portaudio.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

func (*portAudioDriver) Enumerate() ([]Info, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}
	defer releasePortAudio()

	inputs, err := inputDevices()
	if err != nil {
		return nil, err
	}
	defaultDevice, _ := portaudio.DefaultInputDevice()

	infos := make([]Info, 0, len(inputs))
	for i, d := range inputs {
		infos = append(infos, Info{
			Index:   i,
			Name:    d.Name,
			Default: d == defaultDevice,
		})
	}
	return infos, nil
}

func (*portAudioDriver) Open(cfg Config) (Device, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, err
	}

	var device *portaudio.DeviceInfo
	info := Info{Index: cfg.DeviceIndex}
	if cfg.DeviceIndex == UseDefaultDevice {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			releasePortAudio()
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		info.Default = true
	} else {
		inputs, err := inputDevices()
		if err != nil {
			releasePortAudio()
			return nil, err
		}
		if cfg.DeviceIndex < 0 || cfg.DeviceIndex >= len(inputs) {
			releasePortAudio()
			return nil, fmt.Errorf("%w: index %d", ErrNoSuchDevice, cfg.DeviceIndex)
		}
		device = inputs[cfg.DeviceIndex]
	}
	info.Name = device.Name

	buffer := make([]int16, cfg.BlockSize)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioDevice{
		stream: stream,
		buffer: buffer,
		info:   info,
	}, nil
}

type portAudioDevice struct {
	stream *portaudio.Stream
	buffer []int16
	info   Info

	mu      sync.Mutex
	stopped bool
	closed  bool
}

func (d *portAudioDevice) Start() error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	return nil
}

func (d *portAudioDevice) ReadBlock() ([]int16, error) {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return nil, ErrDeviceStopped
	}

	if err := d.stream.Read(); err != nil {
		d.mu.Lock()
		stopped = d.stopped
		d.mu.Unlock()
		if stopped {
			return nil, ErrDeviceStopped
		}
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}

	// The stream refills d.buffer in place on the next Read.
	block := make([]int16, len(d.buffer))
	copy(block, d.buffer)
	return block, nil
}

func (d *portAudioDevice) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	// Abort rather than Stop: it discards pending buffers and unblocks a
	// concurrent blocking Read immediately.
	if err := d.stream.Abort(); err != nil {
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	return nil
}

func (d *portAudioDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.stopped = true
	d.mu.Unlock()

	err := d.stream.Close()
	releasePortAudio()
	if err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return nil
}

func (d *portAudioDevice) Info() Info { return d.info }
