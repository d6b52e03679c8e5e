package driver

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Shared miniaudio context, reference counted so that concurrent recorders
// and enumerations share one backend context and the last release frees it.
var (
	maMu    sync.Mutex
	maCtx   *malgo.AllocatedContext
	maCount int
)

func acquireContext() (*malgo.AllocatedContext, error) {
	maMu.Lock()
	defer maMu.Unlock()

	if maCount == 0 {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
		}
		maCtx = ctx
	}
	maCount++
	return maCtx, nil
}

func releaseContext() {
	maMu.Lock()
	defer maMu.Unlock()

	maCount--
	if maCount > 0 {
		return
	}
	_ = maCtx.Uninit()
	maCtx.Free()
	maCtx = nil
}

type miniaudioDriver struct{}

// NewMiniaudio returns the miniaudio-backed capture driver. This is the
// default backend.
func NewMiniaudio() Driver {
	return &miniaudioDriver{}
}

func (*miniaudioDriver) Name() string { return "miniaudio" }

func (*miniaudioDriver) Enumerate() ([]Info, error) {
	ctx, err := acquireContext()
	if err != nil {
		return nil, err
	}
	defer releaseContext()

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	infos := make([]Info, 0, len(devices))
	for i, d := range devices {
		infos = append(infos, Info{
			Index:   i,
			Name:    d.Name(),
			Default: d.IsDefault != 0,
		})
	}
	return infos, nil
}

func (*miniaudioDriver) Open(cfg Config) (Device, error) {
	ctx, err := acquireContext()
	if err != nil {
		return nil, err
	}

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		releaseContext()
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	info := Info{Index: UseDefaultDevice, Name: "default"}
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.DeviceIndex != UseDefaultDevice {
		if cfg.DeviceIndex < 0 || cfg.DeviceIndex >= len(devices) {
			releaseContext()
			return nil, fmt.Errorf("%w: index %d", ErrNoSuchDevice, cfg.DeviceIndex)
		}
		id := devices[cfg.DeviceIndex].ID
		deviceConfig.Capture.DeviceID = id.Pointer()
		info = Info{
			Index:   cfg.DeviceIndex,
			Name:    devices[cfg.DeviceIndex].Name(),
			Default: devices[cfg.DeviceIndex].IsDefault != 0,
		}
	} else {
		for i, d := range devices {
			if d.IsDefault != 0 {
				info = Info{Index: i, Name: d.Name(), Default: true}
				break
			}
		}
	}

	d := &miniaudioDevice{
		info:   info,
		blocks: make(chan []int16, blockChannelDepth),
	}

	// The data callback runs on miniaudio's audio thread and must never
	// block; a full channel drops the block rather than stalling capture.
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, frameCount uint32) {
			block := bytesToSamples(inputSamples)
			select {
			case d.blocks <- block:
			default:
			}
		},
		Stop: func() {
			d.closeOnce.Do(func() { close(d.blocks) })
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		releaseContext()
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}
	d.device = device
	return d, nil
}

// blockChannelDepth bounds the hand-off queue between the miniaudio audio
// thread and ReadBlock. The recorder's own frame ring does the real
// buffering; this only needs to absorb scheduling jitter.
const blockChannelDepth = 32

type miniaudioDevice struct {
	device    *malgo.Device
	info      Info
	blocks    chan []int16
	closeOnce sync.Once
	closed    bool
}

func (d *miniaudioDevice) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (d *miniaudioDevice) ReadBlock() ([]int16, error) {
	block, ok := <-d.blocks
	if !ok {
		return nil, ErrDeviceStopped
	}
	return block, nil
}

func (d *miniaudioDevice) Stop() error {
	// Stopping fires the Stop callback, which closes the block channel and
	// unblocks any in-flight ReadBlock.
	err := d.device.Stop()
	d.closeOnce.Do(func() { close(d.blocks) })
	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (d *miniaudioDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.closeOnce.Do(func() { close(d.blocks) })
	d.device.Uninit()
	releaseContext()
	return nil
}

func (d *miniaudioDevice) Info() Info { return d.info }

// bytesToSamples converts little-endian S16 PCM bytes into a fresh sample
// slice. The callback's input buffer is reused by miniaudio, so the copy is
// mandatory.
func bytesToSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return samples
}
