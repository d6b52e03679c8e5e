package micframe

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/micframe/micframe/driver"
)

// State is the lifecycle state of a Recorder.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// stopJoinTimeout bounds how long Stop waits for the capture goroutine. If
// it is exceeded, resources are force-released and ErrStopTimeout returned.
const stopJoinTimeout = 2 * time.Second

// Recorder captures microphone audio and delivers it as fixed-length frames
// of signed 16-bit samples.
//
// A Recorder owns one capture device handle and one capture goroutine. All
// lifecycle transitions are serialized by an internal lock, so Start and
// Stop may be called from any goroutine. Read is intended for a single
// consumer goroutine; concurrent Reads will not corrupt or duplicate
// frames, but the delivery order across readers is unspecified.
type Recorder struct {
	mu    sync.Mutex
	state State

	drv driver.Driver
	dev driver.Device

	frameLength    int
	bufferedFrames int
	sampleRate     int
	deviceIndex    int

	info driver.Info
	ring *frameRing
	loop *captureLoop
	log  zerolog.Logger
}

// Start begins capturing. It re-acquires the device if the recorder was
// previously stopped, allocates a fresh frame ring (resetting the overflow
// counter) and returns once the capture goroutine has begun pulling
// samples. If the device cannot begin streaming the state is left
// unchanged.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateRunning:
		return ErrAlreadyRecording
	}

	if r.dev == nil {
		dev, err := r.drv.Open(driver.Config{
			DeviceIndex: r.deviceIndex,
			SampleRate:  r.sampleRate,
			BlockSize:   r.frameLength,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceInit, err)
		}
		r.dev = dev
		r.info = dev.Info()
	}

	if err := r.dev.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}

	r.ring = newFrameRing(r.bufferedFrames)
	r.loop = newCaptureLoop(r.dev, r.ring, r.frameLength, r.log)
	go r.loop.run()
	<-r.loop.ready

	r.state = StateRunning
	r.log.Info().
		Str("device", r.info.Name).
		Int("frame_length", r.frameLength).
		Int("sample_rate", r.sampleRate).
		Msg("recording started")
	return nil
}

// Read blocks until the next frame is available and returns it. The frame
// has exactly FrameLength samples. It fails fast with ErrNotRecording when
// the recorder is not running and with ErrDeviceLost once the capture loop
// has died from a device error.
func (r *Recorder) Read() ([]int16, error) {
	r.mu.Lock()
	if r.state == StateDestroyed {
		r.mu.Unlock()
		return nil, ErrDestroyed
	}
	if r.state != StateRunning {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	ring, loop := r.ring, r.loop
	r.mu.Unlock()

	if err := loop.failure(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}

	// Blocking pop happens outside the lock so Stop can proceed and
	// unblock it through the ring's close.
	frame, ok := ring.pop()
	if !ok {
		if err := loop.failure(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
		}
		return nil, ErrNotRecording
	}
	return frame, nil
}

// ReadInto reads the next frame into buf, avoiding an allocation on the
// caller's side. buf must hold at least FrameLength samples.
func (r *Recorder) ReadInto(buf []int16) error {
	if len(buf) < r.frameLength {
		return fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(buf), r.frameLength)
	}
	frame, err := r.Read()
	if err != nil {
		return err
	}
	copy(buf, frame)
	return nil
}

// Stop ends capture, waits for the capture goroutine to exit (bounded by
// stopJoinTimeout), closes the frame ring — unblocking any in-flight Read —
// and releases the device handle. Stopping an already stopped or never
// started recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateCreated, StateStopped:
		return nil
	}
	return r.stopLocked()
}

// stopLocked tears down the running capture session. Caller holds r.mu and
// has verified state == StateRunning.
func (r *Recorder) stopLocked() error {
	close(r.loop.stop)

	// Stopping the device unblocks a capture goroutine parked in
	// ReadBlock. An error here usually means the device is already gone;
	// teardown continues regardless.
	if err := r.dev.Stop(); err != nil {
		r.log.Debug().Err(err).Msg("device stop failed during teardown")
	}

	timedOut := false
	select {
	case <-r.loop.done:
	case <-time.After(stopJoinTimeout):
		timedOut = true
	}

	r.ring.close()
	_ = r.dev.Close()
	r.dev = nil
	r.loop = nil
	r.state = StateStopped

	if timedOut {
		r.log.Error().Msg("capture goroutine did not exit in time; resources force-released")
		return ErrStopTimeout
	}
	r.log.Info().Uint64("dropped_frames", r.ring.overflows()).Msg("recording stopped")
	return nil
}

// Close releases everything the recorder owns and moves it to
// StateDestroyed. Every later operation fails with ErrDestroyed. Close is
// idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDestroyed {
		return nil
	}

	var err error
	if r.state == StateRunning {
		err = r.stopLocked()
	}
	if r.dev != nil {
		_ = r.dev.Close()
		r.dev = nil
	}
	if r.ring != nil {
		r.ring.close()
	}
	r.loop = nil
	r.state = StateDestroyed
	return err
}

// IsRecording reports whether the recorder is running and the capture loop
// has not died from a device error.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateRunning && r.loop != nil && r.loop.alive() && r.loop.failure() == nil
}

// SelectedDevice returns the descriptor of the device this recorder
// captures from.
func (r *Recorder) SelectedDevice() DeviceDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DeviceDescriptor{Index: r.info.Index, Name: r.info.Name}
}

// FrameLength returns the number of samples per delivered frame.
func (r *Recorder) FrameLength() int { return r.frameLength }

// SampleRate returns the capture rate in Hz.
func (r *Recorder) SampleRate() int { return r.sampleRate }

// Overflows returns the number of frames dropped because the ring was full,
// for the current capture session. The counter resets on Start.
func (r *Recorder) Overflows() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring == nil {
		return 0
	}
	return r.ring.overflows()
}

// State returns the recorder's current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Volume returns the device input gain in [0, 1], if the backend supports
// volume control.
func (r *Recorder) Volume() (float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDestroyed {
		return 0, ErrDestroyed
	}
	if r.dev == nil {
		return 0, ErrNotRecording
	}
	vc, ok := r.dev.(driver.VolumeControl)
	if !ok {
		return 0, ErrUnsupported
	}
	return vc.Volume()
}

// SetVolume sets the device input gain, if the backend supports volume
// control.
func (r *Recorder) SetVolume(v float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDestroyed {
		return ErrDestroyed
	}
	if r.dev == nil {
		return ErrNotRecording
	}
	vc, ok := r.dev.(driver.VolumeControl)
	if !ok {
		return ErrUnsupported
	}
	return vc.SetVolume(v)
}
