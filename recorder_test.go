package micframe

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/micframe/micframe/driver"
)

// fakeDriver is a deterministic in-memory backend. Its devices emit blocks
// of monotonically increasing sample values, so frame ordering and framing
// can be verified exactly.
type fakeDriver struct {
	devices      []driver.Info
	enumerateErr error
	openErr      error

	// Device behavior for every Open.
	blockSize  int
	blockLimit int // >= 0: produce exactly this many blocks, then block; < 0: unlimited
	failAfter  int // >= 0: ReadBlock fails after this many blocks
	readErr    error
	startErr   error
	withVolume bool
	hangOnRead bool // ReadBlock never returns and ignores Stop

	mu     sync.Mutex
	opened int
	closed int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		devices:    []driver.Info{{Index: 0, Name: "Fake Microphone", Default: true}},
		blockSize:  256,
		blockLimit: -1,
		failAfter:  -1,
	}
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Enumerate() ([]driver.Info, error) {
	if d.enumerateErr != nil {
		return nil, d.enumerateErr
	}
	return d.devices, nil
}

func (d *fakeDriver) Open(cfg driver.Config) (driver.Device, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.mu.Lock()
	d.opened++
	d.mu.Unlock()

	info := driver.Info{Index: cfg.DeviceIndex, Name: "Fake Microphone"}
	if d.hangOnRead {
		return &hangDevice{info: info}, nil
	}
	dev := &fakeDevice{
		drv:    d,
		info:   info,
		stopCh: make(chan struct{}),
	}
	if d.withVolume {
		return &fakeVolumeDevice{fakeDevice: dev, volume: 0.5}, nil
	}
	return dev, nil
}

// hangDevice simulates an unresponsive backend: ReadBlock parks forever and
// Stop does not wake it, so the capture goroutine can never be joined.
type hangDevice struct {
	info driver.Info
}

func (h *hangDevice) Start() error { return nil }

func (h *hangDevice) ReadBlock() ([]int16, error) { select {} }

func (h *hangDevice) Stop() error { return nil }

func (h *hangDevice) Close() error { return nil }

func (h *hangDevice) Info() driver.Info { return h.info }

type fakeDevice struct {
	drv    *fakeDriver
	info   driver.Info
	stopCh chan struct{}

	mu       sync.Mutex
	produced int
	next     int16
	stopped  bool
}

func (f *fakeDevice) Start() error { return f.drv.startErr }

func (f *fakeDevice) ReadBlock() ([]int16, error) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil, driver.ErrDeviceStopped
	}
	if f.drv.failAfter >= 0 && f.produced >= f.drv.failAfter {
		f.mu.Unlock()
		return nil, f.drv.readErr
	}
	if f.drv.blockLimit >= 0 && f.produced >= f.drv.blockLimit {
		f.mu.Unlock()
		<-f.stopCh
		return nil, driver.ErrDeviceStopped
	}

	block := make([]int16, f.drv.blockSize)
	for i := range block {
		block[i] = f.next
		f.next++
	}
	f.produced++
	f.mu.Unlock()
	return block, nil
}

func (f *fakeDevice) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.stopCh)
	}
	return nil
}

func (f *fakeDevice) Close() error {
	f.drv.mu.Lock()
	f.drv.closed++
	f.drv.mu.Unlock()
	return nil
}

func (f *fakeDevice) Info() driver.Info { return f.info }

type fakeVolumeDevice struct {
	*fakeDevice
	volume float32
}

func (f *fakeVolumeDevice) Volume() (float32, error) { return f.volume, nil }

func (f *fakeVolumeDevice) SetVolume(v float32) error {
	f.volume = v
	return nil
}

func buildWithFake(t *testing.T, drv *fakeDriver, frameLength, bufferedFrames int) *Recorder {
	t.Helper()
	r, err := NewBuilder(frameLength).
		BufferedFrames(bufferedFrames).
		Logger(zerolog.Nop()).
		Driver(drv).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return r
}

func TestStartStopWithoutRead(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 50)
	defer r.Close()

	if r.State() != StateCreated {
		t.Fatalf("expected created state after build, got %v", r.State())
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !r.IsRecording() {
		t.Fatal("expected IsRecording after Start")
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", r.State())
	}
	if r.IsRecording() {
		t.Fatal("expected not recording after Stop")
	}
}

func TestReadDeliversExactOrderedFrames(t *testing.T) {
	drv := newFakeDriver()
	drv.blockSize = 100 // not frame aligned on purpose
	// 30 blocks yield 11 complete frames of 256 samples: few enough that
	// the capacity-50 ring never drops one and the int16 sample counter
	// never wraps, so delivery must be gapless.
	drv.blockLimit = 30
	r := buildWithFake(t, drv, 256, 50)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		frame, err := r.Read()
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if len(frame) != 256 {
			t.Fatalf("Read %d: expected 256 samples, got %d", i, len(frame))
		}
		if frame[0] != int16(i*256) {
			t.Fatalf("Read %d: expected frame starting at %d, got %d", i, i*256, frame[0])
		}
		for j := 1; j < len(frame); j++ {
			if frame[j] != frame[j-1]+1 {
				t.Fatalf("Read %d: samples not consecutive at %d: %d then %d",
					i, j, frame[j-1], frame[j])
			}
		}
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	drv := newFakeDriver()
	drv.blockSize = 8
	drv.blockLimit = 5 // exactly frames F1..F5, then the device idles
	r := buildWithFake(t, drv, 8, 2)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for the capture loop to push all five frames into the
	// capacity-2 ring: three must be dropped.
	deadline := time.Now().Add(time.Second)
	for r.Overflows() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 dropped frames, got %d", r.Overflows())
		}
		time.Sleep(time.Millisecond)
	}

	// F4 and F5 survive: sample counters 24..31 and 32..39.
	f4, err := r.Read()
	if err != nil {
		t.Fatalf("Read F4 failed: %v", err)
	}
	f5, err := r.Read()
	if err != nil {
		t.Fatalf("Read F5 failed: %v", err)
	}
	if f4[0] != 24 || f5[0] != 32 {
		t.Fatalf("expected frames starting at 24 and 32, got %d and %d", f4[0], f5[0])
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestStopUnblocksRead(t *testing.T) {
	drv := newFakeDriver()
	drv.blockLimit = 0 // never produce a block, Read stays parked
	r := buildWithFake(t, drv, 512, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		_, err := r.Read()
		readErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-readErr:
		if !errors.Is(err, ErrNotRecording) {
			t.Fatalf("expected ErrNotRecording from unblocked Read, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read still blocked 1s after Stop")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Stop took %v to unblock Read", elapsed)
	}
}

func TestStopTimeoutForceReleases(t *testing.T) {
	drv := newFakeDriver()
	drv.hangOnRead = true
	r := buildWithFake(t, drv, 512, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The capture goroutine is parked in a ReadBlock that Stop cannot
	// interrupt: the join must time out, resources must still be
	// released and the state must land in stopped.
	err := r.Stop()
	if !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("expected ErrStopTimeout, got %v", err)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped state after forced release, got %v", r.State())
	}
	if _, err := r.Read(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording after forced release, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 10)
	defer r.Close()

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop on a created recorder should be a no-op, got %v", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	drv := newFakeDriver()
	r := buildWithFake(t, drv, 128, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if _, err := r.Read(); err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	frame, err := r.Read()
	if err != nil {
		t.Fatalf("Read after restart failed: %v", err)
	}
	if len(frame) != 128 {
		t.Fatalf("expected 128 samples after restart, got %d", len(frame))
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop after restart failed: %v", err)
	}

	drv.mu.Lock()
	opened, closed := drv.opened, drv.closed
	drv.mu.Unlock()
	if opened != 2 || closed != 2 {
		t.Fatalf("expected device opened and closed twice, got %d opens and %d closes", opened, closed)
	}
}

func TestStartWhileRunning(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestReadWhenNotRecording(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 10)
	defer r.Close()

	if _, err := r.Read(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording before Start, got %v", err)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording after Stop, got %v", err)
	}
}

func TestDeviceErrorSurfacesAsDeviceLost(t *testing.T) {
	drv := newFakeDriver()
	drv.blockSize = 512
	drv.failAfter = 2
	drv.readErr = errors.New("simulated I/O failure")
	r := buildWithFake(t, drv, 512, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Reads racing ahead of the failure may still return frames captured
	// before it; frames still buffered when the failure closes the ring
	// are discarded. Either way Read must end up reporting the lost
	// device.
	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = r.Read()
		if lastErr != nil {
			break
		}
	}
	if !errors.Is(lastErr, ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost, got %v", lastErr)
	}
	if r.IsRecording() {
		t.Fatal("expected IsRecording false after device loss")
	}

	// No silent restart: recovery requires an explicit Stop and Start.
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop after device loss failed: %v", err)
	}
	drv.failAfter = -1
	if err := r.Start(); err != nil {
		t.Fatalf("Start after recovery failed: %v", err)
	}
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read after recovery failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("final Stop failed: %v", err)
	}
}

func TestStartErrorLeavesStateUnchanged(t *testing.T) {
	drv := newFakeDriver()
	drv.startErr = errors.New("device cannot stream")
	r := buildWithFake(t, drv, 512, 10)
	defer r.Close()

	err := r.Start()
	if !errors.Is(err, ErrDeviceInit) {
		t.Fatalf("expected ErrDeviceInit, got %v", err)
	}
	if r.State() != StateCreated {
		t.Fatalf("expected state to remain created, got %v", r.State())
	}
}

func TestCloseForbidsFurtherOperations(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 10)

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.State() != StateDestroyed {
		t.Fatalf("expected destroyed state, got %v", r.State())
	}

	if err := r.Start(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed from Start, got %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed from Read, got %v", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed from Stop, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestReadInto(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 64, 10)
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buf := make([]int16, 64)
	if err := r.ReadInto(buf); err != nil {
		t.Fatalf("ReadInto failed: %v", err)
	}

	short := make([]int16, 10)
	if err := r.ReadInto(short); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestVolumePassthrough(t *testing.T) {
	drv := newFakeDriver()
	drv.withVolume = true
	r := buildWithFake(t, drv, 512, 10)
	defer r.Close()

	if err := r.SetVolume(0.8); err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}
	v, err := r.Volume()
	if err != nil {
		t.Fatalf("Volume failed: %v", err)
	}
	if v != 0.8 {
		t.Fatalf("expected volume 0.8, got %f", v)
	}
}

func TestVolumeUnsupported(t *testing.T) {
	r := buildWithFake(t, newFakeDriver(), 512, 10)
	defer r.Close()

	if _, err := r.Volume(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported from Volume, got %v", err)
	}
	if err := r.SetVolume(0.5); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported from SetVolume, got %v", err)
	}
}

func TestSelectedDevice(t *testing.T) {
	drv := newFakeDriver()
	r, err := NewBuilder(512).
		DeviceIndex(0).
		Logger(zerolog.Nop()).
		Driver(drv).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer r.Close()

	d := r.SelectedDevice()
	if d.Index != 0 || d.Name != "Fake Microphone" {
		t.Fatalf("unexpected selected device: %+v", d)
	}
}
