package micframe

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/micframe/micframe/driver"
)

// captureLoop pulls raw blocks from the device on its own goroutine, slices
// them into frames of exactly frameLength samples and pushes them into the
// ring. One captureLoop serves one Start..Stop session.
type captureLoop struct {
	dev         driver.Device
	ring        *frameRing
	frameLength int
	log         zerolog.Logger

	stop    chan struct{}
	done    chan struct{}
	ready   chan struct{}
	running atomic.Bool

	errMu sync.Mutex
	err   error
}

func newCaptureLoop(dev driver.Device, ring *frameRing, frameLength int, log zerolog.Logger) *captureLoop {
	return &captureLoop{
		dev:         dev,
		ring:        ring,
		frameLength: frameLength,
		log:         log,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		ready:       make(chan struct{}),
	}
}

// run is the capture goroutine body. It closes ready once it has begun
// pulling samples and done when it exits.
func (c *captureLoop) run() {
	defer close(c.done)
	defer c.running.Store(false)

	c.running.Store(true)
	close(c.ready)

	pending := make([]int16, 0, c.frameLength)
	for {
		select {
		case <-c.stop:
			// A partially accumulated frame is discarded, never
			// delivered truncated.
			return
		default:
		}

		block, err := c.dev.ReadBlock()
		if err != nil {
			if errors.Is(err, driver.ErrDeviceStopped) && c.stopRequested() {
				return
			}
			c.fail(err)
			return
		}

		for len(block) > 0 {
			n := c.frameLength - len(pending)
			if n > len(block) {
				n = len(block)
			}
			pending = append(pending, block[:n]...)
			block = block[n:]

			if len(pending) == c.frameLength {
				c.ring.push(pending)
				pending = make([]int16, 0, c.frameLength)
			}
		}
	}
}

func (c *captureLoop) stopRequested() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// fail records an unrecoverable device error and closes the ring so a
// blocked reader observes the failure instead of hanging. No retry: recovery
// is an explicit Stop+Start by the caller.
func (c *captureLoop) fail(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()

	c.log.Error().Err(err).Msg("capture loop terminated by device error")
	c.ring.close()
}

// failure returns the device error that ended the loop, if any.
func (c *captureLoop) failure() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// alive reports whether the loop is still pulling samples.
func (c *captureLoop) alive() bool {
	return c.running.Load()
}
