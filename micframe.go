// Package micframe delivers live microphone audio as fixed-length frames of
// signed 16-bit samples, suitable for real-time speech processing.
//
// A Recorder is configured through a Builder, runs a capture goroutine that
// assembles raw device blocks into frames, and hands frames to the caller in
// FIFO order through a bounded ring buffer. When the consumer falls behind,
// the oldest buffered frames are dropped (and counted) so that capture
// timing is never stalled.
//
//	recorder, err := micframe.NewBuilder(512).DeviceIndex(0).Build()
//	if err != nil {
//		// ...
//	}
//	defer recorder.Close()
//
//	if err := recorder.Start(); err != nil {
//		// ...
//	}
//	for recorder.IsRecording() {
//		frame, err := recorder.Read()
//		// ...
//	}
//	_ = recorder.Stop()
package micframe

// Version of the micframe library.
const Version = "1.2.0"

const (
	// DefaultFrameLength is the number of samples per frame when none is
	// configured.
	DefaultFrameLength = 512

	// DefaultBufferedFrames is the default capacity of the frame ring.
	DefaultBufferedFrames = 50

	// DefaultSampleRate is the capture rate in Hz.
	DefaultSampleRate = 16000
)
