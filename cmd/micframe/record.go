package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/micframe/micframe"
)

var (
	deviceIndex    int
	frameLength    int
	bufferedFrames int
	sampleRate     int
	frameCount     int
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record frames from a capture device",
	Long: `Record frames from the selected capture device and print capture
statistics. Recording runs until the requested number of frames has been
read, or until interrupted when --frames is 0.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recorder, err := micframe.NewBuilder(frameLength).
			DeviceIndex(deviceIndex).
			BufferedFrames(bufferedFrames).
			SampleRate(sampleRate).
			LogLevel(logLevel).
			Driver(selectedDriver()).
			Build()
		if err != nil {
			return err
		}
		defer recorder.Close()

		if err := recorder.Start(); err != nil {
			return err
		}
		fmt.Printf("recording from %s at %d Hz, %d samples per frame\n",
			recorder.SelectedDevice(), recorder.SampleRate(), recorder.FrameLength())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			_ = recorder.Stop()
		}()

		start := time.Now()
		read := 0
		peak := 0
		for frameCount == 0 || read < frameCount {
			frame, err := recorder.Read()
			if err != nil {
				if read > 0 {
					break
				}
				return err
			}
			read++
			if p := peakAmplitude(frame); p > peak {
				peak = p
			}
		}

		if err := recorder.Stop(); err != nil {
			return err
		}
		fmt.Printf("read %d frames in %s, peak amplitude %d, dropped %d\n",
			read, time.Since(start).Round(time.Millisecond), peak, recorder.Overflows())
		return nil
	},
}

// peakAmplitude returns the largest absolute sample value in the frame,
// widened to int so that -32768 does not overflow on negation.
func peakAmplitude(frame []int16) int {
	peak := 0
	for _, s := range frame {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

func init() {
	recordCmd.Flags().IntVarP(&deviceIndex, "device", "d", -1,
		"device index from 'micframe devices', -1 for the default device")
	recordCmd.Flags().IntVar(&frameLength, "frame-length", micframe.DefaultFrameLength,
		"samples per frame")
	recordCmd.Flags().IntVar(&bufferedFrames, "buffered-frames", micframe.DefaultBufferedFrames,
		"frame ring capacity")
	recordCmd.Flags().IntVar(&sampleRate, "sample-rate", micframe.DefaultSampleRate,
		"capture rate in Hz")
	recordCmd.Flags().IntVarP(&frameCount, "frames", "n", 0,
		"number of frames to record, 0 to record until interrupted")
}
