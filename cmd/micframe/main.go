// Command micframe is a small demo around the micframe library: it lists
// capture devices and records frames from one of them, printing capture
// statistics.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/micframe/micframe/driver"
)

var (
	backendName string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "micframe",
	Short: "Capture fixed-size frames of microphone audio",
	Long: `micframe demonstrates the micframe capture library: enumerate the
available input devices, then record frames from one of them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "miniaudio",
		"capture backend (miniaudio or portaudio)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(recordCmd)
}

func selectedDriver() driver.Driver {
	if backendName == "portaudio" {
		return driver.NewPortAudio()
	}
	return driver.NewMiniaudio()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
