// Package device binds the audio Source and Sink contracts to PortAudio
// input and output streams.
package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Config selects a device and stream format
type Config struct {
	SampleRate int
	FrameSize  int    // Samples per PortAudio buffer
	DeviceName string // Empty or "default" selects the system default
}

// Info describes an available audio device
type Info struct {
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// List returns all devices PortAudio can see
func List() ([]Info, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var defaultIn, defaultOut string
	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil {
		defaultIn = dev.Name
	}
	if dev, err := portaudio.DefaultOutputDevice(); err == nil && dev != nil {
		defaultOut = dev.Name
	}

	infos := make([]Info, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, Info{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefaultInput:    dev.Name == defaultIn,
			IsDefaultOutput:   dev.Name == defaultOut,
		})
	}
	return infos, nil
}

// findDevice resolves a device by name, falling back to the system default
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name != "" && name != "default" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, err
		}
		for _, dev := range devices {
			if dev.Name != name {
				continue
			}
			if (input && dev.MaxInputChannels > 0) || (!input && dev.MaxOutputChannels > 0) {
				return dev, nil
			}
		}
		return nil, fmt.Errorf("device not found: %s", name)
	}

	if input {
		return portaudio.DefaultInputDevice()
	}
	return portaudio.DefaultOutputDevice()
}

// openStream opens a mono 16-bit stream in one direction.
// PortAudio is initialized per stream; the caller must Terminate after closing.
func openStream(cfg Config, input bool, buffer []int16) (*portaudio.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	dev, err := findDevice(cfg.DeviceName, input)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	var params portaudio.StreamParameters
	if input {
		params = portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = 1
	} else {
		params = portaudio.LowLatencyParameters(nil, dev)
		params.Output.Channels = 1
	}
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = len(buffer)

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream on %q: %w", dev.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	return stream, nil
}
