// Package audio wraps PortAudio for the telephone-band modems: 8000 Hz,
// mono, 16-bit signed samples, the native format of the DSP path.
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate matches the modem channel rate.
	SampleRate = 8000
	// FramesPerBuf is 20 ms of audio, a comfortable pump block.
	FramesPerBuf = 160
)

// Init initializes PortAudio. Call once before any stream is opened.
func Init() error {
	return portaudio.Initialize()
}

// Terminate releases PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// ListDevices returns a printable description of the available devices.
func ListDevices() ([]string, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]string, 0, len(devices))
	for i, d := range devices {
		out = append(out, fmt.Sprintf("%2d: %s (in=%d out=%d, %.0f Hz)",
			i, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate))
	}
	return out, nil
}

// Capture is a mono 8 kHz input stream.
type Capture struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenCapture opens the default input device.
func OpenCapture() (*Capture, error) {
	c := &Capture{buf: make([]int16, FramesPerBuf)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), FramesPerBuf, c.buf)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	c.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start capture stream: %w", err)
	}
	return c, nil
}

// Read blocks for the next 20 ms block and returns a copy of it.
func (c *Capture) Read() ([]int16, error) {
	if err := c.stream.Read(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	out := make([]int16, len(c.buf))
	copy(out, c.buf)
	return out, nil
}

// Close stops and closes the stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	c.stream.Stop()
	return c.stream.Close()
}

// Playback is a mono 8 kHz output stream.
type Playback struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPlayback opens the default output device.
func OpenPlayback() (*Playback, error) {
	p := &Playback{buf: make([]int16, FramesPerBuf)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(SampleRate), FramesPerBuf, p.buf)
	if err != nil {
		return nil, fmt.Errorf("open playback stream: %w", err)
	}
	p.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start playback stream: %w", err)
	}
	return p, nil
}

// Write plays samples, chunking and zero padding to the stream block size.
func (p *Playback) Write(samples []int16) error {
	for i := 0; i < len(samples); i += FramesPerBuf {
		end := i + FramesPerBuf
		if end > len(samples) {
			for j := range p.buf {
				p.buf[j] = 0
			}
			copy(p.buf, samples[i:])
		} else {
			copy(p.buf, samples[i:end])
		}
		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

// Close stops and closes the stream.
func (p *Playback) Close() error {
	if p.stream == nil {
		return nil
	}
	p.stream.Stop()
	return p.stream.Close()
}
