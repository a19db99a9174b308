// vbmon listens on the sound card, runs a V.17 or V.29 receiver over the
// captured audio and streams the decoded constellation, line status and a
// coarse spectrum to browser clients over WebSocket.
package main

import (
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/quartzline/voiceband/internal/audio"
	"github.com/quartzline/voiceband/internal/dsp"
	"github.com/quartzline/voiceband/internal/modem"
	"github.com/quartzline/voiceband/internal/monitor"
)

const spectrumFFTSize = 512

type receiver interface {
	Process(samples []int16)
	SignalPower() float64
	CarrierFrequency() float64
	SymbolTimingCorrection() int
	EqualizerState() []complex128
	InDataMode() bool
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "monitor listen address")
	modemName := flag.String("modem", "v17", "modulation: v17 or v29")
	rate := flag.Int("rate", 14400, "bit rate")
	cutoff := flag.Float64("cutoff", -26.0, "carrier detect threshold, dBm0")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	flag.Parse()

	if err := audio.Init(); err != nil {
		log.Fatal("portaudio init", "err", err)
	}
	defer audio.Terminate()

	if *listDevices {
		devices, err := audio.ListDevices()
		if err != nil {
			log.Fatal("list devices", "err", err)
		}
		for _, d := range devices {
			log.Print(d)
		}
		return
	}

	hub := monitor.NewHub()
	defer hub.Close()

	var bits int
	sink := modem.SinkFuncs{
		Bit: func(int) { bits++ },
		Event: func(event modem.Event) {
			log.Info("rx event", "event", event)
			hub.Event(event.String())
		},
	}

	var rx receiver
	var setQAM func(modem.QAMReportFunc)
	switch *modemName {
	case "v17":
		r, err := modem.NewV17Rx(*rate, sink)
		if err != nil {
			log.Fatal("receiver", "err", err)
		}
		r.SetSignalCutoff(*cutoff)
		rx, setQAM = r, r.SetQAMReportHandler
	case "v29":
		r, err := modem.NewV29Rx(*rate, sink)
		if err != nil {
			log.Fatal("receiver", "err", err)
		}
		r.SetSignalCutoff(*cutoff)
		rx, setQAM = r, r.SetQAMReportHandler
	default:
		log.Fatal("unknown modem", "modem", *modemName)
	}

	// Subsample the symbol reports; 2400/s is more than a display needs.
	var symbolCount int
	setQAM(func(symbol complex128, label int) {
		symbolCount++
		if symbolCount%4 == 0 {
			hub.Symbol(real(symbol), imag(symbol), label)
		}
	})

	capture, err := audio.OpenCapture()
	if err != nil {
		log.Fatal("capture", "err", err)
	}
	defer capture.Close()

	go func() {
		if err := hub.Serve(*addr); err != nil {
			log.Fatal("monitor server", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info("receiving", "modem", *modemName, "rate", *rate)
	window := make([]float64, 0, spectrumFFTSize)
	blocks := 0
	for {
		select {
		case <-sig:
			log.Info("shutting down", "bitsReceived", bits)
			return
		default:
		}
		samples, err := capture.Read()
		if err != nil {
			log.Fatal("audio read", "err", err)
		}
		rx.Process(samples)

		for _, s := range samples {
			if len(window) < spectrumFFTSize {
				window = append(window, float64(s))
			}
		}
		blocks++
		if blocks%25 == 0 { // twice a second
			taps := rx.EqualizerState()
			mags := make([]float64, len(taps))
			for i, t := range taps {
				mags[i] = math.Hypot(real(t), imag(t))
			}
			state := "hunting"
			if rx.InDataMode() {
				state = "data"
			}
			hub.Status(monitor.StatusPayload{
				State:            state,
				PowerDBm0:        rx.SignalPower(),
				CarrierHz:        rx.CarrierFrequency(),
				TimingCorrection: rx.SymbolTimingCorrection(),
				EqTaps:           mags,
			})
			if len(window) == spectrumFFTSize {
				hub.Spectrum(dsp.PowerSpectrumDB(window, spectrumFFTSize))
			}
			window = window[:0]
		}
	}
}
