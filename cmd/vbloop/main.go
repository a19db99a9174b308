// vbloop runs a transmitter into a simulated telephone line and back into a
// receiver, then reports whether training completed and the bit error rate
// of the decoded stream. It is the bench harness for the modem package.
package main

import (
	"math/rand"
	"os"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/quartzline/voiceband/internal/line"
	"github.com/quartzline/voiceband/internal/modem"
)

func main() {
	modemName := flag.String("modem", "v17", "modulation: v17 or v29")
	rate := flag.Int("rate", 14400, "bit rate")
	seconds := flag.Float64("seconds", 5.0, "length of the data phase")
	short := flag.Bool("short", false, "use the short training sequence (V.17; runs a long train first)")
	profilePath := flag.String("profile", "", "YAML channel profile")
	seed := flag.Int64("seed", 1, "data PRNG seed")
	flag.Parse()

	profile := line.Profile{}
	if *profilePath != "" {
		raw, err := os.ReadFile(*profilePath)
		if err != nil {
			log.Fatal("read profile", "err", err)
		}
		if err := yaml.Unmarshal(raw, &profile); err != nil {
			log.Fatal("parse profile", "err", err)
		}
	}

	switch *modemName {
	case "v17":
		runV17(*rate, *seconds, *short, profile, *seed)
	case "v29":
		runV29(*rate, *seconds, profile, *seed)
	default:
		log.Fatal("unknown modem", "modem", *modemName)
	}
}

type bitRecorder struct {
	bits    []int
	trained bool
	failed  bool
}

func (b *bitRecorder) PutBit(bit int) {
	b.bits = append(b.bits, bit)
}

func (b *bitRecorder) PutEvent(event modem.Event) {
	log.Info("rx event", "event", event)
	switch event {
	case modem.EventTrainingSucceeded:
		b.trained = true
	case modem.EventTrainingFailed:
		b.failed = true
	}
}

func runV17(rate int, seconds float64, short bool, profile line.Profile, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	var sent []int
	getBit := func() int {
		bit := rng.Intn(2)
		sent = append(sent, bit)
		return bit
	}

	tx, err := modem.NewV17Tx(rate, getBit)
	if err != nil {
		log.Fatal("tx", "err", err)
	}
	if profile.CarrierHz != 0 {
		tx.SetCarrierFrequency(profile.CarrierHz)
	}
	rec := &bitRecorder{}
	rx, err := modem.NewV17Rx(rate, rec)
	if err != nil {
		log.Fatal("rx", "err", err)
	}

	sim := line.New(profile)
	pump(tx.Generate, rx.Process, sim, seconds)
	report(rx.CarrierFrequency(), rx.SymbolTimingCorrection(), rx.SignalPower(), sent, rec)

	if short {
		log.Info("restarting with short train")
		sent = sent[:0]
		rec.bits = rec.bits[:0]
		rec.trained = false
		if err := tx.Restart(rate, true); err != nil {
			log.Fatal("tx restart", "err", err)
		}
		if err := rx.Restart(rate, true); err != nil {
			log.Fatal("rx restart", "err", err)
		}
		pump(tx.Generate, rx.Process, sim, seconds)
		report(rx.CarrierFrequency(), rx.SymbolTimingCorrection(), rx.SignalPower(), sent, rec)
	}
}

func runV29(rate int, seconds float64, profile line.Profile, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	var sent []int
	getBit := func() int {
		bit := rng.Intn(2)
		sent = append(sent, bit)
		return bit
	}

	tx, err := modem.NewV29Tx(rate, getBit)
	if err != nil {
		log.Fatal("tx", "err", err)
	}
	if profile.CarrierHz != 0 {
		tx.SetCarrierFrequency(profile.CarrierHz)
	}
	rec := &bitRecorder{}
	rx, err := modem.NewV29Rx(rate, rec)
	if err != nil {
		log.Fatal("rx", "err", err)
	}

	sim := line.New(profile)
	pump(tx.Generate, rx.Process, sim, seconds)
	report(rx.CarrierFrequency(), rx.SymbolTimingCorrection(), rx.SignalPower(), sent, rec)
}

// pump runs the transmitter for the training sequence plus the requested
// data time, in 20 ms blocks.
func pump(generate func([]int16) int, process func([]int16), sim *line.Simulator, seconds float64) {
	const block = 160
	total := int(seconds*modem.SampleRate)/block + 2*modem.SampleRate/block
	buf := make([]int16, block)
	for i := 0; i < total; i++ {
		generate(buf)
		process(sim.Run(buf))
	}
}

func report(carrierHz float64, timing int, power float64, sent []int, rec *bitRecorder) {
	if !rec.trained {
		log.Error("training did not complete")
		os.Exit(1)
	}
	errors, compared := compareBits(sent, rec.bits)
	ber := 0.0
	if compared > 0 {
		ber = float64(errors) / float64(compared)
	}
	log.Info("loopback result",
		"trained", rec.trained,
		"bitsCompared", compared,
		"bitErrors", errors,
		"ber", ber,
		"carrierHz", carrierHz,
		"timingCorrection", timing,
		"powerDbm0", power,
	)
	if compared == 0 || errors > 0 {
		os.Exit(1)
	}
}

// compareBits aligns the receiver's output, which starts with residual ones
// from the verification segment, against the transmitted stream by searching
// for the first transmitted bits, then counts mismatches.
func compareBits(sent, got []int) (errors, compared int) {
	const syncLen = 64
	if len(sent) < syncLen || len(got) < syncLen {
		return 0, 0
	}
	start := -1
	for i := 0; i+syncLen <= len(got); i++ {
		match := true
		for j := 0; j < syncLen; j++ {
			if got[i+j] != sent[j] {
				match = false
				break
			}
		}
		if match {
			start = i
			break
		}
	}
	if start < 0 {
		return len(got), len(got)
	}
	n := len(got) - start
	if n > len(sent) {
		n = len(sent)
	}
	for j := 0; j < n; j++ {
		if got[start+j] != sent[j] {
			errors++
		}
	}
	return errors, n
}
