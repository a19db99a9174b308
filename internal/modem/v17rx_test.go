package modem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/quartzline/voiceband/internal/dsp"
)

func TestV17InvalidBitRate(t *testing.T) {
	for _, rate := range []int{0, 2400, 4800, 14401, 28800} {
		_, err := NewV17Rx(rate, &recordSink{})
		assert.ErrorIs(t, err, ErrInvalidBitRate, "rx rate %d", rate)
		_, err = NewV17Tx(rate, nil)
		assert.ErrorIs(t, err, ErrInvalidBitRate, "tx rate %d", rate)
	}
}

func TestV17ShortTrainRequiresSavedState(t *testing.T) {
	rx, err := NewV17Rx(14400, &recordSink{})
	require.NoError(t, err)
	assert.ErrorIs(t, rx.Restart(14400, true), ErrNoShortTrainState)
	// A failed short-train request must leave the receiver usable.
	require.NoError(t, rx.Restart(9600, false))
	assert.Equal(t, 9600, rx.BitRate())
}

func TestV17RestartClearsState(t *testing.T) {
	rec := &recordSink{}
	rx, err := NewV17Rx(14400, rec)
	require.NoError(t, err)

	// Push some loud junk through, then restart: the receiver must be back
	// in its hunting state with the queries reset.
	junk := make([]int16, 4000)
	for i := range junk {
		junk[i] = int16(20000 * math.Sin(0.7*float64(i)))
	}
	rx.Process(junk)
	require.NoError(t, rx.Restart(14400, false))

	assert.False(t, rx.InDataMode())
	assert.Equal(t, 0, rx.SymbolTimingCorrection())
	assert.InDelta(t, 1800.0, rx.CarrierFrequency(), 1e-4)
	taps := rx.EqualizerState()
	require.Len(t, taps, eqTaps)
	assert.Equal(t, complex(3.0, 0.0), taps[eqLen])
	for i, tap := range taps {
		if i != eqLen {
			assert.Zero(t, tap, "tap %d", i)
		}
	}
}

func TestV17EmptyAndSilentBlocks(t *testing.T) {
	rec := &recordSink{}
	rx, err := NewV17Rx(14400, rec)
	require.NoError(t, err)
	rx.Process(nil)
	rx.Process([]int16{})
	rx.Process(make([]int16, 8000))
	assert.Empty(t, rec.events)
	assert.Empty(t, rec.bits)
	assert.Less(t, rx.SignalPower(), -90.0)
}

func TestV17CarrierThresholdDoesNotFlap(t *testing.T) {
	// Two seconds of an unmodulated 1800 Hz tone right at the detection
	// threshold: whatever else happens, the carrier events must not
	// oscillate and no data may leak out.
	rec := &recordSink{}
	rx, err := NewV17Rx(14400, rec)
	require.NoError(t, err)

	amp := dsp.DBm0ToAmplitude(-26.0)
	tone := make([]int16, 2*SampleRate)
	for i := range tone {
		tone[i] = int16(amp * math.Sin(2.0*math.Pi*1800.0*float64(i)/8000.0))
	}
	rx.Process(tone)

	assert.LessOrEqual(t, rec.count(EventCarrierUp), 1)
	assert.Zero(t, rec.count(EventCarrierDown))
	assert.Zero(t, rec.count(EventTrainingSucceeded))
	assert.Empty(t, rec.bits)
}

func TestV17ShortBurstRecovers(t *testing.T) {
	// A burst far shorter than any training sequence must leave the
	// receiver hunting again once the line is quiet, with the up event (if
	// any) paired with a matching failure or down event.
	rec := &recordSink{}
	rx, err := NewV17Rx(14400, rec)
	require.NoError(t, err)

	burst := make([]int16, 400)
	for i := range burst {
		burst[i] = int16(10000 * math.Sin(2.0*math.Pi*1800.0*float64(i)/8000.0))
	}
	rx.Process(burst)
	rx.Process(make([]int16, 2*SampleRate))

	assert.False(t, rx.InDataMode())
	assert.Zero(t, rec.count(EventTrainingSucceeded))
	assert.Empty(t, rec.bits)
	ups := rec.count(EventCarrierUp)
	closed := rec.count(EventCarrierDown) + rec.count(EventTrainingFailed)
	assert.GreaterOrEqual(t, closed, ups)
}

func TestV17ReceiverInvariants(t *testing.T) {
	// Whatever audio arrives, the pick-off and buffer indices must stay in
	// range and the carrier estimate inside its capture window.
	rapid.Check(t, func(t *rapid.T) {
		rec := &recordSink{}
		rx, err := NewV17Rx(14400, rec)
		if err != nil {
			t.Fatal(err)
		}
		blocks := rapid.IntRange(1, 20).Draw(t, "blocks")
		for b := 0; b < blocks; b++ {
			samples := rapid.SliceOfN(rapid.Int16(), 0, 400).Draw(t, "samples")
			rx.Process(samples)

			if rx.rrcStep < 0 || rx.rrcStep >= rrcTapsPerPhase {
				t.Fatalf("rrcStep %d out of range", rx.rrcStep)
			}
			if rx.baudPhase < -ticksPerSymbol || rx.baudPhase > ticksPerSymbol {
				t.Fatalf("baudPhase %d out of range", rx.baudPhase)
			}
			if rx.gardnerIntegrate <= -gardnerDumpLimit || rx.gardnerIntegrate >= gardnerDumpLimit {
				t.Fatalf("gardnerIntegrate %d at or past the dump limit", rx.gardnerIntegrate)
			}
			if f := rx.CarrierFrequency(); f < v17CarrierHz-carrierCaptureHz-1 || f > v17CarrierHz+carrierCaptureHz+1 {
				t.Fatalf("carrier estimate %v outside the capture range", f)
			}
		}
	})
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "carrier up", EventCarrierUp.String())
	assert.Equal(t, "carrier down", EventCarrierDown.String())
	assert.Equal(t, "training succeeded", EventTrainingSucceeded.String())
	assert.Equal(t, "training failed", EventTrainingFailed.String())
	assert.Equal(t, "unknown", Event(99).String())
}

func TestTrainingPhaseString(t *testing.T) {
	phases := []trainingPhase{
		phaseIdle, phaseSignalPresent, phaseGainSet, phaseSymbolAcq,
		phaseCoarseCarrier, phaseEqTrain, phaseVerify, phaseData,
	}
	seen := map[string]bool{}
	for _, p := range phases {
		s := p.String()
		assert.NotEqual(t, "?", s)
		assert.False(t, seen[s], "duplicate name %q", s)
		seen[s] = true
	}
}
