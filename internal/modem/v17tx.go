package modem

import (
	"math"

	"github.com/quartzline/voiceband/internal/dsp"
)

// V.17 transmitter: the inverse of the receiver. Bits are scrambled, grouped
// per symbol, the top two bits differentially and convolutionally encoded,
// the label mapped onto the constellation, and the symbol stream pulse
// shaped straight at 8000 Hz by walking the 24 kHz RRC kernel three ticks
// per output sample.

const defaultTxPowerDBm0 = -14.0

// txSymbolRingMask sizes the transmit symbol ring; the 81 tap kernel spans
// nine symbol periods.
const txSymbolRingMask = 15

type txSegment int

const (
	txSegAlternate txSegment = iota
	txSegEqTrain
	txSegOnes
	txSegData
)

// V17Tx is one V.17 transmit channel.
type V17Tx struct {
	bitRate       int
	bitsPerSymbol int
	constel       []complex128
	getBit        GetBitFunc

	scram    scrambler
	trainSeq trainingSequence
	diffQuad int
	conv     trellisEncoder

	symbols [txSymbolRingMask + 1]complex128
	symPos  int

	baudPhase        int
	carrierPhase     uint32
	carrierPhaseRate int32
	gain             float64
	powerDBm0        float64

	segment  txSegment
	segCount int
	segLen   [3]int // alternation, equalizer train, ones
}

// NewV17Tx creates a transmitter for the given bit rate. getBit supplies the
// data stream once the training sequence has been sent.
func NewV17Tx(bitRate int, getBit GetBitFunc) (*V17Tx, error) {
	t := &V17Tx{getBit: getBit, powerDBm0: defaultTxPowerDBm0}
	t.carrierPhaseRate = dsp.PhaseRate(v17CarrierHz, SampleRate)
	if err := t.Restart(bitRate, false); err != nil {
		return nil, err
	}
	return t, nil
}

// Restart rewinds the transmitter to the start of the training sequence.
func (t *V17Tx) Restart(bitRate int, shortTrain bool) error {
	bps := v17BitsPerSymbol(bitRate)
	if bps == 0 {
		return ErrInvalidBitRate
	}
	t.bitRate = bitRate
	t.bitsPerSymbol = bps
	t.constel = v17Constellation(bitRate)
	t.scram.reset()
	t.trainSeq.reset()
	t.diffQuad = 0
	t.conv.reset()
	for i := range t.symbols {
		t.symbols[i] = 0
	}
	t.symPos = 0
	t.baudPhase = ticksPerSymbol - rrcPhases
	t.segment = txSegAlternate
	t.segCount = 0
	if shortTrain {
		t.segLen = [3]int{txSegAlternateShort, txSegEqTrainShort, txSegOnesShort}
	} else {
		t.segLen = [3]int{txSegAlternateLong, txSegEqTrainLong, txSegOnesLong}
	}
	t.setGain()
	return nil
}

// SetPowerLevel sets the transmit level in dBm0.
func (t *V17Tx) SetPowerLevel(level float64) {
	t.powerDBm0 = level
	t.setGain()
}

// SetCarrierFrequency moves the carrier off its 1800 Hz nominal. Line test
// harnesses use this to model the frequency offset of FDM carrier sections.
func (t *V17Tx) SetCarrierFrequency(freqHz float64) {
	t.carrierPhaseRate = dsp.PhaseRate(freqHz, SampleRate)
}

// InTraining reports whether the training sequence is still being sent.
func (t *V17Tx) InTraining() bool {
	return t.segment != txSegData
}

func (t *V17Tx) setGain() {
	// Relates the requested line level to symbol magnitude: white data
	// symbols of power P through the shaping filter produce a mean square
	// line level of gain^2 * P * tap energy / 20.
	p := constellationPower(t.constel)
	t.gain = math.Sqrt(dsp.DBm0ToPower(t.powerDBm0) * 20.0 / (p * txPulseEnergy))
}

// Generate fills buf with transmit audio and returns the number of samples
// produced (always the full buffer; V.17 has no carrier shutdown sequence).
func (t *V17Tx) Generate(buf []int16) int {
	for i := range buf {
		t.baudPhase += rrcPhases
		if t.baudPhase >= ticksPerSymbol {
			t.baudPhase -= ticksPerSymbol
			t.symPos = (t.symPos + 1) & txSymbolRingMask
			t.symbols[t.symPos] = t.nextSymbol()
		}
		var zr, zi float64
		for j := 0; ; j++ {
			k := t.baudPhase + ticksPerSymbol*j
			if k >= rrcSpan {
				break
			}
			s := t.symbols[(t.symPos-j)&txSymbolRingMask]
			zr += txPulseShape[k] * real(s)
			zi += txPulseShape[k] * imag(s)
		}
		ph := dsp.Phasor(t.carrierPhase)
		t.carrierPhase += uint32(t.carrierPhaseRate)
		v := (zr*real(ph) - zi*imag(ph)) * t.gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf[i] = int16(v)
	}
	return len(buf)
}

func (t *V17Tx) nextSymbol() complex128 {
	switch t.segment {
	case txSegAlternate:
		var point complex128
		if t.segCount&1 == 0 {
			point = trainingPointA
		} else {
			point = trainingPointB
		}
		t.advanceSegment()
		return point
	case txSegEqTrain:
		point := trainingTargetAt(t.segCount, &t.trainSeq)
		t.advanceSegment()
		return point
	case txSegOnes:
		t.advanceSegment()
		return t.dataSymbol(func() int { return 1 })
	default:
		return t.dataSymbol(func() int {
			if t.getBit == nil {
				return 1
			}
			return t.getBit()
		})
	}
}

func (t *V17Tx) advanceSegment() {
	t.segCount++
	if int(t.segment) < len(t.segLen) && t.segCount >= t.segLen[t.segment] {
		t.segment++
		t.segCount = 0
	}
}

// dataSymbol pulls one symbol's worth of bits through the scrambler and the
// coding chain.
func (t *V17Tx) dataSymbol(source func() int) complex128 {
	bits := 0
	for i := 0; i < t.bitsPerSymbol; i++ {
		bits = bits<<1 | t.scram.scramble(source()&1)
	}
	q := bits >> (t.bitsPerSymbol - 2)
	u := bits & (1<<(t.bitsPerSymbol-2) - 1)
	t.diffQuad = (t.diffQuad + q) & 3
	coset := t.conv.encode(t.diffQuad>>1, t.diffQuad&1)
	return t.constel[u<<3|coset]
}
