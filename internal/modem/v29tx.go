package modem

import (
	"math"

	"github.com/quartzline/voiceband/internal/dsp"
)

// V.29 transmitter. Structurally the V.17 transmitter without the coding
// chain: scrambled bits map straight onto a Gray coded phase change plus,
// at 9600 bits/second, an amplitude bit.
type V29Tx struct {
	bitRate       int
	bitsPerSymbol int
	getBit        GetBitFunc

	scram    scrambler
	trainSeq trainingSequence
	octant   int

	symbols [txSymbolRingMask + 1]complex128
	symPos  int

	baudPhase        int
	carrierPhase     uint32
	carrierPhaseRate int32
	gain             float64
	powerDBm0        float64

	segment  txSegment
	segCount int
	segLen   [3]int
}

// NewV29Tx creates a transmitter for the given bit rate.
func NewV29Tx(bitRate int, getBit GetBitFunc) (*V29Tx, error) {
	t := &V29Tx{getBit: getBit, powerDBm0: defaultTxPowerDBm0}
	t.carrierPhaseRate = dsp.PhaseRate(v29CarrierHz, SampleRate)
	if err := t.Restart(bitRate); err != nil {
		return nil, err
	}
	return t, nil
}

// Restart rewinds the transmitter to the start of the training sequence.
func (t *V29Tx) Restart(bitRate int) error {
	bps := v29BitsPerSymbol(bitRate)
	if bps == 0 {
		return ErrInvalidBitRate
	}
	t.bitRate = bitRate
	t.bitsPerSymbol = bps
	t.scram.reset()
	t.trainSeq.reset()
	t.octant = 0
	for i := range t.symbols {
		t.symbols[i] = 0
	}
	t.symPos = 0
	t.baudPhase = ticksPerSymbol - rrcPhases
	t.segment = txSegAlternate
	t.segCount = 0
	t.segLen = [3]int{txSegAlternateLong, txSegEqTrainLong, txSegOnesLong}
	t.setGain()
	return nil
}

// SetPowerLevel sets the transmit level in dBm0.
func (t *V29Tx) SetPowerLevel(level float64) {
	t.powerDBm0 = level
	t.setGain()
}

// SetCarrierFrequency moves the carrier off its 1700 Hz nominal.
func (t *V29Tx) SetCarrierFrequency(freqHz float64) {
	t.carrierPhaseRate = dsp.PhaseRate(freqHz, SampleRate)
}

// InTraining reports whether the training sequence is still being sent.
func (t *V29Tx) InTraining() bool {
	return t.segment != txSegData
}

func (t *V29Tx) setGain() {
	p := v29ConstellationPower(t.bitsPerSymbol)
	t.gain = math.Sqrt(dsp.DBm0ToPower(t.powerDBm0) * 20.0 / (p * txPulseEnergy))
}

// Generate fills buf with transmit audio.
func (t *V29Tx) Generate(buf []int16) int {
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

func (t *V29Tx) nextSymbol() complex128 {
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

func (t *V29Tx) advanceSegment() {
	t.segCount++
	if int(t.segment) < len(t.segLen) && t.segCount >= t.segLen[t.segment] {
		t.segment++
		t.segCount = 0
	}
}

func (t *V29Tx) dataSymbol(source func() int) complex128 {
	bits := 0
	for i := 0; i < t.bitsPerSymbol; i++ {
		bits = bits<<1 | t.scram.scramble(source()&1)
	}
	var amp int
	switch t.bitsPerSymbol {
	case 4:
		amp = bits >> 3
		t.octant = (t.octant + v29BitsToDelta[bits&7]) & 7
	case 3:
		t.octant = (t.octant + v29BitsToDelta[bits]) & 7
	default:
		t.octant = (t.octant + v29Quad[bits]<<1) & 7
	}
	return v29PointFor(t.bitsPerSymbol, t.octant, amp)
}
