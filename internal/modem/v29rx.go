package modem

import (
	"math"

	"github.com/quartzline/voiceband/internal/dsp"
)

// V.29 receiver. The front end is the same as the V.17 receiver - power
// sensing, DDS demodulation, polyphase RRC interpolation, Gardner timing and
// the T/2 adaptive equalizer - but there is no trellis: each equalized
// symbol is sliced to the nearest active constellation point and decoded
// directly, so bits appear with no survivor latency.
type V29Rx struct {
	bitRate       int
	bitsPerSymbol int
	points        []v29Point
	sink          BitSink
	qamReport     QAMReportFunc

	power          dsp.PowerMeter
	carrierOn      float64
	carrierOff     float64
	agcScaling     float64
	carrierUpRun   int
	carrierDropRun int

	carrierPhase     uint32
	carrierPhaseRate int32
	carrierNominal   int32
	carrierLimit     int32
	carrierTrackP    float64
	carrierTrackI    float64

	rrcFilter [2 * rrcTapsPerPhase]complex128
	rrcStep   int
	baudPhase int

	eq      equalizer
	halfWay bool

	gardnerIntegrate int
	gardnerStep      int
	gardnerTotal     int

	angles     [16]uint32
	angleCount int

	lastOctant  int
	descrambler scrambler
	trainSeq    trainingSequence

	phase         trainingPhase
	phaseCount    int
	eqTrainLen    int
	trainingError float64
	bitCount      int
	onesRun       int

	waitSilent bool
}

// NewV29Rx creates a V.29 receiver for the given bit rate.
func NewV29Rx(bitRate int, sink BitSink) (*V29Rx, error) {
	r := &V29Rx{sink: sink}
	r.SetSignalCutoff(defaultCarrierOnDBm0)
	if err := r.Restart(bitRate); err != nil {
		return nil, err
	}
	return r, nil
}

// Restart re-arms the receiver. V.29 has no short training sequence.
func (r *V29Rx) Restart(bitRate int) error {
	bps := v29BitsPerSymbol(bitRate)
	if bps == 0 {
		return ErrInvalidBitRate
	}
	r.bitRate = bitRate
	r.bitsPerSymbol = bps
	r.points = v29ActivePoints(bps)

	r.power.Clear()
	r.carrierUpRun = 0
	r.carrierDropRun = 0
	r.carrierPhase = 0
	r.carrierNominal = dsp.PhaseRate(v29CarrierHz, SampleRate)
	r.carrierLimit = dsp.PhaseRate(carrierCaptureHz, SampleRate)
	r.carrierPhaseRate = r.carrierNominal
	r.agcScaling = 0
	for i := range r.rrcFilter {
		r.rrcFilter[i] = 0
	}
	r.rrcStep = 0
	r.baudPhase = ticksPerSymbol / 2
	r.eq.reset()
	r.halfWay = false
	r.gardnerIntegrate = 0
	r.gardnerStep = gardnerStepAcq
	r.gardnerTotal = 0
	r.angleCount = 0
	r.lastOctant = 0
	r.descrambler.reset()
	r.trainSeq.reset()
	r.phase = phaseIdle
	r.phaseCount = 0
	r.trainingError = 0
	r.bitCount = 0
	r.onesRun = 0
	r.waitSilent = false
	return nil
}

// SetQAMReportHandler registers a per-symbol constellation report callback.
func (r *V29Rx) SetQAMReportHandler(fn QAMReportFunc) {
	r.qamReport = fn
}

// SetSignalCutoff sets the carrier detection threshold in dBm0.
func (r *V29Rx) SetSignalCutoff(level float64) {
	r.carrierOn = dsp.DBm0ToPower(level)
	r.carrierOff = dsp.DBm0ToPower(level - carrierHysteresisDB)
}

// SignalPower returns the smoothed received signal power in dBm0.
func (r *V29Rx) SignalPower() float64 {
	return r.power.DBm0()
}

// CarrierFrequency returns the current estimate of the received carrier, Hz.
func (r *V29Rx) CarrierFrequency() float64 {
	return dsp.RateToFrequency(r.carrierPhaseRate, SampleRate)
}

// EqualizerState returns a copy of the adaptive equalizer coefficients.
func (r *V29Rx) EqualizerState() []complex128 {
	return r.eq.snapshot()
}

// SymbolTimingCorrection returns the cumulative Gardner correction since the
// carrier came up, in ticks of 1/24000 s.
func (r *V29Rx) SymbolTimingCorrection() int {
	return r.gardnerTotal
}

// InDataMode reports whether training has completed and bits are flowing.
func (r *V29Rx) InDataMode() bool {
	return r.phase == phaseData
}

// Process consumes a block of received audio.
func (r *V29Rx) Process(samples []int16) {
	for _, s := range samples {
		r.processSample(float64(s))
	}
}

func (r *V29Rx) processSample(x float64) {
	pwr := r.power.Update(x)

	switch r.phase {
	case phaseIdle:
		if r.waitSilent {
			if pwr < r.carrierOff {
				r.waitSilent = false
			}
			return
		}
		if pwr <= r.carrierOn {
			return
		}
		r.carrierUpRun = 0
		r.phase = phaseSignalPresent
		return
	case phaseSignalPresent:
		if pwr <= r.carrierOn {
			r.phase = phaseIdle
			return
		}
		r.carrierUpRun++
		if r.carrierUpRun >= carrierUpSamples {
			r.sink.PutEvent(EventCarrierUp)
			r.gardnerTotal = 0
			r.gardnerStep = gardnerStepAcq
			r.setPhase(phaseGainSet)
		}
		return
	default:
		if pwr < r.carrierOff {
			r.carrierDropRun++
			if r.carrierDropRun > carrierDropSamples {
				r.phase = phaseIdle
				r.waitSilent = false
				r.carrierDropRun = 0
				r.sink.PutEvent(EventCarrierDown)
				return
			}
		} else {
			r.carrierDropRun = 0
		}
	}

	if r.phase == phaseGainSet {
		r.agcScaling = rrcAGCFactor / math.Sqrt(pwr)
		r.phaseCount++
		if r.phaseCount >= gainSetSamples {
			r.setPhase(phaseSymbolAcq)
		}
	}

	ph := dsp.Phasor(r.carrierPhase)
	r.carrierPhase += uint32(r.carrierPhaseRate)
	bb := complex(x*r.agcScaling*real(ph), -x*r.agcScaling*imag(ph))
	r.rrcFilter[r.rrcStep] = bb
	r.rrcFilter[r.rrcStep+rrcTapsPerPhase] = bb
	r.rrcStep++
	if r.rrcStep >= rrcTapsPerPhase {
		r.rrcStep = 0
	}

	r.baudPhase -= rrcPhases
	if r.baudPhase > 0 {
		return
	}
	branch := -r.baudPhase
	if branch > rrcPhases-1 {
		branch = rrcPhases - 1
	} else if branch < 0 {
		branch = 0
	}
	r.baudPhase += ticksPerSymbol / 2

	taps := &rxPulseShape[branch]
	var sumR, sumI float64
	base := r.rrcStep
	for j := 0; j < rrcTapsPerPhase; j++ {
		s := r.rrcFilter[base+j]
		sumR += taps[j] * real(s)
		sumI += taps[j] * imag(s)
	}
	r.processHalfBaud(complex(sumR, sumI))
}

func (r *V29Rx) processHalfBaud(z complex128) {
	r.eq.push(z)
	r.halfWay = !r.halfWay
	if r.halfWay {
		return
	}
	if r.phase == phaseGainSet {
		return
	}
	r.symbolSync()
	r.processSymbol(r.eq.output())
}

func (r *V29Rx) symbolSync() {
	p := real(r.eq.at(2)) - real(r.eq.at(0))
	p *= real(r.eq.at(1))
	q := imag(r.eq.at(2)) - imag(r.eq.at(0))
	q *= imag(r.eq.at(1))
	if p+q > 0 {
		r.gardnerIntegrate += r.gardnerStep
	} else {
		r.gardnerIntegrate -= r.gardnerStep
	}
	if r.gardnerIntegrate >= gardnerDumpLimit || r.gardnerIntegrate <= -gardnerDumpLimit {
		step := 1
		if r.gardnerIntegrate < 0 {
			step = -1
		}
		r.baudPhase += step
		r.gardnerTotal += step
		r.gardnerIntegrate = 0
	}
}

func (r *V29Rx) processSymbol(y complex128) {
	switch r.phase {
	case phaseSymbolAcq:
		r.pushAngle(y)
		r.phaseCount++
		if r.phaseCount >= symbolAcqLong {
			r.setPhase(phaseCoarseCarrier)
		}
	case phaseCoarseCarrier:
		if r.watchForJump(y) {
			return
		}
		r.phaseCount++
		if r.phaseCount > coarseTimeoutSyms {
			r.trainingFailed()
		}
	case phaseEqTrain:
		r.eqTrainSymbol(y)
	case phaseVerify, phaseData:
		r.dataSymbol(y)
	}
}

func (r *V29Rx) pushAngle(y complex128) {
	folded := dsp.ApproxAtan2(imag(y), real(y))
	if r.angleCount&1 == 1 {
		folded += 0x80000000
	}
	r.angles[r.angleCount&15] = folded
	r.angleCount++
}

func (r *V29Rx) watchForJump(y complex128) bool {
	folded := dsp.ApproxAtan2(imag(y), real(y))
	if r.angleCount&1 == 1 {
		folded += 0x80000000
	}
	last := r.angles[(r.angleCount-1)&15]
	diff := int32(folded - last)
	if diff < 0 {
		diff = -diff
	}
	if uint32(diff) < angleJumpThreshold {
		r.angles[r.angleCount&15] = folded
		r.angleCount++
		return false
	}

	if r.angleCount > len(r.angles) {
		old := r.angles[r.angleCount&15]
		perSymbol := int64(int32(last-old)) / int64(len(r.angles)-1)
		r.carrierPhaseRate += int32(perSymbol * SymbolRate / SampleRate)
		r.clampCarrier()
	}

	err := int32(last<<1) / 2
	r.carrierPhase += uint32(err)
	rot := dsp.Phasor(uint32(-err))
	for i := range r.rrcFilter {
		r.rrcFilter[i] *= rot
	}
	r.eq.rotate(rot)
	y *= rot

	r.setPhase(phaseEqTrain)
	r.eqTrainSymbol(y)
	return true
}

func (r *V29Rx) eqTrainSymbol(y complex128) {
	target := trainingTargetAt(r.phaseCount, &r.trainSeq)
	err := target - y
	r.eq.adapt(err)
	r.trackCarrier(y, target)

	if r.phaseCount == r.eqTrainLen/2 {
		r.eq.delta = eqDeltaRefine
	}
	window := eqTrainErrorWindow
	if window > r.eqTrainLen {
		window = r.eqTrainLen
	}
	if r.phaseCount >= r.eqTrainLen-window {
		r.trainingError += real(err)*real(err) + imag(err)*imag(err)
	}
	r.phaseCount++
	if r.phaseCount < r.eqTrainLen {
		return
	}
	if r.trainingError/float64(window) > eqTrainMaxMeanError {
		r.trainingFailed()
		return
	}
	r.setPhase(phaseVerify)
}

// dataSymbol slices to the nearest active point and decodes the phase change
// and amplitude bit.
func (r *V29Rx) dataSymbol(y complex128) {
	best := 0
	bestDist := sqDistance(y, r.points[0].point)
	for i := 1; i < len(r.points); i++ {
		if d := sqDistance(y, r.points[i].point); d < bestDist {
			best = i
			bestDist = d
		}
	}
	p := r.points[best]

	r.eq.adapt(p.point - y)
	r.trackCarrier(y, p.point)
	if r.qamReport != nil {
		r.qamReport(y, p.octant<<1|p.amp)
	}

	r.phaseCount++
	if r.phase == phaseVerify && r.phaseCount > verifyTimeoutSyms {
		r.trainingFailed()
		return
	}

	delta := (p.octant - r.lastOctant) & 7
	r.lastOctant = p.octant
	switch r.bitsPerSymbol {
	case 4:
		r.putDataBit(p.amp)
		b := v29DeltaToBits[delta]
		r.putDataBit(b >> 2 & 1)
		r.putDataBit(b >> 1 & 1)
		r.putDataBit(b & 1)
	case 3:
		b := v29DeltaToBits[delta]
		r.putDataBit(b >> 2 & 1)
		r.putDataBit(b >> 1 & 1)
		r.putDataBit(b & 1)
	default:
		b := v29QuadInv[delta>>1&3]
		r.putDataBit(b >> 1 & 1)
		r.putDataBit(b & 1)
	}
}

func (r *V29Rx) putDataBit(bit int) {
	bit = r.descrambler.descramble(bit)
	if r.phase == phaseData {
		r.sink.PutBit(bit)
		return
	}
	r.bitCount++
	if r.bitCount <= onesSkipBits {
		return
	}
	if bit == 1 {
		r.onesRun++
		if r.onesRun >= onesRequired {
			r.phase = phaseData
			r.sink.PutEvent(EventTrainingSucceeded)
		}
	} else {
		r.onesRun = 0
	}
}

func (r *V29Rx) trackCarrier(y, target complex128) {
	e := imag(y)*real(target) - real(y)*imag(target)
	r.carrierPhaseRate += int32(r.carrierTrackI * e)
	r.carrierPhase += uint32(int32(r.carrierTrackP * e))
	r.clampCarrier()
}

func (r *V29Rx) clampCarrier() {
	if r.carrierPhaseRate > r.carrierNominal+r.carrierLimit {
		r.carrierPhaseRate = r.carrierNominal + r.carrierLimit
	} else if r.carrierPhaseRate < r.carrierNominal-r.carrierLimit {
		r.carrierPhaseRate = r.carrierNominal - r.carrierLimit
	}
}

func (r *V29Rx) setPhase(p trainingPhase) {
	r.phase = p
	r.phaseCount = 0
	switch p {
	case phaseSymbolAcq:
		r.angleCount = 0
	case phaseEqTrain:
		r.eqTrainLen = txSegEqTrainLong
		r.trainingError = 0
		r.trainSeq.reset()
		r.eq.delta = eqDeltaAcquire
		r.gardnerStep = gardnerStepTrain
		r.carrierTrackP = carrierTrackPTrain
		r.carrierTrackI = carrierTrackITrain
	case phaseVerify:
		r.descrambler.reset()
		r.lastOctant = 0
		r.bitCount = 0
		r.onesRun = 0
		r.eq.delta = eqDeltaTrack
		r.gardnerStep = gardnerStepLocked
		r.carrierTrackP = carrierTrackPData
		r.carrierTrackI = carrierTrackIData
	}
}

func (r *V29Rx) trainingFailed() {
	r.phase = phaseIdle
	r.waitSilent = true
	r.sink.PutEvent(EventTrainingFailed)
}
