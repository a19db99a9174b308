package modem

import (
	"errors"
	"math"

	"github.com/quartzline/voiceband/internal/dsp"
)

// V.17 receiver. 14400, 12000, 9600 or 7200 bits/second trellis coded QAM
// over a 1800 Hz carrier at 2400 baud. The caller pumps 8000 Hz 16-bit PCM
// blocks through Process; decoded bits and line events come back through the
// BitSink, synchronously, in order.

const v17CarrierHz = 1800.0

// ErrNoShortTrainState is returned when a short-train restart is requested
// before any long train has succeeded on this receiver.
var ErrNoShortTrainState = errors.New("modem: no saved state for short train")

type trainingPhase int

const (
	phaseIdle trainingPhase = iota
	phaseSignalPresent
	phaseGainSet
	phaseSymbolAcq
	phaseCoarseCarrier
	phaseEqTrain
	phaseVerify
	phaseData
)

func (p trainingPhase) String() string {
	switch p {
	case phaseIdle:
		return "IDLE"
	case phaseSignalPresent:
		return "SIGNAL_PRESENT"
	case phaseGainSet:
		return "GAIN_SET"
	case phaseSymbolAcq:
		return "SYMBOL_ACQ"
	case phaseCoarseCarrier:
		return "COARSE_CARRIER"
	case phaseEqTrain:
		return "EQUALIZER_TRAIN"
	case phaseVerify:
		return "TEP_VERIFY"
	case phaseData:
		return "DATA"
	}
	return "?"
}

const (
	// Carrier detection. The on threshold is configurable; off sits 6 dB
	// below it for hysteresis, and both edges are debounced.
	defaultCarrierOnDBm0 = -26.0
	carrierHysteresisDB  = 6.0
	carrierUpSamples     = 24  // 3 ms above threshold before carrier up
	carrierDropSamples   = 320 // 40 ms below threshold before carrier down

	// Samples to let the power meter settle before freezing the AGC.
	gainSetSamples = 192

	// Symbol counts and timeouts for the training phases.
	symbolAcqLong       = 64
	symbolAcqShort      = 8
	coarseTimeoutSyms   = 1200
	verifyTimeoutSyms   = 256
	eqTrainErrorWindow  = 256
	eqTrainMaxMeanError = 0.4

	// The ABAB alternation breaks when a symbol lands more than this far
	// from the alternation axis: 60 degrees.
	angleJumpThreshold = 715827883

	// Gardner integrate-and-dump. The step shrinks as training advances.
	gardnerDumpLimit  = 256
	gardnerStepAcq    = 16
	gardnerStepTrain  = 4
	gardnerStepLocked = 1

	// Carrier tracking PI gains, applied to the cross product of the
	// equalized symbol and its reference.
	carrierTrackPTrain = 4000000.0
	carrierTrackITrain = 32000.0
	carrierTrackPData  = 2000000.0
	carrierTrackIData  = 8000.0

	// Hard limit on how far tracking may pull the carrier from nominal.
	carrierCaptureHz = 7.0

	// All-ones verification: ignore the first bits (the far end may not
	// have seeded its scrambler), then require a run of ones.
	onesSkipBits = 24
	onesRequired = 64
)

// V17Rx is one V.17 receive channel. Create one per stream; instances are
// independent and must not be shared between goroutines.
type V17Rx struct {
	bitRate       int
	bitsPerSymbol int
	constel       []complex128
	smap          *spaceMap
	sink          BitSink
	qamReport     QAMReportFunc

	power          dsp.PowerMeter
	carrierOn      float64 // mean-square thresholds
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

	vit         viterbi
	lastQuad    int
	descrambler scrambler
	trainSeq    trainingSequence

	phase         trainingPhase
	phaseCount    int
	eqTrainLen    int
	trainingError float64
	bitCount      int
	onesRun       int

	shortTrain bool
	waitSilent bool

	savedValid     bool
	savedAGC       float64
	savedPhaseRate int32
	savedCoeffs    [eqTaps]complex128
}

// NewV17Rx creates a receiver for the given bit rate, delivering bits and
// events to sink.
func NewV17Rx(bitRate int, sink BitSink) (*V17Rx, error) {
	r := &V17Rx{sink: sink}
	r.SetSignalCutoff(defaultCarrierOnDBm0)
	if err := r.Restart(bitRate, false); err != nil {
		return nil, err
	}
	return r, nil
}

// Restart re-arms the receiver for a new carrier at the given bit rate. With
// shortTrain set the receiver expects the abbreviated training sequence and
// reuses the AGC, carrier frequency and equalizer state saved by the last
// successful long train.
func (r *V17Rx) Restart(bitRate int, shortTrain bool) error {
	bps := v17BitsPerSymbol(bitRate)
	if bps == 0 {
		return ErrInvalidBitRate
	}
	if shortTrain && !r.savedValid {
		return ErrNoShortTrainState
	}
	r.bitRate = bitRate
	r.bitsPerSymbol = bps
	r.constel = v17Constellation(bitRate)
	r.smap = v17SpaceMap(bitRate)
	r.shortTrain = shortTrain

	r.power.Clear()
	r.carrierUpRun = 0
	r.carrierDropRun = 0
	r.carrierPhase = 0
	r.carrierNominal = dsp.PhaseRate(v17CarrierHz, SampleRate)
	r.carrierLimit = dsp.PhaseRate(carrierCaptureHz, SampleRate)
	r.carrierPhaseRate = r.carrierNominal
	r.agcScaling = 0
	if shortTrain {
		r.carrierPhaseRate = r.savedPhaseRate
		r.agcScaling = r.savedAGC
	}
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
	r.vit.reset()
	r.lastQuad = 0
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
func (r *V17Rx) SetQAMReportHandler(fn QAMReportFunc) {
	r.qamReport = fn
}

// SetSignalCutoff sets the carrier detection threshold in dBm0.
func (r *V17Rx) SetSignalCutoff(level float64) {
	r.carrierOn = dsp.DBm0ToPower(level)
	r.carrierOff = dsp.DBm0ToPower(level - carrierHysteresisDB)
}

// BitRate returns the configured bit rate.
func (r *V17Rx) BitRate() int {
	return r.bitRate
}

// SignalPower returns the smoothed received signal power in dBm0.
func (r *V17Rx) SignalPower() float64 {
	return r.power.DBm0()
}

// CarrierFrequency returns the current estimate of the received carrier, Hz.
func (r *V17Rx) CarrierFrequency() float64 {
	return dsp.RateToFrequency(r.carrierPhaseRate, SampleRate)
}

// EqualizerState returns a copy of the adaptive equalizer coefficients.
func (r *V17Rx) EqualizerState() []complex128 {
	return r.eq.snapshot()
}

// SymbolTimingCorrection returns the cumulative Gardner correction since the
// carrier came up, in ticks of 1/24000 s.
func (r *V17Rx) SymbolTimingCorrection() int {
	return r.gardnerTotal
}

// InDataMode reports whether training has completed and bits are flowing.
func (r *V17Rx) InDataMode() bool {
	return r.phase == phaseData
}

// Process consumes a block of received audio. Empty blocks are accepted.
func (r *V17Rx) Process(samples []int16) {
	for _, s := range samples {
		r.processSample(float64(s))
	}
}

func (r *V17Rx) processSample(x float64) {
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
		// Debounce: the level has to hold above threshold before the
		// carrier is declared.
		if pwr <= r.carrierOn {
			r.phase = phaseIdle
			return
		}
		r.carrierUpRun++
		if r.carrierUpRun >= carrierUpSamples {
			r.signalDetected()
		}
		return
	default:
		if pwr < r.carrierOff {
			r.carrierDropRun++
			if r.carrierDropRun > carrierDropSamples {
				r.carrierLost()
				return
			}
		} else {
			r.carrierDropRun = 0
		}
	}

	if r.phase == phaseGainSet {
		// Let the power meter settle on the alternation segment, then
		// freeze the front end gain. The equalizer's centre tap absorbs
		// whatever residual error is left.
		r.agcScaling = rrcAGCFactor / math.Sqrt(pwr)
		r.phaseCount++
		if r.phaseCount >= gainSetSamples {
			r.savedAGC = r.agcScaling
			r.setPhase(phaseSymbolAcq)
		}
	}

	// Demodulate to complex baseband and pulse shape.
	ph := dsp.Phasor(r.carrierPhase)
	r.carrierPhase += uint32(r.carrierPhaseRate)
	bb := complex(x*r.agcScaling*real(ph), -x*r.agcScaling*imag(ph))
	r.rrcFilter[r.rrcStep] = bb
	r.rrcFilter[r.rrcStep+rrcTapsPerPhase] = bb
	r.rrcStep++
	if r.rrcStep >= rrcTapsPerPhase {
		r.rrcStep = 0
	}

	// T/2 pick-off: three 24 kHz ticks pass per input sample, a pick-off
	// falls every five.
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
	r.processHalfBaud(r.interpolate(branch))
}

// interpolate runs the polyphase branch aligned with the current pick-off
// over the RRC ring.
func (r *V17Rx) interpolate(branch int) complex128 {
	taps := &rxPulseShape[branch]
	var sumR, sumI float64
	base := r.rrcStep
	for j := 0; j < rrcTapsPerPhase; j++ {
		s := r.rrcFilter[base+j]
		sumR += taps[j] * real(s)
		sumI += taps[j] * imag(s)
	}
	return complex(sumR, sumI)
}

func (r *V17Rx) processHalfBaud(z complex128) {
	r.eq.push(z)
	r.halfWay = !r.halfWay
	if r.halfWay {
		return
	}
	if r.phase == phaseGainSet {
		return
	}
	r.symbolSync()
	y := r.eq.output()
	r.processSymbol(y)
}

// symbolSync runs the Gardner test over the latest on-symbol, mid-symbol,
// on-symbol triple in the equalizer buffer and integrates the result; on
// dump the pick-off point moves by one 24 kHz tick.
func (r *V17Rx) symbolSync() {
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
		// Integrate and dump avoids rapid changes of the pick-off, which
		// upset the equalizer when the optimum sits near a tick boundary.
		step := 1
		if r.gardnerIntegrate < 0 {
			step = -1
		}
		r.baudPhase += step
		r.gardnerTotal += step
		r.gardnerIntegrate = 0
	}
}

func (r *V17Rx) processSymbol(y complex128) {
	switch r.phase {
	case phaseSymbolAcq:
		r.pushAngle(y)
		r.phaseCount++
		acq := symbolAcqLong
		if r.shortTrain {
			acq = symbolAcqShort
		}
		if r.phaseCount >= acq {
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

// pushAngle records the demodulated angle of an alternation symbol, folded
// so the 180 degree flip between A and B cancels out.
func (r *V17Rx) pushAngle(y complex128) {
	folded := dsp.ApproxAtan2(imag(y), real(y))
	if r.angleCount&1 == 1 {
		folded += 0x80000000
	}
	r.angles[r.angleCount&15] = folded
	r.angleCount++
}

// watchForJump looks for the end of the alternation segment. When it sees
// the jump it derives the coarse carrier estimate, steps the carrier DDS,
// rotates the in-flight samples to match, and hands the very same symbol to
// the equalizer trainer as reference index zero.
func (r *V17Rx) watchForJump(y complex128) bool {
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

	if !r.shortTrain && r.angleCount > len(r.angles) {
		// Rotation across the oldest retained alternation symbol gives the
		// frequency offset; the residual angle of the last symbol gives
		// the phase step. Estimating over a bounded window keeps a 7 Hz
		// offset well inside half a turn.
		old := r.angles[r.angleCount&15]
		perSymbol := int64(int32(last-old)) / int64(len(r.angles)-1)
		r.carrierPhaseRate += int32(perSymbol * SymbolRate / SampleRate)
		r.clampCarrier()
	}

	// Deviation of the last good alternation symbol from the nearest half
	// turn of the A-B axis.
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

func (r *V17Rx) eqTrainSymbol(y complex128) {
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

// dataSymbol runs the symbol through the slicer and trellis decoder, then
// the differential decoder and descrambler, and hands the bits onward.
func (r *V17Rx) dataSymbol(y complex128) {
	var dist [8]float64
	var label [8]int
	nearest := sliceCosets(y, r.constel, r.smap, &dist, &label)

	// Decision directed equalizer and carrier maintenance against the
	// immediate nearest point.
	target := r.constel[nearest]
	r.eq.adapt(target - y)
	r.trackCarrier(y, target)
	if r.qamReport != nil {
		r.qamReport(y, nearest)
	}

	decoded, ok := r.vit.update(&dist, &label)
	r.phaseCount++
	if r.phase == phaseVerify && r.phaseCount > verifyTimeoutSyms {
		r.trainingFailed()
		return
	}
	if !ok {
		return
	}

	// Differential decode of the quadrant bits, then the uncoded bits,
	// most significant first.
	quad := decoded & 3
	q := (quad - r.lastQuad) & 3
	r.lastQuad = quad
	r.putDataBit(q >> 1)
	r.putDataBit(q & 1)
	u := decoded >> 3
	for i := r.bitsPerSymbol - 3; i >= 0; i-- {
		r.putDataBit(u >> i & 1)
	}
}

func (r *V17Rx) putDataBit(bit int) {
	bit = r.descrambler.descramble(bit)
	if r.phase == phaseData {
		r.sink.PutBit(bit)
		return
	}
	// TEP_VERIFY: the far end sends ones through its freshly started
	// scrambler. The first 23 bits may predate its seeding, so only bits
	// from 24 on count toward the run.
	r.bitCount++
	if r.bitCount <= onesSkipBits {
		return
	}
	if bit == 1 {
		r.onesRun++
		if r.onesRun >= onesRequired {
			r.trainingSucceeded()
		}
	} else {
		r.onesRun = 0
	}
}

// trackCarrier drives the fine carrier PI loop from the angular error of an
// equalized symbol against its reference.
func (r *V17Rx) trackCarrier(y, target complex128) {
	e := imag(y)*real(target) - real(y)*imag(target)
	r.carrierPhaseRate += int32(r.carrierTrackI * e)
	r.carrierPhase += uint32(int32(r.carrierTrackP * e))
	r.clampCarrier()
}

func (r *V17Rx) clampCarrier() {
	if r.carrierPhaseRate > r.carrierNominal+r.carrierLimit {
		r.carrierPhaseRate = r.carrierNominal + r.carrierLimit
	} else if r.carrierPhaseRate < r.carrierNominal-r.carrierLimit {
		r.carrierPhaseRate = r.carrierNominal - r.carrierLimit
	}
}

func (r *V17Rx) signalDetected() {
	r.sink.PutEvent(EventCarrierUp)
	r.carrierDropRun = 0
	r.gardnerTotal = 0
	if r.shortTrain {
		// The channel was proven moments ago: keep the saved gain,
		// carrier rate and equalizer, and go straight to watching the
		// alternation for the segment boundary.
		r.eq.restore(&r.savedCoeffs)
		r.gardnerStep = gardnerStepTrain
		r.setPhase(phaseSymbolAcq)
		return
	}
	r.gardnerStep = gardnerStepAcq
	r.setPhase(phaseGainSet)
}

func (r *V17Rx) setPhase(p trainingPhase) {
	r.phase = p
	r.phaseCount = 0
	switch p {
	case phaseSymbolAcq:
		r.angleCount = 0
	case phaseEqTrain:
		r.eqTrainLen = txSegEqTrainLong
		if r.shortTrain {
			r.eqTrainLen = txSegEqTrainShort
		}
		r.trainingError = 0
		r.trainSeq.reset()
		r.eq.delta = eqDeltaAcquire
		r.gardnerStep = gardnerStepTrain
		r.carrierTrackP = carrierTrackPTrain
		r.carrierTrackI = carrierTrackITrain
	case phaseVerify:
		r.vit.reset()
		r.descrambler.reset()
		r.lastQuad = 0
		r.bitCount = 0
		r.onesRun = 0
		r.eq.delta = eqDeltaTrack
		r.gardnerStep = gardnerStepLocked
		r.carrierTrackP = carrierTrackPData
		r.carrierTrackI = carrierTrackIData
	}
}

func (r *V17Rx) trainingSucceeded() {
	r.savedValid = true
	r.savedPhaseRate = r.carrierPhaseRate
	r.eq.save(&r.savedCoeffs)
	r.phase = phaseData
	r.sink.PutEvent(EventTrainingSucceeded)
}

func (r *V17Rx) trainingFailed() {
	r.phase = phaseIdle
	r.waitSilent = true
	r.sink.PutEvent(EventTrainingFailed)
}

func (r *V17Rx) carrierLost() {
	r.phase = phaseIdle
	r.waitSilent = false
	r.carrierDropRun = 0
	r.sink.PutEvent(EventCarrierDown)
}
