package dsp

import "math"

// Telephony signal levels are quoted in dBm0, referred to the zero transmission
// level point of the channel. Following G.711, a full-scale 16-bit sine sits at
// +3.14 dBm0, so a 0 dBm0 sine has an amplitude of 32768/10^(3.14/20).
const dbm0RefMeanSquare = 22829.0 * 22829.0 / 2.0

// powerMeterShift sets the single-pole smoothing of the power estimate.
// 1/64 per sample gives a time constant of about 8 ms at 8000 samples/second.
const powerMeterShift = 64.0

// PowerMeter tracks the mean-square level of a sample stream with a
// single-pole IIR filter.
type PowerMeter struct {
	value float64
}

// Update feeds one sample into the meter and returns the smoothed mean-square
// value.
func (m *PowerMeter) Update(sample float64) float64 {
	m.value += (sample*sample - m.value) / powerMeterShift
	return m.value
}

// Value returns the current smoothed mean-square level.
func (m *PowerMeter) Value() float64 {
	return m.value
}

// DBm0 returns the current level in dBm0.
func (m *PowerMeter) DBm0() float64 {
	return PowerToDBm0(m.value)
}

// Clear resets the meter.
func (m *PowerMeter) Clear() {
	m.value = 0.0
}

// PowerToDBm0 converts a mean-square level in 16-bit PCM units to dBm0.
func PowerToDBm0(power float64) float64 {
	if power <= 0.0 {
		return -96.0
	}
	return 10.0 * math.Log10(power/dbm0RefMeanSquare)
}

// DBm0ToPower converts a level in dBm0 to a mean-square value in 16-bit PCM
// units.
func DBm0ToPower(level float64) float64 {
	return dbm0RefMeanSquare * math.Pow(10.0, level/10.0)
}

// DBm0ToAmplitude returns the peak amplitude of a sine at the given dBm0
// level, in 16-bit PCM units.
func DBm0ToAmplitude(level float64) float64 {
	return math.Sqrt(2.0 * DBm0ToPower(level))
}
