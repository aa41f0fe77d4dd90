package datalog

import (
	"math"
	"sort"
)

// Indeterminable is the sentinel for time metrics that could not be
// determined from the data. Zero always means "instantaneous", never
// "unknown".
const Indeterminable = -1.0

// StepMetrics scores one commanded speed step
type StepMetrics struct {
	RiseTime         float64 // 10% to 90% of the step, seconds
	SettlingTime     float64 // step start to last excursion outside the 2% band
	Overshoot        float64 // percent of the step magnitude
	SteadyStateError float64 // target minus the mean of the final second
	MaxError         float64 // worst deviation after the rise
	IAE              float64 // integral of absolute error
}

// LoadMetrics scores a load-transient recovery
type LoadMetrics struct {
	PeakDeviation float64
	RecoveryTime  float64
}

// Statistics summarizes a sampled signal
type Statistics struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	P2P    float64
}

// crossTime linearly interpolates the time at which the signal crosses
// level, moving in the step's direction. Returns Indeterminable when it
// never crosses.
func crossTime(times, values []float64, level float64, rising bool) float64 {
	crossed := func(v float64) bool {
		if rising {
			return v >= level
		}
		return v <= level
	}
	for i, v := range values {
		if !crossed(v) {
			continue
		}
		if i == 0 {
			return times[0]
		}
		prev := values[i-1]
		span := v - prev
		if span == 0 {
			return times[i]
		}
		frac := (level - prev) / span
		return times[i-1] + frac*(times[i]-times[i-1])
	}
	return Indeterminable
}

// ComputeStepMetrics scores a step from start to end RPM using time/feedback
// samples. Samples are sorted by time first. Times that cannot be determined
// come back as Indeterminable.
func ComputeStepMetrics(start, end float64, times, feedback []float64) StepMetrics {
	m := StepMetrics{
		RiseTime:     Indeterminable,
		SettlingTime: Indeterminable,
	}
	if len(times) < 2 || len(times) != len(feedback) {
		return m
	}

	type sample struct{ t, v float64 }
	samples := make([]sample, len(times))
	for i := range times {
		samples[i] = sample{times[i], feedback[i]}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].t < samples[j].t })
	ts := make([]float64, len(samples))
	vs := make([]float64, len(samples))
	for i, s := range samples {
		ts[i] = s.t
		vs[i] = s.v
	}

	step := end - start
	if step == 0 {
		return m
	}
	rising := step > 0

	// Rise time from the 10% and 90% crossings
	t10 := crossTime(ts, vs, start+0.10*step, rising)
	t90 := crossTime(ts, vs, start+0.90*step, rising)
	if t10 != Indeterminable && t90 != Indeterminable && t90 >= t10 {
		m.RiseTime = t90 - t10
	}

	// Settling: last sample outside the tolerance band around the end
	// value. Still outside at the last sample means it never settled.
	tol := math.Max(0.02*math.Abs(end), math.Max(0.02*math.Abs(step), 1.0))
	lastOutside := -1
	for i, v := range vs {
		if math.Abs(v-end) > tol {
			lastOutside = i
		}
	}
	switch {
	case lastOutside == len(vs)-1:
		m.SettlingTime = Indeterminable
	case lastOutside < 0:
		m.SettlingTime = 0
	default:
		m.SettlingTime = ts[lastOutside+1] - ts[0]
	}

	// Overshoot beyond the end value in the step direction
	peak := 0.0
	for _, v := range vs {
		over := v - end
		if !rising {
			over = end - v
		}
		if over > peak {
			peak = over
		}
	}
	m.Overshoot = peak / math.Abs(step) * 100

	// Steady-state error from the final second of data
	tail := tailWindow(ts, vs, 1.0)
	if len(tail) > 0 {
		m.SteadyStateError = end - mean(tail)
	}

	// Worst error after the rise completes (whole series if it never rose)
	from := 0
	if m.RiseTime != Indeterminable {
		for i, t := range ts {
			if t >= t90 {
				from = i
				break
			}
		}
	}
	for _, v := range vs[from:] {
		if e := math.Abs(end - v); e > m.MaxError {
			m.MaxError = e
		}
	}

	// IAE by trapezoid, skipping non-positive dt
	for i := 1; i < len(ts); i++ {
		dt := ts[i] - ts[i-1]
		if dt <= 0 {
			continue
		}
		e0 := math.Abs(end - vs[i-1])
		e1 := math.Abs(end - vs[i])
		m.IAE += (e0 + e1) / 2 * dt
	}

	return m
}

// loadNoiseFloor is the deviation below which a "load transient" is just
// encoder noise
const loadNoiseFloor = 5.0

// loadRecoveryBand is how close feedback must return to target to count as
// recovered
const loadRecoveryBand = 20.0

// ComputeLoadMetrics finds the worst deviation from target and how long the
// loop took to pull feedback back within the recovery band afterwards
func ComputeLoadMetrics(times, feedback []float64, target float64) LoadMetrics {
	m := LoadMetrics{}
	if len(times) == 0 || len(times) != len(feedback) {
		return m
	}

	peakIdx := 0
	for i, v := range feedback {
		if math.Abs(target-v) > math.Abs(target-feedback[peakIdx]) {
			peakIdx = i
		}
	}
	m.PeakDeviation = math.Abs(target - feedback[peakIdx])
	if m.PeakDeviation < loadNoiseFloor {
		return LoadMetrics{}
	}

	m.RecoveryTime = Indeterminable
	for i := peakIdx + 1; i < len(feedback); i++ {
		if math.Abs(target-feedback[i]) <= loadRecoveryBand {
			m.RecoveryTime = times[i] - times[peakIdx]
			break
		}
	}
	return m
}

// ComputeStatistics summarizes a signal
func ComputeStatistics(values []float64) Statistics {
	if len(values) == 0 {
		return Statistics{}
	}

	s := Statistics{Min: values[0], Max: values[0]}
	for _, v := range values {
		s.Mean += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean /= float64(len(values))

	var ss float64
	for _, v := range values {
		d := v - s.Mean
		ss += d * d
	}
	s.StdDev = math.Sqrt(ss / float64(len(values)))
	s.P2P = s.Max - s.Min
	return s
}

// tailWindow returns the values within the final window seconds of the
// series
func tailWindow(times, values []float64, window float64) []float64 {
	if len(times) == 0 {
		return nil
	}
	cutoff := times[len(times)-1] - window
	var out []float64
	for i, t := range times {
		if t >= cutoff {
			out = append(out, values[i])
		}
	}
	return out
}

func mean(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
