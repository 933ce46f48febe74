package collector

// Estimate holds heuristic proxies for sensors the hives do not carry.
// All fields are nil when the inputs needed to derive them are missing.
type Estimate struct {
	VibrationHz        *float64
	VibrationVariance  *float64
	SoundPeakFrequency *float64
}

// Estimator derives proxy signals from a hive's sound level (dB)
type Estimator interface {
	Estimate(sound *float64) Estimate
}

// HeuristicEstimator maps sound level linearly onto vibration and peak-frequency ranges.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(sound *float64) Estimate {
	if sound == nil {
		return Estimate{}
	}
	s := *sound

	peak := 150 + (s-60)*5

	vib := 200.0
	if s > 80 {
		vib += (s - 80) * 2
	} else if s < 60 {
		vib -= (60 - s) * 1.5
	}
	vib = clamp(vib, 150, 350)

	variance := 10.0

	return Estimate{
		VibrationHz:        &vib,
		VibrationVariance:  &variance,
		SoundPeakFrequency: &peak,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
