package aggregation

import "math"

// series accumulates non-null values of one channel
type series []float64

func (s *series) add(v *float64) {
	if v != nil {
		*s = append(*s, *v)
	}
}

func (s series) mean() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func (s series) sum() float64 {
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum
}

func (s series) min() float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func (s series) max() float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// std is the sample standard deviation; 0 with fewer than two values
func (s series) std() float64 {
	if len(s) < 2 {
		return 0
	}
	m := s.mean()
	var ss float64
	for _, v := range s {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(s)-1))
}

func (s series) first() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

func (s series) last() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// StdDev is the sample standard deviation of values; 0 with fewer than two
func StdDev(values []float64) float64 {
	return series(values).std()
}
