package linkstate

import (
	"math"
	"time"
)

const (
	// DefaultStaleAfter is the tensor age beyond which measurements start
	// discounting the stability score. Stale entries are never evicted
	// from the table; they simply count for less, so routing naturally
	// drifts away from paths it has no fresh data for.
	DefaultStaleAfter = 5 * time.Minute

	// maxStaleDiscount caps how much of the stability score staleness can
	// take away. Even arbitrarily old data retains some signal.
	maxStaleDiscount = 0.5

	// Relative weights of the three entropy components. They sum to 1 so
	// the entropy stays in [0, 1].
	dispersionWeight  = 0.4
	spreadWeight      = 0.3
	reliabilityWeight = 0.3
)

// StabilityReport is the result of scoring a path's tensors for
// predictability.
type StabilityReport struct {
	// Entropy is the path's unpredictability in [0, 1]. Low entropy
	// means the path's latency behavior is stable.
	Entropy float64

	// Score is the stability score in [0, 1]: the inverse of the entropy
	// discounted for measurement staleness.
	Score float64
}

// PathStability computes the aggregate stability of a path from the tensors
// traversed. It is a pure function over its inputs: the entropy combines
// the per-link latency dispersion (std-dev relative to the mean), the spread
// of latency means across links, and the binary entropy of each link's
// reliability. Tensors older than DefaultStaleAfter discount the score but
// not the entropy, so hysteresis still compares like with like.
func PathStability(tensors []Tensor, now time.Time) StabilityReport {
	if len(tensors) == 0 {
		return StabilityReport{Entropy: 0, Score: 0}
	}

	var (
		dispersionSum  float64
		reliabilitySum float64
		meanSum        float64
	)
	for _, tensor := range tensors {
		mean := tensor.Latency.Mean
		if mean > 0 {
			dispersionSum += math.Min(tensor.Latency.StdDev/mean, 1)
		}
		reliabilitySum += binaryEntropy(tensor.Reliability)
		meanSum += mean
	}

	n := float64(len(tensors))
	dispersion := dispersionSum / n
	reliability := reliabilitySum / n

	// The spread term measures how unevenly latency is distributed across
	// the links of the path. All-equal means carry maximum Shannon
	// entropy, so the spread is the complement of the normalized entropy:
	// zero for a perfectly even path, approaching one when a single link
	// dominates.
	var spread float64
	if len(tensors) > 1 && meanSum > 0 {
		var h float64
		for _, tensor := range tensors {
			p := tensor.Latency.Mean / meanSum
			if p > 0 {
				h -= p * math.Log(p)
			}
		}
		spread = 1 - h/math.Log(n)
	}

	entropy := dispersionWeight*dispersion +
		spreadWeight*spread +
		reliabilityWeight*reliability
	entropy = clamp01(entropy)

	return StabilityReport{
		Entropy: entropy,
		Score:   (1 - entropy) * freshness(tensors, now),
	}
}

// freshness returns the average age discount across the tensors, in
// [1-maxStaleDiscount, 1].
func freshness(tensors []Tensor, now time.Time) float64 {
	var discountSum float64
	for _, tensor := range tensors {
		if tensor.UpdatedAt.IsZero() {
			continue
		}

		age := now.Sub(tensor.UpdatedAt)
		if age <= DefaultStaleAfter {
			continue
		}

		// Linear ramp from no discount at StaleAfter to the full
		// discount at twice that age.
		excess := float64(age-DefaultStaleAfter) /
			float64(DefaultStaleAfter)
		discountSum += math.Min(excess, 1) * maxStaleDiscount
	}

	return 1 - discountSum/float64(len(tensors))
}

// binaryEntropy returns the entropy of a Bernoulli variable with success
// probability p, normalized to [0, 1].
func binaryEntropy(p float64) float64 {
	if p < 0.001 {
		p = 0.001
	}
	if p > 0.999 {
		p = 0.999
	}

	return -(p*math.Log2(p) + (1-p)*math.Log2(1-p))
}

// clamp01 bounds v into [0, 1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
