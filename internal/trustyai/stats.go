package trustyai

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Reference statistics computed locally so the suites can sanity-check
// what the service reports instead of trusting it blindly.

// MeanShift is the absolute difference of means between a reference
// sample and an observed sample, normalized by the reference standard
// deviation. Zero shift means identical means.
func MeanShift(reference, observed []float64) (float64, error) {
	if len(reference) < 2 || len(observed) == 0 {
		return 0, fmt.Errorf("meanshift needs at least 2 reference and 1 observed samples, got %d/%d", len(reference), len(observed))
	}

	refMean, refStd := stat.MeanStdDev(reference, nil)
	if refStd == 0 {
		return 0, fmt.Errorf("meanshift undefined for constant reference sample")
	}
	obsMean := stat.Mean(observed, nil)

	shift := (obsMean - refMean) / refStd
	if shift < 0 {
		shift = -shift
	}
	return shift, nil
}

// KolmogorovSmirnov returns the two-sample KS statistic, the maximum
// distance between the empirical CDFs.
func KolmogorovSmirnov(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("ks statistic needs non-empty samples")
	}

	sa := append([]float64(nil), a...)
	sb := append([]float64(nil), b...)
	sort.Float64s(sa)
	sort.Float64s(sb)

	var max float64
	i, j := 0, 0
	for i < len(sa) && j < len(sb) {
		if sa[i] <= sb[j] {
			i++
		} else {
			j++
		}
		d := float64(i)/float64(len(sa)) - float64(j)/float64(len(sb))
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max, nil
}

// GroupOutcomes counts favorable outcomes within a privileged or
// unprivileged group.
type GroupOutcomes struct {
	Favorable int
	Total     int
}

func (g GroupOutcomes) rate() (float64, error) {
	if g.Total == 0 {
		return 0, fmt.Errorf("group has no observations")
	}
	return float64(g.Favorable) / float64(g.Total), nil
}

// StatisticalParityDifference is p(favorable|unprivileged) -
// p(favorable|privileged). A perfectly fair model scores 0; the usual
// acceptance band is (-0.1, 0.1).
func StatisticalParityDifference(privileged, unprivileged GroupOutcomes) (float64, error) {
	p, err := privileged.rate()
	if err != nil {
		return 0, fmt.Errorf("privileged: %w", err)
	}
	u, err := unprivileged.rate()
	if err != nil {
		return 0, fmt.Errorf("unprivileged: %w", err)
	}
	return u - p, nil
}

// DisparateImpactRatio is p(favorable|unprivileged) /
// p(favorable|privileged). A perfectly fair model scores 1.
func DisparateImpactRatio(privileged, unprivileged GroupOutcomes) (float64, error) {
	p, err := privileged.rate()
	if err != nil {
		return 0, fmt.Errorf("privileged: %w", err)
	}
	if p == 0 {
		return 0, fmt.Errorf("disparate impact undefined when privileged favorable rate is 0")
	}
	u, err := unprivileged.rate()
	if err != nil {
		return 0, fmt.Errorf("unprivileged: %w", err)
	}
	return u / p, nil
}
