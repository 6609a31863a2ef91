// Package clustering fits two-component Gaussian mixtures to one dimensional samples.
package clustering

import (
	"math"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianCluster is one component of a mixture.
type GaussianCluster struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Weight   float64 `json:"weight"`
}

// StdDev returns the standard deviation of the component.
func (c GaussianCluster) StdDev() float64 {
	return math.Sqrt(c.Variance)
}

// Density returns the normal probability density of x under the component. A zero variance
// component is a point mass: its density is +Inf at the mean and 0 elsewhere.
func (c GaussianCluster) Density(x float64) float64 {
	return math.Exp(c.LogDensity(x))
}

// LogDensity returns the log of Density.
func (c GaussianCluster) LogDensity(x float64) float64 {
	if c.Variance == 0 {
		if x == c.Mean {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}
	return distuv.Normal{Mu: c.Mean, Sigma: c.StdDev()}.LogProb(x)
}

const (
	maxEMIterations = 200
	emTolerance     = 1e-10
)

// ErrTooFewSamples is returned when fewer than two samples are given.
var ErrTooFewSamples = errors.New("need at least two samples to fit two clusters")

// FitTwoGaussians fits a two-component Gaussian mixture to samples with expectation
// maximization. EM runs from several starting partitions (k-means, a median/MAD core and a
// midrange split) and the fit with the highest log-likelihood is kept. Component 0 has the smaller
// variance, except that the components are left in fit order when component 1 has zero variance.
func FitTwoGaussians(samples []float64) ([2]GaussianCluster, error) {
	var out [2]GaussianCluster
	if len(samples) < 2 {
		return out, ErrTooFewSamples
	}
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return out, errors.Errorf("cannot cluster non-finite sample %v", s)
		}
	}
	if floats.Min(samples) == floats.Max(samples) {
		c := GaussianCluster{Mean: samples[0], Variance: 0, Weight: 0.5}
		return [2]GaussianCluster{c, c}, nil
	}

	out = bestFit(samples)
	if out[0].Variance > out[1].Variance && out[1].Variance != 0 {
		out[0], out[1] = out[1], out[0]
	}
	return out, nil
}

// bestFit refines every starting partition and keeps the most likely mixture. A fit that isolates
// a single sample as a point mass has infinite likelihood and only wins when nothing else fits.
func bestFit(samples []float64) [2]GaussianCluster {
	var best [2]GaussianCluster
	bestLL := math.Inf(-1)
	bestSingleton := true
	found := false
	for _, groups := range startingPartitions(samples) {
		comps := refine(samples, groups)
		ll := logLikelihood(samples, comps)
		if math.IsNaN(ll) {
			continue
		}
		singleton := hasSingleton(comps, len(samples))
		better := ll > bestLL
		if singleton != bestSingleton {
			better = !singleton
		}
		if !found || better {
			best, bestLL, bestSingleton, found = comps, ll, singleton, true
		}
	}
	return best
}

func hasSingleton(comps [2]GaussianCluster, n int) bool {
	for _, c := range comps {
		if c.Variance == 0 && c.Weight*float64(n) < 1.5 {
			return true
		}
	}
	return false
}

// startingPartitions returns the non-empty two-way splits EM starts from.
func startingPartitions(samples []float64) [][2][]float64 {
	var out [][2][]float64
	for _, groups := range [][2][]float64{kmeansSplit(samples), coreSplit(samples), midrangeSplit(samples)} {
		if len(groups[0]) > 0 && len(groups[1]) > 0 {
			out = append(out, groups)
		}
	}
	return out
}

func kmeansSplit(samples []float64) [2][]float64 {
	var groups [2][]float64
	observations := make(clusters.Observations, len(samples))
	for i, s := range samples {
		observations[i] = clusters.Coordinates{s}
	}
	partition, err := kmeans.New().Partition(observations, 2)
	if err != nil || len(partition) != 2 {
		return groups
	}
	for k, c := range partition {
		for _, o := range c.Observations {
			groups[k] = append(groups[k], o.Coordinates()[0])
		}
	}
	return groups
}

// coreSplit separates the samples within three robust standard deviations of the median from the
// rest.
func coreSplit(samples []float64) [2][]float64 {
	median := medianOf(samples)
	deviations := make([]float64, len(samples))
	for i, s := range samples {
		deviations[i] = math.Abs(s - median)
	}
	limit := 3 * madScale * medianOf(deviations)

	var groups [2][]float64
	for i, s := range samples {
		if deviations[i] <= limit {
			groups[0] = append(groups[0], s)
		} else {
			groups[1] = append(groups[1], s)
		}
	}
	return groups
}

func midrangeSplit(samples []float64) [2][]float64 {
	mid := (floats.Min(samples) + floats.Max(samples)) / 2
	var groups [2][]float64
	for _, s := range samples {
		if s <= mid {
			groups[0] = append(groups[0], s)
		} else {
			groups[1] = append(groups[1], s)
		}
	}
	return groups
}

// madScale converts a median absolute deviation to a normal standard deviation.
const madScale = 1.4826

func medianOf(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// logLikelihood is the log-likelihood of the samples under the mixture.
func logLikelihood(samples []float64, comps [2]GaussianCluster) float64 {
	var total float64
	for _, x := range samples {
		var logs []float64
		for _, c := range comps {
			if c.Weight > 0 {
				logs = append(logs, math.Log(c.Weight)+c.LogDensity(x))
			}
		}
		switch top := floats.Max(logs); {
		case math.IsInf(top, 1):
			total += top
		case math.IsInf(top, -1):
			return math.Inf(-1)
		default:
			total += floats.LogSumExp(logs)
		}
	}
	return total
}

func moments(group []float64, n int) GaussianCluster {
	mean, variance := stat.PopMeanVariance(group, nil)
	return GaussianCluster{Mean: mean, Variance: variance, Weight: float64(len(group)) / float64(n)}
}

func refine(samples []float64, groups [2][]float64) [2]GaussianCluster {
	n := len(samples)
	comps := [2]GaussianCluster{moments(groups[0], n), moments(groups[1], n)}
	resp := make([][2]float64, n)

	for iter := 0; iter < maxEMIterations; iter++ {
		for i, x := range samples {
			resp[i] = responsibilities(x, comps)
		}

		next := comps
		for k := 0; k < 2; k++ {
			var weight, sum float64
			for i, x := range samples {
				weight += resp[i][k]
				sum += resp[i][k] * x
			}
			if weight == 0 {
				next[k].Weight = 0
				continue
			}
			mean := sum / weight
			var sq float64
			for i, x := range samples {
				sq += resp[i][k] * (x - mean) * (x - mean)
			}
			next[k] = GaussianCluster{Mean: mean, Variance: sq / weight, Weight: weight / float64(n)}
		}

		converged := true
		for k := 0; k < 2; k++ {
			scale := math.Max(1, math.Abs(comps[k].Mean)+comps[k].Variance)
			if math.Abs(next[k].Mean-comps[k].Mean) > emTolerance*scale ||
				math.Abs(next[k].Variance-comps[k].Variance) > emTolerance*scale {
				converged = false
			}
		}
		comps = next
		if converged {
			break
		}
	}
	return comps
}

// responsibilities returns the posterior membership of x in each component, computed in log
// space. Point mass components at x take all of it; a sample that no component can explain goes
// to the nearest mean.
func responsibilities(x float64, comps [2]GaussianCluster) [2]float64 {
	var logs [2]float64
	for k, c := range comps {
		if c.Weight == 0 {
			logs[k] = math.Inf(-1)
			continue
		}
		logs[k] = math.Log(c.Weight) + c.LogDensity(x)
	}

	var out [2]float64
	switch {
	case math.IsInf(logs[0], 1) && math.IsInf(logs[1], 1):
		out = [2]float64{0.5, 0.5}
	case math.IsInf(logs[0], 1):
		out = [2]float64{1, 0}
	case math.IsInf(logs[1], 1):
		out = [2]float64{0, 1}
	case math.IsInf(logs[0], -1) && math.IsInf(logs[1], -1):
		if math.Abs(x-comps[0].Mean) <= math.Abs(x-comps[1].Mean) {
			out = [2]float64{1, 0}
		} else {
			out = [2]float64{0, 1}
		}
	default:
		total := floats.LogSumExp(logs[:])
		out = [2]float64{math.Exp(logs[0] - total), math.Exp(logs[1] - total)}
	}
	return out
}
