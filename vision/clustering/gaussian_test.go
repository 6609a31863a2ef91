package clustering

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestFitTwoGaussiansBimodal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := make([]float64, 0, 1000)
	for i := 0; i < 500; i++ {
		samples = append(samples, rng.NormFloat64())
		samples = append(samples, 50+rng.NormFloat64())
	}

	fit, err := FitTwoGaussians(samples)
	test.That(t, err, test.ShouldBeNil)

	means := []float64{fit[0].Mean, fit[1].Mean}
	if means[0] > means[1] {
		means[0], means[1] = means[1], means[0]
	}
	test.That(t, means[0], test.ShouldAlmostEqual, 0, 0.2)
	test.That(t, means[1], test.ShouldAlmostEqual, 50, 0.2)
	for _, c := range fit {
		test.That(t, c.Variance, test.ShouldAlmostEqual, 1, 0.25)
		test.That(t, c.Weight, test.ShouldAlmostEqual, 0.5, 0.01)
	}
	test.That(t, fit[0].Variance, test.ShouldBeLessThanOrEqualTo, fit[1].Variance)

	low, high := 0, 1
	if fit[0].Mean > fit[1].Mean {
		low, high = 1, 0
	}
	var lowHits, highHits int
	for i, x := range samples {
		switch {
		case i%2 == 0 && classify(x, fit) == low:
			lowHits++
		case i%2 == 1 && classify(x, fit) == high:
			highHits++
		}
	}
	test.That(t, lowHits, test.ShouldBeGreaterThanOrEqualTo, 475)
	test.That(t, highHits, test.ShouldBeGreaterThanOrEqualTo, 475)
}

func TestFitTwoGaussiansTightCoreWithScatter(t *testing.T) {
	for s := int64(1); s <= 200; s++ {
		rng := rand.New(rand.NewSource(s))
		samples := make([]float64, 0, 100)
		for i := 0; i < 80; i++ {
			samples = append(samples, 2*rng.Float64()-1)
		}
		for i := 0; i < 20; i++ {
			x := 500 + 4500*rng.Float64()
			if rng.Intn(2) == 0 {
				x = -x
			}
			samples = append(samples, x)
		}

		fit, err := FitTwoGaussians(samples)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, fit[0].Mean, test.ShouldAlmostEqual, 0, 0.5)
		test.That(t, fit[0].Variance, test.ShouldBeLessThan, 1)
		test.That(t, fit[0].Weight, test.ShouldAlmostEqual, 0.8, 0.01)
		for i, x := range samples {
			test.That(t, classify(x, fit) == 0, test.ShouldEqual, i < 80)
		}
	}
}

func TestStartingPartitions(t *testing.T) {
	samples := []float64{-0.5, 0, 0.1, 0.2, 0.3, 900, 4000}
	core := coreSplit(samples)
	test.That(t, core[0], test.ShouldResemble, []float64{-0.5, 0, 0.1, 0.2, 0.3})
	test.That(t, core[1], test.ShouldResemble, []float64{900, 4000})

	mid := midrangeSplit(samples)
	test.That(t, mid[1], test.ShouldResemble, []float64{4000})

	test.That(t, len(startingPartitions(samples)), test.ShouldBeGreaterThanOrEqualTo, 2)
	pairs := startingPartitions([]float64{1, 2})
	test.That(t, pairs, test.ShouldNotBeEmpty)
	for _, groups := range pairs {
		test.That(t, groups[0], test.ShouldNotBeEmpty)
		test.That(t, groups[1], test.ShouldNotBeEmpty)
	}
}

func TestLogLikelihood(t *testing.T) {
	comps := [2]GaussianCluster{{Mean: 0, Variance: 1, Weight: 1}, {Mean: 5, Variance: 1, Weight: 0}}
	test.That(t, logLikelihood([]float64{0}, comps), test.ShouldAlmostEqual, -0.5*math.Log(2*math.Pi))

	mass := [2]GaussianCluster{{Mean: 3, Variance: 0, Weight: 0.5}, {Mean: 0, Variance: 1, Weight: 0.5}}
	test.That(t, math.IsInf(logLikelihood([]float64{3, 0}, mass), 1), test.ShouldBeTrue)
	test.That(t, hasSingleton(mass, 2), test.ShouldBeTrue)
	test.That(t, hasSingleton(mass, 8), test.ShouldBeFalse)
}

// classify returns the index of the component with the higher density at x, preferring component 0
// on ties.
func classify(x float64, comps [2]GaussianCluster) int {
	if comps[1].Density(x) > comps[0].Density(x) {
		return 1
	}
	return 0
}

func TestFitTwoGaussiansOrdersByVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	samples := make([]float64, 0, 600)
	for i := 0; i < 300; i++ {
		samples = append(samples, 100+10*rng.NormFloat64())
		samples = append(samples, 0.01*rng.NormFloat64())
	}

	fit, err := FitTwoGaussians(samples)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fit[0].Mean, test.ShouldAlmostEqual, 0, 0.01)
	test.That(t, fit[1].Mean, test.ShouldAlmostEqual, 100, 2)
	test.That(t, fit[0].Variance, test.ShouldBeLessThan, fit[1].Variance)
}

func TestFitTwoGaussiansPointMass(t *testing.T) {
	samples := []float64{3, 3, 3, 3, 3, 3, 3, 3, 10, 12, 14, 16}
	fit, err := FitTwoGaussians(samples)
	test.That(t, err, test.ShouldBeNil)

	var mass, spread GaussianCluster
	if fit[0].Variance == 0 {
		mass, spread = fit[0], fit[1]
	} else {
		mass, spread = fit[1], fit[0]
	}
	test.That(t, mass.Mean, test.ShouldEqual, 3)
	test.That(t, mass.Variance, test.ShouldEqual, 0)
	test.That(t, spread.Mean, test.ShouldAlmostEqual, 13)
	test.That(t, spread.Variance, test.ShouldAlmostEqual, 5)

	test.That(t, math.IsInf(mass.Density(3), 1), test.ShouldBeTrue)
	test.That(t, mass.Density(3.5), test.ShouldEqual, 0)
	test.That(t, classify(3, [2]GaussianCluster{spread, mass}), test.ShouldEqual, 1)
	test.That(t, classify(13, [2]GaussianCluster{spread, mass}), test.ShouldEqual, 0)
}

func TestFitTwoGaussiansDegenerateInputs(t *testing.T) {
	_, err := FitTwoGaussians([]float64{1})
	test.That(t, err, test.ShouldBeError, ErrTooFewSamples)

	_, err = FitTwoGaussians([]float64{1, math.NaN()})
	test.That(t, err, test.ShouldNotBeNil)

	fit, err := FitTwoGaussians([]float64{7, 7, 7})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fit[0], test.ShouldResemble, GaussianCluster{Mean: 7, Variance: 0, Weight: 0.5})
	test.That(t, fit[1], test.ShouldResemble, fit[0])

	fit, err = FitTwoGaussians([]float64{1, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fit[0].Mean+fit[1].Mean, test.ShouldAlmostEqual, 3)
}

func TestDensity(t *testing.T) {
	c := GaussianCluster{Mean: 2, Variance: 4}
	test.That(t, c.StdDev(), test.ShouldEqual, 2)
	test.That(t, c.Density(2), test.ShouldAlmostEqual, 1/(2*math.Sqrt(2*math.Pi)))
	test.That(t, c.Density(4), test.ShouldBeLessThan, c.Density(3))
}
