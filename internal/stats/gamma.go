package stats

import "math"

// The incomplete gamma machinery below is what turns a chi-square
// statistic into a p-value: the upper tail of the chi-square
// distribution with k degrees of freedom is Q(k/2, x/2), the
// regularized upper incomplete gamma function.

// logGamma computes ln Γ(x) for x > 0 using the Lanczos approximation.
func logGamma(x float64) float64 {
	coefficients := []float64{
		76.18009172947146,
		-86.50532032941677,
		24.01409824083091,
		-1.231739572450155,
		0.1208650973866179e-2,
		-0.5395239384953e-5,
	}

	y := x
	tmp := x + 5.5
	tmp -= (x + 0.5) * math.Log(tmp)

	series := 1.000000000190015
	for _, c := range coefficients {
		y++
		series += c / y
	}

	return -tmp + math.Log(2.5066282746310005*series/x)
}

// regularizedGammaP computes P(a, x), the regularized lower incomplete
// gamma function, via a series expansion for x < a+1 and a Lentz
// continued-fraction expansion of the upper function otherwise.
func regularizedGammaP(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return math.NaN()
	}
	if x == 0 {
		return 0
	}

	if x < a+1 {
		return gammaSeries(a, x)
	}
	return 1 - gammaContinuedFraction(a, x)
}

const (
	gammaMaxIterations = 200
	gammaEpsilon       = 3.0e-12
)

// gammaSeries evaluates P(a, x) by its series representation.
func gammaSeries(a, x float64) float64 {
	ap := a
	sum := 1.0 / a
	del := sum

	for i := 0; i < gammaMaxIterations; i++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*gammaEpsilon {
			break
		}
	}

	return sum * math.Exp(-x+a*math.Log(x)-logGamma(a))
}

// gammaContinuedFraction evaluates Q(a, x) by modified Lentz's method.
func gammaContinuedFraction(a, x float64) float64 {
	const tiny = 1.0e-30

	b := x + 1 - a
	c := 1.0 / tiny
	d := 1.0 / b
	h := d

	for i := 1; i <= gammaMaxIterations; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = b + an/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1.0 / d
		del := d * c
		h *= del
		if math.Abs(del-1.0) < gammaEpsilon {
			break
		}
	}

	return math.Exp(-x+a*math.Log(x)-logGamma(a)) * h
}

// PValue is the upper tail of the chi-square distribution: the
// probability of observing a statistic at least this large under the
// null hypothesis.
func PValue(chiSquare float64, degreesOfFreedom int) float64 {
	if chiSquare <= 0 || degreesOfFreedom < 1 {
		return 1
	}

	p := 1 - regularizedGammaP(float64(degreesOfFreedom)/2, chiSquare/2)
	if math.IsNaN(p) {
		return 1
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
