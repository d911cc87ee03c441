// Package geo turns noisy, irregularly-sampled GPS fixes into a stable
// position estimate with short-horizon extrapolation and timestamp-specific
// interpolation.
package geo

const (
	// Process variance: how much the true value is allowed to drift between
	// samples. Small, because a vehicle's coordinate moves slowly relative to
	// GPS jitter.
	kalmanProcessVariance = 1e-5
	// Measurement variance of a raw GPS coordinate.
	kalmanMeasurementVariance = 1e-2
	// Initial error covariance.
	kalmanInitialCovariance = 1.0
)

// kalman1D is a scalar Kalman smoother for one coordinate axis. Latitude and
// longitude each own an independent instance; no cross-axis covariance is
// modeled since their noise is independent at the precision required.
type kalman1D struct {
	q      float64
	r      float64
	x      float64
	p      float64
	seeded bool
}

func newKalman1D() *kalman1D {
	return &kalman1D{
		q: kalmanProcessVariance,
		r: kalmanMeasurementVariance,
		p: kalmanInitialCovariance,
	}
}

// update folds one raw measurement into the filtered state and returns the new
// estimate. The first measurement seeds the state directly.
func (k *kalman1D) update(measurement float64) float64 {
	if !k.seeded {
		k.x = measurement
		k.seeded = true
		return k.x
	}
	k.p += k.q
	gain := k.p / (k.p + k.r)
	k.x += gain * (measurement - k.x)
	k.p *= 1.0 - gain
	return k.x
}

// value returns the current filtered estimate.
func (k *kalman1D) value() float64 {
	return k.x
}

func (k *kalman1D) reset() {
	k.x = 0
	k.p = kalmanInitialCovariance
	k.seeded = false
}
