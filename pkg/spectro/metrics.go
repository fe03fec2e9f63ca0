package spectro

import "math"

// EffectiveSampleRate derives the rate of complete acquisitions per second
// from the stored configuration: 1/exposure for a single scan, with the
// exposure multiplied by the accumulation count for accumulate mode and
// additionally by the kinetic series length for kinetics mode.
//
// It never fails. NaN is the "rate unavailable" sentinel, returned when the
// exposure time is absent or non-positive, a needed count is missing, or the
// acquisition mode is not one of the supported set. Callers check with
// math.IsNaN and treat it as unavailable, not as a retryable condition.
func (c *Controller) EffectiveSampleRate() float64 {
	v, ok := c.store.Get(FieldExposureTime)
	if !ok || v == nil {
		return math.NaN()
	}
	exposure, err := asFloat(FieldExposureTime, v)
	if err != nil {
		return math.NaN()
	}

	mode, ok := c.store.Get(FieldAcquisitionMode)
	if !ok || mode == nil {
		return math.NaN()
	}
	modeStr, err := asString(FieldAcquisitionMode, mode)
	if err != nil {
		return math.NaN()
	}

	switch AcquisitionMode(modeStr) {
	case ModeSingleScan:
	case ModeAccumulate:
		n, ok := c.storedCount(FieldNumberAccumulations)
		if !ok {
			return math.NaN()
		}
		exposure *= float64(n)
	case ModeKinetics:
		n, ok := c.storedCount(FieldNumberAccumulations)
		if !ok {
			return math.NaN()
		}
		k, ok := c.storedCount(FieldNumberKinetics)
		if !ok {
			return math.NaN()
		}
		exposure *= float64(n) * float64(k)
	default:
		return math.NaN()
	}

	if exposure <= 0 {
		return math.NaN()
	}
	return 1 / exposure
}

func (c *Controller) storedCount(field string) (int, bool) {
	v, ok := c.store.Get(field)
	if !ok || v == nil {
		return 0, false
	}
	n, err := asInt(field, v)
	if err != nil {
		return 0, false
	}
	return n, true
}
