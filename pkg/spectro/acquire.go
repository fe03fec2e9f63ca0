package spectro

// Sample acquires one batch of data in the stored acquisition mode and
// returns the measured frames together with the corrected wavelength axis.
//
// For single-scan and accumulate modes the result holds one frame whose
// length matches the axis. Kinetics mode returns one frame per series entry;
// callers must branch on the stored mode to interpret the shape, not infer
// it from the slice rank.
//
// The axis is pixel- and wavelength-offset-corrected using the calibration
// offsets currently in the store. The last spectrum and axis are retained
// and available via LastSpectrum.
func (c *Controller) Sample() (frames [][]float64, axis []float64, err error) {
	v, ok := c.store.Get(FieldAcquisitionMode)
	if !ok || v == nil {
		return nil, nil, &UnsupportedModeError{Mode: ""}
	}
	modeStr, cErr := asString(FieldAcquisitionMode, v)
	if cErr != nil {
		return nil, nil, cErr
	}

	mode := AcquisitionMode(modeStr)
	switch mode {
	case ModeSingleScan, ModeAccumulate, ModeKinetics:
	default:
		return nil, nil, &UnsupportedModeError{Mode: modeStr}
	}

	c.logger.Debugf("Sampling spectrum in %s mode", mode)
	frames, raw, err := c.adapter.Acquire(mode)
	if err != nil {
		return nil, nil, err
	}

	axis = c.correctAxis(raw)
	c.lastSpectrum = frames
	c.lastWavelengths = axis
	return frames, axis, nil
}

// LastSpectrum returns the most recently measured frames and axis, or nils
// when nothing has been sampled yet.
func (c *Controller) LastSpectrum() ([][]float64, []float64) {
	return c.lastSpectrum, c.lastWavelengths
}

// correctAxis applies the stored calibration offsets to the raw axis. The
// pixel offset shifts the axis by whole or fractional pixels scaled by the
// mean per-pixel dispersion; the wavelength offset shifts it directly.
// Missing or unparsable offsets count as zero.
func (c *Controller) correctAxis(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}

	pixelOffset := c.storedOffset(FieldPixelOffset)
	wavelengthOffset := c.storedOffset(FieldWavelengthOffset)

	dispersion := 0.0
	if len(raw) > 1 {
		dispersion = (raw[len(raw)-1] - raw[0]) / float64(len(raw)-1)
	}

	shift := wavelengthOffset + pixelOffset*dispersion
	axis := make([]float64, len(raw))
	for i, w := range raw {
		axis[i] = w + shift
	}
	return axis
}

func (c *Controller) storedOffset(field string) float64 {
	v, ok := c.store.Get(field)
	if !ok || v == nil {
		return 0
	}
	f, err := asFloat(field, v)
	if err != nil {
		c.logger.Warnf("Ignoring unparsable %s: %v", field, err)
		return 0
	}
	return f
}
