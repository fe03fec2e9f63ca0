package spectro

// Configure reconciles a partial configuration diff against the device.
//
// The diff is merged with the store (absent or nil entries keep their
// current value), written to the device field by field in a fixed order, and
// then every field is read back from the device into the store. The read-back
// is what makes the store truthful: the hardware re-derives some of the
// values it is given, e.g. an accumulation cycle time shorter than the
// exposure time comes back lengthened.
//
// On the very first call the store is empty and a connection is forced open
// regardless of attemptConnection. Otherwise attemptConnection=true opens a
// connection for the duration of this call and closes it before returning;
// this is the path for callers that do not manage the connection themselves,
// such as the boot-time configuration load. attemptConnection=false assumes
// the caller (or Open's re-apply) already holds the connection.
//
// If no connection could be established the requested fields are still
// recorded in the store and ErrDeviceNotOpen is returned.
func (c *Controller) Configure(requested Config, attemptConnection bool) error {
	c.logger.Debug("Configuring spectrometer")

	if c.store.Empty() {
		c.logger.Debug("First configuration, establishing connection")
		c.Open()
	} else if attemptConnection {
		c.logger.Debug("Configuration outside a managed connection, establishing connection")
		c.Open()
	}

	if !c.adapter.IsOpen() {
		c.store.Update(requested)
		c.logger.Error("Spectrometer is not open, cannot configure")
		return ErrDeviceNotOpen
	}

	if attemptConnection {
		defer c.Close()
	}

	// Fill every absent field from the store: the input is a diff, never a
	// full replacement.
	merged := requested.Clone()
	for field, current := range c.store.values {
		if v, ok := merged[field]; !ok || v == nil {
			merged[field] = current
		}
	}

	err := c.apply(merged)

	// Read back whatever state the device ended up in, even after a failed
	// apply: the device is authoritative, and a partial prefix of the diff
	// may already be in effect.
	c.readBack()

	return err
}

// apply pushes the merged configuration to the device in a fixed order.
// Order matters: later settings' valid ranges depend on earlier ones, so the
// writes of one call must never interleave or reorder. The first failing
// field stops the pass.
func (c *Controller) apply(cfg Config) error {
	// Device indices. A missing index means "first available", encoded as -1
	// for the SDK.
	for _, f := range []struct {
		name string
		set  func(int) error
	}{
		{FieldCCDDeviceIndex, c.adapter.SetCCDDeviceIndex},
		{FieldSPGDeviceIndex, c.adapter.SetSPGDeviceIndex},
	} {
		idx := -1
		if v, ok := cfg[f.name]; ok && v != nil {
			i, err := asInt(f.name, v)
			if err != nil {
				return err
			}
			idx = i
		}
		if err := f.set(idx); err != nil {
			return &ConfigValueError{Field: f.name, Value: idx, Err: err}
		}
	}

	// Spectrograph turret.
	if err := c.applyString(cfg, FieldGrating, c.adapter.SetGrating); err != nil {
		return err
	}
	if err := c.applyFloat(cfg, FieldCenterWavelength, c.adapter.SetCenterWavelength); err != nil {
		return err
	}

	// Calibration offsets.
	if err := c.applyFloat(cfg, FieldPixelOffset, c.adapter.SetPixelOffset); err != nil {
		return err
	}
	if err := c.applyFloat(cfg, FieldWavelengthOffset, c.adapter.SetWavelengthOffset); err != nil {
		return err
	}

	// Ports.
	if err := c.applyString(cfg, FieldInputPort, c.adapter.SetInputPort); err != nil {
		return err
	}
	if err := c.applyString(cfg, FieldOutputPort, c.adapter.SetOutputPort); err != nil {
		return err
	}

	// Modes.
	if err := c.applyString(cfg, FieldReadMode, c.adapter.SetReadMode); err != nil {
		return err
	}
	if err := c.applyString(cfg, FieldAcquisitionMode, c.adapter.SetAcquisitionMode); err != nil {
		return err
	}
	if err := c.applyString(cfg, FieldTriggerMode, c.adapter.SetTriggerMode); err != nil {
		return err
	}

	// Timing. Exposure first: the cycle times' minimums depend on it.
	if err := c.applyFloat(cfg, FieldExposureTime, c.adapter.SetExposureTime); err != nil {
		return err
	}
	if err := c.applyInt(cfg, FieldNumberAccumulations, c.adapter.SetNumberAccumulations); err != nil {
		return err
	}
	if err := c.applyFloat(cfg, FieldAccumulationCycleTime, c.adapter.SetAccumulationCycleTime); err != nil {
		return err
	}
	if err := c.applyInt(cfg, FieldNumberKinetics, c.adapter.SetNumberKinetics); err != nil {
		return err
	}
	if err := c.applyFloat(cfg, FieldKineticCycleTime, c.adapter.SetKineticCycleTime); err != nil {
		return err
	}

	// Pre-processing flags.
	if err := c.applyBool(cfg, FieldBaselineClamp, c.adapter.SetBaselineClamp); err != nil {
		return err
	}
	if err := c.applyBool(cfg, FieldCosmicRayRemoval, c.adapter.SetCosmicRayRemoval); err != nil {
		return err
	}
	if err := c.applyBool(cfg, FieldKeepCleanOnExternalTrigger, c.adapter.SetKeepCleanOnExternalTrigger); err != nil {
		return err
	}

	// Single-track geometry, one compound write.
	if rowV, okRow := cfg[FieldSingleTrackCenterRow]; okRow && rowV != nil {
		if hV, okH := cfg[FieldSingleTrackHeight]; okH && hV != nil {
			row, err := asInt(FieldSingleTrackCenterRow, rowV)
			if err != nil {
				return err
			}
			height, err := asInt(FieldSingleTrackHeight, hV)
			if err != nil {
				return err
			}
			track := SingleTrackParams{CenterRow: row, Height: height}
			if err := c.adapter.SetSingleTrack(track); err != nil {
				return &ConfigValueError{Field: FieldSingleTrackCenterRow, Value: track, Err: err}
			}
		}
	}

	// Vertical shift speed. The setup form hands this over as text.
	if err := c.applyFloat(cfg, FieldVerticalShiftSpeed, c.adapter.SetVerticalShiftSpeed); err != nil {
		return err
	}

	// Horizontal shift speed is a compound field encoding the A/D channel,
	// the output amplifier and the readout rate. Absent means "leave unset,
	// use the device default"; present means three separate writes.
	if v, ok := cfg[FieldHorizontalShiftSpeed]; ok && v != nil {
		s, err := asString(FieldHorizontalShiftSpeed, v)
		if err != nil {
			return err
		}
		channel, amplifier, rate, err := ParseHorizontalShiftSpeed(s)
		if err != nil {
			return &ConfigValueError{Field: FieldHorizontalShiftSpeed, Value: v, Err: err}
		}
		if err := c.adapter.SetADChannel(channel); err != nil {
			return &ConfigValueError{Field: FieldHorizontalShiftSpeed, Value: channel, Err: err}
		}
		if err := c.adapter.SetOutputAmplifier(amplifier); err != nil {
			return &ConfigValueError{Field: FieldHorizontalShiftSpeed, Value: amplifier, Err: err}
		}
		if err := c.adapter.SetHorizontalShiftSpeed(rate); err != nil {
			return &ConfigValueError{Field: FieldHorizontalShiftSpeed, Value: rate, Err: err}
		}
	}

	if err := c.applyFloat(cfg, FieldPreAmpGain, c.adapter.SetPreAmpGain); err != nil {
		return err
	}

	// Temperature.
	if err := c.applyInt(cfg, FieldTargetSensorTemperature, c.adapter.SetTemperatureSetPoint); err != nil {
		return err
	}
	if v, ok := cfg[FieldReachTemperatureBeforeAcq]; ok && v != nil {
		// Controller policy, not a device register; validated here so bad
		// input fails the same way as any other field.
		if _, err := asBool(FieldReachTemperatureBeforeAcq, v); err != nil {
			return err
		}
		c.store.Set(FieldReachTemperatureBeforeAcq, v)
	}

	// Cooler.
	if err := c.applyBool(cfg, FieldCooler, c.adapter.SetCooler); err != nil {
		return err
	}
	return c.applyBool(cfg, FieldCoolerPersistence, c.adapter.SetCoolerPersistence)
}

func (c *Controller) applyFloat(cfg Config, field string, set func(float64) error) error {
	v, ok := cfg[field]
	if !ok || v == nil {
		return nil
	}
	f, err := asFloat(field, v)
	if err != nil {
		return err
	}
	if err := set(f); err != nil {
		return &ConfigValueError{Field: field, Value: f, Err: err}
	}
	return nil
}

func (c *Controller) applyInt(cfg Config, field string, set func(int) error) error {
	v, ok := cfg[field]
	if !ok || v == nil {
		return nil
	}
	i, err := asInt(field, v)
	if err != nil {
		return err
	}
	if err := set(i); err != nil {
		return &ConfigValueError{Field: field, Value: i, Err: err}
	}
	return nil
}

func (c *Controller) applyBool(cfg Config, field string, set func(bool) error) error {
	v, ok := cfg[field]
	if !ok || v == nil {
		return nil
	}
	b, err := asBool(field, v)
	if err != nil {
		return err
	}
	if err := set(b); err != nil {
		return &ConfigValueError{Field: field, Value: b, Err: err}
	}
	return nil
}

func (c *Controller) applyString(cfg Config, field string, set func(string) error) error {
	v, ok := cfg[field]
	if !ok || v == nil {
		return nil
	}
	s, err := asString(field, v)
	if err != nil {
		return err
	}
	if err := set(s); err != nil {
		return &ConfigValueError{Field: field, Value: s, Err: err}
	}
	return nil
}

// readBack overwrites the store with device-reported values, field by field.
// A getter failure skips that one field and keeps the previous store value;
// the rest of the pass continues.
func (c *Controller) readBack() {
	readInt := func(field string, get func() (int, error)) {
		if v, err := get(); err == nil {
			c.store.Set(field, v)
		} else {
			c.logger.Warnf("Read-back of %s failed: %v", field, err)
		}
	}
	readFloat := func(field string, get func() (float64, error)) {
		if v, err := get(); err == nil {
			c.store.Set(field, v)
		} else {
			c.logger.Warnf("Read-back of %s failed: %v", field, err)
		}
	}
	readBool := func(field string, get func() (bool, error)) {
		if v, err := get(); err == nil {
			c.store.Set(field, v)
		} else {
			c.logger.Warnf("Read-back of %s failed: %v", field, err)
		}
	}
	readString := func(field string, get func() (string, error)) {
		if v, err := get(); err == nil {
			c.store.Set(field, v)
		} else {
			c.logger.Warnf("Read-back of %s failed: %v", field, err)
		}
	}

	readInt(FieldCCDDeviceIndex, c.adapter.CCDDeviceIndex)
	readInt(FieldSPGDeviceIndex, c.adapter.SPGDeviceIndex)

	readString(FieldGrating, c.adapter.Grating)
	readFloat(FieldCenterWavelength, c.adapter.CenterWavelength)

	readFloat(FieldPixelOffset, c.adapter.PixelOffset)
	readFloat(FieldWavelengthOffset, c.adapter.WavelengthOffset)

	readString(FieldInputPort, c.adapter.InputPort)
	readString(FieldOutputPort, c.adapter.OutputPort)

	readString(FieldReadMode, c.adapter.ReadMode)
	readString(FieldAcquisitionMode, c.adapter.AcquisitionMode)
	readString(FieldTriggerMode, c.adapter.TriggerMode)

	readFloat(FieldExposureTime, c.adapter.ExposureTime)
	readInt(FieldNumberAccumulations, c.adapter.NumberAccumulations)
	readFloat(FieldAccumulationCycleTime, c.adapter.AccumulationCycleTime)
	readInt(FieldNumberKinetics, c.adapter.NumberKinetics)
	readFloat(FieldKineticCycleTime, c.adapter.KineticCycleTime)

	readBool(FieldBaselineClamp, c.adapter.BaselineClamp)
	readBool(FieldCosmicRayRemoval, c.adapter.CosmicRayRemoval)
	readBool(FieldKeepCleanOnExternalTrigger, c.adapter.KeepCleanOnExternalTrigger)

	if track, err := c.adapter.SingleTrack(); err == nil {
		c.store.Set(FieldSingleTrackCenterRow, track.CenterRow)
		c.store.Set(FieldSingleTrackHeight, track.Height)
	} else {
		c.logger.Warnf("Read-back of single track geometry failed: %v", err)
	}

	readFloat(FieldVerticalShiftSpeed, c.adapter.VerticalShiftSpeed)

	// Re-assemble the compound field from its three components.
	channel, errCh := c.adapter.ADChannel()
	amplifier, errAmp := c.adapter.OutputAmplifier()
	rate, errRate := c.adapter.HorizontalShiftSpeed()
	if errCh == nil && errAmp == nil && errRate == nil {
		c.store.Set(FieldHorizontalShiftSpeed, FormatHorizontalShiftSpeed(channel, amplifier, rate))
	} else {
		c.logger.Warnf("Read-back of horizontal shift speed failed: %v %v %v", errCh, errAmp, errRate)
	}

	readFloat(FieldPreAmpGain, c.adapter.PreAmpGain)

	readInt(FieldTargetSensorTemperature, c.adapter.TemperatureSetPoint)
	readBool(FieldCooler, c.adapter.Cooler)
	readBool(FieldCoolerPersistence, c.adapter.CoolerPersistence)
}
