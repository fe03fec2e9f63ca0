package spectro

import (
	"fmt"
	"strconv"
	"strings"
)

// Canonical configuration field names. These are the keys of the Config
// mapping everywhere: the store, Configure input, the persisted snapshot and
// the YAML instrument block.
const (
	FieldCCDDeviceIndex             = "ccd_device_index"
	FieldSPGDeviceIndex             = "spg_device_index"
	FieldGrating                    = "grating"
	FieldCenterWavelength           = "center_wavelength"
	FieldPixelOffset                = "pixel_offset"
	FieldWavelengthOffset           = "wavelength_offset"
	FieldInputPort                  = "input_port"
	FieldOutputPort                 = "output_port"
	FieldReadMode                   = "read_mode"
	FieldAcquisitionMode            = "acquisition_mode"
	FieldTriggerMode                = "trigger_mode"
	FieldExposureTime               = "exposure_time"
	FieldNumberAccumulations        = "number_of_accumulations"
	FieldAccumulationCycleTime      = "accumulation_cycle_time"
	FieldNumberKinetics             = "number_of_kinetics"
	FieldKineticCycleTime           = "kinetic_cycle_time"
	FieldBaselineClamp              = "baseline_clamp"
	FieldCosmicRayRemoval           = "cosmic_ray_removal"
	FieldKeepCleanOnExternalTrigger = "keep_clean_on_external_trigger"
	FieldSingleTrackCenterRow       = "single_track_center_row"
	FieldSingleTrackHeight          = "single_track_height"
	FieldVerticalShiftSpeed         = "vertical_shift_speed"
	FieldHorizontalShiftSpeed       = "horizontal_shift_speed"
	FieldPreAmpGain                 = "pre_amp_gain"
	FieldTargetSensorTemperature    = "target_sensor_temperature"
	FieldReachTemperatureBeforeAcq  = "reach_temperature_before_acquisition"
	FieldCooler                     = "cooler"
	FieldCoolerPersistence          = "cooler_persistence"
)

// Config is a partial configuration diff: a nil or absent entry means
// "retain the current value". Numeric values may arrive as strings (the
// setup form and YAML both produce them); converters below normalize.
type Config map[string]any

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Store holds the last-known configuration. It is empty at construction,
// survives disconnects, and is overwritten field by field with device-
// reported values after every reconciliation. One Controller owns it;
// everyone else gets read-only snapshots.
type Store struct {
	values Config
}

func NewStore() *Store {
	return &Store{values: make(Config)}
}

func (s *Store) Empty() bool { return len(s.values) == 0 }

func (s *Store) Get(field string) (any, bool) {
	v, ok := s.values[field]
	return v, ok
}

func (s *Store) Set(field string, value any) {
	s.values[field] = value
}

// Update merges every non-nil entry of c into the store.
func (s *Store) Update(c Config) {
	for k, v := range c {
		if v != nil {
			s.values[k] = v
		}
	}
}

// Snapshot returns a copy safe to hand to callers.
func (s *Store) Snapshot() Config {
	return s.values.Clone()
}

// asFloat converts a configuration value to float64. Strings are parsed
// explicitly before being sent to the device.
func asFloat(field string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, &ConfigValueError{Field: field, Value: v, Err: err}
		}
		return f, nil
	default:
		return 0, &ConfigValueError{Field: field, Value: v, Err: fmt.Errorf("cannot convert %T to float", v)}
	}
}

func asInt(field string, v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, &ConfigValueError{Field: field, Value: v, Err: err}
		}
		return i, nil
	default:
		return 0, &ConfigValueError{Field: field, Value: v, Err: fmt.Errorf("cannot convert %T to int", v)}
	}
}

func asBool(field string, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, &ConfigValueError{Field: field, Value: v, Err: err}
		}
		return b, nil
	default:
		return false, &ConfigValueError{Field: field, Value: v, Err: fmt.Errorf("cannot convert %T to bool", v)}
	}
}

func asString(field string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", &ConfigValueError{Field: field, Value: v, Err: fmt.Errorf("cannot convert %T to string", v)}
	}
}

// FormatHorizontalShiftSpeed encodes the compound horizontal-shift-speed
// field: A/D channel, output amplifier and readout rate in MHz as one
// parenthesized tuple string.
func FormatHorizontalShiftSpeed(channel, amplifier int, rate float64) string {
	return fmt.Sprintf("(%d, %d, %s)", channel, amplifier, strconv.FormatFloat(rate, 'g', -1, 64))
}

// ParseHorizontalShiftSpeed decodes the compound tuple produced by
// FormatHorizontalShiftSpeed. Whitespace between components is tolerated.
func ParseHorizontalShiftSpeed(s string) (channel, amplifier int, rate float64, err error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	parts := strings.Split(strings.ReplaceAll(trimmed, " ", ""), ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected 3 components, got %d", len(parts))
	}
	if channel, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("bad A/D channel: %v", err)
	}
	if amplifier, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("bad output amplifier: %v", err)
	}
	if rate, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return 0, 0, 0, fmt.Errorf("bad readout rate: %v", err)
	}
	return channel, amplifier, rate, nil
}
