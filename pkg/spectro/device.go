package spectro

import "context"

// AcquisitionMode selects how the detector integrates frames.
// Run-until-abort is deliberately not offered: an unattended scan loop has
// no sensible use for it.
type AcquisitionMode string

const (
	ModeSingleScan AcquisitionMode = "single_scan"
	ModeAccumulate AcquisitionMode = "accumulate"
	ModeKinetics   AcquisitionMode = "kinetics"
)

// SupportedAcquisitionModes lists the modes Sample and the reconciler accept.
var SupportedAcquisitionModes = []AcquisitionMode{
	ModeSingleScan,
	ModeAccumulate,
	ModeKinetics,
}

// SingleTrackParams is the single-track readout geometry. The two values are
// written to the device as one call because the valid height depends on the
// chosen center row.
type SingleTrackParams struct {
	CenterRow int
	Height    int
}

// DeviceAdapter is the boundary to the vendor SDK. The device behind it is
// authoritative and stateful: a setter may silently clamp the requested
// value, so the matching getter is the only source of truth. Calls are slow
// (hundreds of ms to seconds) and may block or fail.
type DeviceAdapter interface {
	Connect() error
	Disconnect() error
	IsOpen() bool

	// Device indices
	SetCCDDeviceIndex(int) error
	CCDDeviceIndex() (int, error)
	SetSPGDeviceIndex(int) error
	SPGDeviceIndex() (int, error)

	// Spectrograph turret
	SetGrating(string) error
	Grating() (string, error)
	SetCenterWavelength(float64) error
	CenterWavelength() (float64, error)

	// Calibration offsets
	SetPixelOffset(float64) error
	PixelOffset() (float64, error)
	SetWavelengthOffset(float64) error
	WavelengthOffset() (float64, error)

	// Flipper-mirror ports
	SetInputPort(string) error
	InputPort() (string, error)
	SetOutputPort(string) error
	OutputPort() (string, error)

	// Modes
	SetReadMode(string) error
	ReadMode() (string, error)
	SetAcquisitionMode(string) error
	AcquisitionMode() (string, error)
	SetTriggerMode(string) error
	TriggerMode() (string, error)

	// Timing. Later values are clamped against earlier ones by the device
	// (e.g. accumulation cycle time can never undercut exposure time).
	SetExposureTime(float64) error
	ExposureTime() (float64, error)
	SetNumberAccumulations(int) error
	NumberAccumulations() (int, error)
	SetAccumulationCycleTime(float64) error
	AccumulationCycleTime() (float64, error)
	SetNumberKinetics(int) error
	NumberKinetics() (int, error)
	SetKineticCycleTime(float64) error
	KineticCycleTime() (float64, error)

	// Pre-processing
	SetBaselineClamp(bool) error
	BaselineClamp() (bool, error)
	SetCosmicRayRemoval(bool) error
	CosmicRayRemoval() (bool, error)
	SetKeepCleanOnExternalTrigger(bool) error
	KeepCleanOnExternalTrigger() (bool, error)

	// Single-track geometry, one compound write
	SetSingleTrack(SingleTrackParams) error
	SingleTrack() (SingleTrackParams, error)

	// Shift electronics
	SetVerticalShiftSpeed(float64) error
	VerticalShiftSpeed() (float64, error)
	SetADChannel(int) error
	ADChannel() (int, error)
	SetOutputAmplifier(int) error
	OutputAmplifier() (int, error)
	SetHorizontalShiftSpeed(float64) error
	HorizontalShiftSpeed() (float64, error)
	SetPreAmpGain(float64) error
	PreAmpGain() (float64, error)

	// Temperature and cooler
	SetTemperatureSetPoint(int) error
	TemperatureSetPoint() (int, error)
	SetCooler(bool) error
	Cooler() (bool, error)
	SetCoolerPersistence(bool) error
	CoolerPersistence() (bool, error)

	// Temperature reports the live sensor temperature in Celsius.
	Temperature() (float64, error)

	// WaitForTargetTemperature blocks until the sensor has stabilized at the
	// set point or the context is cancelled. Implementations must poll, not
	// sleep uninterruptibly.
	WaitForTargetTemperature(ctx context.Context) error

	// AbortAcquisition stops any acquisition in flight. Safe to call when
	// nothing is running.
	AbortAcquisition() error

	// Acquire runs one acquisition in the given mode and returns the frames
	// (one per kinetic series entry, a single frame otherwise) together with
	// the raw, uncorrected wavelength axis for the current turret position.
	Acquire(mode AcquisitionMode) (frames [][]float64, axis []float64, err error)
}
