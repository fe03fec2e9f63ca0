package spectro

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

func testLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// mockAdapter is a recording DeviceAdapter. Every call appends its name to
// calls so tests can assert ordering. Setters store into fields the getters
// read back, with optional hardware-style clamping of the accumulation cycle
// time, and optional injected failures.
type mockAdapter struct {
	open  bool
	calls []string

	failConnect    bool
	failDisconnect bool
	getErr         map[string]error

	// clampCycles emulates the device lengthening cycle times that undercut
	// the exposure time.
	clampCycles bool

	ccdIdx, spgIdx     int
	grating            string
	centerWavelength   float64
	pixelOffset        float64
	wavelengthOffset   float64
	inputPort          string
	outputPort         string
	readMode           string
	acquisitionMode    string
	triggerMode        string
	exposure           float64
	numAccumulations   int
	accumulationCycle  float64
	numKinetics        int
	kineticCycle       float64
	baselineClamp      bool
	cosmicRayRemoval   bool
	keepClean          bool
	singleTrack        SingleTrackParams
	verticalShift      float64
	adChannel          int
	outputAmplifier    int
	horizontalShift    float64
	preAmpGain         float64
	tempSetPoint       int
	cooler             bool
	coolerPersistence  bool
	temperature        float64
	waitStarted        chan struct{}
	acquisitionAborted bool
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		getErr:      map[string]error{},
		temperature: 20,
		waitStarted: make(chan struct{}, 1),
	}
}

func (m *mockAdapter) record(name string) { m.calls = append(m.calls, name) }

func (m *mockAdapter) Connect() error {
	m.record("Connect")
	if m.failConnect {
		return errors.New("no device present")
	}
	m.open = true
	return nil
}

func (m *mockAdapter) Disconnect() error {
	m.record("Disconnect")
	m.open = false
	if m.failDisconnect {
		return errors.New("disconnect failed")
	}
	return nil
}

func (m *mockAdapter) IsOpen() bool { return m.open }

func (m *mockAdapter) SetCCDDeviceIndex(v int) error { m.record("SetCCDDeviceIndex"); m.ccdIdx = v; return nil }
func (m *mockAdapter) CCDDeviceIndex() (int, error) {
	return m.ccdIdx, m.getErr["ccd_device_index"]
}
func (m *mockAdapter) SetSPGDeviceIndex(v int) error { m.record("SetSPGDeviceIndex"); m.spgIdx = v; return nil }
func (m *mockAdapter) SPGDeviceIndex() (int, error) {
	return m.spgIdx, m.getErr["spg_device_index"]
}

func (m *mockAdapter) SetGrating(v string) error { m.record("SetGrating"); m.grating = v; return nil }
func (m *mockAdapter) Grating() (string, error)  { return m.grating, m.getErr["grating"] }
func (m *mockAdapter) SetCenterWavelength(v float64) error {
	m.record("SetCenterWavelength")
	m.centerWavelength = v
	return nil
}
func (m *mockAdapter) CenterWavelength() (float64, error) {
	return m.centerWavelength, m.getErr["center_wavelength"]
}

func (m *mockAdapter) SetPixelOffset(v float64) error { m.record("SetPixelOffset"); m.pixelOffset = v; return nil }
func (m *mockAdapter) PixelOffset() (float64, error)  { return m.pixelOffset, m.getErr["pixel_offset"] }
func (m *mockAdapter) SetWavelengthOffset(v float64) error {
	m.record("SetWavelengthOffset")
	m.wavelengthOffset = v
	return nil
}
func (m *mockAdapter) WavelengthOffset() (float64, error) {
	return m.wavelengthOffset, m.getErr["wavelength_offset"]
}

func (m *mockAdapter) SetInputPort(v string) error  { m.record("SetInputPort"); m.inputPort = v; return nil }
func (m *mockAdapter) InputPort() (string, error)   { return m.inputPort, m.getErr["input_port"] }
func (m *mockAdapter) SetOutputPort(v string) error { m.record("SetOutputPort"); m.outputPort = v; return nil }
func (m *mockAdapter) OutputPort() (string, error)  { return m.outputPort, m.getErr["output_port"] }

func (m *mockAdapter) SetReadMode(v string) error { m.record("SetReadMode"); m.readMode = v; return nil }
func (m *mockAdapter) ReadMode() (string, error)  { return m.readMode, m.getErr["read_mode"] }
func (m *mockAdapter) SetAcquisitionMode(v string) error {
	m.record("SetAcquisitionMode")
	m.acquisitionMode = v
	return nil
}
func (m *mockAdapter) AcquisitionMode() (string, error) {
	return m.acquisitionMode, m.getErr["acquisition_mode"]
}
func (m *mockAdapter) SetTriggerMode(v string) error { m.record("SetTriggerMode"); m.triggerMode = v; return nil }
func (m *mockAdapter) TriggerMode() (string, error)  { return m.triggerMode, m.getErr["trigger_mode"] }

func (m *mockAdapter) SetExposureTime(v float64) error {
	m.record("SetExposureTime")
	m.exposure = v
	return nil
}
func (m *mockAdapter) ExposureTime() (float64, error) { return m.exposure, m.getErr["exposure_time"] }
func (m *mockAdapter) SetNumberAccumulations(v int) error {
	m.record("SetNumberAccumulations")
	m.numAccumulations = v
	return nil
}
func (m *mockAdapter) NumberAccumulations() (int, error) {
	return m.numAccumulations, m.getErr["number_of_accumulations"]
}
func (m *mockAdapter) SetAccumulationCycleTime(v float64) error {
	m.record("SetAccumulationCycleTime")
	if m.clampCycles && v < m.exposure {
		v = m.exposure
	}
	m.accumulationCycle = v
	return nil
}
func (m *mockAdapter) AccumulationCycleTime() (float64, error) {
	return m.accumulationCycle, m.getErr["accumulation_cycle_time"]
}
func (m *mockAdapter) SetNumberKinetics(v int) error {
	m.record("SetNumberKinetics")
	m.numKinetics = v
	return nil
}
func (m *mockAdapter) NumberKinetics() (int, error) {
	return m.numKinetics, m.getErr["number_of_kinetics"]
}
func (m *mockAdapter) SetKineticCycleTime(v float64) error {
	m.record("SetKineticCycleTime")
	if m.clampCycles {
		if min := m.accumulationCycle * float64(m.numAccumulations); v < min {
			v = min
		}
	}
	m.kineticCycle = v
	return nil
}
func (m *mockAdapter) KineticCycleTime() (float64, error) {
	return m.kineticCycle, m.getErr["kinetic_cycle_time"]
}

func (m *mockAdapter) SetBaselineClamp(v bool) error { m.record("SetBaselineClamp"); m.baselineClamp = v; return nil }
func (m *mockAdapter) BaselineClamp() (bool, error)  { return m.baselineClamp, m.getErr["baseline_clamp"] }
func (m *mockAdapter) SetCosmicRayRemoval(v bool) error {
	m.record("SetCosmicRayRemoval")
	m.cosmicRayRemoval = v
	return nil
}
func (m *mockAdapter) CosmicRayRemoval() (bool, error) {
	return m.cosmicRayRemoval, m.getErr["cosmic_ray_removal"]
}
func (m *mockAdapter) SetKeepCleanOnExternalTrigger(v bool) error {
	m.record("SetKeepCleanOnExternalTrigger")
	m.keepClean = v
	return nil
}
func (m *mockAdapter) KeepCleanOnExternalTrigger() (bool, error) {
	return m.keepClean, m.getErr["keep_clean_on_external_trigger"]
}

func (m *mockAdapter) SetSingleTrack(p SingleTrackParams) error {
	m.record("SetSingleTrack")
	m.singleTrack = p
	return nil
}
func (m *mockAdapter) SingleTrack() (SingleTrackParams, error) {
	return m.singleTrack, m.getErr["single_track"]
}

func (m *mockAdapter) SetVerticalShiftSpeed(v float64) error {
	m.record("SetVerticalShiftSpeed")
	m.verticalShift = v
	return nil
}
func (m *mockAdapter) VerticalShiftSpeed() (float64, error) {
	return m.verticalShift, m.getErr["vertical_shift_speed"]
}
func (m *mockAdapter) SetADChannel(v int) error { m.record("SetADChannel"); m.adChannel = v; return nil }
func (m *mockAdapter) ADChannel() (int, error)  { return m.adChannel, m.getErr["ad_channel"] }
func (m *mockAdapter) SetOutputAmplifier(v int) error {
	m.record("SetOutputAmplifier")
	m.outputAmplifier = v
	return nil
}
func (m *mockAdapter) OutputAmplifier() (int, error) {
	return m.outputAmplifier, m.getErr["output_amplifier"]
}
func (m *mockAdapter) SetHorizontalShiftSpeed(v float64) error {
	m.record("SetHorizontalShiftSpeed")
	m.horizontalShift = v
	return nil
}
func (m *mockAdapter) HorizontalShiftSpeed() (float64, error) {
	return m.horizontalShift, m.getErr["horizontal_shift_speed"]
}
func (m *mockAdapter) SetPreAmpGain(v float64) error { m.record("SetPreAmpGain"); m.preAmpGain = v; return nil }
func (m *mockAdapter) PreAmpGain() (float64, error)  { return m.preAmpGain, m.getErr["pre_amp_gain"] }

func (m *mockAdapter) SetTemperatureSetPoint(v int) error {
	m.record("SetTemperatureSetPoint")
	m.tempSetPoint = v
	return nil
}
func (m *mockAdapter) TemperatureSetPoint() (int, error) {
	return m.tempSetPoint, m.getErr["target_sensor_temperature"]
}
func (m *mockAdapter) SetCooler(v bool) error { m.record("SetCooler"); m.cooler = v; return nil }
func (m *mockAdapter) Cooler() (bool, error)  { return m.cooler, m.getErr["cooler"] }
func (m *mockAdapter) SetCoolerPersistence(v bool) error {
	m.record("SetCoolerPersistence")
	m.coolerPersistence = v
	return nil
}
func (m *mockAdapter) CoolerPersistence() (bool, error) {
	return m.coolerPersistence, m.getErr["cooler_persistence"]
}

func (m *mockAdapter) Temperature() (float64, error) { return m.temperature, nil }

func (m *mockAdapter) WaitForTargetTemperature(ctx context.Context) error {
	m.record("WaitForTargetTemperature")
	select {
	case m.waitStarted <- struct{}{}:
	default:
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.temperature <= float64(m.tempSetPoint) {
				return nil
			}
		}
	}
}

func (m *mockAdapter) AbortAcquisition() error {
	m.record("AbortAcquisition")
	m.acquisitionAborted = true
	return nil
}

func (m *mockAdapter) Acquire(mode AcquisitionMode) ([][]float64, []float64, error) {
	m.record("Acquire")
	if !m.open {
		return nil, nil, errors.New("device not open")
	}
	const pixels = 8
	axis := make([]float64, pixels)
	for i := range axis {
		axis[i] = m.centerWavelength + float64(i-pixels/2)
	}

	n := 1
	if mode == ModeKinetics {
		n = m.numKinetics
		if n < 1 {
			n = 1
		}
	}
	frames := make([][]float64, n)
	for i := range frames {
		frames[i] = make([]float64, pixels)
		for j := range frames[i] {
			frames[i][j] = float64(i*pixels + j)
		}
	}
	return frames, axis, nil
}
