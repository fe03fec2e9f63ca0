// Package simulator provides an in-process spectro.DeviceAdapter that mimics
// a cooled, grating-based imaging spectrometer head, including the hardware
// habit of silently re-deriving requested values. It is the adapter the
// server ships with until a vendor SDK binding is plugged in, and it backs
// the integration tests.
package simulator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"spectrad/pkg/spectro"
)

const (
	pixels         = 1024
	verticalPixels = 256

	minSetPoint = -120
	maxSetPoint = 20

	// readoutTime pads the minimum accumulation cycle: one frame cannot
	// cycle faster than exposure plus readout.
	readoutTime = 0.011

	ambient = 20.0
)

// ErrNotOpen is returned by any parameter call made before Connect.
var ErrNotOpen = errors.New("simulator: device not open")

// verticalShiftSpeeds and preAmpGains are the discrete menus a real head
// advertises; requested values snap to the nearest entry.
var (
	verticalShiftSpeeds = []float64{4.25, 8.25, 16.25, 32.25}
	preAmpGains         = []float64{1.0, 2.0, 4.0}
	readoutRates        = []float64{0.05, 1.0, 3.0}

	gratings = []string{
		"1: 600, 500nm",
		"2: 1200, 300nm",
		"3: 1800, 250nm",
	}
)

// Simulator implements spectro.DeviceAdapter.
type Simulator struct {
	open bool

	// FailConnect makes Connect refuse, for exercising the not-open paths.
	FailConnect bool

	// CoolRate is how many degrees the sensor moves toward the set point
	// per temperature poll. The tests raise it so waits finish quickly.
	CoolRate float64

	ccdIdx, spgIdx    int
	grating           string
	centerWavelength  float64
	pixelOffset       float64
	wavelengthOffset  float64
	inputPort         string
	outputPort        string
	readMode          string
	acquisitionMode   string
	triggerMode       string
	exposure          float64
	numAccumulations  int
	accumulationCycle float64
	numKinetics       int
	kineticCycle      float64
	baselineClamp     bool
	cosmicRayRemoval  bool
	keepClean         bool
	singleTrack       spectro.SingleTrackParams
	verticalShift     float64
	adChannel         int
	outputAmplifier   int
	horizontalShift   float64
	preAmpGain        float64
	tempSetPoint      int
	cooler            bool
	coolerPersistence bool
	temperature       float64

	rng    *rand.Rand
	logger log.FieldLogger
}

func New(logger log.FieldLogger) *Simulator {
	return &Simulator{
		CoolRate:         2.0,
		grating:          gratings[0],
		centerWavelength: 700,
		inputPort:        "DIRECT",
		outputPort:       "DIRECT",
		readMode:         "full_vertical_binning",
		acquisitionMode:  string(spectro.ModeSingleScan),
		triggerMode:      "internal",
		exposure:         0.1,
		numAccumulations: 1,
		numKinetics:      1,
		singleTrack:      spectro.SingleTrackParams{CenterRow: verticalPixels / 2, Height: 10},
		verticalShift:    verticalShiftSpeeds[0],
		horizontalShift:  readoutRates[0],
		preAmpGain:       preAmpGains[0],
		tempSetPoint:     -70,
		temperature:      ambient,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:           logger.WithField("component", "simulator"),
	}
}

func (s *Simulator) Connect() error {
	if s.FailConnect {
		return errors.New("simulator: connect refused")
	}
	// A real head takes seconds to initialize; keep a token of that.
	time.Sleep(10 * time.Millisecond)
	s.open = true
	s.logger.Info("Simulated spectrometer connected")
	return nil
}

func (s *Simulator) Disconnect() error {
	s.open = false
	if !s.coolerPersistence {
		s.cooler = false
	}
	s.logger.Info("Simulated spectrometer disconnected")
	return nil
}

func (s *Simulator) IsOpen() bool { return s.open }

func (s *Simulator) guard() error {
	if !s.open {
		return ErrNotOpen
	}
	return nil
}

func snap(value float64, menu []float64) float64 {
	best := menu[0]
	for _, option := range menu[1:] {
		if math.Abs(option-value) < math.Abs(best-value) {
			best = option
		}
	}
	return best
}

func (s *Simulator) SetCCDDeviceIndex(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < 0 {
		v = 0 // -1 means "first available"
	}
	s.ccdIdx = v
	return nil
}
func (s *Simulator) CCDDeviceIndex() (int, error) { return s.ccdIdx, s.guard() }

func (s *Simulator) SetSPGDeviceIndex(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < 0 {
		v = 0
	}
	s.spgIdx = v
	return nil
}
func (s *Simulator) SPGDeviceIndex() (int, error) { return s.spgIdx, s.guard() }

func (s *Simulator) SetGrating(v string) error {
	if err := s.guard(); err != nil {
		return err
	}
	for _, g := range gratings {
		if g == v {
			s.grating = v
			return nil
		}
	}
	// Unknown turret position: keep the current grating, like the hardware.
	s.logger.Warnf("Ignoring unknown grating %q", v)
	return nil
}
func (s *Simulator) Grating() (string, error) { return s.grating, s.guard() }

func (s *Simulator) SetCenterWavelength(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < 0 {
		v = 0
	}
	s.centerWavelength = v
	return nil
}
func (s *Simulator) CenterWavelength() (float64, error) { return s.centerWavelength, s.guard() }

func (s *Simulator) SetPixelOffset(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.pixelOffset = v
	return nil
}
func (s *Simulator) PixelOffset() (float64, error) { return s.pixelOffset, s.guard() }

func (s *Simulator) SetWavelengthOffset(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.wavelengthOffset = v
	return nil
}
func (s *Simulator) WavelengthOffset() (float64, error) { return s.wavelengthOffset, s.guard() }

func (s *Simulator) SetInputPort(v string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.inputPort = v
	return nil
}
func (s *Simulator) InputPort() (string, error) { return s.inputPort, s.guard() }

func (s *Simulator) SetOutputPort(v string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.outputPort = v
	return nil
}
func (s *Simulator) OutputPort() (string, error) { return s.outputPort, s.guard() }

func (s *Simulator) SetReadMode(v string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.readMode = v
	return nil
}
func (s *Simulator) ReadMode() (string, error) { return s.readMode, s.guard() }

func (s *Simulator) SetAcquisitionMode(v string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.acquisitionMode = v
	return nil
}
func (s *Simulator) AcquisitionMode() (string, error) { return s.acquisitionMode, s.guard() }

func (s *Simulator) SetTriggerMode(v string) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.triggerMode = v
	return nil
}
func (s *Simulator) TriggerMode() (string, error) { return s.triggerMode, s.guard() }

func (s *Simulator) SetExposureTime(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < 0 {
		v = 0
	}
	s.exposure = v
	return nil
}
func (s *Simulator) ExposureTime() (float64, error) { return s.exposure, s.guard() }

func (s *Simulator) SetNumberAccumulations(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < 1 {
		v = 1
	}
	s.numAccumulations = v
	return nil
}
func (s *Simulator) NumberAccumulations() (int, error) { return s.numAccumulations, s.guard() }

func (s *Simulator) SetAccumulationCycleTime(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	// The cycle can never undercut one exposure plus readout.
	if min := s.exposure + readoutTime; v < min {
		v = min
	}
	s.accumulationCycle = v
	return nil
}
func (s *Simulator) AccumulationCycleTime() (float64, error) { return s.accumulationCycle, s.guard() }

func (s *Simulator) SetNumberKinetics(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < 1 {
		v = 1
	}
	s.numKinetics = v
	return nil
}
func (s *Simulator) NumberKinetics() (int, error) { return s.numKinetics, s.guard() }

func (s *Simulator) SetKineticCycleTime(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	if min := s.accumulationCycle * float64(s.numAccumulations); v < min {
		v = min
	}
	s.kineticCycle = v
	return nil
}
func (s *Simulator) KineticCycleTime() (float64, error) { return s.kineticCycle, s.guard() }

func (s *Simulator) SetBaselineClamp(v bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.baselineClamp = v
	return nil
}
func (s *Simulator) BaselineClamp() (bool, error) { return s.baselineClamp, s.guard() }

func (s *Simulator) SetCosmicRayRemoval(v bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.cosmicRayRemoval = v
	return nil
}
func (s *Simulator) CosmicRayRemoval() (bool, error) { return s.cosmicRayRemoval, s.guard() }

func (s *Simulator) SetKeepCleanOnExternalTrigger(v bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.keepClean = v
	return nil
}
func (s *Simulator) KeepCleanOnExternalTrigger() (bool, error) { return s.keepClean, s.guard() }

func (s *Simulator) SetSingleTrack(p spectro.SingleTrackParams) error {
	if err := s.guard(); err != nil {
		return err
	}
	if p.CenterRow < 1 {
		p.CenterRow = 1
	}
	if p.CenterRow > verticalPixels {
		p.CenterRow = verticalPixels
	}
	if p.Height < 1 {
		p.Height = 1
	}
	if max := 2 * min(p.CenterRow-1, verticalPixels-p.CenterRow); p.Height > max && max > 0 {
		p.Height = max
	}
	s.singleTrack = p
	return nil
}
func (s *Simulator) SingleTrack() (spectro.SingleTrackParams, error) { return s.singleTrack, s.guard() }

func (s *Simulator) SetVerticalShiftSpeed(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.verticalShift = snap(v, verticalShiftSpeeds)
	return nil
}
func (s *Simulator) VerticalShiftSpeed() (float64, error) { return s.verticalShift, s.guard() }

func (s *Simulator) SetADChannel(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v != 0 && v != 1 {
		v = 0
	}
	s.adChannel = v
	return nil
}
func (s *Simulator) ADChannel() (int, error) { return s.adChannel, s.guard() }

func (s *Simulator) SetOutputAmplifier(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v != 0 && v != 1 {
		v = 0
	}
	s.outputAmplifier = v
	return nil
}
func (s *Simulator) OutputAmplifier() (int, error) { return s.outputAmplifier, s.guard() }

func (s *Simulator) SetHorizontalShiftSpeed(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.horizontalShift = snap(v, readoutRates)
	return nil
}
func (s *Simulator) HorizontalShiftSpeed() (float64, error) { return s.horizontalShift, s.guard() }

func (s *Simulator) SetPreAmpGain(v float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.preAmpGain = snap(v, preAmpGains)
	return nil
}
func (s *Simulator) PreAmpGain() (float64, error) { return s.preAmpGain, s.guard() }

func (s *Simulator) SetTemperatureSetPoint(v int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if v < minSetPoint {
		v = minSetPoint
	}
	if v > maxSetPoint {
		v = maxSetPoint
	}
	s.tempSetPoint = v
	return nil
}
func (s *Simulator) TemperatureSetPoint() (int, error) { return s.tempSetPoint, s.guard() }

func (s *Simulator) SetCooler(v bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.cooler = v
	return nil
}
func (s *Simulator) Cooler() (bool, error) { return s.cooler, s.guard() }

func (s *Simulator) SetCoolerPersistence(v bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.coolerPersistence = v
	return nil
}
func (s *Simulator) CoolerPersistence() (bool, error) { return s.coolerPersistence, s.guard() }

// Temperature ramps the sensor toward the set point (cooler on) or ambient
// (cooler off) and reports the new reading.
func (s *Simulator) Temperature() (float64, error) {
	target := ambient
	if s.cooler {
		target = float64(s.tempSetPoint)
	}
	diff := target - s.temperature
	if math.Abs(diff) <= s.CoolRate {
		s.temperature = target
	} else if diff > 0 {
		s.temperature += s.CoolRate
	} else {
		s.temperature -= s.CoolRate
	}
	return s.temperature, nil
}

// WaitForTargetTemperature polls the ramping sensor until it settles within
// one degree of the set point, or the context cancels the wait.
func (s *Simulator) WaitForTargetTemperature(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			temp, _ := s.Temperature()
			if math.Abs(temp-float64(s.tempSetPoint)) <= 1.0 {
				return nil
			}
		}
	}
}

func (s *Simulator) AbortAcquisition() error { return nil }

// Acquire synthesizes frames with a Gaussian emission line at the center
// wavelength, Poisson-ish noise, and a baseline, plus the linear wavelength
// axis of the current turret position.
func (s *Simulator) Acquire(mode spectro.AcquisitionMode) ([][]float64, []float64, error) {
	if err := s.guard(); err != nil {
		return nil, nil, err
	}

	// Dispersion narrows with groove density; the first grating covers
	// about 0.1 nm/pixel.
	dispersion := 0.1
	switch s.grating {
	case gratings[1]:
		dispersion = 0.05
	case gratings[2]:
		dispersion = 0.033
	}

	axis := make([]float64, pixels)
	for i := range axis {
		axis[i] = s.centerWavelength + dispersion*float64(i-pixels/2)
	}

	n := 1
	accumulations := 1
	switch mode {
	case spectro.ModeSingleScan:
	case spectro.ModeAccumulate:
		accumulations = s.numAccumulations
	case spectro.ModeKinetics:
		accumulations = s.numAccumulations
		n = s.numKinetics
	default:
		return nil, nil, errors.New("simulator: unknown acquisition mode")
	}

	signal := s.exposure * float64(accumulations) * 1000 * s.preAmpGain
	sigma := 20.0 * dispersion

	frames := make([][]float64, n)
	for f := range frames {
		frames[f] = make([]float64, pixels)
		for i := range frames[f] {
			delta := axis[i] - s.centerWavelength
			line := signal * math.Exp(-delta*delta/(2*sigma*sigma))
			noise := s.rng.NormFloat64() * math.Sqrt(line+100)
			baseline := 100.0
			if s.baselineClamp {
				baseline = 0
			}
			frames[f][i] = line + noise + baseline
		}
	}
	return frames, axis, nil
}
