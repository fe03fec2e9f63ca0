package server

import (
	"net/http"
	"sort"

	"spectrad/pkg/spectro"
)

// setupFields is the display order of the setup form, matching the write
// order of the reconciler.
var setupFields = []string{
	spectro.FieldCCDDeviceIndex,
	spectro.FieldSPGDeviceIndex,
	spectro.FieldGrating,
	spectro.FieldCenterWavelength,
	spectro.FieldPixelOffset,
	spectro.FieldWavelengthOffset,
	spectro.FieldInputPort,
	spectro.FieldOutputPort,
	spectro.FieldReadMode,
	spectro.FieldAcquisitionMode,
	spectro.FieldTriggerMode,
	spectro.FieldExposureTime,
	spectro.FieldNumberAccumulations,
	spectro.FieldAccumulationCycleTime,
	spectro.FieldNumberKinetics,
	spectro.FieldKineticCycleTime,
	spectro.FieldBaselineClamp,
	spectro.FieldCosmicRayRemoval,
	spectro.FieldKeepCleanOnExternalTrigger,
	spectro.FieldSingleTrackCenterRow,
	spectro.FieldSingleTrackHeight,
	spectro.FieldVerticalShiftSpeed,
	spectro.FieldHorizontalShiftSpeed,
	spectro.FieldPreAmpGain,
	spectro.FieldTargetSensorTemperature,
	spectro.FieldReachTemperatureBeforeAcq,
	spectro.FieldCooler,
	spectro.FieldCoolerPersistence,
}

type setupField struct {
	Name  string
	Value any
}

type setupData struct {
	Connected bool
	State     string
	Fields    []setupField
	Success   bool
	Error     string
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderSetupForm(w, false, "")

	case http.MethodPost:
		cfg, err := parseSetupForm(r)
		if err != nil {
			s.renderSetupForm(w, false, err.Error())
			return
		}

		s.logger.Infof("Setting configuration from setup form: %+v", cfg)
		s.mu.Lock()
		cfgErr := s.ctrl.Configure(cfg, !s.ctrl.Connected())
		snapshot := s.ctrl.CurrentConfiguration()
		s.mu.Unlock()

		if cfgErr != nil {
			s.renderSetupForm(w, false, cfgErr.Error())
			return
		}
		if err := s.store.SaveSnapshot(snapshot); err != nil {
			s.logger.Errorf("Failed to persist configuration snapshot: %v", err)
		}
		s.renderSetupForm(w, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderSetupForm(w http.ResponseWriter, success bool, errMsg string) {
	s.mu.Lock()
	cfg := s.ctrl.CurrentConfiguration()
	data := setupData{
		Connected: s.ctrl.Connected(),
		State:     s.ctrl.State(),
		Success:   success,
		Error:     errMsg,
	}
	s.mu.Unlock()

	for _, name := range setupFields {
		data.Fields = append(data.Fields, setupField{Name: name, Value: cfg[name]})
	}
	// Any field the device reported that the form does not know yet still
	// shows up at the end.
	var extra []string
	known := make(map[string]bool, len(setupFields))
	for _, name := range setupFields {
		known[name] = true
	}
	for name := range cfg {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		data.Fields = append(data.Fields, setupField{Name: name, Value: cfg[name]})
	}

	if err := s.tmpl.ExecuteTemplate(w, "setup.html", data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		s.logger.Errorf("Error rendering template: %v", err)
	}
}

// parseSetupForm turns the posted form into a partial configuration diff:
// empty inputs mean "retain current value". Values stay text; the reconciler
// converts and reports per-field errors.
func parseSetupForm(r *http.Request) (spectro.Config, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}

	cfg := make(spectro.Config)
	for _, name := range setupFields {
		value := r.FormValue(name)
		if value == "" || value == "None" {
			continue
		}
		cfg[name] = value
	}
	return cfg, nil
}
