package spectro

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type connState int

const (
	stateClosed connState = iota
	stateOpening
	stateOpen
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Controller owns the connection to one physical spectrometer and the
// last-known configuration for it. Its entry points are synchronous and may
// block for the duration of a device round-trip; they are not internally
// locked, so concurrent callers must serialize (one mutex around all public
// calls, as the HTTP server does).
type Controller struct {
	adapter DeviceAdapter
	store   *Store
	state   connState
	lastErr error

	// cancelWait ends the pending temperature wait, if one is running.
	// Stop is the one entry point allowed to arrive while Start blocks, so
	// the handle gets its own lock.
	waitMu     sync.Mutex
	cancelWait context.CancelFunc

	lastSpectrum    [][]float64
	lastWavelengths []float64

	logger log.FieldLogger
}

// New creates a controller for the given device adapter. The configuration
// store starts empty; the first Configure or the first post-connect read-back
// populates it.
func New(adapter DeviceAdapter, logger log.FieldLogger) *Controller {
	return &Controller{
		adapter: adapter,
		store:   NewStore(),
		state:   stateClosed,
		logger:  logger.WithField("component", "spectro"),
	}
}

// State reports the current connection state as a string, for status
// surfaces.
func (c *Controller) State() string { return c.state.String() }

// Connected reports whether the controller holds a live connection.
func (c *Controller) Connected() bool { return c.state == stateOpen }

// Err returns the error recorded by the most recent failed Open or Close.
func (c *Controller) Err() error { return c.lastErr }

// CurrentConfiguration returns a read-only snapshot of the last-known
// configuration. The device may have clamped requested values, so this can
// legitimately diverge from any prior Configure input.
func (c *Controller) CurrentConfiguration() Config { return c.store.Snapshot() }

// Open establishes the device connection. Idempotent: opening an already
// open controller is a no-op returning true. On success the last-known
// configuration, if any, is re-applied so the freshly connected hardware
// matches the settings chosen before the previous disconnect. Failure is
// reported through the return value and Err(), never a panic.
func (c *Controller) Open() bool {
	if c.state == stateOpen {
		return true
	}

	c.logger.Info("Opening spectrometer")
	c.state = stateOpening
	if err := c.adapter.Connect(); err != nil {
		c.lastErr = err
		c.state = stateClosed
		c.logger.Errorf("Opening spectrometer failed: %v", err)
		return false
	}
	c.state = stateOpen
	c.lastErr = nil
	c.logger.Info("Opening spectrometer was successful")

	if !c.store.Empty() {
		// The hardware forgets its settings on power-down; push the last
		// configuration back. The connection already exists, so no
		// open/close cycle around the call.
		if err := c.Configure(c.store.Snapshot(), false); err != nil {
			c.logger.Errorf("Re-applying stored configuration failed: %v", err)
		} else {
			c.logger.Info("Latest configuration settings were re-applied")
		}
	}
	return true
}

// Close tears the connection down. Idempotent: closing a closed controller
// returns true immediately. Any in-flight acquisition is aborted first. The
// state is Closed afterwards even if the adapter reports a failure, so a
// subsequent Open always starts fresh.
func (c *Controller) Close() bool {
	if c.state == stateClosed {
		c.logger.Debug("Spectrometer is already closed")
		return true
	}

	c.logger.Info("Closing spectrometer")
	c.state = stateClosing

	ok := true
	if err := c.adapter.AbortAcquisition(); err != nil {
		c.logger.Warnf("Aborting acquisition failed: %v", err)
	}
	if err := c.adapter.Disconnect(); err != nil {
		c.lastErr = err
		c.logger.Errorf("Closing spectrometer failed: %v", err)
		ok = false
	}
	c.state = stateClosed
	return ok
}

// Start prepares the controller for an acquisition sequence: it opens the
// connection and, if reach_temperature_before_acquisition is set, blocks
// until the sensor has stabilized at the set point or Stop cancels the wait.
// An open failure returns a ConnectionError so the caller's acquisition loop
// can retry on its next cycle instead of crashing.
func (c *Controller) Start() error {
	c.logger.Info("Starting controller")
	if !c.Open() || c.state != stateOpen {
		return &ConnectionError{Err: c.lastErr}
	}

	wait := false
	if v, ok := c.store.Get(FieldReachTemperatureBeforeAcq); ok && v != nil {
		b, err := asBool(FieldReachTemperatureBeforeAcq, v)
		if err != nil {
			return err
		}
		wait = b
	}
	if !wait {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.waitMu.Lock()
	c.cancelWait = cancel
	c.waitMu.Unlock()
	defer func() {
		cancel()
		c.waitMu.Lock()
		c.cancelWait = nil
		c.waitMu.Unlock()
	}()

	c.logger.Info("Waiting for sensor to reach target temperature")
	if err := c.adapter.WaitForTargetTemperature(ctx); err != nil {
		if ctx.Err() != nil {
			c.logger.Info("Temperature wait cancelled")
			return nil
		}
		return err
	}
	c.logger.Info("Sensor reached target temperature")
	return nil
}

// Stop ends the acquisition sequence: it cancels a pending temperature wait,
// if any. It does not abort an acquisition already underway (the current
// unit of work is allowed to finish) and does not close the connection;
// closing belongs to the explicit shutdown path.
func (c *Controller) Stop() {
	c.logger.Info("Stopping controller")
	c.waitMu.Lock()
	if c.cancelWait != nil {
		c.cancelWait()
	}
	c.waitMu.Unlock()
}

// Temperature reports the live sensor temperature.
func (c *Controller) Temperature() (float64, error) {
	return c.adapter.Temperature()
}
