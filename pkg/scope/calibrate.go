package scope

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// ErrCalibrationBusy is returned when a calibration is started while one is
// running.
var ErrCalibrationBusy = errors.New("calibration already running")

// CalPhase is the state of an offset calibration.
type CalPhase int

const (
	CalIdle CalPhase = iota
	CalSettling
	CalAveraging
	CalFinalizing
)

func (p CalPhase) String() string {
	switch p {
	case CalIdle:
		return "idle"
	case CalSettling:
		return "settling"
	case CalAveraging:
		return "averaging"
	case CalFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("calphase(%d)", int(p))
}

// calStages are the presets measured, one per physical attenuator stage.
// Presets 0 and 5 share a stage with 1 and 4 and are copied at the end.
var calStages = [...]int{4, 3, 2, 1}

const (
	// calSkip is the number of leading sample pairs excluded from the
	// average.
	calSkip = 8
	// calSamples is the number of sample pairs averaged per channel.
	calSamples = 256
)

// Calibrator nulls the input offsets with both inputs grounded. It is
// driven by Step once per displayed frame and must only be used from the
// goroutine that owns the configuration.
type Calibrator struct {
	Table *CalibrationTable
	Dev   Device
	// Save persists the finished table. A failure is logged; the new
	// offsets stay in effect.
	Save func(*CalibrationTable) error
	// SettleFrames is the number of frames skipped after a range change.
	SettleFrames int
	Logger       *log.Logger

	phase     CalPhase
	stage     int
	wait      int
	savedMode Mode
}

// Phase returns the current state.
func (c *Calibrator) Phase() CalPhase { return c.phase }

// Active reports whether a calibration is in progress.
func (c *Calibrator) Active() bool { return c.phase != CalIdle }

// Progress returns the number of stages measured so far and the total.
func (c *Calibrator) Progress() (done, total int) {
	if c.phase == CalFinalizing {
		return len(calStages), len(calStages)
	}
	return c.stage, len(calStages)
}

func (c *Calibrator) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Start begins a calibration: the mode is saved and forced to Auto so every
// frame is delivered, and the first stage's range is selected.
func (c *Calibrator) Start(acq *AcquisitionConfig) error {
	if c.Active() {
		return ErrCalibrationBusy
	}
	c.savedMode = acq.Mode
	acq.Mode = Auto
	c.stage = 0
	if err := c.selectStage(); err != nil {
		acq.Mode = c.savedMode
		return err
	}
	return nil
}

func (c *Calibrator) selectStage() error {
	r := Presets[calStages[c.stage]].Range
	for ch := 1; ch <= 2; ch++ {
		if err := c.Dev.SelectRange(ch, r); err != nil {
			return fmt.Errorf("calibration: select %v on channel %d: %w", r, ch, err)
		}
	}
	c.phase = CalSettling
	c.wait = max(c.SettleFrames, 1)
	return nil
}

// Step advances the calibration by one frame. raw is the frame just
// displayed. It reports true when the calibration has finished, at which
// point the channel ranges, zero offsets and mode have been restored.
func (c *Calibrator) Step(raw []byte, acq *AcquisitionConfig, ch1, ch2 *ChannelConfig) (bool, error) {
	switch c.phase {
	case CalSettling:
		c.wait--
		if c.wait <= 0 {
			c.phase = CalAveraging
		}

	case CalAveraging:
		if len(raw) < 2*(calSkip+calSamples) {
			return false, fmt.Errorf("calibration: frame of %d bytes too short", len(raw))
		}
		z1, z2 := averageZero(raw)
		idx := calStages[c.stage]
		c.Table.Zero[0][idx] = z1
		c.Table.Zero[1][idx] = z2
		c.logger().Debug("offset measured", "range", Presets[idx].Range, "ch1", z1, "ch2", z2)

		c.stage++
		if c.stage == len(calStages) {
			c.phase = CalFinalizing
			return false, nil
		}
		if err := c.selectStage(); err != nil {
			return false, err
		}

	case CalFinalizing:
		return true, c.finish(acq, ch1, ch2)
	}
	return false, nil
}

func (c *Calibrator) finish(acq *AcquisitionConfig, ch1, ch2 *ChannelConfig) error {
	t := c.Table
	for ch := range t.Zero {
		t.Zero[ch][5] = t.Zero[ch][4]
		t.Zero[ch][0] = t.Zero[ch][1]
	}
	if c.Save != nil {
		if err := c.Save(t); err != nil {
			c.logger().Warn("calibration not saved", "err", err)
		}
	}

	c.phase = CalIdle
	acq.Mode = c.savedMode
	ch1.Zero = t.ZeroFor(1, ch1.RangeIndex)
	ch2.Zero = t.ZeroFor(2, ch2.RangeIndex)

	if err := c.Dev.SelectRange(1, ch1.Range); err != nil {
		return fmt.Errorf("calibration: restore channel 1: %w", err)
	}
	if err := c.Dev.SelectRange(2, ch2.Range); err != nil {
		return fmt.Errorf("calibration: restore channel 2: %w", err)
	}
	return nil
}

// averageZero returns the mean offset from mid-scale of both channels.
func averageZero(raw []byte) (float64, float64) {
	var s1, s2 int
	for i := calSkip; i < calSkip+calSamples; i++ {
		s1 += int(raw[2*i])
		s2 += int(raw[2*i+1])
	}
	return float64(s1)/calSamples - 128, float64(s2)/calSamples - 128
}
