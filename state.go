package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dso/pkg/scope"
)

// autoWithhold is the number of untriggered frames skipped in a row before
// Auto free-runs, so a slow signal still gets a chance to trigger.
const autoWithhold = 5

var errStopped = errors.New("acquisition stopped")

// Trace is one displayed frame: the valid part of the reconstructed
// waveforms and its time axis.
type Trace struct {
	Seq        uint64    `json:"seq"`
	Trigger    int       `json:"trigger"`
	TriggerPos float64   `json:"trigger_pos"`
	Time       []float64 `json:"t"`
	CH1        []float64 `json:"ch1,omitempty"`
	CH2        []float64 `json:"ch2,omitempty"`
}

// ChannelUpdate changes the fields that are set.
type ChannelUpdate struct {
	Enabled *bool    `json:"enabled"`
	Invert  *bool    `json:"invert"`
	Glitch  *bool    `json:"glitch"`
	Offset  *float64 `json:"offset"`
	Preset  *int     `json:"preset"`
}

// Session owns the scope configuration and turns published frames into
// traces. The acquisition loop only sees the settings snapshot pushed to it
// by syncLoop.
type Session struct {
	mu sync.Mutex

	acq     scope.AcquisitionConfig
	ch      [2]scope.ChannelConfig
	cal     scope.CalibrationTable
	calPath string
	edge    scope.Edge
	holdoff time.Duration

	dev    scope.Device
	loop   *scope.Loop
	rec    *scope.Reconstructor
	calib  *scope.Calibrator
	logger *log.Logger

	y1, y2, x []float64
	withheld  int
	last      *Trace
}

// NewSession applies cfg and creates the acquisition loop on dev. The loop
// is not started.
func NewSession(cfg Config, dev scope.Device, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		dev:     dev,
		calPath: cfg.Calibration,
		holdoff: cfg.Holdoff,
		logger:  logger,
	}

	if s.calPath == "" {
		if p, err := scope.DefaultCalibrationPath(); err == nil {
			s.calPath = p
		}
	}
	cal, err := scope.LoadCalibration(s.calPath)
	if err != nil {
		logger.Warn("using default calibration", "path", s.calPath, "err", err)
	}
	s.cal = cal

	if s.acq, err = scope.AcquisitionAt(cfg.Timebase); err != nil {
		return nil, err
	}
	s.acq.Mode, _ = scope.ParseMode(cfg.Mode)
	s.acq.TriggerChannel = cfg.Trigger.Channel
	s.acq.TriggerVolts = cfg.Trigger.Volts
	s.acq.ChannelAdd = cfg.ChannelAdd
	s.acq.SetDelay(cfg.Trigger.Delay)
	s.edge, _ = parseEdge(cfg.Trigger.Edge)

	for i := range s.ch {
		s.ch[i] = scope.DefaultChannel(i+1, &s.cal)
		if i < len(cfg.Channels) {
			c := cfg.Channels[i]
			if err := s.ch[i].ApplyPreset(i+1, c.Preset, &s.cal); err != nil {
				return nil, err
			}
			s.ch[i].VOffset = c.Offset
			s.ch[i].Enabled = c.Enabled
			s.ch[i].Inverted = c.Invert
			s.ch[i].Glitch = c.Glitch
		}
		if err := dev.SelectRange(i+1, s.ch[i].Range); err != nil {
			return nil, fmt.Errorf("select CH%d range: %w", i+1, err)
		}
	}
	s.ch[s.acq.TriggerIndex()].Enabled = true
	if err := s.programRate(); err != nil {
		return nil, err
	}

	s.rec = scope.NewReconstructor(scope.MinDepth)
	s.y1 = make([]float64, scope.MinDepth)
	s.y2 = make([]float64, scope.MinDepth)
	s.x = make([]float64, scope.MinDepth)
	s.calib = &scope.Calibrator{
		Table:  &s.cal,
		Dev:    dev,
		Save:   s.saveCalibration,
		Logger: logger,
	}
	s.loop = scope.NewLoop(dev, s.loopSettings(),
		scope.WithLogger(logger), scope.WithArena(scope.NewArena(int(cfg.Buffer)/2)))

	if cfg.Run {
		s.Arm()
	}
	return s, nil
}

// Loop returns the acquisition loop feeding the session.
func (s *Session) Loop() *scope.Loop { return s.loop }

func (s *Session) saveCalibration(t *scope.CalibrationTable) error {
	if s.calPath == "" {
		return errors.New("no calibration path")
	}
	return scope.SaveCalibration(s.calPath, t)
}

func (s *Session) programRate() error {
	rs, ok := s.dev.(scope.RateSetter)
	if !ok {
		return nil
	}
	if err := rs.SetSampleRate(s.acq.Rate); err != nil {
		return fmt.Errorf("set sample rate: %w", err)
	}
	return nil
}

func (s *Session) loopSettings() scope.LoopSettings {
	idx := s.acq.TriggerIndex()
	return scope.LoopSettings{
		Depth:   s.acq.MemDepth,
		Channel: idx,
		Edge:    s.edge,
		Level:   scope.TriggerLevel(s.acq.TriggerVolts, &s.ch[idx]),
		Holdoff: s.holdoff,
	}
}

// syncLoop pushes the settings and swap mode to the loop. A Single capture
// in flight keeps its mode; the loop drops it to Hold by itself.
func (s *Session) syncLoop() {
	s.loop.Configure(s.loopSettings())
	switch {
	case s.acq.Status != scope.Run:
		s.loop.SetMode(scope.Hold)
	case s.acq.Mode != scope.Single:
		s.loop.SetMode(s.acq.Mode)
	}
}

// Arm toggles between running and stopped. Arming in Single waits for one
// triggered frame.
func (s *Session) Arm() scope.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked()
	return s.acq.Status
}

func (s *Session) armLocked() {
	if s.acq.Status == scope.Stop {
		s.acq.Status = scope.Run
		s.withheld = 0
		s.loop.Configure(s.loopSettings())
		s.loop.SetMode(s.acq.Mode)
		return
	}
	s.acq.Status = scope.Stop
	s.loop.SetMode(scope.Hold)
}

// SetMode selects Auto, Normal or Single and starts acquiring.
func (s *Session) SetMode(m scope.Mode) error {
	if m == scope.Hold {
		return errors.New("hold is not a selectable mode")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calib.Active() {
		return scope.ErrCalibrationBusy
	}
	s.acq.Mode = m
	s.acq.Status = scope.Stop
	s.armLocked()
	return nil
}

// SetTimebase switches the horizontal sweep and reprograms the sample rate.
func (s *Session) SetTimebase(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acq.ApplyTimebase(idx); err != nil {
		return err
	}
	if err := s.programRate(); err != nil {
		return err
	}
	s.syncLoop()
	s.refreshLocked()
	return nil
}

// SetTrigger sets the trigger source, slope and level. The source channel
// is switched on.
func (s *Session) SetTrigger(channel int, edge scope.Edge, volts float64) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("trigger channel %d", channel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acq.TriggerChannel = channel
	s.acq.TriggerVolts = volts
	s.edge = edge
	s.ch[channel-1].Enabled = true
	s.syncLoop()
	return nil
}

// SetDelay sets the post-trigger delay in seconds.
func (s *Session) SetDelay(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("negative delay %g", seconds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acq.SetDelay(seconds)
	s.refreshLocked()
	return nil
}

// SetHoldoff sets the pause between acquisitions.
func (s *Session) SetHoldoff(d time.Duration) error {
	if d < 0 || d > 200*time.Millisecond {
		return fmt.Errorf("holdoff %v out of range 0..200ms", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdoff = d
	s.syncLoop()
	return nil
}

// SetChannelAdd adds channel 2 into channel 1.
func (s *Session) SetChannelAdd(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acq.ChannelAdd = on
	s.refreshLocked()
}

// UpdateChannel changes the vertical settings of channel 1 or 2.
func (s *Session) UpdateChannel(channel int, u ChannelUpdate) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("no channel %d", channel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.ch[channel-1]

	if u.Preset != nil {
		if s.calib.Active() {
			return scope.ErrCalibrationBusy
		}
		next := *c
		if err := next.ApplyPreset(channel, *u.Preset, &s.cal); err != nil {
			return err
		}
		if err := s.dev.SelectRange(channel, next.Range); err != nil {
			return fmt.Errorf("select CH%d range: %w", channel, err)
		}
		*c = next
	}
	if u.Enabled != nil {
		c.Enabled = *u.Enabled
	}
	if u.Invert != nil {
		c.Inverted = *u.Invert
	}
	if u.Glitch != nil {
		c.Glitch = *u.Glitch
	}
	if u.Offset != nil {
		c.VOffset = max(-1, min(1, *u.Offset))
	}
	s.syncLoop()
	s.refreshLocked()
	return nil
}

// Calibrate starts the offset null. Both inputs must be grounded; it runs
// over the next few displayed frames.
func (s *Session) Calibrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.calib.Start(&s.acq); err != nil {
		return err
	}
	s.acq.Status = scope.Run
	s.withheld = 0
	s.syncLoop()
	s.logger.Info("offset null started")
	return nil
}

// Update renders the published frame. It is called on every loop
// notification and reports whether a new trace was produced.
func (s *Session) Update() (*Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acq.Status != scope.Run {
		return nil, errStopped
	}
	return s.updateLocked()
}

// refreshLocked redraws the stored trace after a setting changed while the
// display is not being fed by the loop.
func (s *Session) refreshLocked() {
	if s.acq.Status == scope.Stop || s.acq.Mode == scope.Single {
		if _, err := s.updateLocked(); err != nil {
			s.logger.Debug("refresh", "err", err)
		}
	}
}

func (s *Session) updateLocked() (*Trace, error) {
	if s.acq.Mode == scope.Single {
		if s.acq.Status == scope.Run && s.loop.Mode() == scope.Hold {
			s.acq.Status = scope.Stop
		}
	} else {
		s.syncLoop()
	}

	arena := s.loop.Arena()
	f := arena.Acquire()
	if f == nil {
		return nil, scope.ErrNoFrame
	}
	defer arena.Release(f)

	if f.Trigger == 0 {
		if s.withheld < autoWithhold {
			s.withheld++
			return nil, nil
		}
	} else {
		s.withheld = 0
	}

	trigger, err := s.rec.PostTriggerWaveforms(s.y1, s.y2, s.x, f.Data,
		&s.acq, &s.ch[0], &s.ch[1], f.Trigger, f.Edge)
	if err != nil {
		return nil, err
	}

	if s.calib.Active() {
		done, err := s.calib.Step(f.Data, &s.acq, &s.ch[0], &s.ch[1])
		if err != nil {
			s.logger.Error("offset null", "err", err)
		}
		if done {
			s.syncLoop()
			s.logger.Info("offset null completed", "ch1", s.ch[0].Zero, "ch2", s.ch[1].Zero)
		}
	}

	first, last := s.rec.Span()
	tr := &Trace{
		Seq:        f.Seq,
		Trigger:    trigger,
		TriggerPos: s.rec.TriggerPosition(),
		Time:       append([]float64(nil), s.x[first:last]...),
	}
	if s.ch[0].Enabled {
		tr.CH1 = append([]float64(nil), s.y1[first:last]...)
	}
	if s.ch[1].Enabled {
		tr.CH2 = append([]float64(nil), s.y2[first:last]...)
	}
	s.last = tr
	return tr, nil
}

// LastTrace returns the most recent trace, or nil.
func (s *Session) LastTrace() *Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Snapshot returns copies of the configuration for exports.
func (s *Session) Snapshot() (scope.AcquisitionConfig, scope.ChannelConfig, scope.ChannelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acq, s.ch[0], s.ch[1]
}

// ChannelView is the API form of a channel setting.
type ChannelView struct {
	Enabled     bool    `json:"enabled"`
	Invert      bool    `json:"invert"`
	Glitch      bool    `json:"glitch"`
	Offset      float64 `json:"offset"`
	Preset      int     `json:"preset"`
	VoltsPerDiv float64 `json:"volts_per_div"`
	Range       string  `json:"range"`
	Zero        float64 `json:"zero"`
}

// StateView is the API form of the session.
type StateView struct {
	Status         string         `json:"status"`
	Mode           string         `json:"mode"`
	Timebase       int            `json:"timebase"`
	TimebaseLabel  string         `json:"timebase_label"`
	TriggerChannel int            `json:"trigger_channel"`
	Edge           string         `json:"edge"`
	TriggerVolts   float64        `json:"trigger_volts"`
	Delay          float64        `json:"delay"`
	DelayLabel     string         `json:"delay_label"`
	Holdoff        string         `json:"holdoff_label"`
	ChannelAdd     bool           `json:"channel_add"`
	Channels       [2]ChannelView `json:"channels"`
	Calibrating    string         `json:"calibrating"`
	CalStage       [2]int         `json:"cal_stage"`
	Frame          uint64         `json:"frame"`
}

func (s *Session) State() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := StateView{
		Status:         s.acq.Status.String(),
		Mode:           s.acq.Mode.String(),
		Timebase:       s.acq.Timebase,
		TimebaseLabel:  scope.Timebases[s.acq.Timebase].Label,
		TriggerChannel: s.acq.TriggerChannel,
		Edge:           s.edge.String(),
		TriggerVolts:   s.acq.TriggerVolts,
		Delay:          s.acq.Delay(),
		DelayLabel:     scope.FormatEng(s.acq.Delay()),
		Holdoff:        scope.FormatEng(s.holdoff.Seconds()),
		ChannelAdd:     s.acq.ChannelAdd,
		Calibrating:    s.calib.Phase().String(),
	}
	done, total := s.calib.Progress()
	v.CalStage = [2]int{done, total}
	for i, c := range s.ch {
		v.Channels[i] = ChannelView{
			Enabled:     c.Enabled,
			Invert:      c.Inverted,
			Glitch:      c.Glitch,
			Offset:      c.VOffset,
			Preset:      c.RangeIndex,
			VoltsPerDiv: c.VoltsPerDiv,
			Range:       c.Range.String(),
			Zero:        c.Zero,
		}
	}
	if f := s.loop.Arena().Current(); f != nil {
		v.Frame = f.Seq
	}
	return v
}
