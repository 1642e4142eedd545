package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dso/pkg/scope"
)

// API Handlers

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), 400)
		return false
	}
	return true
}

// reply answers a control request with the new state, or the error.
func (s *Server) reply(w http.ResponseWriter, err error) {
	if err != nil {
		code := 400
		if errors.Is(err, scope.ErrCalibrationBusy) || errors.Is(err, scope.ErrTimebaseLocked) {
			code = 409
		}
		http.Error(w, err.Error(), code)
		return
	}
	s.broadcastState()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"state":   s.sess.State(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.sess.State())
}

func (s *Server) handleTimebases(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Index      int     `json:"index"`
		TimePerDiv float64 `json:"time_per_div"`
		Label      string  `json:"label"`
		Div        string  `json:"div"`
	}
	out := make([]entry, len(scope.Timebases))
	for i, tb := range scope.Timebases {
		out[i] = entry{i, tb.TimePerDiv, tb.Label, scope.FormatEng(tb.TimePerDiv)}
	}
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	tr := s.sess.LastTrace()
	if tr == nil {
		http.Error(w, "no trace yet", 404)
		return
	}
	json.NewEncoder(w).Encode(tr)
}

// handleSpectrum transforms one channel of the last trace (?ch=1|2).
func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	tr := s.sess.LastTrace()
	if tr == nil || len(tr.Time) < 2 {
		http.Error(w, "no trace yet", 404)
		return
	}
	y := tr.CH1
	if r.URL.Query().Get("ch") == "2" {
		y = tr.CH2
	}
	if y == nil {
		http.Error(w, "channel disabled", 400)
		return
	}
	sp, err := computeSpectrum(y, tr.Time[1]-tr.Time[0])
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	json.NewEncoder(w).Encode(sp)
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	s.sess.Arm()
	s.reply(w, nil)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	m, err := scope.ParseMode(req.Mode)
	if err == nil {
		err = s.sess.SetMode(m)
	}
	s.reply(w, err)
}

func (s *Server) handleTimebase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.reply(w, s.sess.SetTimebase(req.Index))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel int     `json:"channel"`
		Edge    string  `json:"edge"`
		Volts   float64 `json:"volts"`
	}
	if !decode(w, r, &req) {
		return
	}
	edge, err := parseEdge(req.Edge)
	if err == nil {
		err = s.sess.SetTrigger(req.Channel, edge, req.Volts)
	}
	s.reply(w, err)
}

func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.reply(w, s.sess.SetDelay(req.Seconds))
}

func (s *Server) handleHoldoff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MS float64 `json:"ms"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.reply(w, s.sess.SetHoldoff(time.Duration(req.MS*float64(time.Millisecond))))
}

func (s *Server) handleChannelAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.sess.SetChannelAdd(req.Enabled)
	s.reply(w, nil)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		http.Error(w, "bad channel", 400)
		return
	}
	var req ChannelUpdate
	if !decode(w, r, &req) {
		return
	}
	s.reply(w, s.sess.UpdateChannel(n, req))
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.sess.Calibrate())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.exporter.Export(s.sess, req.Format, time.Now())
	if err != nil {
		code := 500
		if errors.Is(err, scope.ErrNoFrame) || errors.Is(err, errFormat) {
			code = 400
		}
		http.Error(w, err.Error(), code)
		return
	}
	s.logger.Info("trace exported", "file", res.Path, "id", res.ID)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"file":    res.Path,
		"id":      res.ID,
		"samples": res.Samples,
	})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frames int `json:"frames"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Frames < 0 {
		http.Error(w, "Invalid frame count", 400)
		return
	}
	path := s.exporter.Name(time.Now(), ".zst")
	if err := s.recorder.Start(path, req.Frames); err != nil {
		code := 500
		if errors.Is(err, errRecording) {
			code = 409
		}
		http.Error(w, err.Error(), code)
		return
	}
	st := s.recorder.Status()
	s.hub.Broadcast(map[string]interface{}{"type": "recording_status", "status": st})
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"filename": st.File,
	})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.recorder.Stop()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	s.hub.Broadcast(map[string]interface{}{"type": "recording_status", "status": st})
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"status":  st,
	})
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.recorder.Status())
}
