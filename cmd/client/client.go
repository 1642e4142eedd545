// client connects to a dso server, prints the scope state and decodes the
// trace stream.
package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

// trace mirrors the server's binary trace message.
type trace struct {
	seq        uint32
	trigger    int32
	triggerPos float32
	blocks     map[byte][]float32
}

func decodeTrace(b []byte) (*trace, error) {
	if len(b) < 16 || b[0] != 'T' {
		return nil, errors.New("not a trace message")
	}
	n := int(binary.LittleEndian.Uint16(b[2:]))
	tr := &trace{
		seq:        binary.LittleEndian.Uint32(b[4:]),
		trigger:    int32(binary.LittleEndian.Uint32(b[8:])),
		triggerPos: math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
		blocks:     make(map[byte][]float32),
	}
	off := 16
	for i := 0; i < int(b[1]); i++ {
		if off+1+4*n > len(b) {
			return nil, fmt.Errorf("trace %d truncated", tr.seq)
		}
		id := b[off]
		off++
		v := make([]float32, n)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
		tr.blocks[id] = v
	}
	return tr, nil
}

func span(v []float32) (lo, hi float32) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi = v[0], v[0]
	for _, x := range v {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}

func main() {
	host := pflag.StringP("host", "H", "localhost:8080", "Server address")
	count := pflag.IntP("count", "n", 50, "Traces to receive before exiting")
	arm := pflag.Bool("arm", false, "Toggle run/stop after connecting")
	mode := pflag.StringP("mode", "m", "", "Switch the trigger mode after connecting")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "client"})

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("dial", "url", u.String(), "err", err)
	}
	defer c.Close()

	if *arm {
		c.WriteJSON(map[string]string{"type": "arm"})
	}
	if *mode != "" {
		c.WriteJSON(map[string]string{"type": "mode", "mode": *mode})
	}

	for got := 0; got < *count; {
		kind, msg, err := c.ReadMessage()
		if err != nil {
			logger.Error("read", "err", err)
			return
		}
		if kind == websocket.TextMessage {
			var m struct {
				Type  string          `json:"type"`
				Error string          `json:"error"`
				State json.RawMessage `json:"state"`
			}
			if err := json.Unmarshal(msg, &m); err != nil {
				logger.Warn("bad message", "err", err)
				continue
			}
			if m.Type == "error" {
				logger.Warn("server error", "err", m.Error)
				continue
			}
			logger.Info(m.Type, "state", string(m.State))
			continue
		}

		tr, err := decodeTrace(msg)
		if err != nil {
			logger.Warn("bad trace", "err", err)
			continue
		}
		got++
		lo1, hi1 := span(tr.blocks[1])
		lo2, hi2 := span(tr.blocks[2])
		logger.Info("trace",
			"seq", tr.seq,
			"samples", len(tr.blocks[0]),
			"trigger", tr.trigger,
			"trigger_pos", tr.triggerPos,
			"ch1", fmt.Sprintf("%.3f..%.3f V", lo1, hi1),
			"ch2", fmt.Sprintf("%.3f..%.3f V", lo2, hi2),
		)
	}
}
