package scope

import (
	"bufio"
	"fmt"
	"io"
)

// TraceHeader is the first line of an exported trace.
const TraceHeader = "T(s),CH1(V),CH2(V)"

// TraceSample is one exported sample pair.
type TraceSample struct {
	Time float64
	CH1  float64
	CH2  float64
}

// TraceSamples converts the first depth sample pairs of raw to volts with
// the live calibration of both channels. Sample i is at i*interval.
func TraceSamples(raw []byte, depth int, interval float64, ch1, ch2 *ChannelConfig) []TraceSample {
	depth = max(min(depth, len(raw)/2), 0)
	out := make([]TraceSample, depth)
	for i := range out {
		out[i] = TraceSample{
			Time: float64(i) * interval,
			CH1:  ch1.Volts(raw[2*i]),
			CH2:  ch2.Volts(raw[2*i+1]),
		}
	}
	return out
}

// WriteTrace writes the raw frame as CSV, one CRLF terminated row per
// sample pair.
func WriteTrace(w io.Writer, raw []byte, depth int, interval float64, ch1, ch2 *ChannelConfig) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, TraceHeader+"\r\n")
	for _, s := range TraceSamples(raw, depth, interval, ch1, ch2) {
		fmt.Fprintf(bw, "%E,%5.4f,%5.4f\r\n", s.Time, s.CH1, s.CH2)
	}
	return bw.Flush()
}
