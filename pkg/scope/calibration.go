package scope

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// NumRanges is the number of volts/div presets with their own zero offset.
const NumRanges = 6

// CalibrationFile is the default calibration file name in the home
// directory.
const CalibrationFile = ".scope"

// CalibrationTable holds the per-range zero offset corrections of both
// channels (raw counts, -128..127) and the global full-scale correction.
type CalibrationTable struct {
	Zero        [2][NumRanges]float64
	ScaleFactor float64
}

// DefaultCalibration returns an uncalibrated table: no offset correction
// and unity scale.
func DefaultCalibration() CalibrationTable {
	return CalibrationTable{ScaleFactor: 1}
}

// ZeroFor returns the zero correction of channel ch (1 or 2) at preset idx.
func (t *CalibrationTable) ZeroFor(ch, idx int) float64 {
	if idx < 0 || idx >= NumRanges {
		return 0
	}
	return t.Zero[chanIndex(ch)][idx]
}

func chanIndex(ch int) int {
	if ch == 2 {
		return 1
	}
	return 0
}

// WriteTo writes the table in the one-line text format: each range as a
// "ch1, ch2, " pair followed by the scale factor.
func (t *CalibrationTable) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for i := 0; i < NumRanges; i++ {
		fmt.Fprintf(&buf, "%f, %f, ", t.Zero[0][i], t.Zero[1][i])
	}
	fmt.Fprintf(&buf, "%f\r\n", t.ScaleFactor)
	return buf.WriteTo(w)
}

// ReadCalibration parses a table written by WriteTo. On any error the
// returned table holds the defaults.
func ReadCalibration(r io.Reader) (CalibrationTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return DefaultCalibration(), err
	}
	fields := strings.Split(strings.TrimSpace(string(data)), ",")
	const want = 2*NumRanges + 1
	if len(fields) != want {
		return DefaultCalibration(), fmt.Errorf("calibration: want %d values, got %d", want, len(fields))
	}

	var t CalibrationTable
	vals := make([]float64, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return DefaultCalibration(), fmt.Errorf("calibration: value %d: %w", i, err)
		}
		vals[i] = v
	}
	for i := 0; i < NumRanges; i++ {
		t.Zero[0][i] = vals[2*i]
		t.Zero[1][i] = vals[2*i+1]
	}
	t.ScaleFactor = vals[want-1]
	return t, nil
}

// DefaultCalibrationPath returns ~/.scope.
func DefaultCalibrationPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, CalibrationFile), nil
}

// LoadCalibration reads the table at path. A missing or malformed file is
// not fatal: the defaults are returned together with the error.
func LoadCalibration(path string) (CalibrationTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultCalibration(), err
	}
	defer f.Close()
	return ReadCalibration(f)
}

// SaveCalibration writes the table to path.
func SaveCalibration(path string, t *CalibrationTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
