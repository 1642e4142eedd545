package scope

import "fmt"

var engUnits = [...]string{"ps", "ns", "us", "ms", "s", "Ks", "Ms", "Gs"}

// FormatEng formats a time in seconds with the nearest power-of-1000 unit,
// e.g. 1500e-6 as "1.50ms". Values beyond ps or Gs stay in those units.
func FormatEng(v float64) string {
	sign := 1.0
	if v < 0 {
		v, sign = -v, -1
	}
	pos := 0
	for v < 1 && pos >= -3 {
		pos--
		v *= 1000
	}
	for v >= 1000 && pos <= 2 {
		pos++
		v /= 1000
	}
	return fmt.Sprintf("%3.2f%s", v*sign, engUnits[pos+4])
}
