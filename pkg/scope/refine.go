package scope

// RefineTrigger finds where the trigger channel's trace y (screen units, in
// the instrument's polarity) crosses the trigger level and returns that
// position as a fractional index, interpolating linearly between the two
// samples around the crossing. It returns 0 when y holds no crossing.
func RefineTrigger(y []float64, edge Edge, ch *ChannelConfig, acq *AcquisitionConfig) float64 {
	level := acq.TriggerVolts/(4*ch.VoltsPerDiv) + ch.VOffset

	i := 16
	if !acq.Upsampled() {
		i = TriggerGuard / max(acq.SubSample, 1)
	}
	i = max(i, 1)

	n := len(y)
	if edge == Rising {
		for ; i < n && y[i] >= level; i++ {
		}
		for ; i < n && y[i] < level; i++ {
		}
	} else {
		for ; i < n && y[i] <= level; i++ {
		}
		for ; i < n && y[i] > level; i++ {
		}
	}

	if i >= n {
		return 0
	}
	return float64(i) - (y[i]-level)/(y[i]-y[i-1])
}
