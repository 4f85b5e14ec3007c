package indicator

import "signal-systemv1/internal/model"

// VolumeProfile tracks average volume and buckets the latest candle's
// volume into a high/normal/low regime against that average.
type VolumeProfile struct {
	avg      *SMA
	highMult float64
	lowMult  float64
	last     float64
}

// NewVolumeProfile creates a volume profiler with an SMA of the given
// period and the high/low regime multipliers (e.g. 1.5 and 0.5).
func NewVolumeProfile(period int, highMult, lowMult float64) *VolumeProfile {
	return &VolumeProfile{avg: NewSMA(period), highMult: highMult, lowMult: lowMult}
}

func (v *VolumeProfile) Update(c model.Candle) {
	v.avg.Update(c.Volume)
	v.last = c.Volume
}

// Avg returns the moving-average volume.
func (v *VolumeProfile) Avg() float64 { return v.avg.Value() }

// Ready is true once the average has a full window.
func (v *VolumeProfile) Ready() bool { return v.avg.Ready() }

// Regime classifies the latest volume against the average.
func (v *VolumeProfile) Regime() model.VolumeRegime {
	if !v.Ready() {
		return model.VolumeUnknown
	}
	avg := v.Avg()
	switch {
	case avg > 0 && v.last >= v.highMult*avg:
		return model.VolumeHigh
	case avg > 0 && v.last <= v.lowMult*avg:
		return model.VolumeLow
	default:
		return model.VolumeNormal
	}
}

// VolumeProfileState serializes the profiler state for checkpoint
// persistence.
type VolumeProfileState struct {
	Avg      SMAState `json:"avg"`
	HighMult float64  `json:"high_mult"`
	LowMult  float64  `json:"low_mult"`
	Last     float64  `json:"last"`
}

// State serializes the profiler state.
func (v *VolumeProfile) State() VolumeProfileState {
	return VolumeProfileState{Avg: v.avg.State(), HighMult: v.highMult, LowMult: v.lowMult, Last: v.last}
}

// Restore replaces the profiler state from a checkpoint.
func (v *VolumeProfile) Restore(st VolumeProfileState) {
	v.avg.Restore(st.Avg)
	v.highMult = st.HighMult
	v.lowMult = st.LowMult
	v.last = st.Last
}
