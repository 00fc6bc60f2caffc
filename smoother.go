// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"fmt"
	"strings"
)

// Pseudorange smoothing strategy
type Smoother interface {
	// Smooth returns smoothed pseudoranges. t is the arrival time of the epoch [s], slots holds the raw
	// measurements the pseudoranges were derived from.
	Smooth(t float64, prs []PseudorangeMeasurement, slots *MeasurementSlots) []PseudorangeMeasurement
	Name() string
}

// NoSmoothing returns pseudoranges as they are
type NoSmoothing struct{}

func (NoSmoothing) Smooth(_ float64, prs []PseudorangeMeasurement, _ *MeasurementSlots) []PseudorangeMeasurement {
	return prs
}

func (NoSmoothing) Name() string { return "none" }

// ------------------------------------
// Hatch filter
// ------------------------------------

const (
	DEFAULT_SMOOTHING_WINDOW = 100 // Maximum number of epochs averaged
	DEFAULT_MAX_GAP_SEC      = 1.5 // Filter restarts when epochs are further apart than this [s]
)

type hatchState struct {
	sm    float64 // Smoothed pseudorange [m]
	n     int     // Number of epochs in the filter
	t     float64 // Time of the last update [s]
	adr   float64 // Last accumulated delta range [m]
	rate  float64 // Last pseudorange rate [m/s]
	valid bool
}

// Hatch filter driven by a range-delta source
type hatchSmoother struct {
	Window    int
	MaxGapSec float64
	states    [NUM_SLOTS]hatchState
	useAdr    bool
}

func (p *hatchSmoother) Smooth(t float64, prs []PseudorangeMeasurement, slots *MeasurementSlots) []PseudorangeMeasurement {
	out := make([]PseudorangeMeasurement, len(prs))
	seen := [NUM_SLOTS]bool{}
	for i, pr := range prs {
		out[i] = pr
		m := slots.Get(pr.Prn)
		if m == nil {
			continue
		}
		seen[pr.Prn-1] = true
		st := &p.states[pr.Prn-1]

		// Range change since the previous epoch
		delta, ok := 0.0, false
		dt := t - st.t
		if st.valid && dt > 0 && dt <= p.MaxGapSec {
			if p.useAdr {
				if m.AccumulatedDeltaRangeValid {
					delta, ok = m.AccumulatedDeltaRangeMeters-st.adr, true
				}
			} else {
				delta, ok = (m.PseudorangeRateMps+st.rate)/2*dt, true
			}
		}

		if ok {
			if st.n < p.Window {
				st.n++
			}
			n := float64(st.n)
			st.sm = pr.PseudorangeMeters/n + (n-1)/n*(st.sm+delta)
		} else {
			st.n = 1
			st.sm = pr.PseudorangeMeters
		}
		st.t = t
		st.adr = m.AccumulatedDeltaRangeMeters
		st.rate = m.PseudorangeRateMps
		st.valid = !p.useAdr || m.AccumulatedDeltaRangeValid
		out[i].PseudorangeMeters = st.sm
	}

	// Lost satellites restart
	for i := range p.states {
		if !seen[i] {
			p.states[i] = hatchState{}
		}
	}
	return out
}

// Carrier phase (accumulated delta range) smoothing
type CarrierPhaseSmoother struct {
	hatchSmoother
}

func NewCarrierPhaseSmoother() *CarrierPhaseSmoother {
	return &CarrierPhaseSmoother{hatchSmoother{Window: DEFAULT_SMOOTHING_WINDOW, MaxGapSec: DEFAULT_MAX_GAP_SEC, useAdr: true}}
}

func (p *CarrierPhaseSmoother) Name() string { return "carrier" }

// Doppler (pseudorange rate) smoothing
type DopplerSmoother struct {
	hatchSmoother
}

func NewDopplerSmoother() *DopplerSmoother {
	return &DopplerSmoother{hatchSmoother{Window: DEFAULT_SMOOTHING_WINDOW, MaxGapSec: DEFAULT_MAX_GAP_SEC, useAdr: false}}
}

func (p *DopplerSmoother) Name() string { return "doppler" }

// Smoother by name: "none", "carrier" or "doppler"
func NewSmoother(name string) (Smoother, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return NoSmoothing{}, nil
	case "carrier", "cp":
		return NewCarrierPhaseSmoother(), nil
	case "doppler":
		return NewDopplerSmoother(), nil
	}
	return nil, fmt.Errorf("unknown smoother: %s", name)
}

// Smoother name for command arguments
type SmootherVar string

func (p *SmootherVar) Set(s string) error {
	if _, err := NewSmoother(s); err != nil {
		return err
	}
	*p = SmootherVar(strings.ToLower(s))
	return nil
}

func (p *SmootherVar) String() string {
	if p == nil {
		return ""
	}
	return string(*p)
}
