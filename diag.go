// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"math"
)

// Diagnostic pseudorange series of one epoch, indexed by PRN-1.
// Slots without data in the epoch hold NaN.
type Diagnostics struct {
	Seq uint64 // Incremented for every published snapshot
	Tow float64

	Cn0 [NUM_SLOTS]float64 // [dB-Hz]

	Raw       [NUM_SLOTS]float64 // Measured pseudoranges [m]
	RawChange [NUM_SLOTS]float64 // Raw minus its first observed value [m]
	RawRate   [NUM_SLOTS]float64 // [m/s]

	AntToSat       [NUM_SLOTS]float64 // Satellite to outdoor antenna pseudoranges [m]
	AntToSatChange [NUM_SLOTS]float64
	AntToSatRate   [NUM_SLOTS]float64

	AntToUser       [NUM_SLOTS]float64 // Indoor antenna to user ranges [m]
	AntToUserChange [NUM_SLOTS]float64
	AntToUserRate   [NUM_SLOTS]float64
}

func NewDiagnostics() *Diagnostics {
	n := nanSlots()
	return &Diagnostics{
		Cn0: n, Raw: n, RawChange: n, RawRate: n,
		AntToSat: n, AntToSatChange: n, AntToSatRate: n,
		AntToUser: n, AntToUserChange: n, AntToUserRate: n,
	}
}

// Named series for plots and sinks
func (p *Diagnostics) Series() map[string]*[NUM_SLOTS]float64 {
	return map[string]*[NUM_SLOTS]float64{
		"cn0":             &p.Cn0,
		"raw":             &p.Raw,
		"rawChange":       &p.RawChange,
		"rawRate":         &p.RawRate,
		"antToSat":        &p.AntToSat,
		"antToSatChange":  &p.AntToSatChange,
		"antToSatRate":    &p.AntToSatRate,
		"antToUser":       &p.AntToUser,
		"antToUserChange": &p.AntToUserChange,
		"antToUserRate":   &p.AntToUserRate,
	}
}

// First and previous values of one series
type seriesTrack struct {
	first [NUM_SLOTS]float64
	prev  [NUM_SLOTS]float64
	prevT [NUM_SLOTS]float64
}

func newSeriesTrack() seriesTrack {
	return seriesTrack{first: nanSlots(), prev: nanSlots(), prevT: nanSlots()}
}

// Update slot i with value v observed at t, returning change and rate
func (s *seriesTrack) update(i int, v, t float64) (change, rate float64) {
	if math.IsNaN(s.first[i]) {
		s.first[i] = v
	}
	change = v - s.first[i]
	rate = math.NaN()
	if !math.IsNaN(s.prevT[i]) && t != s.prevT[i] {
		rate = (v - s.prev[i]) / towDiff(t, s.prevT[i])
	}
	s.prev[i] = v
	s.prevT[i] = t
	return
}

// diagTracker builds Diagnostics snapshots. It is owned by one session worker.
type diagTracker struct {
	seq       uint64
	raw       seriesTrack
	antToSat  seriesTrack
	antToUser seriesTrack
}

func newDiagTracker() *diagTracker {
	return &diagTracker{raw: newSeriesTrack(), antToSat: newSeriesTrack(), antToUser: newSeriesTrack()}
}

// snapshot records one epoch. psl may be nil (conventional mode or failed stage 1).
func (p *diagTracker) snapshot(t float64, prs []PseudorangeMeasurement, psl *PslSol) *Diagnostics {
	d := NewDiagnostics()
	p.seq++
	d.Seq = p.seq
	d.Tow = t

	for _, pr := range prs {
		i := pr.Prn - 1
		d.Cn0[i] = pr.Cn0DbHz
		d.Raw[i] = pr.PseudorangeMeters
		d.RawChange[i], d.RawRate[i] = p.raw.update(i, pr.PseudorangeMeters, t)
	}

	if psl == nil {
		return d
	}
	for k, prn := range psl.Sats {
		i := prn - 1
		if k < len(psl.SatToAnt) && !math.IsNaN(psl.SatToAnt[k]) {
			d.AntToSat[i] = psl.SatToAnt[k]
			d.AntToSatChange[i], d.AntToSatRate[i] = p.antToSat.update(i, psl.SatToAnt[k], t)
		}
		if k < len(psl.AntToUser) && !math.IsNaN(psl.AntToUser[k]) {
			d.AntToUser[i] = psl.AntToUser[k]
			d.AntToUserChange[i], d.AntToUserRate[i] = p.antToUser.update(i, psl.AntToUser[k], t)
		}
	}
	return d
}
