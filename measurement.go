// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

// Converts raw receiver measurements into pseudoranges.

package gopsl

import (
	"fmt"
	"math"
	"sort"
)

// Receiver clock snapshot delivered once per epoch (android.location.GnssClock)
type RawClock struct {
	TimeNanos                       int64
	LeapSecond                      int
	TimeUncertaintyNanos            float64
	FullBiasNanos                   int64
	BiasNanos                       float64
	BiasUncertaintyNanos            float64
	DriftNanosPerSecond             float64
	DriftUncertaintyNanosPerSecond  float64
	HardwareClockDiscontinuityCount int
}

// Per-satellite raw measurement (android.location.GnssMeasurement)
type RawMeasurement struct {
	Svid                                      int
	ConstellationType                         int
	TimeOffsetNanos                           float64
	State                                     int
	ReceivedSvTimeNanos                       int64
	ReceivedSvTimeUncertaintyNanos            int64
	Cn0DbHz                                   float64
	PseudorangeRateMetersPerSecond            float64
	PseudorangeRateUncertaintyMetersPerSecond float64
	AccumulatedDeltaRangeState                int
	AccumulatedDeltaRangeMeters               float64
	AccumulatedDeltaRangeUncertaintyMeters    float64
	CarrierFrequencyHz                        float64
}

// One epoch of raw measurements
type Batch struct {
	Clock        RawClock
	Measurements []RawMeasurement
}

// One satellite's observation in a batch
type Measurement struct {
	ArrivalTimeSinceGpsWeekNs     int64
	ReceivedSvTimeNanos           int64
	AccumulatedDeltaRangeMeters   float64
	AccumulatedDeltaRangeValid    bool
	PseudorangeRateMps            float64
	PseudorangeRateUncertaintyMps float64
	Cn0DbHz                       float64
	DeltaRangeUncertaintyMeters   float64
	TimeOffsetNanos               float64
}

// Measurements indexed by PRN-1. nil means the satellite was not tracked in this epoch.
type MeasurementSlots [NUM_SLOTS]*Measurement

// Tracked PRNs, ascending
func (p *MeasurementSlots) Prns() []int {
	s := []int{}
	for i, m := range p {
		if m != nil {
			s = append(s, i+1)
		}
	}
	return s
}

func (p *MeasurementSlots) Get(prn int) *Measurement {
	if prn < 1 || prn > NUM_SLOTS {
		return nil
	}
	return p[prn-1]
}

// Receiver time of the epoch
type ReceiverTime struct {
	Week      int
	ArrivalNs int64   // Arrival time since GPS week start [ns]
	BiasNanos float64 // Sub-nanosecond receiver clock bias reported by the clock
	DayOfYear int
	TimeNanos int64 // Hardware clock time
}

// Arrival time since GPS week start [s]
func (p *ReceiverTime) Tow() float64 {
	return float64(p.ArrivalNs) * 1e-9
}

func (p *ReceiverTime) GTime() GTime {
	return GTime{Week: p.Week, Sec: p.Tow()}
}

// Pseudorange derived from one Measurement
type PseudorangeMeasurement struct {
	Prn               int
	PseudorangeMeters float64
	UncertaintyMeters float64
	Cn0DbHz           float64
}

// Whether a raw measurement passes the constellation, C/N0 and TOW-decoded filters
func IsUsable(m *RawMeasurement) bool {
	if m.ConstellationType != CONSTELLATION_GPS {
		return false
	}
	if m.Cn0DbHz < CN0_THRESHOLD_DBHZ {
		return false
	}
	if m.State&STATE_TOW_DECODED == 0 {
		return false
	}
	return m.Svid >= 1 && m.Svid <= NUM_SLOTS
}

// ComputeMeasurements converts a raw batch to per-slot measurements
//
// Parameters:
//   - batch: Raw clock and measurements of one epoch
//
// Returns:
//   - MeasurementSlots: Usable measurements indexed by PRN-1
//   - ReceiverTime: GPS week, arrival time and day of year of the epoch
//   - error: When the clock is not usable (full bias unknown)
func ComputeMeasurements(batch *Batch) (MeasurementSlots, ReceiverTime, error) {
	var slots MeasurementSlots
	var rt ReceiverTime

	clk := &batch.Clock
	if clk.FullBiasNanos == 0 {
		return slots, rt, fmt.Errorf("receiver clock full bias is not available")
	}
	gpsNs := clk.TimeNanos - clk.FullBiasNanos
	if gpsNs < 0 {
		return slots, rt, fmt.Errorf("invalid receiver clock. TimeNanos=%d, FullBiasNanos=%d", clk.TimeNanos, clk.FullBiasNanos)
	}
	gt := NewGTimeFromNanos(gpsNs)
	rt.Week = gt.Week
	rt.ArrivalNs = gpsNs % NANOS_IN_WEEK
	rt.BiasNanos = clk.BiasNanos
	rt.DayOfYear = gt.DayOfYear()
	rt.TimeNanos = clk.TimeNanos

	for i := range batch.Measurements {
		m := &batch.Measurements[i]
		if !IsUsable(m) {
			PrintD(3, "\tG%02d: not usable (cons=%d, cn0=%.1f, state=%#x)\n", m.Svid, m.ConstellationType, m.Cn0DbHz, m.State)
			continue
		}
		slots[m.Svid-1] = &Measurement{
			ArrivalTimeSinceGpsWeekNs:     rt.ArrivalNs,
			ReceivedSvTimeNanos:           m.ReceivedSvTimeNanos,
			AccumulatedDeltaRangeMeters:   m.AccumulatedDeltaRangeMeters,
			AccumulatedDeltaRangeValid:    m.AccumulatedDeltaRangeState&ADR_STATE_VALID != 0,
			PseudorangeRateMps:            m.PseudorangeRateMetersPerSecond,
			PseudorangeRateUncertaintyMps: m.PseudorangeRateUncertaintyMetersPerSecond,
			Cn0DbHz:                       m.Cn0DbHz,
			DeltaRangeUncertaintyMeters:   m.AccumulatedDeltaRangeUncertaintyMeters,
			TimeOffsetNanos:               m.TimeOffsetNanos,
		}
	}
	return slots, rt, nil
}

// Pseudorange [m] by the common reception time method. The result is corrected for week rollover
// between reception and transmission.
func ComputePseudorange(m *Measurement, biasNanos float64) float64 {
	// Integer part first so that the time of week does not eat the sub-nanosecond offsets
	dtNs := m.ArrivalTimeSinceGpsWeekNs - m.ReceivedSvTimeNanos
	if dtNs > NANOS_IN_WEEK/2 {
		dtNs -= NANOS_IN_WEEK
	} else if dtNs < -NANOS_IN_WEEK/2 {
		dtNs += NANOS_IN_WEEK
	}
	dt := (float64(dtNs) - m.TimeOffsetNanos - biasNanos) * 1e-9
	return dt * C
}

// Pseudorange uncertainty [m] from the code tracking loop thermal noise jitter
func PseudorangeUncertainty(cn0DbHz float64) float64 {
	snr := math.Pow(10, cn0DbHz/10)
	return C * CHIP_WIDTH_SEC * math.Sqrt(CORRELATOR_SPACING_CHP/(4*DLL_AVERAGING_TIME_SEC*snr))
}

// ComputePseudoranges derives one pseudorange per tracked slot, sorted by PRN
func ComputePseudoranges(slots *MeasurementSlots, biasNanos float64) []PseudorangeMeasurement {
	prs := []PseudorangeMeasurement{}
	for i, m := range slots {
		if m == nil {
			continue
		}
		prs = append(prs, PseudorangeMeasurement{
			Prn:               i + 1,
			PseudorangeMeters: ComputePseudorange(m, biasNanos),
			UncertaintyMeters: PseudorangeUncertainty(m.Cn0DbHz),
			Cn0DbHz:           m.Cn0DbHz,
		})
	}
	return prs
}

// Keep the n measurements with the strongest C/N0. The result is sorted by PRN.
func StrongestN(prs []PseudorangeMeasurement, n int) []PseudorangeMeasurement {
	if len(prs) <= n {
		return prs
	}
	s := make([]PseudorangeMeasurement, len(prs))
	copy(s, prs)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Cn0DbHz > s[j].Cn0DbHz })
	s = s[:n]
	sortByPrn(s)
	return s
}

func sortByPrn(prs []PseudorangeMeasurement) {
	sort.Slice(prs, func(i, j int) bool { return prs[i].Prn < prs[j].Prn })
}
