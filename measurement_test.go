// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"testing"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePseudorange(t *testing.T) {
	meas := &m.Measurement{
		ArrivalTimeSinceGpsWeekNs: 100_000_075_000_000,
		ReceivedSvTimeNanos:       100_000_000_000_000,
		TimeOffsetNanos:           0.25,
	}
	pr := m.ComputePseudorange(meas, 0.5)
	assert.InDelta(t, (75_000_000-0.75)*1e-9*m.C, pr, 1e-6)
}

func TestComputePseudorangeWeekRollover(t *testing.T) {
	// Transmitted at the end of the previous week, received in the new one
	meas := &m.Measurement{
		ArrivalTimeSinceGpsWeekNs: 50_000_000,
		ReceivedSvTimeNanos:       m.NANOS_IN_WEEK - 20_000_000,
	}
	assert.InDelta(t, 0.07*m.C, m.ComputePseudorange(meas, 0), 1e-6)
}

func TestPseudorangeUncertaintyDecreasesWithCn0(t *testing.T) {
	prev := m.PseudorangeUncertainty(10)
	for cn0 := 15.0; cn0 <= 50; cn0 += 5 {
		u := m.PseudorangeUncertainty(cn0)
		assert.Less(t, u, prev)
		assert.Greater(t, u, 0.0)
		prev = u
	}
	// 10 dB more signal reduces the jitter by sqrt(10)
	assert.InDelta(t, m.PseudorangeUncertainty(30)/3.16227766, m.PseudorangeUncertainty(40), 1e-9)
}

func TestIsUsable(t *testing.T) {
	ok := m.RawMeasurement{Svid: 7, ConstellationType: m.CONSTELLATION_GPS, Cn0DbHz: 30, State: m.STATE_TOW_DECODED}
	assert.True(t, m.IsUsable(&ok))

	weak := ok
	weak.Cn0DbHz = m.CN0_THRESHOLD_DBHZ - 0.1
	assert.False(t, m.IsUsable(&weak))

	glo := ok
	glo.ConstellationType = 3
	assert.False(t, m.IsUsable(&glo))

	notDecoded := ok
	notDecoded.State = 1
	assert.False(t, m.IsUsable(&notDecoded))

	outOfRange := ok
	outOfRange.Svid = 33
	assert.False(t, m.IsUsable(&outOfRange))
}

func TestComputeMeasurements(t *testing.T) {
	fx := newConventionalFixture(nil)
	clk := fx.clock(0)
	b := fx.sim.Batch(clk, fx.usr)
	b.Measurements = append(b.Measurements, m.RawMeasurement{Svid: 31, ConstellationType: m.CONSTELLATION_GPS, Cn0DbHz: 10, State: m.STATE_TOW_DECODED})

	slots, rt, err := m.ComputeMeasurements(b)
	require.NoError(t, err)
	assert.Equal(t, fx.gt.Week, rt.Week)
	assert.Equal(t, clk%m.NANOS_IN_WEEK, rt.ArrivalNs)
	assert.Nil(t, slots.Get(31))
	assert.Len(t, slots.Prns(), len(m.DEFAULT_SKY))

	// Round trip through the raw encoding keeps the pseudoranges
	want, _ := fx.sim.Pseudoranges(clk, fx.usr)
	got := m.ComputePseudoranges(&slots, rt.BiasNanos)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Prn, got[i].Prn)
		assert.InDelta(t, want[i].PseudorangeMeters, got[i].PseudorangeMeters, 1e-4)
	}
}

func TestComputeMeasurementsWithoutFullBias(t *testing.T) {
	_, _, err := m.ComputeMeasurements(&m.Batch{Clock: m.RawClock{TimeNanos: 1000}})
	assert.Error(t, err)
}

func TestStrongestN(t *testing.T) {
	prs := []m.PseudorangeMeasurement{{Prn: 5, Cn0DbHz: 30}, {Prn: 2, Cn0DbHz: 40}, {Prn: 9, Cn0DbHz: 35}}
	s := m.StrongestN(prs, 2)
	require.Len(t, s, 2)
	assert.Equal(t, 2, s[0].Prn)
	assert.Equal(t, 9, s[1].Prn)
	assert.Len(t, m.StrongestN(prs, 5), 3)
}

func TestWrapWeek(t *testing.T) {
	g := m.WrapWeek(-1.5, 2300)
	assert.Equal(t, 2299, g.Week)
	assert.InDelta(t, m.SECONDS_IN_WEEK-1.5, g.Sec, 1e-9)

	g = m.WrapWeek(m.SECONDS_IN_WEEK+2, 2300)
	assert.Equal(t, 2301, g.Week)
	assert.InDelta(t, 2.0, g.Sec, 1e-9)

	g = m.WrapWeek(1000, 2300)
	assert.Equal(t, m.GTime{Week: 2300, Sec: 1000}, g)
}

func TestGTimeFromNanos(t *testing.T) {
	gt := testTime()
	ns := int64(gt.Week)*m.NANOS_IN_WEEK + int64(gt.Sec)*1_000_000_000
	back := m.NewGTimeFromNanos(ns)
	assert.Equal(t, gt.Week, back.Week)
	assert.InDelta(t, gt.Sec, back.Sec, 1e-9)
	assert.Equal(t, 2025, back.ToTime().Year())
}
