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

// Range growing 10 m/s with +-1 m alternating code noise
func noisyEpoch(k int) (float64, []m.PseudorangeMeasurement, *m.MeasurementSlots) {
	truth := 2.2e7 + 10*float64(k)
	noise := 1.0
	if k%2 == 1 {
		noise = -1.0
	}
	var slots m.MeasurementSlots
	slots[4] = &m.Measurement{
		AccumulatedDeltaRangeMeters: 10 * float64(k),
		AccumulatedDeltaRangeValid:  true,
		PseudorangeRateMps:          10,
		Cn0DbHz:                     35,
	}
	return truth, []m.PseudorangeMeasurement{{Prn: 5, PseudorangeMeters: truth + noise, Cn0DbHz: 35}}, &slots
}

func TestSmoothersReduceNoise(t *testing.T) {
	for _, name := range []string{"carrier", "doppler"} {
		t.Run(name, func(t *testing.T) {
			s, err := m.NewSmoother(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())

			var truth float64
			var out []m.PseudorangeMeasurement
			for k := 0; k < 10; k++ {
				tr, prs, slots := noisyEpoch(k)
				out = s.Smooth(100+float64(k), prs, slots)
				truth = tr
			}
			require.Len(t, out, 1)
			assert.InDelta(t, truth, out[0].PseudorangeMeters, 1e-6)
		})
	}
}

func TestSmootherRestartsAfterGap(t *testing.T) {
	s := m.NewCarrierPhaseSmoother()
	for k := 0; k < 5; k++ {
		_, prs, slots := noisyEpoch(k)
		s.Smooth(100+float64(k), prs, slots)
	}
	_, prs, slots := noisyEpoch(10)
	out := s.Smooth(110, prs, slots)
	assert.Equal(t, prs[0].PseudorangeMeters, out[0].PseudorangeMeters)
}

func TestSmootherInvalidAdr(t *testing.T) {
	s := m.NewCarrierPhaseSmoother()
	_, prs, slots := noisyEpoch(0)
	s.Smooth(100, prs, slots)
	_, prs, slots = noisyEpoch(1)
	slots[4].AccumulatedDeltaRangeValid = false
	out := s.Smooth(101, prs, slots)
	assert.Equal(t, prs[0].PseudorangeMeters, out[0].PseudorangeMeters)
}

func TestNoSmoothing(t *testing.T) {
	s, err := m.NewSmoother("")
	require.NoError(t, err)
	_, prs, slots := noisyEpoch(3)
	assert.Equal(t, prs, s.Smooth(0, prs, slots))

	_, err = m.NewSmoother("kalman")
	assert.Error(t, err)

	var v m.SmootherVar
	assert.NoError(t, v.Set("Doppler"))
	assert.Equal(t, "doppler", v.String())
}
