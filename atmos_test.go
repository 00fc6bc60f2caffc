// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"math"
	"testing"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
)

// Satellite 20000 km away in the north at the given elevation
func satAt(usr m.PosXYZ, elevDeg float64) m.PosXYZ {
	el := m.ToRad(elevDeg)
	enu := m.PosENU{N: 2e7 * math.Cos(el), U: 2e7 * math.Sin(el)}
	return enu.ToXYZ(usr)
}

func TestTropEgnos(t *testing.T) {
	usr := testUser()
	trop := m.NewTropEgnos(m.FixedElevation(0))
	zenith := trop.Delay(usr, satAt(usr, 90), 180)
	assert.Greater(t, zenith, 2.2)
	assert.Less(t, zenith, 2.7)

	low := trop.Delay(usr, satAt(usr, 10), 180)
	assert.InDelta(t, 5.6, low/zenith, 0.3)
	assert.Equal(t, 0.0, trop.Delay(usr, satAt(usr, -5), 180))

	gh, ok := trop.GeoidHeight()
	assert.True(t, ok)
	assert.InDelta(t, 40.0, gh, 1e-3)
}

func TestTropEgnosWithoutElevationSource(t *testing.T) {
	usr := testUser()
	high := m.NewPosLLHDeg(35.681, 139.767, 3040).ToXYZ()

	// The first call happens far from the user, as in an early solver iteration
	first := m.NewTropEgnos(nil)
	first.Delay(high, satAt(high, 60), 180)
	fresh := m.NewTropEgnos(nil)
	assert.Equal(t, fresh.Delay(usr, satAt(usr, 60), 180), first.Delay(usr, satAt(usr, 60), 180))

	gh, ok := first.GeoidHeight()
	assert.True(t, ok)
	assert.Equal(t, 0.0, gh)

	// Sea level is the ellipsoid, so a higher site sees a shorter path
	assert.Less(t, first.Delay(high, satAt(high, 90), 180), first.Delay(usr, satAt(usr, 90), 180))
}

func TestTropSaastamoinen(t *testing.T) {
	usr := testUser()
	trop := &m.TropSaastamoinen{Humidity: 0.7}
	zenith := trop.Delay(usr, satAt(usr, 90), 0)
	assert.Greater(t, zenith, 2.2)
	assert.Less(t, zenith, 2.7)
	assert.Greater(t, trop.Delay(usr, satAt(usr, 20), 0), zenith)
}

func TestIonoKlobuchar(t *testing.T) {
	usr := testUser()
	iono := m.DEFAULT_IONO
	tow := 3*86400 + 5*3600.0 // Local early afternoon in Tokyo

	assert.Equal(t, 0.0, m.IonoKlobuchar(usr, satAt(usr, 60), tow, nil, m.L1))
	assert.Equal(t, 0.0, m.IonoKlobuchar(usr, satAt(usr, -1), tow, &iono, m.L1))

	high := m.IonoKlobuchar(usr, satAt(usr, 80), tow, &iono, m.L1) * m.C
	low := m.IonoKlobuchar(usr, satAt(usr, 15), tow, &iono, m.L1) * m.C
	assert.Greater(t, high, 1.0)
	assert.Less(t, high, 30.0)
	assert.Greater(t, low, high)

	// Dispersive: scales with 1/f^2
	l5 := 1176.45e6
	assert.InDelta(t, high*math.Pow(m.L1/l5, 2), m.IonoKlobuchar(usr, satAt(usr, 80), tow, &iono, l5)*m.C, 1e-9)
}
