// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"errors"
	"math"
	"testing"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcWlsConvergesToTruth(t *testing.T) {
	fx := newConventionalFixture(nil)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)
	require.Len(t, prs, len(m.DEFAULT_SKY))

	sol, err := m.CalcWls(prs, fx.nav, rt, m.PositionSolution{}, nil)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.InDelta(fx.usr.X, sol.Pos.X, 1e-3)
	assert.InDelta(fx.usr.Y, sol.Pos.Y, 1e-3)
	assert.InDelta(fx.usr.Z, sol.Pos.Z, 1e-3)
	assert.InDelta(fx.sim.Opt.BiasMeters, sol.Bias, 1e-3)
	assert.Less(sol.Iter, 100)
	assert.Len(sol.Sats, len(prs))
	for _, r := range sol.Res {
		assert.InDelta(0, r, 1e-3)
	}
	assert.Greater(sol.Dop["gdop"], sol.Dop["pdop"])
}

func TestCalcWlsSeededFromPrevious(t *testing.T) {
	fx := newConventionalFixture(nil)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)
	first, err := m.CalcWls(prs, fx.nav, rt, m.PositionSolution{}, nil)
	require.NoError(t, err)

	prs, rt = fx.sim.Pseudoranges(fx.clock(1), fx.usr)
	second, err := m.CalcWls(prs, fx.nav, rt, first.Solution(), nil)
	require.NoError(t, err)
	assert.InDelta(t, fx.usr.X, second.Pos.X, 1e-3)
	assert.LessOrEqual(t, second.Iter, first.Iter)
}

func TestCalcWlsNaNSeed(t *testing.T) {
	fx := newConventionalFixture(nil)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)
	sol, err := m.CalcWls(prs, fx.nav, rt, m.NaNSolution(), nil)
	require.NoError(t, err)
	assert.InDelta(t, fx.usr.Z, sol.Pos.Z, 1e-3)
}

func TestCalcWlsInsufficientSatellites(t *testing.T) {
	opt := m.NewSimOpt()
	opt.Prns = []int{2, 5, 7}
	fx := newConventionalFixture(opt)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)
	require.Len(t, prs, 3)

	sol, err := m.CalcWls(prs, fx.nav, rt, m.PositionSolution{}, nil)
	assert.Nil(t, sol)
	assert.True(t, errors.Is(err, m.ErrInsufficientSatellites))
}

func TestCalcWlsSkipsSatelliteWithoutEphemeris(t *testing.T) {
	fx := newConventionalFixture(nil)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)

	// Navigation data without the last satellite
	nav := m.SyntheticNav(fx.gt, fx.usr, m.DEFAULT_SKY[:len(m.DEFAULT_SKY)-1])
	sol, err := m.CalcWls(prs, nav, rt, m.PositionSolution{}, nil)
	require.NoError(t, err)

	rows, cols := sol.DesMat.Dims()
	assert.Equal(t, len(m.DEFAULT_SKY)-1, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, -1, sol.Index(m.DEFAULT_SKY[len(m.DEFAULT_SKY)-1].Prn))
	assert.InDelta(t, fx.usr.X, sol.Pos.X, 1e-3)
}

func TestCalcWlsNotConverged(t *testing.T) {
	fx := newConventionalFixture(nil)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)
	opt := m.NewWlsOpt()
	opt.MaxIterations = 1

	_, err := m.CalcWls(prs, fx.nav, rt, m.PositionSolution{}, opt)
	assert.True(t, errors.Is(err, m.ErrNotConverged))
}

func TestCalcWlsAtmospheric(t *testing.T) {
	opt := m.NewSimOpt()
	opt.Atmospheric = true
	fx := newConventionalFixture(opt)
	prs, rt := fx.sim.Pseudoranges(fx.clock(0), fx.usr)

	// Without corrections the iono/tropo delays bias the solution
	plain, err := m.CalcWls(prs, fx.nav, rt, m.PositionSolution{}, nil)
	require.NoError(t, err)
	assert.False(t, plain.DoAtmospheric)
	errPlain := m.EucDist(&plain.Pos, &fx.usr)

	wopt := m.NewWlsOpt()
	wopt.AtmosphericSwitchMeters = 1000
	corr, err := m.CalcWls(prs, fx.nav, rt, m.PositionSolution{}, wopt)
	require.NoError(t, err)
	assert.True(t, corr.DoAtmospheric)
	errCorr := m.EucDist(&corr.Pos, &fx.usr)

	assert.Greater(t, errPlain, 1.0)
	assert.Less(t, errCorr, 1e-2)
	assert.False(t, math.IsNaN(corr.Bias))
}
