// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupl struct {
	nav   *m.Nav
	err   error
	calls int
	latE7 int64
	lngE7 int64
}

func (p *fakeSupl) FetchEphemeris(_ context.Context, latE7, lngE7 int64) (*m.Nav, error) {
	p.calls++
	p.latE7, p.lngE7 = latE7, lngE7
	return p.nav, p.err
}

func TestSuplCacheRefetch(t *testing.T) {
	fx := newConventionalFixture(nil)
	client := &fakeSupl{nav: fx.nav}
	now := time.Date(2025, 10, 1, 3, 0, 0, 0, time.UTC)
	cache := m.NewSuplCache(client)
	cache.Now = func() time.Time { return now }
	ctx := context.Background()

	ref := *m.NewPosLLHDeg(35.681, 139.767, 40)
	nav, err := cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.Same(t, fx.nav, nav)
	assert.Equal(t, int64(356810000), client.latE7)
	assert.Equal(t, int64(1397670000), client.lngE7)
	assert.Equal(t, 1, cache.Fetches())

	// Same place, shortly after
	now = now.Add(10 * time.Minute)
	_, err = cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Fetches())

	// About 55 km away
	_, err = cache.Get(ctx, *m.NewPosLLHDeg(36.181, 139.767, 40))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Fetches())

	// About 330 km away
	_, err = cache.Get(ctx, *m.NewPosLLHDeg(34.7, 136.5, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Fetches())

	// Too old
	now = now.Add(m.SUPL_MAX_AGE + time.Second)
	_, err = cache.Get(ctx, *m.NewPosLLHDeg(34.7, 136.5, 10))
	require.NoError(t, err)
	assert.Equal(t, 3, cache.Fetches())
	assert.Equal(t, 3, client.calls)
}

func TestSuplCacheFailureKeepsState(t *testing.T) {
	client := &fakeSupl{err: errors.New("connection refused")}
	cache := m.NewSuplCache(client)
	_, err := cache.Get(context.Background(), *m.NewPosLLHDeg(35, 139, 0))
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Fetches())

	// Empty response
	client.err = nil
	_, err = cache.Get(context.Background(), *m.NewPosLLHDeg(35, 139, 0))
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Fetches())
}

func TestEphemerisSourcePriority(t *testing.T) {
	fx := newConventionalFixture(nil)
	ctx := context.Background()
	prns := []int{2, 5, 7, 12}

	// File first
	file := m.NewNav()
	src := m.NewEphemerisSource(file, nil, nil)
	src.SetHardware(fx.nav)
	nav, origin, err := src.Select(ctx, prns, fx.gt)
	require.NoError(t, err)
	assert.Equal(t, m.EPH_FILE, origin)
	assert.Same(t, file, nav)

	// Hardware when it covers every satellite and carries iono
	src = m.NewEphemerisSource(nil, nil, nil)
	src.SetHardware(fx.nav)
	_, origin, err = src.Select(ctx, prns, fx.gt)
	require.NoError(t, err)
	assert.Equal(t, m.EPH_HARDWARE, origin)

	_, _, err = src.Select(ctx, []int{2, 3}, fx.gt)
	assert.True(t, errors.Is(err, m.ErrMissingEphemeris))

	// Hardware records older than two hours do not count
	_, _, err = src.Select(ctx, prns, fx.gt.Add(3*3600))
	assert.True(t, errors.Is(err, m.ErrMissingEphemeris))

	noIono := m.SyntheticNav(fx.gt, fx.usr, m.DEFAULT_SKY)
	noIono.Iono = nil
	src.SetHardware(noIono)
	_, _, err = src.Select(ctx, prns, fx.gt)
	assert.True(t, errors.Is(err, m.ErrMissingEphemeris))

	// SUPL needs a reference location
	client := &fakeSupl{nav: fx.nav}
	src = m.NewEphemerisSource(nil, m.NewSuplCache(m.SuplClientFunc(client.FetchEphemeris)), nil)
	src.SetHardware(noIono)
	_, _, err = src.Select(ctx, prns, fx.gt)
	assert.True(t, errors.Is(err, m.ErrMissingEphemeris))
	assert.Equal(t, 0, client.calls)

	src.SetReference(m.NewPosLLHDeg(35.681, 139.767, 40))
	nav, origin, err = src.Select(ctx, prns, fx.gt)
	require.NoError(t, err)
	assert.Equal(t, m.EPH_SUPL, origin)
	assert.Same(t, fx.nav, nav)
}

func TestSessionSupl(t *testing.T) {
	fx := newConventionalFixture(nil)
	client := &fakeSupl{nav: fx.nav}
	opt := m.NewSessionOpt()
	opt.Supl = m.NewSuplCache(client)
	opt.SkipFirst = false
	s, err := m.NewSession(opt)
	require.NoError(t, err)
	assert.Equal(t, m.StateReady, s.State())
	s.SetReference(m.NewPosLLHDeg(35.681, 139.767, 40))

	rs := runSession(t, s, fx.batches(2)...)
	require.Len(t, rs, 2)
	for _, r := range rs {
		require.True(t, r.OK(), "err=%v", r.Err)
		assert.Equal(t, m.EPH_SUPL, r.Origin)
	}
	assert.Equal(t, 1, client.calls)
}
