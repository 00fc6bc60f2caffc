// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"context"
	"fmt"
	"sync"
	"time"

	geo "github.com/kellydunn/golang-geo"
)

const (
	SUPL_SERVER_HOST = "supl.google.com"
	SUPL_SERVER_PORT = 7276

	SUPL_MAX_AGE    = 30 * time.Minute // Assistance data is re-fetched after this
	SUPL_REFETCH_KM = 100.0            // and when the reference location moved further than this
)

// Assisted-GPS ephemeris provider. latE7/lngE7 are degrees scaled by 1e7.
type SuplClient interface {
	FetchEphemeris(ctx context.Context, latE7, lngE7 int64) (*Nav, error)
}

// SuplClientFunc adapts a function to SuplClient
type SuplClientFunc func(ctx context.Context, latE7, lngE7 int64) (*Nav, error)

func (f SuplClientFunc) FetchEphemeris(ctx context.Context, latE7, lngE7 int64) (*Nav, error) {
	return f(ctx, latE7, lngE7)
}

// SuplCache keeps the last SUPL response for a reference location
type SuplCache struct {
	Client    SuplClient
	MaxAge    time.Duration
	RefetchKm float64
	Now       func() time.Time

	mu      sync.Mutex
	nav     *Nav
	fetched time.Time
	ref     *geo.Point
	fetches int
}

func NewSuplCache(c SuplClient) *SuplCache {
	return &SuplCache{
		Client:    c,
		MaxAge:    SUPL_MAX_AGE,
		RefetchKm: SUPL_REFETCH_KM,
		Now:       time.Now,
	}
}

// Get returns navigation data for the reference location, fetching it when the cache is
// empty, too old or was fetched for a distant location. On failure the cache is unchanged.
func (p *SuplCache) Get(ctx context.Context, ref PosLLH) (*Nav, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.Now()
	pt := geo.NewPoint(ToDeg(ref.Lat), ToDeg(ref.Lon))
	if p.nav != nil && now.Sub(p.fetched) <= p.MaxAge && p.ref.GreatCircleDistance(pt) <= p.RefetchKm {
		return p.nav, nil
	}

	latE7, lngE7, _ := ref.E7()
	PrintD(1, "SUPL request: %s:%d lat=%d lng=%d\n", SUPL_SERVER_HOST, SUPL_SERVER_PORT, latE7, lngE7)
	nav, err := p.Client.FetchEphemeris(ctx, latE7, lngE7)
	if err != nil {
		return nil, fmt.Errorf("FetchEphemeris() failed, err=%w", err)
	}
	if nav == nil {
		return nil, fmt.Errorf("empty SUPL response")
	}
	p.nav = nav
	p.fetched = now
	p.ref = pt
	p.fetches++
	return nav, nil
}

// Number of successful fetches
func (p *SuplCache) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}
