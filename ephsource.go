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
)

// Where the navigation data of an epoch came from
type EphemerisOrigin string

const (
	EPH_NONE     EphemerisOrigin = ""
	EPH_FILE     EphemerisOrigin = "file"
	EPH_HARDWARE EphemerisOrigin = "hardware"
	EPH_SUPL     EphemerisOrigin = "supl"
)

// EphemerisSource chooses the navigation data for each epoch.
// Priority: loaded file, then data decoded by the receiver when it covers every tracked
// satellite and carries ionospheric parameters, then SUPL around the reference location.
type EphemerisSource struct {
	mu   sync.Mutex
	file *Nav
	hw   *Nav
	supl *SuplCache
	ref  *PosLLH
}

func NewEphemerisSource(file *Nav, supl *SuplCache, ref *PosLLH) *EphemerisSource {
	return &EphemerisSource{file: file, supl: supl, ref: ref}
}

// SetHardware replaces the navigation data decoded by the receiver
func (p *EphemerisSource) SetHardware(nav *Nav) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hw = nav
}

func (p *EphemerisSource) SetReference(ref *PosLLH) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = ref
}

// Select returns navigation data for the tracked PRNs at time gt
func (p *EphemerisSource) Select(ctx context.Context, prns []int, gt GTime) (*Nav, EphemerisOrigin, error) {
	p.mu.Lock()
	file, hw, supl, ref := p.file, p.hw, p.supl, p.ref
	p.mu.Unlock()

	if file != nil {
		return file, EPH_FILE, nil
	}

	if hw != nil && hw.Iono != nil && coversAll(hw, prns, gt) {
		return hw, EPH_HARDWARE, nil
	}

	if supl == nil {
		return nil, EPH_NONE, fmt.Errorf("%w: no ephemeris source", ErrMissingEphemeris)
	}
	if ref == nil {
		return nil, EPH_NONE, fmt.Errorf("%w: no reference location for SUPL", ErrMissingEphemeris)
	}
	nav, err := supl.Get(ctx, *ref)
	if err != nil {
		return nil, EPH_NONE, fmt.Errorf("Get() failed, err=%w", err)
	}
	return nav, EPH_SUPL, nil
}

func coversAll(nav *Nav, prns []int, gt GTime) bool {
	for _, prn := range prns {
		if !nav.Has(prn, gt) {
			return false
		}
	}
	return true
}
