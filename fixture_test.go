// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"time"

	m "github.com/mkhts/gopsl"
)

// Epoch shared by the fixtures
func testTime() m.GTime {
	return *m.NewGTime(time.Date(2025, 10, 1, 3, 0, 0, 0, time.UTC))
}

// Outdoor user near Tokyo
func testUser() m.PosXYZ {
	return m.NewPosLLHDeg(35.681, 139.767, 40).ToXYZ()
}

// Indoor user below the antenna plane of the default installation
var testIndoorUser = m.PosXYZ{X: 1.0, Y: -0.5, Z: 1.2}

type conventionalFixture struct {
	gt  m.GTime
	usr m.PosXYZ
	nav *m.Nav
	sim *m.Simulator
}

func newConventionalFixture(opt *m.SimOpt) *conventionalFixture {
	gt := testTime()
	usr := testUser()
	nav := m.SyntheticNav(gt, usr, m.DEFAULT_SKY)
	return &conventionalFixture{gt: gt, usr: usr, nav: nav, sim: m.NewSimulator(nav, nil, opt)}
}

// Receiver clock reading k seconds after the fixture epoch
func (p *conventionalFixture) clock(k int) int64 {
	return p.sim.ClockNanos(p.gt.Add(float64(k)))
}

type pseudoliteFixture struct {
	gt  m.GTime
	cfg *m.PslConfig
	nav *m.Nav
	sim *m.Simulator
}

func newPseudoliteFixture(cfg *m.PslConfig, opt *m.SimOpt) *pseudoliteFixture {
	if cfg == nil {
		cfg = m.DefaultPslConfig()
	}
	gt := testTime()
	nav := m.SyntheticNav(gt, cfg.OutdoorAntennaXYZ(), m.DEFAULT_SKY)
	return &pseudoliteFixture{gt: gt, cfg: cfg, nav: nav, sim: m.NewSimulator(nav, cfg, opt)}
}

func (p *pseudoliteFixture) clock(k int) int64 {
	return p.sim.ClockNanos(p.gt.Add(float64(k)))
}
