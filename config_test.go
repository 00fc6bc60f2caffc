// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPslConfig(t *testing.T) {
	cfg := m.DefaultPslConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.N())

	llh := cfg.OutdoorAntennaXYZ()
	back := llh.ToLLH()
	assert.InDelta(t, 40.0, m.ToDeg(back.Lat), 1e-7)
	assert.InDelta(t, 118.0, m.ToDeg(back.Lon), 1e-7)
	assert.InDelta(t, 100.0, back.Hei, 1e-3)
}

func TestReadPslConfigJSON(t *testing.T) {
	js := `{
		"outdoorAntennaLla": [35.0, 139.0, 45.5],
		"satelliteId": [3, 7, 11],
		"indoorAntennaXyz": [[0, 0, 3], [5, 0, 3], [0, 5, 3]],
		"outdoorToIndoorRange": [10, 11, 12]
	}`
	cfg, err := m.ReadPslConfig(strings.NewReader(js), "json")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.N())
	assert.Equal(t, []int{3, 7, 11}, cfg.SatelliteId)
	assert.Equal(t, [3]float64{35.0, 139.0, 45.5}, cfg.OutdoorAntennaLla)
	assert.Equal(t, m.PosXYZ{X: 5, Y: 0, Z: 3}, cfg.Antenna(1))
	assert.Equal(t, 0.0, cfg.Delay(2))
}

func TestLoadPslConfigYAML(t *testing.T) {
	y := `outdoorAntennaLla: [35.0, 139.0, 45.5]
indoorAntennaXyz:
  - [0, 0, 3]
  - [5, 0, 3]
  - [0, 5, 3]
  - [5, 5, 3.2]
outdoorToIndoorRange: [10, 11, 12, 13]
channelDelay: [0.1, 0.2, 0.3, 0.4]
`
	fn := filepath.Join(t.TempDir(), "psl.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(y), 0644))

	cfg, err := m.LoadPslConfig(fn)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.N())
	assert.InDelta(t, 0.3, cfg.Delay(2), 1e-12)
	assert.Empty(t, cfg.SatelliteId)
}

func TestPslConfigValidate(t *testing.T) {
	cases := map[string]func(c *m.PslConfig){
		"no antenna":       func(c *m.PslConfig) { c.IndoorAntennaXyz = nil },
		"range length":     func(c *m.PslConfig) { c.OutdoorToIndoorRange = c.OutdoorToIndoorRange[:2] },
		"delay length":     func(c *m.PslConfig) { c.ChannelDelay = []float64{1} },
		"satellite length": func(c *m.PslConfig) { c.SatelliteId = []int{1, 2} },
		"satellite range":  func(c *m.PslConfig) { c.SatelliteId = []int{1, 2, 3, 40} },
		"duplicated":       func(c *m.PslConfig) { c.SatelliteId = []int{1, 2, 2, 4} },
		"latitude":         func(c *m.PslConfig) { c.OutdoorAntennaLla[0] = 91 },
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := m.DefaultPslConfig()
			mod(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	_, err := m.ReadPslConfig(strings.NewReader(`{"outdoorToIndoorRange": [1]}`), "json")
	assert.Error(t, err)
	_, err = m.ReadPslConfig(strings.NewReader(``), "toml")
	assert.Error(t, err)
}
