// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pseudolite installation: outdoor receiving antenna, indoor transmitting antennas and the
// fixed ranges between them. Read once at session start.
type PslConfig struct {
	OutdoorAntennaLla    [3]float64   `json:"outdoorAntennaLla" yaml:"outdoorAntennaLla"`       // Latitude [deg], longitude [deg], ellipsoidal height [m]
	SatelliteId          []int        `json:"satelliteId" yaml:"satelliteId"`                   // PRN rebroadcast by each indoor antenna
	IndoorAntennaXyz     [][3]float64 `json:"indoorAntennaXyz" yaml:"indoorAntennaXyz"`         // Local XYZ of each indoor antenna [m]
	OutdoorToIndoorRange []float64    `json:"outdoorToIndoorRange" yaml:"outdoorToIndoorRange"` // Cable/channel range from the outdoor antenna to each indoor antenna [m]
	ChannelDelay         []float64    `json:"channelDelay" yaml:"channelDelay"`                 // Extra per-channel delay [m]
}

// DefaultPslConfig returns the configuration of the reference installation
func DefaultPslConfig() *PslConfig {
	return &PslConfig{
		OutdoorAntennaLla: [3]float64{40, 118, 100},
		SatelliteId:       []int{},
		IndoorAntennaXyz: [][3]float64{
			{4.307, 2.591, 2.696},
			{-10.229, -1.914, 2.598},
			{1.509, -6.977, 2.781},
			{-4.867, 5.233, 2.598},
		},
		OutdoorToIndoorRange: []float64{12, 16, 12, 16},
		ChannelDelay:         []float64{0, 0, 0, 0},
	}
}

// Number of pseudolites
func (p *PslConfig) N() int {
	return len(p.IndoorAntennaXyz)
}

func (p *PslConfig) OutdoorAntennaXYZ() PosXYZ {
	return NewPosLLHDeg(p.OutdoorAntennaLla[0], p.OutdoorAntennaLla[1], p.OutdoorAntennaLla[2]).ToXYZ()
}

func (p *PslConfig) Antenna(i int) PosXYZ {
	a := p.IndoorAntennaXyz[i]
	return PosXYZ{X: a[0], Y: a[1], Z: a[2]}
}

func (p *PslConfig) Delay(i int) float64 {
	if i < len(p.ChannelDelay) {
		return p.ChannelDelay[i]
	}
	return 0
}

// Check consistency of array lengths and values
func (p *PslConfig) Validate() error {
	n := p.N()
	if n == 0 {
		return fmt.Errorf("no indoor antenna")
	}
	if len(p.OutdoorToIndoorRange) != n {
		return fmt.Errorf("outdoorToIndoorRange has %d elements, want %d", len(p.OutdoorToIndoorRange), n)
	}
	if len(p.ChannelDelay) != 0 && len(p.ChannelDelay) != n {
		return fmt.Errorf("channelDelay has %d elements, want %d", len(p.ChannelDelay), n)
	}
	if len(p.SatelliteId) != 0 {
		if len(p.SatelliteId) != n {
			return fmt.Errorf("satelliteId has %d elements, want %d", len(p.SatelliteId), n)
		}
		seen := map[int]bool{}
		for _, prn := range p.SatelliteId {
			if prn < 1 || prn > NUM_SLOTS {
				return fmt.Errorf("satelliteId out of range: %d", prn)
			}
			if seen[prn] {
				return fmt.Errorf("satelliteId is duplicated: %d", prn)
			}
			seen[prn] = true
		}
	}
	lat := p.OutdoorAntennaLla[0]
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid outdoor antenna latitude: %f", lat)
	}
	return nil
}

// ReadPslConfig decodes a configuration. format is "json" or "yaml".
// Fields missing from the input keep the default values.
func ReadPslConfig(r io.Reader, format string) (*PslConfig, error) {
	cfg := DefaultPslConfig()
	cfg.ChannelDelay = nil // Optional, zero when absent
	var err error
	switch strings.ToLower(format) {
	case "json":
		err = json.NewDecoder(r).Decode(cfg)
	case "yaml", "yml":
		err = yaml.NewDecoder(r).Decode(cfg)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode failed, err=%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Validate() failed, err=%w", err)
	}
	return cfg, nil
}

// LoadPslConfig reads a configuration file. The format is chosen by the extension (.json, .yaml, .yml).
func LoadPslConfig(fn string) (*PslConfig, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(filepath.Ext(fn), ".")
	if ext == "" {
		ext = "json"
	}
	cfg, err := ReadPslConfig(f, ext)
	if err != nil {
		return nil, fmt.Errorf("ReadPslConfig() failed, fn=%s, err=%w", fn, err)
	}
	return cfg, nil
}
