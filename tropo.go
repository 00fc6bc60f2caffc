// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"math"
)

// Tropospheric delay model
type TropModel interface {
	// Slant delay [m] for the satellite at sat seen from usr on day of year doy
	Delay(usr, sat PosXYZ, doy int) float64
}

// Source of terrain elevation above mean sea level [m]
type ElevationSource interface {
	Elevation(llh PosLLH) (float64, error)
}

// ElevationSource that always answers a fixed value
type FixedElevation float64

func (f FixedElevation) Elevation(PosLLH) (float64, error) {
	return float64(f), nil
}

// ------------------------------------
// EGNOS model (RTCA DO-229)
// ------------------------------------

// Mean meteorological parameters by latitude 15, 30, 45, 60, 75 deg: P[mbar], T[K], e[mbar], beta[K/m], lambda
var egnosAvg = [5][5]float64{
	{1013.25, 299.65, 26.31, 6.30e-3, 2.77},
	{1017.25, 294.15, 21.79, 6.05e-3, 3.15},
	{1015.75, 283.15, 11.66, 5.58e-3, 2.57},
	{1011.75, 272.15, 6.78, 5.39e-3, 1.81},
	{1013.00, 263.65, 4.11, 4.53e-3, 1.55},
}

// Seasonal variation of the above
var egnosSeason = [5][5]float64{
	{0.0, 0.0, 0.0, 0.0, 0.0},
	{-3.75, 7.0, 8.85, 0.25e-3, 0.33},
	{-2.25, 11.0, 7.24, 0.32e-3, 0.46},
	{-1.75, 15.0, 5.36, 0.81e-3, 0.74},
	{-0.5, 14.5, 3.39, 0.62e-3, 0.30},
}

// EGNOS tropospheric model.
// Height above sea level is derived from the ellipsoidal height minus a geoid height that is
// determined once, on the first call, from the ElevationSource.
// Without an ElevationSource the geoid height is 0.
type TropEgnos struct {
	Elev        ElevationSource
	geoidHeight float64
	geoidSet    bool
}

func NewTropEgnos(src ElevationSource) *TropEgnos {
	return &TropEgnos{Elev: src}
}

// Geoid height [m]. Valid after the first Delay call, or always 0 without an ElevationSource.
func (p *TropEgnos) GeoidHeight() (float64, bool) {
	if p.Elev == nil {
		return 0, true
	}
	return p.geoidHeight, p.geoidSet
}

func (p *TropEgnos) heightAboveSeaLevel(llh PosLLH) float64 {
	if p.Elev == nil {
		return llh.Hei
	}
	if !p.geoidSet {
		elev, err := p.Elev.Elevation(llh)
		if err != nil {
			// Retried on the next call
			PrintD(1, "elevation lookup failed, err=%v\n", err)
			return llh.Hei
		}
		p.geoidHeight = llh.Hei - elev
		p.geoidSet = true
	}
	return llh.Hei - p.geoidHeight
}

func (p *TropEgnos) Delay(usr, sat PosXYZ, doy int) float64 {
	const (
		k1 = 77.604
		k2 = 382000.0
		rd = 287.054
		gm = 9.784
		g  = 9.80665
	)
	enu := sat.ToENU(usr)
	el := enu.Elevation()
	if el <= 0 {
		return 0
	}
	llh := usr.ToLLH()
	h := p.heightAboveSeaLevel(llh)

	lat := ToDeg(llh.Lat)
	dmin := 28.0
	if lat < 0 {
		dmin = 211.0
	}
	cosy := math.Cos(2 * PI * (float64(doy) - dmin) / 365.25)
	lat = math.Abs(lat)

	var met [5]float64 // P, T, e, beta, lambda
	for i := range met {
		var avg, sea [5]float64
		for j := 0; j < 5; j++ {
			avg[j] = egnosAvg[j][i]
			sea[j] = egnosSeason[j][i]
		}
		met[i] = interpc(avg, lat) - interpc(sea, lat)*cosy
	}
	pr, t, e, beta, lambda := met[0], met[1], met[2], met[3], met[4]

	zhd0 := 1e-6 * k1 * rd * pr / gm
	zwd0 := 1e-6 * k2 * rd / (gm*(lambda+1) - beta*rd) * e / t
	base := 1 - beta*h/t
	if base <= 0 {
		return 0
	}
	zhd := math.Pow(base, g/(rd*beta)) * zhd0
	zwd := math.Pow(base, (lambda+1)*g/(rd*beta)-1) * zwd0

	sinel := math.Sin(el)
	m := 1.001 / math.Sqrt(0.002001+sinel*sinel)
	return (zhd + zwd) * m
}

// Interpolate 15 deg latitude table
func interpc(coef [5]float64, lat float64) float64 {
	i := int(lat / 15.0)
	if i < 1 {
		return coef[0]
	} else if i > 4 {
		return coef[4]
	}
	return coef[i-1]*(1.0-lat/15.0+float64(i)) + coef[i]*(lat/15.0-float64(i))
}

// ------------------------------------
// Saastamoinen model with standard atmosphere
// ------------------------------------

type TropSaastamoinen struct {
	Humidity float64 // Relative humidity (0..1)
}

func (p *TropSaastamoinen) Delay(usr, sat PosXYZ, _ int) float64 {
	const TEMP0 = 15.0
	enu := sat.ToENU(usr)
	el := enu.Elevation()
	if el <= 0 {
		return 0
	}
	llh := usr.ToLLH()
	if llh.Hei < -100.0 || 1e4 < llh.Hei {
		return 0.0
	}
	hgt := math.Max(llh.Hei, 0)
	pres := 1013.25 * math.Pow(1.0-2.2557e-5*hgt, 5.2568)
	temp := TEMP0 - 6.5e-3*hgt + 273.16
	e := 6.108 * p.Humidity * math.Exp((17.15*temp-4684.0)/(temp-38.45))
	z := math.Pi/2.0 - el
	trph := 0.0022768 * pres / (1.0 - 0.00266*math.Cos(2.0*llh.Lat) - 0.00028*hgt/1e3) / math.Cos(z)
	trpw := 0.002277 * (1255.0/temp + 0.05) * e / math.Cos(z)
	return trph + trpw
}
