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

// Klobuchar ionospheric delay [s] for the signal of frequency freq (ICD-GPS-200).
//
// Parameters:
//   - usr: Receiver position (ECEF)
//   - sat: Satellite position (ECEF)
//   - tow: GPS time of week [s]
//   - iono: Broadcast alpha/beta coefficients
//   - freq: Carrier frequency [Hz]
//
// Returns:
//   - float64: Delay [s]. 0 when iono is nil or the satellite is below the horizon.
func IonoKlobuchar(usr, sat PosXYZ, tow float64, iono *IonoParams, freq float64) float64 {
	if iono == nil {
		return 0
	}
	enu := sat.ToENU(usr)
	el := enu.Elevation()
	if el <= 0 {
		return 0
	}
	az := enu.Azimuth()
	llh := usr.ToLLH()

	// Everything below is in semicircles
	e := el / PI
	latU := llh.Lat / PI
	lonU := llh.Lon / PI

	psi := 0.0137/(e+0.11) - 0.022
	phiI := latU + psi*math.Cos(az)
	if phiI > 0.416 {
		phiI = 0.416
	} else if phiI < -0.416 {
		phiI = -0.416
	}
	lambdaI := lonU + psi*math.Sin(az)/math.Cos(phiI*PI)
	phiM := phiI + 0.064*math.Cos((lambdaI-1.617)*PI)

	t := math.Mod(43200*lambdaI+tow, 86400)
	if t < 0 {
		t += 86400
	}
	f := 1 + 16*math.Pow(0.53-e, 3)

	per := 0.0
	amp := 0.0
	for n := 0; n < 4; n++ {
		per += iono.Beta[n] * math.Pow(phiM, float64(n))
		amp += iono.Alpha[n] * math.Pow(phiM, float64(n))
	}
	if per < 72000 {
		per = 72000
	}
	if amp < 0 {
		amp = 0
	}
	x := 2 * PI * (t - 50400) / per

	var delay float64
	if math.Abs(x) < 1.57 {
		delay = f * (5e-9 + amp*(1-x*x/2+x*x*x*x/24))
	} else {
		delay = f * 5e-9
	}
	return delay * SQ(L1/freq)
}
