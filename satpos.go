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

// Kepler equation tolerance [rad]
const KEPLER_TOL = 1e-11

// Solve Kepler's equation for eccentric anomaly at tk seconds from Toe
func eccentricAnomaly(e *Ephe, tk float64) float64 {
	n := math.Sqrt(MUe)/(e.SqrtA*e.SqrtA*e.SqrtA) + e.DeltaN
	mk := e.M0 + n*tk
	ek := mk
	for i := 0; i < 30; i++ {
		ek0 := ek
		ek = mk + e.Ecc*math.Sin(ek)
		if math.Abs(ek-ek0) < KEPLER_TOL {
			break
		}
	}
	return ek
}

// Satellite clock correction [s] at GPS time of transmission (tow, week).
// Includes af0..af2, the relativistic term and Tgd (L1 user).
func SatClkCorr(e *Ephe, tow float64, week int) float64 {
	t := GTime{Week: week, Sec: tow}
	tc := t.Sub(e.Toc)
	if math.Abs(tc) > SECONDS_IN_HALF_WEEK {
		tc = towDiff(tow, e.Toc.Sec)
	}
	// Clock correction depends on time, which itself depends on the clock correction
	dt := e.Af0 + e.Af1*tc + e.Af2*tc*tc
	for i := 0; i < 2; i++ {
		tc2 := tc - dt
		dt = e.Af0 + e.Af1*tc2 + e.Af2*tc2*tc2
	}
	tk := t.Sub(e.Toe) - dt
	if math.Abs(tk) > SECONDS_IN_HALF_WEEK {
		tk = towDiff(tow, e.Toe.Sec) - dt
	}
	ek := eccentricAnomaly(e, tk)
	tr := FREL * e.Ecc * e.SqrtA * math.Sin(ek)
	return dt + tr - e.Tgd
}

// Satellite ECEF position and velocity at GPS time of transmission (tow, week).
// The returned coordinates are in the ECEF frame at transmission time.
func SatPosVel(e *Ephe, tow float64, week int) (xyz PosXYZ, vel PosXYZ) {
	t := GTime{Week: week, Sec: tow}
	tk := t.Sub(e.Toe)
	if math.Abs(tk) > SECONDS_IN_HALF_WEEK {
		tk = towDiff(tow, e.Toe.Sec)
	}
	a := e.SqrtA * e.SqrtA
	n := math.Sqrt(MUe)/(a*e.SqrtA) + e.DeltaN
	ek := eccentricAnomaly(e, tk)
	sinE, cosE := math.Sin(ek), math.Cos(ek)
	ekDot := n / (1 - e.Ecc*cosE)

	vk := math.Atan2(math.Sqrt(1-e.Ecc*e.Ecc)*sinE, cosE-e.Ecc)
	pk := vk + e.Omega
	sin2p, cos2p := math.Sin(2*pk), math.Cos(2*pk)
	duk := e.Cus*sin2p + e.Cuc*cos2p
	drk := e.Crs*sin2p + e.Crc*cos2p
	dik := e.Cis*sin2p + e.Cic*cos2p
	uk := pk + duk
	rk := a*(1-e.Ecc*cosE) + drk
	ik := e.I0 + dik + e.Idot*tk

	xk := rk * math.Cos(uk)
	yk := rk * math.Sin(uk)
	omk := e.Omega0 + (e.OmegaD-OMGe)*tk - OMGe*e.Toe.Sec
	sinO, cosO := math.Sin(omk), math.Cos(omk)
	sinI, cosI := math.Sin(ik), math.Cos(ik)

	xyz.X = xk*cosO - yk*sinO*cosI
	xyz.Y = xk*sinO + yk*cosO*cosI
	xyz.Z = yk * sinI

	// Velocity
	vkDot := math.Sqrt(1-e.Ecc*e.Ecc) * ekDot / (1 - e.Ecc*cosE)
	ukDot := vkDot * (1 + 2*(e.Cus*cos2p-e.Cuc*sin2p))
	rkDot := a*e.Ecc*sinE*ekDot + 2*vkDot*(e.Crs*cos2p-e.Crc*sin2p)
	ikDot := e.Idot + 2*vkDot*(e.Cis*cos2p-e.Cic*sin2p)
	omkDot := e.OmegaD - OMGe
	xkDot := rkDot*math.Cos(uk) - yk*ukDot
	ykDot := rkDot*math.Sin(uk) + xk*ukDot
	vel.X = -xk*omkDot*sinO + xkDot*cosO - ykDot*sinO*cosI - yk*(omkDot*cosO*cosI-ikDot*sinO*sinI)
	vel.Y = xk*omkDot*cosO + xkDot*sinO + ykDot*cosO*cosI - yk*(omkDot*sinO*cosI+ikDot*cosO*sinI)
	vel.Z = ykDot*sinI + yk*ikDot*cosI
	return
}

// Rotate satellite position by the earth rotation during signal flight to usr (Sagnac)
func EarthRotationCorrection(sat, usr PosXYZ) PosXYZ {
	rot := sat
	for i := 0; i < 3; i++ {
		flight := EucDist(&rot, &usr) / C
		th := OMGe * flight
		s, c := math.Sin(th), math.Cos(th)
		rot = PosXYZ{
			X: c*sat.X + s*sat.Y,
			Y: -s*sat.X + c*sat.Y,
			Z: sat.Z,
		}
	}
	return rot
}

// Satellite position in the ECEF frame at reception time, seen from usr
func SatPos(e *Ephe, tow float64, week int, usr PosXYZ) PosXYZ {
	xyz, _ := SatPosVel(e, tow, week)
	return EarthRotationCorrection(xyz, usr)
}
