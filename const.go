// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

const (
	PI   = 3.1415926535897932  // Pi
	C    = 2.99792458e8        // Speed of light [m/s]
	Re   = 6378137.0           // Earth's radius [m]
	Fe   = 1.0 / 298.257223563 // Earth's flattening
	LS   = 18                  // Leap seconds
	L1   = 1575420000.0        // L1 frequency of GPS [Hz]
	OMGe = 7.2921151467e-5     // Earth rotation angular velocity [rad/s]
	MUe  = 3.986005e14         // Earth gravitational constant (WGS84) [m^3/s^2]
	FREL = -4.442807633e-10    // Relativistic clock correction constant [s/m^(1/2)]
)

// GPS time
const (
	SECONDS_IN_WEEK      = 604800.0
	SECONDS_IN_HALF_WEEK = 302400.0
	NANOS_IN_WEEK        = int64(604800) * 1000000000
	MAX_DTOE             = 7201.0 // Maximum |t-Toe| of a usable GPS ephemeris [s]
)

// Satellite slots (GPS PRN 1..32)
const NUM_SLOTS = 32

// Measurement filter
const (
	CONSTELLATION_GPS      = 1    // Android GnssStatus.CONSTELLATION_GPS
	CN0_THRESHOLD_DBHZ     = 18.0 // Minimum C/N0 to use a measurement [dB-Hz]
	STATE_TOW_DECODED      = 1 << 3
	ADR_STATE_VALID        = 1 << 0
	CHIP_WIDTH_SEC         = 1e-6 // GPS C/A chip width [s]
	CORRELATOR_SPACING_CHP = 0.1  // Correlator spacing [chip]
	DLL_AVERAGING_TIME_SEC = 0.02 // DLL averaging time [s]
)
