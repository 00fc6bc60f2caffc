// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

// Synthesises raw receiver measurements for a known user position.

package gopsl

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Direction of a satellite seen from the user [deg]
type AzEl struct {
	Prn  int
	Az   float64
	Elev float64
}

// Sky used when no other geometry is given
var DEFAULT_SKY = []AzEl{
	{Prn: 2, Az: 10, Elev: 65},
	{Prn: 5, Az: 70, Elev: 35},
	{Prn: 7, Az: 130, Elev: 50},
	{Prn: 12, Az: 185, Elev: 25},
	{Prn: 15, Az: 240, Elev: 45},
	{Prn: 20, Az: 300, Elev: 30},
	{Prn: 24, Az: 35, Elev: 15},
	{Prn: 29, Az: 205, Elev: 75},
}

// Broadcast Klobuchar parameters used for synthetic navigation data
var DEFAULT_IONO = IonoParams{
	Alpha: [4]float64{1.1176e-08, 7.4506e-09, -5.9605e-08, -5.9605e-08},
	Beta:  [4]float64{9.0112e+04, 0, -1.9661e+05, -6.5536e+04},
}

const GPS_SQRT_A = 5153.7955 // [m^0.5]

// SyntheticNav creates ephemerides that put each satellite in the given direction from usr at gt
func SyntheticNav(gt GTime, usr PosXYZ, sky []AzEl) *Nav {
	nav := NewNav()
	iono := DEFAULT_IONO
	nav.Iono = &iono

	a := GPS_SQRT_A * GPS_SQRT_A
	toe := GTime{Week: gt.Week, Sec: math.Floor(gt.Sec)}
	for k, s := range sky {
		// Point at orbit radius along the line of sight
		enu := PosENU{
			E: math.Cos(ToRad(s.Elev)) * math.Sin(ToRad(s.Az)),
			N: math.Cos(ToRad(s.Elev)) * math.Cos(ToRad(s.Az)),
			U: math.Sin(ToRad(s.Elev)),
		}
		tip := enu.ToXYZ(usr)
		los := PosXYZ{X: tip.X - usr.X, Y: tip.Y - usr.Y, Z: tip.Z - usr.Z}
		ue := usr.X*los.X + usr.Y*los.Y + usr.Z*los.Z
		uu := usr.X*usr.X + usr.Y*usr.Y + usr.Z*usr.Z
		rho := -ue + math.Sqrt(ue*ue-uu+a*a)
		sat := PosXYZ{X: usr.X + rho*los.X, Y: usr.Y + rho*los.Y, Z: usr.Z + rho*los.Z}

		// Orbital elements of a near circular orbit through the point
		lat := math.Asin(sat.Z / a)
		lon := math.Atan2(sat.Y, sat.X)
		inc := ToRad(55)
		if math.Abs(lat) > ToRad(50) {
			inc = math.Min(math.Abs(lat)+ToRad(5), ToRad(89.9))
		}
		u := math.Asin(math.Sin(lat) / math.Sin(inc))
		node := lon - math.Atan2(math.Sin(u)*math.Cos(inc), math.Cos(u))
		ecc := 0.002

		nav.Add(&Ephe{
			Prn:    s.Prn,
			Toc:    toe,
			Toe:    toe,
			Tot:    toe.Add(-30),
			Iode:   k + 1,
			Iodc:   k + 1,
			Af0:    float64(s.Prn-16) * 1e-5,
			Af1:    1e-12,
			SqrtA:  GPS_SQRT_A,
			Ecc:    ecc,
			M0:     u - 2*ecc*math.Sin(u),
			I0:     inc,
			Omega0: node + OMGe*toe.Sec,
			OmegaD: -8e-9,
			DeltaN: 4.5e-9,
			Week:   toe.Week,
			Svh:    0,
			Fit:    4,
		})
	}
	return nav
}

// SimOpt contains options of the simulator
type SimOpt struct {
	BiasMeters      float64         // Receiver clock bias [m]
	Cn0             float64         // C/N0 of every satellite [dB-Hz]
	Cn0Override     map[int]float64 // C/N0 by PRN
	Prns            []int           // Satellites to simulate. Empty means every satellite in the navigation data
	Atmospheric     bool            // Add iono/tropo delays
	HardwareTimeNs  int64           // Hardware clock at the start of the GPS week [ns]
	Wls             *WlsOpt         // Range model options (troposphere, frequency)
	MinElevationDeg float64         // Satellites below this are not simulated
}

// NewSimOpt creates a new SimOpt with default values
func NewSimOpt() *SimOpt {
	return &SimOpt{
		BiasMeters:      12345.678,
		Cn0:             40,
		Cn0Override:     map[int]float64{},
		Prns:            []int{},
		Atmospheric:     false,
		HardwareTimeNs:  1_000_000_000_000,
		Wls:             NewWlsOpt(),
		MinElevationDeg: 5,
	}
}

// Simulator generates measurements consistent with the range model of the solvers
type Simulator struct {
	Nav *Nav
	Cfg *PslConfig // Only used for pseudolite epochs
	Opt *SimOpt
}

func NewSimulator(nav *Nav, cfg *PslConfig, opt *SimOpt) *Simulator {
	if opt == nil {
		opt = NewSimOpt()
	}
	if opt.Wls == nil {
		opt.Wls = NewWlsOpt()
	}
	if cfg == nil {
		cfg = DefaultPslConfig()
	}
	return &Simulator{Nav: nav, Cfg: cfg, Opt: opt}
}

// Receiver time of an epoch whose receiver clock reads clockNs (ns since the GPS epoch)
func (p *Simulator) receiverTime(clockNs int64) ReceiverTime {
	gt := NewGTimeFromNanos(clockNs)
	return ReceiverTime{
		Week:      gt.Week,
		ArrivalNs: clockNs % NANOS_IN_WEEK,
		DayOfYear: gt.DayOfYear(),
		TimeNanos: p.Opt.HardwareTimeNs + clockNs%NANOS_IN_WEEK,
	}
}

// Satellites to simulate, ascending PRN
func (p *Simulator) prns(usr PosXYZ, rt ReceiverTime) []int {
	cand := p.Opt.Prns
	if len(cand) == 0 {
		cand = p.Nav.Prns()
	}
	out := []int{}
	for _, prn := range cand {
		eph, err := p.Nav.GetEphe(prn, rt.GTime())
		if err != nil {
			continue
		}
		xyz, _ := SatPosVel(eph, rt.Tow(), rt.Week)
		el, _ := usr.ElevAzim(xyz)
		if ToDeg(el) < p.Opt.MinElevationDeg {
			continue
		}
		out = append(out, prn)
	}
	slices.Sort(out)
	return out
}

// Pseudorange from the satellite to usr plus extra, solved as a fixed point of the range model
func (p *Simulator) pseudorange(model *rangeModel, eph *Ephe, usr PosXYZ, extra float64) float64 {
	pr := 0.075*C + p.Opt.BiasMeters + extra
	for i := 0; i < 10; i++ {
		pred, _, _ := model.predict(eph, pr, usr, p.Opt.BiasMeters, p.Opt.Atmospheric)
		pr = pred + extra
	}
	return pr
}

func (p *Simulator) cn0(prn int) float64 {
	if v, ok := p.Opt.Cn0Override[prn]; ok {
		return v
	}
	return p.Opt.Cn0
}

// Pseudoranges observed at the ECEF position usr when the receiver clock reads clockNs
func (p *Simulator) Pseudoranges(clockNs int64, usr PosXYZ) ([]PseudorangeMeasurement, ReceiverTime) {
	rt := p.receiverTime(clockNs)
	model := newRangeModel(p.Nav, rt, p.Opt.Wls)
	prs := []PseudorangeMeasurement{}
	for _, prn := range p.prns(usr, rt) {
		eph, _ := p.Nav.GetEphe(prn, rt.GTime())
		cn0 := p.cn0(prn)
		prs = append(prs, PseudorangeMeasurement{
			Prn:               prn,
			PseudorangeMeters: p.pseudorange(model, eph, usr, 0),
			UncertaintyMeters: PseudorangeUncertainty(cn0),
			Cn0DbHz:           cn0,
		})
	}
	return prs, rt
}

// Pseudoranges observed indoors at local XYZ usr. Each antenna rebroadcasts one satellite:
// PslConfig.SatelliteId when set, otherwise the first visible satellites in ascending PRN order.
func (p *Simulator) PseudolitePseudoranges(clockNs int64, usr PosXYZ) ([]PseudorangeMeasurement, ReceiverTime, error) {
	cfg := p.Cfg
	rt := p.receiverTime(clockNs)
	ant := cfg.OutdoorAntennaXYZ()
	model := newRangeModel(p.Nav, rt, p.Opt.Wls)

	sats := cfg.SatelliteId
	if len(sats) == 0 {
		vis := p.prns(ant, rt)
		if len(vis) < cfg.N() {
			return nil, rt, fmt.Errorf("%w: %d visible satellites for %d antennas", ErrIncompletePseudoliteSet, len(vis), cfg.N())
		}
		sats = vis[:cfg.N()]
	}

	prs := []PseudorangeMeasurement{}
	for i, prn := range sats {
		eph, err := p.Nav.GetEphe(prn, rt.GTime())
		if err != nil {
			return nil, rt, fmt.Errorf("%w: G%02d", ErrMissingEphemeris, prn)
		}
		a := cfg.Antenna(i)
		extra := cfg.OutdoorToIndoorRange[i] + cfg.Delay(i) + EucDist(&a, &usr)
		cn0 := p.cn0(prn)
		prs = append(prs, PseudorangeMeasurement{
			Prn:               prn,
			PseudorangeMeters: p.pseudorange(model, eph, ant, extra),
			UncertaintyMeters: PseudorangeUncertainty(cn0),
			Cn0DbHz:           cn0,
		})
	}
	sortByPrn(prs)
	return prs, rt, nil
}

// ToBatch encodes pseudoranges as raw receiver measurements
func (p *Simulator) ToBatch(prs []PseudorangeMeasurement, rt ReceiverTime) *Batch {
	clockNs := int64(rt.Week)*NANOS_IN_WEEK + rt.ArrivalNs
	b := &Batch{
		Clock: RawClock{
			TimeNanos:     rt.TimeNanos,
			FullBiasNanos: rt.TimeNanos - clockNs,
			BiasNanos:     0,
			LeapSecond:    LS,
		},
	}
	for _, pr := range prs {
		// Whole nanoseconds in the transmit time, the fraction in the time offset
		flightNs := pr.PseudorangeMeters / C * 1e9
		whole := int64(math.Ceil(flightNs))
		svTime := rt.ArrivalNs - whole
		if svTime < 0 {
			svTime += NANOS_IN_WEEK
		}
		b.Measurements = append(b.Measurements, RawMeasurement{
			Svid:                           pr.Prn,
			ConstellationType:              CONSTELLATION_GPS,
			TimeOffsetNanos:                float64(whole) - flightNs,
			State:                          STATE_TOW_DECODED,
			ReceivedSvTimeNanos:            svTime,
			ReceivedSvTimeUncertaintyNanos: 10,
			Cn0DbHz:                        pr.Cn0DbHz,
			AccumulatedDeltaRangeState:     0,
			CarrierFrequencyHz:             L1,
		})
	}
	return b
}

// Batch simulates one conventional epoch
func (p *Simulator) Batch(clockNs int64, usr PosXYZ) *Batch {
	prs, rt := p.Pseudoranges(clockNs, usr)
	return p.ToBatch(prs, rt)
}

// PseudoliteBatch simulates one indoor epoch
func (p *Simulator) PseudoliteBatch(clockNs int64, usr PosXYZ) (*Batch, error) {
	prs, rt, err := p.PseudolitePseudoranges(clockNs, usr)
	if err != nil {
		return nil, err
	}
	return p.ToBatch(prs, rt), nil
}

// Receiver clock reading [ns since the GPS epoch] of a GPS time plus the clock bias
func (p *Simulator) ClockNanos(gt GTime) int64 {
	return int64(gt.Week)*NANOS_IN_WEEK + int64(math.Round(gt.Sec*1e9)) + int64(math.Round(p.Opt.BiasMeters/C*1e9))
}
