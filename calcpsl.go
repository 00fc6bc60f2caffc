// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

// Implements two-stage indoor positioning with GPS pseudolites.

package gopsl

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrIncompletePseudoliteSet = errors.New("incomplete pseudolite set")
	ErrDampedNotConverged      = errors.New("damped least squares did not converge")
)

// How satellites are matched with indoor antennas
type Selection int

const (
	SelectStrongest Selection = iota // N strongest satellites, matched with antennas in ascending PRN order
	SelectAssigned                   // Satellite i of PslConfig.SatelliteId is rebroadcast by antenna i
)

func (p Selection) String() string {
	switch p {
	case SelectStrongest:
		return "strongest"
	case SelectAssigned:
		return "assigned"
	}
	return "unknown"
}

// PslOpt contains options for the pseudolite calculation
type PslOpt struct {
	Wls           *WlsOpt   // Options of the stage 1 solve
	Selection     Selection // Satellite selection policy
	Lambda0       float64   // Initial damping factor
	Mu            float64   // Damping update factor
	MaxIterations int       // Maximum number of damped iterations
	Tolerance     float64   // Convergence threshold on |dx| [m]
	Seed          PosXYZ    // Initial indoor position (local XYZ)
}

// NewPslOpt creates a new PslOpt with default values
func NewPslOpt() *PslOpt {
	return &PslOpt{
		Wls:           NewWlsOpt(),
		Selection:     SelectStrongest, // Pseudolites are the strongest signals indoors
		Lambda0:       0.1,
		Mu:            10,
		MaxIterations: 100,
		Tolerance:     1e-4, // [m]
		Seed:          PosXYZ{},
	}
}

// PslSol contains the results of the pseudolite calculation.
// Per-pseudolite slices are in antenna order.
type PslSol struct {
	Pos       PosXYZ    // Indoor position (local XYZ)
	Bias      float64   // Residual clock bias after stage 1 [m]
	Sats      []int     // PRN rebroadcast by each antenna
	RawPr     []float64 // Measured pseudoranges [m]
	SatToAnt  []float64 // Predicted satellite to outdoor antenna pseudoranges [m]
	AntToUser []float64 // Derived indoor antenna to user ranges [m]
	Costs     []float64 // Residual sum of squares after each accepted step, starting with the initial one
	Iter      int       // Number of damped iterations
	Lambda    float64   // Final damping factor
	Stage1    *WlsSol   // Phantom solution
}

// NaN position, keeping any diagnostics already derived
func (p *PslSol) invalidate() {
	n := math.NaN()
	p.Pos = PosXYZ{X: n, Y: n, Z: n}
	p.Bias = n
}

func (p *PslSol) Solution() PositionSolution {
	return PositionSolution{Pos: p.Pos, Bias: p.Bias}
}

// CalcPseudolite computes the indoor position from pseudolite signals
//
// Parameters:
//   - prs: Pseudoranges of one epoch (all usable satellites)
//   - nav: Navigation data
//   - rt: Receiver time of the epoch
//   - cfg: Pseudolite installation
//   - opt: Calculation options
//
// Returns:
//   - PslSol: Indoor position and intermediate ranges. Position is NaN when the damped solve did not converge
//   - error: ErrIncompletePseudoliteSet, ErrMissingEphemeris, stage 1 errors or ErrDampedNotConverged (wrapped)
func CalcPseudolite(
	prs []PseudorangeMeasurement, // Pseudoranges of one epoch
	nav *Nav, // Navigation data
	rt ReceiverTime, // Receiver time
	cfg *PslConfig, // Pseudolite installation
	opt *PslOpt, // Calculation options
) (*PslSol, error) {

	if opt == nil {
		opt = NewPslOpt()
	}
	rslt := &PslSol{}
	rslt.invalidate()

	// Select one satellite per indoor antenna
	sel, err := selectPseudoliteSatellites(prs, nav, rt, cfg, opt.Selection)
	if err != nil {
		return rslt, fmt.Errorf("selectPseudoliteSatellites() failed, err=%w", err)
	}

	// Stage 1: phantom satellite solution from zero
	st1, err := CalcWls(sel, nav, rt, PositionSolution{}, opt.Wls)
	if err != nil {
		return rslt, fmt.Errorf("CalcWls() failed, err=%w", err)
	}
	rslt.Stage1 = st1
	PrintD(2, "\tphantom: XYZ= %s, b=%.3f\n", st1.Pos.String(), st1.Bias)

	// Stage 2: ranges from indoor antennas to the user
	err = derivePseudoliteRanges(sel, nav, rt, cfg, opt, rslt)
	if err != nil {
		return rslt, fmt.Errorf("derivePseudoliteRanges() failed, err=%w", err)
	}

	err = solvePseudoliteEquations(cfg, opt, rslt)
	if err != nil {
		rslt.invalidate()
		return rslt, fmt.Errorf("solvePseudoliteEquations() failed, err=%w", err)
	}
	return rslt, nil
}

// SelectPseudolites returns one pseudorange per indoor antenna in antenna order
func SelectPseudolites(prs []PseudorangeMeasurement, cfg *PslConfig, sel Selection) ([]PseudorangeMeasurement, error) {
	n := cfg.N()
	var out []PseudorangeMeasurement

	switch sel {
	case SelectAssigned:
		if len(cfg.SatelliteId) != n {
			return nil, fmt.Errorf("satelliteId is not configured for %d antennas", n)
		}
		for _, prn := range cfg.SatelliteId {
			i := slices.IndexFunc(prs, func(p PseudorangeMeasurement) bool { return p.Prn == prn })
			if i < 0 {
				return nil, fmt.Errorf("%w: G%02d is not tracked", ErrIncompletePseudoliteSet, prn)
			}
			out = append(out, prs[i])
		}
	default:
		if len(prs) < n {
			return nil, fmt.Errorf("%w: %d < %d", ErrIncompletePseudoliteSet, len(prs), n)
		}
		out = append(out, StrongestN(prs, n)...)
		sortByPrn(out)
	}
	return out, nil
}

// selectPseudoliteSatellites also requires an ephemeris for every selected satellite
func selectPseudoliteSatellites(prs []PseudorangeMeasurement, nav *Nav, rt ReceiverTime, cfg *PslConfig, sel Selection) ([]PseudorangeMeasurement, error) {
	out, err := SelectPseudolites(prs, cfg, sel)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		if !nav.Has(p.Prn, rt.GTime()) {
			return nil, fmt.Errorf("%w: G%02d", ErrMissingEphemeris, p.Prn)
		}
	}
	return out, nil
}

// derivePseudoliteRanges removes the satellite to outdoor antenna part and the fixed indoor
// channel from each measured pseudorange
func derivePseudoliteRanges(sel []PseudorangeMeasurement, nav *Nav, rt ReceiverTime, cfg *PslConfig, opt *PslOpt, rslt *PslSol) error {
	st1 := rslt.Stage1
	ant := cfg.OutdoorAntennaXYZ()
	model := newRangeModel(nav, rt, opt.Wls)

	n := cfg.N()
	rslt.Sats = make([]int, n)
	rslt.RawPr = make([]float64, n)
	rslt.SatToAnt = make([]float64, n)
	rslt.AntToUser = make([]float64, n)
	for i, p := range sel {
		j := st1.Index(p.Prn)
		if j < 0 {
			return fmt.Errorf("%w: G%02d", ErrMissingEphemeris, p.Prn)
		}
		pred, _, _ := model.predict(st1.Ephe[j], p.PseudorangeMeters, ant, st1.Bias, st1.DoAtmospheric)
		rslt.Sats[i] = p.Prn
		rslt.RawPr[i] = p.PseudorangeMeters
		rslt.SatToAnt[i] = pred
		rslt.AntToUser[i] = p.PseudorangeMeters - pred - cfg.OutdoorToIndoorRange[i] - cfg.Delay(i)
		PrintD(3, "\tG%02d: raw=%14.3f, satToAnt=%14.3f, antToUser=%10.3f\n", p.Prn, rslt.RawPr[i], pred, rslt.AntToUser[i])
	}
	return nil
}

// Ranges from the antennas plus clock bias, and the geometry matrix when G is not nil
func estimateRanges(cfg *PslConfig, pos PosXYZ, bias float64, G *mat.Dense) []float64 {
	est := make([]float64, cfg.N())
	for i := range est {
		a := cfg.Antenna(i)
		ri := EucDist(&pos, &a)
		est[i] = ri + bias
		if G != nil {
			if ri == 0 {
				ri = 1e-9
			}
			G.Set(i, 0, (pos.X-a.X)/ri)
			G.Set(i, 1, (pos.Y-a.Y)/ri)
			G.Set(i, 2, (pos.Z-a.Z)/ri)
			G.Set(i, 3, 1)
		}
	}
	return est
}

// Initial bias: mean offset of the derived ranges from the ranges seen at the seed.
// A zero bias can converge on the mirror solution across the antenna plane.
func seedPseudoliteBias(cfg *PslConfig, seed PosXYZ, antToUser []float64) float64 {
	d := make([]float64, len(antToUser))
	for i, r := range antToUser {
		a := cfg.Antenna(i)
		d[i] = r - EucDist(&seed, &a)
	}
	return stat.Mean(d, nil)
}

// solvePseudoliteEquations runs Levenberg-Marquardt on the indoor ranges
func solvePseudoliteEquations(cfg *PslConfig, opt *PslOpt, rslt *PslSol) error {
	n := cfg.N()
	pos := opt.Seed
	bias := seedPseudoliteBias(cfg, pos, rslt.AntToUser)
	lambda := opt.Lambda0

	G := mat.NewDense(n, 4, nil)
	res := make([]float64, n)
	floats.SubTo(res, rslt.AntToUser, estimateRanges(cfg, pos, bias, G))
	cost1 := floats.Dot(res, res)
	rslt.Costs = []float64{cost1}

	step := math.Inf(1)
	for loop := 0; step >= opt.Tolerance; loop++ {
		if loop >= opt.MaxIterations {
			rslt.Iter = loop
			rslt.Lambda = lambda
			return fmt.Errorf("%w (%d)", ErrDampedNotConverged, opt.MaxIterations)
		}

		dx, err := SolveDampedLS(G, mat.NewVecDense(n, res), lambda)
		if err != nil {
			return fmt.Errorf("SolveDampedLS() failed, err=%w", err)
		}

		// Tentative update
		pos2 := PosXYZ{X: pos.X + dx.AtVec(0), Y: pos.Y + dx.AtVec(1), Z: pos.Z + dx.AtVec(2)}
		bias2 := bias + dx.AtVec(3)
		G2 := mat.NewDense(n, 4, nil)
		res2 := make([]float64, n)
		floats.SubTo(res2, rslt.AntToUser, estimateRanges(cfg, pos2, bias2, G2))
		cost2 := floats.Dot(res2, res2)

		if cost2 <= cost1 {
			pos, bias = pos2, bias2
			G, res, cost1 = G2, res2, cost2
			lambda /= opt.Mu
			step = mat.Norm(dx, 2)
			rslt.Costs = append(rslt.Costs, cost2)
			PrintD(3, "\tLM %d: accept, XYZ= %s, b=%.4f, cost=%.3e, step=%.3e\n", loop+1, pos.String(), bias, cost2, step)
		} else {
			lambda *= opt.Mu
			PrintD(3, "\tLM %d: reject, cost=%.3e > %.3e, lambda=%.1e\n", loop+1, cost2, cost1, lambda)
		}
		rslt.Iter = loop + 1
	}

	rslt.Pos = pos
	rslt.Bias = bias
	rslt.Lambda = lambda
	return nil
}
