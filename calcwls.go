// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

// Implements conventional weighted least squares (WLS) positioning from GPS pseudoranges.

package gopsl

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInsufficientSatellites = errors.New("insufficient satellites")
	ErrMissingEphemeris       = errors.New("missing ephemeris")
	ErrNotConverged           = errors.New("Maximum number of least square iterations reached without convergence")
)

// Calculation constants for WLS processing
const (
	MIN_SATELLITES = 4 // Number of unknowns (x, y, z, clock bias)
)

// WlsOpt contains options for the WLS calculation
type WlsOpt struct {
	MaxIterations           int       // Maximum number of iterations
	Tolerance               float64   // Convergence threshold on |dx|+|dy|+|dz| [m]
	AtmosphericSwitchMeters float64   // Apply iono/tropo once the position correction is below this [m]. 0 disables corrections
	Trop                    TropModel // Tropospheric model. nil means EGNOS with sea level terrain
	Freq                    float64   // Carrier frequency [Hz]
}

// NewWlsOpt creates a new WlsOpt with default values
func NewWlsOpt() *WlsOpt {
	return &WlsOpt{
		MaxIterations:           100,  // Iteration cap
		Tolerance:               4e-8, // [m]
		AtmosphericSwitchMeters: 0,    // No atmospheric corrections
		Trop:                    nil,  // EGNOS
		Freq:                    L1,   // GPS L1
	}
}

// WlsSol contains the results of the WLS calculation.
// Per-satellite slices are in the order of Sats (ascending PRN).
type WlsSol struct {
	Pos           PosXYZ             // Receiver position (ECEF)
	Bias          float64            // Receiver clock bias [m]
	Time          GTime              // Reception time corrected for the receiver clock bias
	Sats          []int              // PRNs used in calculation
	Ephe          []*Ephe            // Ephemeris of each satellite
	Pr            []float64          // Measured pseudoranges [m]
	Unc           []float64          // Pseudorange uncertainties [m]
	SatPos        []PosXYZ           // Satellite positions (earth rotation corrected)
	SatClk        []float64          // Satellite clock corrections [s]
	Res           []float64          // Final residuals
	Cov           *mat.DiagDense     // Observation covariance (uncertainty^2)
	DesMat        *mat.Dense         // Geometry matrix
	WghMat        mat.Matrix         // Weight matrix. nil when unweighted
	PosCov        mat.Matrix         // Estimation error covariance ((G^T W G)^-1)
	Dop           map[string]float64 // 'gdop', 'pdop', 'hdop', 'vdop'
	Iter          int                // Number of iterations
	DoAtmospheric bool               // Whether iono/tropo corrections were applied
	Unweighted    bool               // Covariance was singular and OLS was used
}

// NewWlsSol creates a new empty WlsSol
func NewWlsSol() *WlsSol {
	return &WlsSol{
		Sats:   []int{},
		Ephe:   []*Ephe{},
		Pr:     []float64{},
		Unc:    []float64{},
		SatPos: []PosXYZ{},
		SatClk: []float64{},
		Res:    []float64{},
		Dop:    map[string]float64{},
	}
}

func (p *WlsSol) Solution() PositionSolution {
	return PositionSolution{Pos: p.Pos, Bias: p.Bias}
}

// Index of the satellite in Sats, or -1
func (p *WlsSol) Index(prn int) int {
	for i, s := range p.Sats {
		if s == prn {
			return i
		}
	}
	return -1
}

// CalcWls performs weighted least squares positioning using pseudorange measurements
// It computes receiver position and clock bias through iterative Gauss-Newton updates
//
// Parameters:
//   - prs: Pseudoranges of one epoch (any order)
//   - nav: Navigation data
//   - rt: Receiver time of the epoch
//   - seed: Initial position and clock bias
//   - opt: WLS calculation options
//
// Returns:
//   - WlsSol: Position, clock bias, satellite geometry and residuals
//   - error: ErrInsufficientSatellites or ErrNotConverged (wrapped)
func CalcWls(
	prs []PseudorangeMeasurement, // Pseudoranges of one epoch
	nav *Nav, // Navigation data
	rt ReceiverTime, // Receiver time
	seed PositionSolution, // Initial value
	opt *WlsOpt, // Calculation options
) (*WlsSol, error) {

	if opt == nil {
		opt = NewWlsOpt()
	}

	rslt := NewWlsSol()

	// Select satellites with ephemeris
	err := selectUsableSatellites(prs, nav, rt, rslt)
	if err != nil {
		return nil, fmt.Errorf("selectUsableSatellites() failed, err=%w", err)
	}

	// Solve observation equations iteratively
	err = solveWlsEquations(nav, rt, seed, opt, rslt)
	if err != nil {
		return nil, fmt.Errorf("solveWlsEquations() failed, err=%w", err)
	}

	return rslt, nil
}

// selectUsableSatellites keeps the satellites that have an ephemeris
func selectUsableSatellites(prs []PseudorangeMeasurement, nav *Nav, rt ReceiverTime, rslt *WlsSol) error {
	sorted := make([]PseudorangeMeasurement, len(prs))
	copy(sorted, prs)
	sortByPrn(sorted)

	for _, pr := range sorted {
		eph, err := nav.GetEphe(pr.Prn, rt.GTime())
		if err != nil {
			PrintD(3, "\tG%02d: No ephemeris\n", pr.Prn)
			continue
		}
		if math.IsNaN(pr.PseudorangeMeters) {
			PrintD(3, "\tG%02d: No pseudorange\n", pr.Prn)
			continue
		}
		rslt.Sats = append(rslt.Sats, pr.Prn)
		rslt.Ephe = append(rslt.Ephe, eph)
		rslt.Pr = append(rslt.Pr, pr.PseudorangeMeters)
		rslt.Unc = append(rslt.Unc, pr.UncertaintyMeters)
	}

	PrintD(2, "\tsat: %d / %d\n", len(rslt.Sats), len(prs))

	if len(rslt.Sats) < MIN_SATELLITES {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientSatellites, len(rslt.Sats), MIN_SATELLITES)
	}
	return nil
}

// solveWlsEquations sets up observation equations and solves them iteratively
func solveWlsEquations(nav *Nav, rt ReceiverTime, seed PositionSolution, opt *WlsOpt, rslt *WlsSol) error {

	n := len(rslt.Sats)
	upos := seed.Pos
	bias := seed.Bias
	if math.IsNaN(upos.X) || math.IsNaN(bias) {
		upos, bias = PosXYZ{}, 0
	}

	model := newRangeModel(nav, rt, opt)
	doAtmos := false

	// Covariance matrix and weight matrix (weights are fixed after the first pass)
	cv := make([]float64, n)
	for i, u := range rslt.Unc {
		cv[i] = u * u
	}
	rslt.Cov = mat.NewDiagDense(n, cv)
	W := WeightFromCov(rslt.Cov)
	if W == nil {
		PrintD(2, "\tcovariance is singular, use OLS\n")
		rslt.Unweighted = true
	}
	rslt.WghMat = W

	G := mat.NewDense(n, 4, nil)
	dr := mat.NewVecDense(n, nil)
	satPos := make([]PosXYZ, n)
	satClk := make([]float64, n)

	exitLoop := false
	for loop := 0; ; loop++ {

		PrintAIf(DBG_ >= 3 && !exitLoop, "\t--- LOOP: %d ---\n", loop+1)

		// Geometry matrix and residuals at the current estimate
		for i := range rslt.Sats {
			pred, spos, sclk := model.predict(rslt.Ephe[i], rslt.Pr[i], upos, bias, doAtmos)
			ri := EucDist(&spos, &upos)
			G.Set(i, 0, (upos.X-spos.X)/ri)
			G.Set(i, 1, (upos.Y-spos.Y)/ri)
			G.Set(i, 2, (upos.Z-spos.Z)/ri)
			G.Set(i, 3, 1)
			dr.SetVec(i, rslt.Pr[i]-pred)
			satPos[i] = spos
			satClk[i] = sclk
			PrintD(3, "\tG%02d: x=%16.3f, y=%16.3f, z=%16.3f, psr=%14.3f, sclk*C=%12.3f, dr=%12.3f\n",
				rslt.Sats[i], spos.X, spos.Y, spos.Z, rslt.Pr[i], sclk*C, dr.AtVec(i))
		}

		if exitLoop {
			break
		}

		if loop >= opt.MaxIterations {
			return fmt.Errorf("%w (%d)", ErrNotConverged, opt.MaxIterations)
		}

		// H = (G^t W G)^-1 G^t W
		H, err := LSProjection(G, W)
		if err != nil {
			PrintD(2, "\tLSProjection() failed., err= %s\n", err.Error())
			return err
		}
		var dx mat.VecDense
		dx.MulVec(H, dr)

		if DBG_ >= 4 {
			PrintA("G=\n")
			PrintMat(G)
			PrintA("dr=\n")
			PrintMat(dr)
			PrintA("dx=\n")
			PrintMat(&dx)
		}

		upos.X += dx.AtVec(0)
		upos.Y += dx.AtVec(1)
		upos.Z += dx.AtVec(2)
		bias += dx.AtVec(3)
		rslt.Iter = loop + 1

		d := math.Abs(dx.AtVec(0)) + math.Abs(dx.AtVec(1)) + math.Abs(dx.AtVec(2))
		PrintD(2, "\tLOOP %d: XYZ= %.3f %.3f %.3f, b=%.3f, d=%.3e\n", loop+1, upos.X, upos.Y, upos.Z, bias, d)

		// Turn on atmospheric corrections once the position is roughly known
		if !doAtmos && opt.AtmosphericSwitchMeters > 0 && d < opt.AtmosphericSwitchMeters {
			doAtmos = true
			PrintD(2, "\tatmospheric corrections enabled\n")
			continue
		}

		// Don't break, run one more loop to update rslt values
		if d < opt.Tolerance {
			exitLoop = true
		}
	}

	rslt.Pos = upos
	rslt.Bias = bias
	rslt.Time = GTime{Week: rt.Week, Sec: rt.Tow() - bias/C}
	rslt.SatPos = satPos
	rslt.SatClk = satClk
	rslt.Res = make([]float64, n)
	copy(rslt.Res, dr.RawVector().Data)
	rslt.DesMat = G
	rslt.DoAtmospheric = doAtmos

	// Estimation error covariance
	Wc := W
	if Wc == nil {
		one := make([]float64, n)
		for i := range one {
			one[i] = 1
		}
		Wc = mat.NewDiagDense(n, one)
	}
	if _, cov, err := SolveLS(G, dr, Wc); err == nil {
		rslt.PosCov = cov
	}

	if dop, err := CalcDop(G, upos.ToLLH()); err == nil {
		rslt.Dop = dop
	}
	return nil
}

// ------------------------------------
// Pseudorange model
// ------------------------------------

type rangeModel struct {
	nav   *Nav
	week  int
	rxTow float64 // Receiver clock time of week at reception [s]
	doy   int
	trop  TropModel
	freq  float64
}

func newRangeModel(nav *Nav, rt ReceiverTime, opt *WlsOpt) *rangeModel {
	trop := opt.Trop
	if trop == nil {
		trop = NewTropEgnos(nil)
	}
	freq := opt.Freq
	if freq == 0 {
		freq = L1
	}
	return &rangeModel{
		nav:   nav,
		week:  rt.Week,
		rxTow: rt.Tow(),
		doy:   rt.DayOfYear,
		trop:  trop,
		freq:  freq,
	}
}

// Predicted pseudorange [m] of the satellite seen from usr with receiver clock bias [m].
// Also returns the satellite position and clock correction [s].
func (m *rangeModel) predict(eph *Ephe, pr float64, usr PosXYZ, bias float64, doAtmos bool) (float64, PosXYZ, float64) {

	// Reception time corrected for the receiver clock bias and bias-free pseudorange
	rcvt := m.rxTow - bias/C
	psr := pr - bias

	// Transmission time by the satellite clock, then by GPS time
	tx := WrapWeek(rcvt-psr/C, m.week)
	sclk := SatClkCorr(eph, tx.Sec, tx.Week)
	tx = WrapWeek(tx.Sec-sclk, tx.Week)

	spos := SatPos(eph, tx.Sec, tx.Week, usr)

	pred := EucDist(&spos, &usr) - sclk*C + bias
	if doAtmos {
		var iono *IonoParams
		if m.nav != nil {
			iono = m.nav.Iono
		}
		pred += IonoKlobuchar(usr, spos, tx.Sec, iono, m.freq) * C
		pred += m.trop.Delay(usr, spos, m.doy)
	}
	return pred, spos, sclk
}
