// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
)

// Structure to store ephemeris (navigation data for one GPS satellite, one issue)
type Ephe struct {
	Prn    int
	Toc    GTime // Reference time for satellite clock error correction
	Toe    GTime // Reference time for satellite orbit calculation
	Tot    GTime // Transmission time
	Iode   int
	Iodc   int
	Af0    float64
	Af1    float64
	Af2    float64
	Crs    float64
	DeltaN float64
	M0     float64
	Cuc    float64
	Ecc    float64
	Cus    float64
	SqrtA  float64
	Cic    float64
	Omega0 float64
	Cis    float64
	I0     float64
	Crc    float64
	Omega  float64
	OmegaD float64
	Idot   float64
	Code   int // Codes on L2
	Week   int
	Flag   int     // L2 P data flag
	Acc    float64 // SV accuracy [m]
	Sva    int     // URA index
	Svh    int
	Tgd    float64
	Fit    float64
}

func (e *Ephe) String() string {
	str := ""
	str += fmt.Sprintf("### Nav. for G%02d\n", e.Prn)
	str += fmt.Sprintf("    Toc: %v (%v)\n", e.Toc.ToTime().UTC(), e.Toc)
	str += fmt.Sprintf("    Toe: %v (%v)\n", e.Toe.ToTime().UTC(), e.Toe)
	str += fmt.Sprintf("   Iode: %v\n", e.Iode)
	str += fmt.Sprintf("    Af0: %v\n", e.Af0)
	str += fmt.Sprintf("    Af1: %v\n", e.Af1)
	str += fmt.Sprintf("    Af2: %v\n", e.Af2)
	str += fmt.Sprintf("    Ecc: %v\n", e.Ecc)
	str += fmt.Sprintf("  SqrtA: %v\n", e.SqrtA)
	str += fmt.Sprintf("    Svh: %v\n", e.Svh)
	str += fmt.Sprintf("    Tgd: %v\n", e.Tgd)
	return str
}

// Klobuchar ionospheric model parameters broadcast with the navigation message
type IonoParams struct {
	Alpha [4]float64
	Beta  [4]float64
}

// Navigation data: ephemerides keyed by PRN, each slice sorted by Toe in ascending order
type Nav struct {
	Ephs map[int][]*Ephe
	Iono *IonoParams // nil when the source did not provide ionospheric parameters
}

func NewNav() *Nav {
	return &Nav{Ephs: map[int][]*Ephe{}}
}

// Add an ephemeris. A record with the same Toe and IODE is replaced.
func (nav *Nav) Add(eph *Ephe) {
	a := nav.Ephs[eph.Prn]
	for i, e := range a {
		if e.Toe == eph.Toe && e.Iode == eph.Iode {
			a[i] = eph
			return
		}
	}
	a = append(a, eph)
	slices.SortFunc(a, func(x, y *Ephe) int {
		if x.Toe.Less(y.Toe, false) {
			return -1
		} else if y.Toe.Less(x.Toe, false) {
			return 1
		}
		return 0
	})
	nav.Ephs[eph.Prn] = a
}

// Has reports whether a valid ephemeris for the time exists
func (nav *Nav) Has(prn int, gt GTime) bool {
	_, err := nav.GetEphe(prn, gt)
	return err == nil
}

// PRNs with at least one ephemeris, ascending
func (nav *Nav) Prns() []int {
	s := make([]int, 0, len(nav.Ephs))
	for k, v := range nav.Ephs {
		if len(v) > 0 {
			s = append(s, k)
		}
	}
	slices.Sort(s)
	return s
}

// Select the ephemeris whose Toe is closest to the specified time.
// Records with |t-Toe| of MAX_DTOE or more are not used (RTKLIB MAXDTOE).
func (nav *Nav) GetEphe(prn int, gt GTime) (*Ephe, error) {
	if nav == nil {
		return nil, fmt.Errorf("%w: no navigation data", ErrMissingEphemeris)
	}
	navs, ok := nav.Ephs[prn]
	if !ok || len(navs) == 0 {
		return nil, fmt.Errorf("%w: can't find G%02d", ErrMissingEphemeris, prn)
	}
	j := -1
	diffMin := MAX_DTOE
	for i, eph := range navs {
		diff := math.Abs(gt.Sub(eph.Toe))
		if diff < diffMin {
			diffMin = diff
			j = i
		}
	}
	if j < 0 {
		return nil, fmt.Errorf("%w: can't find a valid ephemeris for G%02d", ErrMissingEphemeris, prn)
	}
	return navs[j], nil
}

// Display navigation data overview
func (nav *Nav) String() string {
	var sb strings.Builder
	sb.WriteString("toe:\n")
	for _, prn := range nav.Prns() {
		a := nav.Ephs[prn]
		st := a[0].Toe
		et := a[len(a)-1].Toe
		sb.WriteString(fmt.Sprintf("\tG%02d: %s - %s (%d)\n", prn,
			st.ToTime().UTC().Format("2006/01/02 15:04:05.000"), et.ToTime().UTC().Format("2006/01/02 15:04:05.000"), len(a)))
	}
	if nav.Iono != nil {
		sb.WriteString(fmt.Sprintf("iono:\n\talpha: %v\n\tbeta: %v\n", nav.Iono.Alpha, nav.Iono.Beta))
	}
	return sb.String()
}
