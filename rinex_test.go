// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerLine(content, label string) string {
	return fmt.Sprintf("%-60s%-20s\n", content, label)
}

func orbitLines(indent string, v [7][4]float64) string {
	var sb strings.Builder
	for _, l := range v {
		sb.WriteString(indent)
		for _, x := range l {
			sb.WriteString(fmt.Sprintf("%19.12E", x))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Broadcast orbit values of a record with toe and week
func orbit(iode, toe float64, week int) [7][4]float64 {
	return [7][4]float64{
		{iode, -12.5, 4.5e-9, 0.75},
		{1.2e-6, 0.0123, 8.1e-6, 5153.7},
		{toe, 1.1e-7, -1.25, -5.6e-8},
		{0.96, 210.5, 0.45, -8.1e-9},
		{2.1e-10, 1, float64(week), 0},
		{2.0, 0, -1.1e-8, iode},
		{toe - 18, 4, 0, 0},
	}
}

func rinex2Sample() string {
	var sb strings.Builder
	sb.WriteString(headerLine(fmt.Sprintf("%9.2f%11s%-20s", 2.11, "", "N: GPS NAV DATA"), "RINEX VERSION / TYPE"))
	sb.WriteString(headerLine(fmt.Sprintf("  %12.4E%12.4E%12.4E%12.4E", 1.1176e-08, 7.4506e-09, -5.9605e-08, -5.9605e-08), "ION ALPHA"))
	sb.WriteString(headerLine(fmt.Sprintf("  %12.4E%12.4E%12.4E%12.4E", 9.0112e+04, 0.0, -1.9661e+05, -6.5536e+04), "ION BETA"))
	sb.WriteString(headerLine("", "END OF HEADER"))

	// PRN 5 at 02:00 and 04:00, PRN 12 at 02:00 (2025/10/01 is in GPS week 2386)
	for _, r := range []struct {
		prn      int
		hour     int
		toe, iod float64
	}{{5, 2, 266400, 11}, {5, 4, 273600, 12}, {12, 2, 266400, 40}} {
		sb.WriteString(fmt.Sprintf("%2d %02d %2d %2d %2d %2d%5.1f%19.12E%19.12E%19.12E\n",
			r.prn, 25, 10, 1, r.hour, 0, 0.0, 1.5e-5*float64(r.prn), 2.3e-12, 0.0))
		sb.WriteString(orbitLines("   ", orbit(r.iod, r.toe, 2386)))
	}
	return sb.String()
}

func TestReadNavV2(t *testing.T) {
	nav, err := m.ReadNav(strings.NewReader(rinex2Sample()))
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal([]int{5, 12}, nav.Prns())
	assert.Len(nav.Ephs[5], 2)
	require.NotNil(t, nav.Iono)
	assert.InDelta(1.1176e-08, nav.Iono.Alpha[0], 1e-20)
	assert.InDelta(-6.5536e+04, nav.Iono.Beta[3], 1e-6)

	e := nav.Ephs[12][0]
	assert.Equal(40, e.Iode)
	assert.Equal(40, e.Iodc)
	assert.Equal(2386, e.Week)
	assert.Equal(2386, e.Toe.Week)
	assert.InDelta(266400, e.Toe.Sec, 1e-9)
	assert.InDelta(5153.7, e.SqrtA, 1e-9)
	assert.InDelta(1.8e-4, e.Af0, 1e-15)
	assert.InDelta(2.3e-12, e.Af1, 1e-24)
	assert.InDelta(-1.1e-8, e.Tgd, 1e-20)
	assert.InDelta(4, e.Fit, 1e-9)
	assert.Equal(time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC), e.Toc.ToTime().UTC())

	// Nearest Toe
	gt := m.GTime{Week: 2386, Sec: 272000}
	e5, err := nav.GetEphe(5, gt)
	require.NoError(t, err)
	assert.Equal(12, e5.Iode)
	_, err = nav.GetEphe(7, gt)
	assert.Error(err)
}

func TestReadNavV3(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(headerLine(fmt.Sprintf("%9.2f%11s%-20s%-20s", 3.04, "", "N: GNSS NAV DATA", "M: MIXED"), "RINEX VERSION / TYPE"))
	sb.WriteString(headerLine(fmt.Sprintf("GPSA %12.4E%12.4E%12.4E%12.4E", 1.0e-08, 2.0e-08, 0.0, 0.0), "IONOSPHERIC CORR"))
	sb.WriteString(headerLine(fmt.Sprintf("GPSB %12.4E%12.4E%12.4E%12.4E", 9.0e+04, 0.0, 0.0, 0.0), "IONOSPHERIC CORR"))
	sb.WriteString(headerLine("", "END OF HEADER"))
	sb.WriteString(fmt.Sprintf("G%02d %4d %02d %02d %02d %02d %02d%19.12E%19.12E%19.12E\n", 7, 2025, 10, 1, 2, 0, 0, 1e-5, 0.0, 0.0))
	sb.WriteString(orbitLines("    ", orbit(3, 266400, 2386)))
	sb.WriteString(fmt.Sprintf("R%02d %4d %02d %02d %02d %02d %02d%19.12E%19.12E%19.12E\n", 7, 2025, 10, 1, 2, 15, 0, 1e-5, 0.0, 0.0))
	for i := 0; i < 3; i++ {
		sb.WriteString(fmt.Sprintf("    %19.12E%19.12E%19.12E%19.12E\n", 1.0, 2.0, 3.0, 4.0))
	}

	nav, err := m.ReadNav(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, []int{7}, nav.Prns())
	require.NotNil(t, nav.Iono)
	assert.InDelta(t, 2.0e-08, nav.Iono.Alpha[1], 1e-20)
	assert.InDelta(t, 266400, nav.Ephs[7][0].Toe.Sec, 1e-9)
}

func TestReadNavWithoutIono(t *testing.T) {
	s := strings.Replace(rinex2Sample(), "ION BETA", "COMMENT", 1)
	nav, err := m.ReadNav(strings.NewReader(s))
	require.NoError(t, err)
	assert.Nil(t, nav.Iono)
}

func TestReadNavErrors(t *testing.T) {
	_, err := m.ReadNav(strings.NewReader(headerLine(fmt.Sprintf("%9.2f%11s%-20s", 2.11, "", "O: OBSERVATION"), "RINEX VERSION / TYPE")))
	assert.Error(t, err)

	s := strings.Replace(rinex2Sample(), "END OF HEADER", "COMMENT", 1)
	_, err = m.ReadNav(strings.NewReader(s))
	assert.Error(t, err)
}
