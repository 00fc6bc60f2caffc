// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// RINEX 2.11 / 3.04 navigation message files (GPS records only)
// https://files.igs.org/pub/data/format/rinex211.txt
// https://files.igs.org/pub/data/format/rinex304.pdf
//

// Extract HEADER LABEL string from a header line
func getHeaderLabel(l string) string {
	if len(l) < 60 {
		return ""
	}
	return strings.TrimSpace(l[60:])
}

// Layout of navigation records, which differs between major versions
type navLayout struct {
	major   int
	valOff  int // Column of the first value in broadcast orbit lines
	clkOff  int // Column of af0 in the epoch line
	ionoOff int // Column of the first ionospheric parameter in the header
}

var (
	navLayoutV2 = navLayout{major: 2, valOff: 3, clkOff: 22, ionoOff: 2}
	navLayoutV3 = navLayout{major: 3, valOff: 4, clkOff: 23, ionoOff: 5}
)

func atoi(s string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 0)
	return int(v), err
}

// Read PRN and ToC from a navigation epoch line.
// ok is false for records of other satellite systems.
func getNavTime(l string, lo navLayout) (gt GTime, prn int, ok bool, err error) {
	var f [7]string
	sec := 0.0
	switch lo.major {
	case 2:
		// I2,1X,I2.2,1X,I2,1X,I2,1X,I2,1X,I2,F5.1
		if len(l) < 22 {
			return gt, 0, false, fmt.Errorf("short epoch line. l=%s", l)
		}
		f = [7]string{l[0:2], l[3:5], l[6:8], l[9:11], l[12:14], l[15:17], l[17:22]}
	default:
		// A1,I2.2,1X,I4,5(1X,I2.2)
		if len(l) < 23 {
			return gt, 0, false, fmt.Errorf("short epoch line. l=%s", l)
		}
		if l[0] != 'G' {
			return gt, 0, false, nil
		}
		f = [7]string{l[1:3], l[4:8], l[9:11], l[12:14], l[15:17], l[18:20], l[21:23]}
	}

	var v [6]int
	for i := 0; i < 6; i++ {
		if v[i], err = atoi(f[i]); err != nil {
			return gt, 0, false, err
		}
	}
	if sec, err = strconv.ParseFloat(strings.TrimSpace(f[6]), 64); err != nil {
		return gt, 0, false, err
	}
	year := v[1]
	if year < 100 {
		if year < 80 {
			year += 2000
		} else {
			year += 1900
		}
	}
	isec := int(sec)
	ns := int((sec - float64(isec)) * 1e9)
	gt = *NewGTime(time.Date(year, time.Month(v[2]), v[3], v[4], v[5], isec, ns, time.UTC))
	return gt, v[0], true, nil
}

// Epoch lines carry the PRN (v2) or the system letter (v3) in the leading columns
func isNavEpochLine(l string, lo navLayout) bool {
	if lo.major == 2 {
		return len(l) >= 2 && strings.TrimSpace(l[:2]) != ""
	}
	return l[0] != ' '
}

// Read four ionospheric parameters from a header line
func getIonoParams(l string, off int) (a [4]float64) {
	l = padRight(l, 80)
	for i := 0; i < 4; i++ {
		a[i] = parseFloat(l[off+i*12 : off+(i+1)*12])
	}
	return
}

func padRight(l string, n int) string {
	if len(l) < n {
		return l + strings.Repeat(" ", n-len(l))
	}
	return l
}

// Keep a time within half a week of the reference
func adjustWeek(t, ref GTime) GTime {
	d := t.Sub(ref)
	if d < -SECONDS_IN_HALF_WEEK {
		t.Sec += SECONDS_IN_WEEK
	} else if d > SECONDS_IN_HALF_WEEK {
		t.Sec -= SECONDS_IN_WEEK
	}
	return t
}

// ReadNav reads GPS ephemerides and Klobuchar parameters from a RINEX navigation file
func ReadNav(r io.Reader) (*Nav, error) {

	// Flag indicating header reading is complete
	headerDone := false

	lo := navLayoutV2
	nav := NewNav()
	var alpha, beta *[4]float64

	// Ephemeris being read and the line number counted from its epoch line
	var eph *Ephe
	lineCount := 0

	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()

		if !headerDone {
			switch getHeaderLabel(line) {
			case "RINEX VERSION / TYPE":
				ver := strings.TrimSpace(line[:9])
				switch {
				case strings.HasPrefix(ver, "2"):
					lo = navLayoutV2
				case strings.HasPrefix(ver, "3"):
					lo = navLayoutV3
				default:
					return nil, fmt.Errorf("unsupported RINEX version. RINEX version must be either 2.x or 3.x (ver=%s)", ver)
				}
				typ := line[20:21]
				if typ != "N" {
					return nil, fmt.Errorf("not a navigation message file (typ=%s)", typ)
				}
				if lo.major == 3 && line[40:41] != "G" && line[40:41] != "M" {
					return nil, fmt.Errorf("no GPS navigation data (sys=%s)", line[40:41])
				}
			case "ION ALPHA":
				a := getIonoParams(line, lo.ionoOff)
				alpha = &a
			case "ION BETA":
				b := getIonoParams(line, lo.ionoOff)
				beta = &b
			case "IONOSPHERIC CORR":
				switch line[:4] {
				case "GPSA":
					a := getIonoParams(line, lo.ionoOff)
					alpha = &a
				case "GPSB":
					b := getIonoParams(line, lo.ionoOff)
					beta = &b
				}
			case "END OF HEADER":
				headerDone = true
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		// Epoch line starts a new record
		if isNavEpochLine(line, lo) {
			gt, prn, ok, err := getNavTime(line, lo)
			if err != nil {
				return nil, fmt.Errorf("failed to read time of clock in navigation message. err=%w", err)
			}
			eph = nil
			if !ok {
				continue
			}
			if prn < 1 || prn > NUM_SLOTS {
				return nil, fmt.Errorf("invalid PRN in navigation message. prn=%d", prn)
			}
			line = padRight(line, lo.clkOff+57)
			eph = &Ephe{Prn: prn, Toc: gt}
			eph.Af0 = parseFloat(line[lo.clkOff : lo.clkOff+19])
			eph.Af1 = parseFloat(line[lo.clkOff+19 : lo.clkOff+38])
			eph.Af2 = parseFloat(line[lo.clkOff+38 : lo.clkOff+57])
			lineCount = 0
			continue
		}

		// Broadcast orbit lines
		if eph == nil {
			continue
		}
		line = padRight(line, lo.valOff+76)
		var v [4]float64
		for i := range v {
			v[i] = parseFloat(line[lo.valOff+i*19 : lo.valOff+(i+1)*19])
		}
		lineCount += 1
		switch lineCount {
		case 1:
			eph.Iode = int(v[0])
			eph.Crs = v[1]
			eph.DeltaN = v[2]
			eph.M0 = v[3]
		case 2:
			eph.Cuc = v[0]
			eph.Ecc = v[1]
			eph.Cus = v[2]
			eph.SqrtA = v[3]
		case 3:
			eph.Toe = GTime{Week: eph.Toc.Week, Sec: v[0]} // The value of Week has not been read yet, so it is temporarily filled.
			eph.Cic = v[1]
			eph.Omega0 = v[2]
			eph.Cis = v[3]
		case 4:
			eph.I0 = v[0]
			eph.Crc = v[1]
			eph.Omega = v[2]
			eph.OmegaD = v[3]
		case 5:
			eph.Idot = v[0]
			eph.Code = int(v[1])
			eph.Week = int(v[2])
			eph.Toe.Week = eph.Week
			eph.Toe = adjustWeek(eph.Toe, eph.Toc)
			eph.Flag = int(v[3])
		case 6:
			eph.Acc = v[0]
			eph.Sva = getURAIndex(v[0])
			eph.Svh = int(v[1])
			eph.Tgd = v[2]
			eph.Iodc = int(v[3])
		case 7:
			eph.Tot = adjustWeek(GTime{Week: eph.Week, Sec: v[0]}, eph.Toc)
			eph.Fit = v[1]
			nav.Add(eph)
			eph = nil
		}
	}

	// Check if reading completed without error
	if err := s.Err(); err != nil {
		return nil, err
	}
	if !headerDone {
		return nil, fmt.Errorf("END OF HEADER not found")
	}

	if alpha != nil && beta != nil {
		nav.Iono = &IonoParams{Alpha: *alpha, Beta: *beta}
	}
	return nav, nil
}

// ReadNavFile reads a RINEX navigation file
func ReadNavFile(fn string) (*Nav, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	nav, err := ReadNav(f)
	if err != nil {
		return nil, fmt.Errorf("ReadNav() failed, fn=%s, err=%w", fn, err)
	}
	return nav, nil
}

// Read real values by absorbing variations in exponential notation within RINEX files
func parseFloat(str string) float64 {
	s := strings.TrimSpace(str)
	if strings.ContainsAny(s, "Dd") {
		s = strings.Replace(s, "D", "E", 1)
		s = strings.Replace(s, "d", "e", 1)
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Return URA index for specified value
func getURAIndex(x float64) int {
	if x > 0 && x <= 2.4 {
		return 0
	} else if x > 2.4 && x <= 3.4 {
		return 1
	} else if x > 3.4 && x <= 4.85 {
		return 2
	} else if x > 4.85 && x <= 6.85 {
		return 3
	} else if x > 6.85 && x <= 9.65 {
		return 4
	} else if x > 9.65 && x <= 13.65 {
		return 5
	} else if x > 13.65 && x <= 24.0 {
		return 6
	} else if x > 24.0 && x <= 48.0 {
		return 7
	} else if x > 48.0 && x <= 96.0 {
		return 8
	} else if x > 96.0 && x <= 192.0 {
		return 9
	} else if x > 192.0 && x <= 384.0 {
		return 10
	} else if x > 384.0 && x <= 768.0 {
		return 11
	} else if x > 768.0 && x <= 1536.0 {
		return 12
	} else if x > 1536.0 && x <= 3072.0 {
		return 13
	} else if x > 3072.0 && x <= 6144.0 {
		return 14
	} else {
		return 15
	}
}
