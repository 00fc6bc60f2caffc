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
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

func EucDist(a, b *PosXYZ) float64 {
	return math.Sqrt(SQ(a.X-b.X) + SQ(a.Y-b.Y) + SQ(a.Z-b.Z))
}

func ToDeg(rad float64) float64 {
	return rad / PI * 180.0
}

func ToRad(deg float64) float64 {
	return deg / 180.0 * PI
}

// NaN-filled slot array
func nanSlots() [NUM_SLOTS]float64 {
	var a [NUM_SLOTS]float64
	for i := range a {
		a[i] = math.NaN()
	}
	return a
}

// ------------------------------------
// Debug print function
// ------------------------------------

// Logger used by all print functions
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Debug display level
var DBG_ int

// Set debug display level. 0(OFF), 1(display), 2(detailed), 3(more detailed), 4(most detailed)
func SetDebugLevel(v int) {
	DBG_ = v
	if v >= 2 {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}

func PrintMat(X mat.Matrix) {
	r, c := X.Dims()
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	Log.Debugf("(%d x %d)\n%v", r, c, fa)
}

func PrintA(format string, a ...any) {
	Log.Info(strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

func PrintAIf(cond bool, format string, a ...any) {
	if cond {
		PrintA(format, a...)
	}
}

func PrintB(t GTime, format string, a ...any) {
	Log.WithField("gpst", t.ToTime().UTC().Format("2006-01-02T15:04:05.000000")).
		Info(strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

// Debug display
func PrintD(v int, format string, a ...any) {
	if DBG_ < v {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	if v >= 2 {
		Log.Debug(msg)
	} else {
		Log.Info(msg)
	}
}

func PrintE(err error) {
	Log.Errorf("err=%s", err.Error())
}

// ------------------------------------
// For command argument parsing
// ------------------------------------

// Comma-separated PRN list like "3,7,11,28"
type PrnVar []int

func (p *PrnVar) Set(s string) error {
	*p = []int{}
	for _, a := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return err
		}
		if n < 1 || n > NUM_SLOTS {
			return fmt.Errorf("PRN out of range: %d", n)
		}
		*p = append(*p, n)
	}
	return nil
}

func (p *PrnVar) String() string {
	if p == nil {
		return ""
	}
	s := make([]string, len(*p))
	for i, n := range *p {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

// Processing mode (0: WLS, 1: pseudolite, 2: simulation)
type Mode int

const (
	ModeConventional Mode = iota
	ModePseudolite
	ModeSimulation
)

func (p *Mode) Set(s string) error {
	switch strings.ToLower(s) {
	case "wls", "0":
		*p = ModeConventional
	case "psl", "1":
		*p = ModePseudolite
	case "sim", "2":
		*p = ModeSimulation
	default:
		i, err := strconv.ParseInt(s, 10, 0)
		if err != nil {
			return err
		}
		*p = Mode(i)
	}
	return nil
}

func (p *Mode) String() string {
	if p == nil {
		return ""
	}
	switch *p {
	case ModeConventional:
		return "WLS"
	case ModePseudolite:
		return "PSL"
	case ModeSimulation:
		return "SIM"
	default:
		return "UNKNOWN!"
	}
}
