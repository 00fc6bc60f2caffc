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
	"strconv"
	"strings"
)

// GNSSLogger raw measurement log
//
//	# Raw,ElapsedRealtimeMillis,TimeNanos,...
//	Raw,12345,67890,...
//
// Rows with the same TimeNanos belong to one epoch.

// Column order written by GNSSLogger. Used when the log has no "# Raw," header.
var RAW_COLUMNS = []string{
	"Raw", "ElapsedRealtimeMillis", "TimeNanos", "LeapSecond", "TimeUncertaintyNanos",
	"FullBiasNanos", "BiasNanos", "BiasUncertaintyNanos", "DriftNanosPerSecond",
	"DriftUncertaintyNanosPerSecond", "HardwareClockDiscontinuityCount", "Svid",
	"TimeOffsetNanos", "State", "ReceivedSvTimeNanos", "ReceivedSvTimeUncertaintyNanos",
	"Cn0DbHz", "PseudorangeRateMetersPerSecond", "PseudorangeRateUncertaintyMetersPerSecond",
	"AccumulatedDeltaRangeState", "AccumulatedDeltaRangeMeters",
	"AccumulatedDeltaRangeUncertaintyMeters", "CarrierFrequencyHz", "CarrierCycles",
	"CarrierPhase", "CarrierPhaseUncertainty", "MultipathIndicator", "SnrInDb",
	"ConstellationType", "AgcDb",
}

// Raw log row split into columns
type rawRow struct {
	cols   map[string]int
	fields []string
	line   int
}

func (r *rawRow) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// Integer column. Empty fields read as 0.
func (r *rawRow) integer(name string) (int64, error) {
	s := r.str(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some loggers print integral values as floats
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("line %d: invalid %s: %q", r.line, name, s)
		}
		v = int64(f)
	}
	return v, nil
}

// Real column. Empty fields read as 0.
func (r *rawRow) float(name string) (float64, error) {
	s := r.str(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s: %q", r.line, name, s)
	}
	return v, nil
}

// Parse errors are collected and only the first one is reported
type rowParser struct {
	row *rawRow
	err error
}

func (p *rowParser) i64(name string) int64 {
	v, err := p.row.integer(name)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *rowParser) i(name string) int {
	return int(p.i64(name))
}

func (p *rowParser) f(name string) float64 {
	v, err := p.row.float(name)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (r *rawRow) clock() (RawClock, error) {
	p := rowParser{row: r}
	clk := RawClock{
		TimeNanos:                       p.i64("TimeNanos"),
		LeapSecond:                      p.i("LeapSecond"),
		TimeUncertaintyNanos:            p.f("TimeUncertaintyNanos"),
		FullBiasNanos:                   p.i64("FullBiasNanos"),
		BiasNanos:                       p.f("BiasNanos"),
		BiasUncertaintyNanos:            p.f("BiasUncertaintyNanos"),
		DriftNanosPerSecond:             p.f("DriftNanosPerSecond"),
		DriftUncertaintyNanosPerSecond:  p.f("DriftUncertaintyNanosPerSecond"),
		HardwareClockDiscontinuityCount: p.i("HardwareClockDiscontinuityCount"),
	}
	return clk, p.err
}

func (r *rawRow) measurement() (RawMeasurement, error) {
	p := rowParser{row: r}
	m := RawMeasurement{
		Svid:                           p.i("Svid"),
		ConstellationType:              p.i("ConstellationType"),
		TimeOffsetNanos:                p.f("TimeOffsetNanos"),
		State:                          p.i("State"),
		ReceivedSvTimeNanos:            p.i64("ReceivedSvTimeNanos"),
		ReceivedSvTimeUncertaintyNanos: p.i64("ReceivedSvTimeUncertaintyNanos"),
		Cn0DbHz:                        p.f("Cn0DbHz"),
		PseudorangeRateMetersPerSecond: p.f("PseudorangeRateMetersPerSecond"),
		PseudorangeRateUncertaintyMetersPerSecond: p.f("PseudorangeRateUncertaintyMetersPerSecond"),
		AccumulatedDeltaRangeState:                p.i("AccumulatedDeltaRangeState"),
		AccumulatedDeltaRangeMeters:               p.f("AccumulatedDeltaRangeMeters"),
		AccumulatedDeltaRangeUncertaintyMeters:    p.f("AccumulatedDeltaRangeUncertaintyMeters"),
		CarrierFrequencyHz:                        p.f("CarrierFrequencyHz"),
	}
	return m, p.err
}

// RawLogReader reads epochs from a GNSSLogger log
type RawLogReader struct {
	s       *bufio.Scanner
	cols    map[string]int
	pending *rawRow
	line    int
	eof     bool
}

func NewRawLogReader(r io.Reader) *RawLogReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	p := &RawLogReader{s: s}
	p.setColumns(RAW_COLUMNS)
	return p
}

func (p *RawLogReader) setColumns(names []string) {
	p.cols = make(map[string]int, len(names))
	for i, n := range names {
		p.cols[strings.TrimSpace(n)] = i
	}
}

// Next Raw row, or nil at the end of input
func (p *RawLogReader) nextRow() (*rawRow, error) {
	if p.pending != nil {
		r := p.pending
		p.pending = nil
		return r, nil
	}
	for !p.eof && p.s.Scan() {
		p.line++
		line := strings.TrimRight(p.s.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "# Raw,"), strings.HasPrefix(line, "#Raw,"):
			p.setColumns(strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "#")), ","))
		case strings.HasPrefix(line, "Raw,"):
			return &rawRow{cols: p.cols, fields: strings.Split(line, ","), line: p.line}, nil
		}
	}
	p.eof = true
	return nil, p.s.Err()
}

// Next returns the next epoch. io.EOF is returned at the end of input.
func (p *RawLogReader) Next() (*Batch, error) {
	r, err := p.nextRow()
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, io.EOF
	}

	group := r.str("TimeNanos")
	clk, err := r.clock()
	if err != nil {
		return nil, err
	}
	batch := &Batch{Clock: clk}

	for r != nil {
		if r.str("TimeNanos") != group {
			p.pending = r
			break
		}
		m, err := r.measurement()
		if err != nil {
			return nil, err
		}
		batch.Measurements = append(batch.Measurements, m)
		if r, err = p.nextRow(); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// ReadRawLog reads all epochs of a log
func ReadRawLog(r io.Reader) ([]*Batch, error) {
	rd := NewRawLogReader(r)
	batches := []*Batch{}
	for {
		b, err := rd.Next()
		if err == io.EOF {
			return batches, nil
		}
		if err != nil {
			return nil, fmt.Errorf("Next() failed, err=%w", err)
		}
		batches = append(batches, b)
	}
}

// WriteRawLog writes epochs in GNSSLogger layout
func WriteRawLog(w io.Writer, batches []*Batch) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", strings.Join(RAW_COLUMNS, ","))
	for _, b := range batches {
		c := &b.Clock
		for _, m := range b.Measurements {
			fmt.Fprintf(bw, "Raw,0,%d,%d,%g,%d,%g,%g,%g,%g,%d,%d,%g,%d,%d,%d,%g,%g,%g,%d,%g,%g,%g,,,,0,,%d,\n",
				c.TimeNanos, c.LeapSecond, c.TimeUncertaintyNanos, c.FullBiasNanos, c.BiasNanos,
				c.BiasUncertaintyNanos, c.DriftNanosPerSecond, c.DriftUncertaintyNanosPerSecond,
				c.HardwareClockDiscontinuityCount,
				m.Svid, m.TimeOffsetNanos, m.State, m.ReceivedSvTimeNanos, m.ReceivedSvTimeUncertaintyNanos,
				m.Cn0DbHz, m.PseudorangeRateMetersPerSecond, m.PseudorangeRateUncertaintyMetersPerSecond,
				m.AccumulatedDeltaRangeState, m.AccumulatedDeltaRangeMeters, m.AccumulatedDeltaRangeUncertaintyMeters,
				m.CarrierFrequencyHz, m.ConstellationType)
		}
	}
	return bw.Flush()
}
