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
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// DiagPlot collects diagnostics snapshots and renders one series per PRN
type DiagPlot struct {
	mu    sync.Mutex
	snaps []*Diagnostics
}

func NewDiagPlot() *DiagPlot {
	return &DiagPlot{}
}

func (p *DiagPlot) WriteResult(r *Result) error {
	if r.Diagnostics == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, r.Diagnostics)
	return nil
}

func (p *DiagPlot) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

// Points returns the finite samples of a named series for each PRN.
// X is seconds since the first snapshot.
func (p *DiagPlot) Points(series string) (map[int]plotter.XYs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pts := map[int]plotter.XYs{}
	if len(p.snaps) == 0 {
		return pts, nil
	}
	t0 := p.snaps[0].Tow
	for _, d := range p.snaps {
		s, ok := d.Series()[series]
		if !ok {
			return nil, fmt.Errorf("unknown series: %s", series)
		}
		for i, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pts[i+1] = append(pts[i+1], plotter.XY{X: towDiff(d.Tow, t0), Y: v})
		}
	}
	return pts, nil
}

// Save renders the series into an image file. The format follows the file extension.
func (p *DiagPlot) Save(fn, series string) error {
	pts, err := p.Points(series)
	if err != nil {
		return err
	}

	pl := plot.New()
	pl.Title.Text = series
	pl.X.Label.Text = "t [s]"
	pl.Y.Label.Text = series
	pl.Legend.Top = true

	lines := []interface{}{}
	for prn := 1; prn <= NUM_SLOTS; prn++ {
		xy, ok := pts[prn]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("G%02d", prn), xy)
	}
	if len(lines) > 0 {
		if err := plotutil.AddLinePoints(pl, lines...); err != nil {
			return fmt.Errorf("AddLinePoints() failed, err=%w", err)
		}
	}
	if err := pl.Save(8*vg.Inch, 5*vg.Inch, fn); err != nil {
		return fmt.Errorf("Save() failed, err=%w", err)
	}
	return nil
}
