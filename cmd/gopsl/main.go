// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	m "github.com/mkhts/gopsl"
	"github.com/tarm/serial"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs()
	if err != nil {
		m.PrintE(err)
		flag.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		m.PrintE(err)
		os.Exit(1)
	}
}

// Main application processing
func runApplication(args cmdOpt) error {
	start := time.Now()

	// Load input files
	cfg, nav, src, err := loadInputFiles(args)
	if err != nil {
		return fmt.Errorf("failed to load input files: %w", err)
	}
	defer src.Close()

	if m.DBG_ >= 2 && nav != nil {
		m.PrintA("--- nav data (%s)---\n", filepath.Base(args.navFn))
		fmt.Println(nav)
	}

	// Prepare output file
	pos, posc, err := prepareOutput(args)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer closeOutput(posc)

	opt := m.NewSessionOpt()
	opt.Mode = args.mode
	opt.Config = cfg
	opt.Nav = nav
	opt.Psl.Selection = args.selection
	opt.Wls.AtmosphericSwitchMeters = args.atmos
	opt.Psl.Wls.AtmosphericSwitchMeters = args.atmos
	if args.smooth != "" {
		if opt.Smoother, err = m.NewSmoother(string(args.smooth)); err != nil {
			return err
		}
	}
	opt.Sinks = append(opt.Sinks, pos)

	var db *m.SqliteSink
	if args.dbFn != "" {
		if db, err = m.NewSqliteSink(args.dbFn); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		opt.Sinks = append(opt.Sinks, db)
	}

	var dp *m.DiagPlot
	if args.plotFn != "" {
		dp = m.NewDiagPlot()
		opt.Sinks = append(opt.Sinks, dp)
	}

	if args.metricsAddr != "" {
		opt.Metrics = m.NewMetrics()
		go serveMetrics(args.metricsAddr, opt.Metrics)
	}

	sess, err := m.NewSession(opt)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	// Drain published results
	done := make(chan int)
	go func() {
		n := 0
		for r := range sess.Results() {
			if r.OK() {
				n++
			} else if !r.Skipped {
				m.PrintB(r.Time, "%s: %v\n", r.Status(), r.Err)
			}
		}
		done <- n
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Process epochs
	epochs, err := processEpochs(ctx, src, sess)
	sess.Close()
	solved := <-done
	if err != nil {
		return err
	}

	if dp != nil {
		if err := dp.Save(args.plotFn, args.plotSeries); err != nil {
			return fmt.Errorf("failed to save plot: %w", err)
		}
	}

	st := sess.Stats()
	m.PrintA("%s epochs read, %s solved, %s failed, %s skipped in %s\n",
		humanize.Comma(int64(epochs)), humanize.Comma(int64(solved)),
		humanize.Comma(st.Failed), humanize.Comma(st.Skipped),
		time.Since(start).Round(time.Millisecond))
	return nil
}

// Source of raw measurement epochs
type batchSource interface {
	Next() (*m.Batch, error)
	Close() error
}

// Load input files
func loadInputFiles(args cmdOpt) (*m.PslConfig, *m.Nav, batchSource, error) {

	cfg := m.DefaultPslConfig()
	if args.cfgFn != "" {
		var err error
		if cfg, err = m.LoadPslConfig(args.cfgFn); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read pseudolite configuration: %w", err)
		}
	}
	if len(args.prns) > 0 {
		cfg.SatelliteId = args.prns
	}

	var nav *m.Nav
	if args.navFn != "" {
		var err error
		if nav, err = m.ReadNavFile(args.navFn); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read navigation file: %w", err)
		}
	}

	switch {
	case args.mode == m.ModeSimulation:
		src, nav, err := newSimSource(args, cfg, nav)
		if err != nil {
			return nil, nil, nil, err
		}
		return cfg, nav, src, nil
	case args.serialDev != "":
		port, err := serial.OpenPort(&serial.Config{Name: args.serialDev, Baud: args.baud})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open serial port: %w", err)
		}
		return cfg, nav, &readerSource{m.NewRawLogReader(port), port}, nil
	default:
		f, err := os.Open(args.rawFn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read raw log: %w", err)
		}
		return cfg, nav, &readerSource{m.NewRawLogReader(f), f}, nil
	}
}

// Epochs from a GNSSLogger text stream
type readerSource struct {
	*m.RawLogReader
	io.Closer
}

// Simulated indoor epochs at 1 Hz
type simSource struct {
	sim   *m.Simulator
	t     m.GTime
	usr   m.PosXYZ
	left  int
	raw   []*m.Batch
	rawFn string
}

func newSimSource(args cmdOpt, cfg *m.PslConfig, nav *m.Nav) (*simSource, *m.Nav, error) {
	t := *m.NewGTime(args.ts)
	if nav == nil {
		nav = m.SyntheticNav(t, cfg.OutdoorAntennaXYZ(), m.DEFAULT_SKY)
	}
	opt := m.NewSimOpt()
	opt.Atmospheric = args.atmos > 0
	return &simSource{
		sim:   m.NewSimulator(nav, cfg, opt),
		t:     t,
		usr:   args.truth,
		left:  args.epochs,
		rawFn: args.rawFn,
	}, nav, nil
}

func (p *simSource) Next() (*m.Batch, error) {
	if p.left <= 0 {
		return nil, io.EOF
	}
	p.left--
	b, err := p.sim.PseudoliteBatch(p.sim.ClockNanos(p.t), p.usr)
	if err != nil {
		return nil, err
	}
	p.t = p.t.Add(1)
	p.raw = append(p.raw, b)
	return b, nil
}

// Close writes the simulated epochs as a raw log when requested
func (p *simSource) Close() error {
	if p.rawFn == "" {
		return nil
	}
	f, err := os.Create(p.rawFn)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.WriteRawLog(f, p.raw)
}

// Prepare output file
func prepareOutput(args cmdOpt) (*m.PosLog, io.Closer, error) {

	// Use stdout if no output file is specified
	if len(args.posFn) == 0 {
		return m.NewPosLog(os.Stdout), nopCloser{}, nil
	}

	// Append to the output file
	pl, c, err := m.OpenPosLog(args.posFn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return pl, c, nil
}

// Close output file
func closeOutput(c io.Closer) {
	if c != nil {
		c.Close()
	}
}

// Feed every epoch of the source to the session
func processEpochs(ctx context.Context, src batchSource, sess *m.Session) (int, error) {
	n := 0
	for {
		b, err := src.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to read epoch %d: %w", n+1, err)
		}
		n++
		if err := sess.Submit(ctx, b); err != nil {
			if errors.Is(err, context.Canceled) {
				m.PrintA("interrupted after %s epochs\n", humanize.Comma(int64(n)))
				return n, nil
			}
			return n, err
		}
	}
}

func serveMetrics(addr string, mt *m.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mt.Handler())
	m.PrintA("metrics on http://%s/metrics\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		m.PrintE(err)
	}
}

// nopCloser - Closer for stdout
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Local XYZ like "1.5 -2.0 1.2"
type xyzVar struct {
	m.PosXYZ
}

func (p *xyzVar) Set(s string) error {
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("three coordinates are required: %q", s)
	}
	var v [3]float64
	for i := range f {
		x, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return err
		}
		v[i] = x
	}
	p.PosXYZ = m.PosXYZ{X: v[0], Y: v[1], Z: v[2]}
	return nil
}

func (p *xyzVar) String() string {
	return fmt.Sprintf("%.3f %.3f %.3f", p.X, p.Y, p.Z)
}

// Date and time like "2025/10/01 00:00:00.000"
type timeVar time.Time

const timeLayout = "2006/01/02 15:04:05.000"

func (p *timeVar) Set(s string) error {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return err
	}
	*p = timeVar(t)
	return nil
}

func (p *timeVar) String() string {
	return time.Time(*p).Format(timeLayout)
}

// Structure to hold command line argument information
type cmdOpt struct {
	rawFn       string
	navFn       string
	cfgFn       string
	posFn       string
	dbFn        string
	plotFn      string
	plotSeries  string
	metricsAddr string
	serialDev   string
	baud        int
	mode        m.Mode
	selection   m.Selection
	smooth      m.SmootherVar
	prns        m.PrnVar
	atmos       float64
	truth       m.PosXYZ
	epochs      int
	ts          time.Time
}

// Parse command line arguments
func parseArgs() (a cmdOpt, err error) {
	flag.Usage = func() {
		m.PrintA(`
[Usage]
	%s [Options] -mode wls  -nav nav_file.nav raw_log.txt        (conventional WLS)
	%s [Options] -mode psl  -cfg psl.json -nav nav_file.nav raw_log.txt (pseudolite)
	%s [Options] -mode sim [-cfg psl.json] [-truth "x y z"] [out_raw_log.txt] (simulation)

[Options]
`, filepath.Base(os.Args[0]), filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Var(&a.mode, "mode", "Calculation mode. wls(0), psl(1), sim(2)")
	flag.StringVar(&a.cfgFn, "cfg", "", "Pseudolite configuration file (.json, .yaml). Default: built-in installation")
	flag.StringVar(&a.navFn, "nav", "", "RINEX GPS navigation file")
	flag.StringVar(&a.posFn, "o", "", "Output position log path (appended). If not specified, output to stdout.")
	flag.StringVar(&a.dbFn, "db", "", "Store every result in this sqlite database")
	flag.StringVar(&a.plotFn, "plot", "", "Save a diagnostics plot (.png, .svg) after processing")
	flag.StringVar(&a.plotSeries, "series", "antToUser", "Diagnostics series to plot. raw, rawChange, rawRate, antToSat, antToUser, cn0, ...")
	flag.StringVar(&a.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address like :9100")
	flag.StringVar(&a.serialDev, "serial", "", "Read raw measurements from this serial device instead of a file")
	flag.IntVar(&a.baud, "baud", 115200, "Serial baud rate")
	flag.Var(&a.smooth, "smooth", "Pseudorange smoothing. none, carrier, doppler")
	flag.Var(&a.prns, "prn", "PRN rebroadcast by each indoor antenna like 3,7,11,28. Overrides the configuration file")
	var assigned bool
	flag.BoolVar(&assigned, "assigned", false, "Use the PRNs assigned to the antennas instead of the strongest signals")
	flag.Float64Var(&a.atmos, "atm", 0, "Apply ionospheric and tropospheric corrections once the position update is below this [m]. 0 disables them")
	var truth xyzVar
	flag.Var(&truth, "truth", "Simulated user position in local XYZ [m]. Enclose in quotes like -truth \"1.5 -2 1.2\"")
	flag.IntVar(&a.epochs, "n", 60, "Number of simulated epochs")
	ts := timeVar(time.Now().UTC().Truncate(time.Second))
	flag.Var(&ts, "ts", "Simulation start (GPST) like -ts \"2025/10/01 00:00:00.000\"")
	var dbg int
	flag.IntVar(&dbg, "x", 0, "Debug information display. Specify level value. 0(OFF), 1(display), 2(detailed display), 3(more detailed), 4(most detailed)")
	flag.Parse()

	a.selection = m.SelectStrongest
	if assigned {
		a.selection = m.SelectAssigned
	}
	a.truth = truth.PosXYZ
	a.ts = time.Time(ts)
	m.SetDebugLevel(dbg)

	switch {
	case a.mode == m.ModeSimulation:
		if flag.NArg() > 1 {
			return a, fmt.Errorf("too many arguments")
		}
		a.rawFn = flag.Arg(0)
	case a.serialDev != "":
		if flag.NArg() != 0 {
			return a, fmt.Errorf("no raw log is read with -serial")
		}
	case flag.NArg() == 1:
		a.rawFn = flag.Arg(0)
	default:
		return a, fmt.Errorf("too less or many arguments")
	}
	if a.mode != m.ModeSimulation && a.navFn == "" {
		return a, fmt.Errorf("the navigation file must be specified! (-nav option)")
	}
	return
}
