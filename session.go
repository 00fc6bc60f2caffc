// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

// Per-batch orchestration of the solvers on a dedicated worker goroutine.

package gopsl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrSessionClosed = errors.New("session closed")

type SessionState int

const (
	StateUninitialized SessionState = iota // No ephemeris source yet
	StateReady
	StateComputing
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StateComputing:
		return "COMPUTING"
	}
	return "UNKNOWN"
}

// SessionOpt contains options of a solver session
type SessionOpt struct {
	Mode      Mode       // Solver to run
	QueueSize int        // Capacity of the batch queue and the result channel
	Wls       *WlsOpt    // Conventional solver options
	Psl       *PslOpt    // Pseudolite solver options
	Config    *PslConfig // Pseudolite installation
	Nav       *Nav       // Navigation data loaded from a file. Takes priority over other sources
	Supl      *SuplCache // Assisted ephemeris
	Reference *PosLLH    // Reference location for SUPL
	Smoother  Smoother   // Pseudorange smoothing
	SkipFirst bool       // Skip the first usable batch while the receiver clock settles
	Metrics   *Metrics   // nil disables metrics
	Sinks     []ResultSink
	SinkOnly  bool // Publish to Sinks only. Otherwise Results() must be read, the worker waits for it
}

// NewSessionOpt creates a new SessionOpt with default values
func NewSessionOpt() *SessionOpt {
	return &SessionOpt{
		Mode:      ModeConventional,
		QueueSize: 16,
		Wls:       NewWlsOpt(),
		Psl:       NewPslOpt(),
		Config:    DefaultPslConfig(),
		Smoother:  NoSmoothing{},
		SkipFirst: true,
	}
}

// Result of one batch. Values are never modified after publication.
type Result struct {
	SessionID   string
	Seq         uint64
	Mode        Mode
	Time        GTime            // Receiver time of the batch
	Solution    PositionSolution // ECEF for WLS, local XYZ for pseudolites. NaN when unavailable
	Llh         *PosLLH          // Geodetic position (WLS only)
	Sats        []int            // Satellites used
	Origin      EphemerisOrigin
	Iter        int
	Dop         map[string]float64
	Skipped     bool
	Err         error
	Diagnostics *Diagnostics
	Elapsed     time.Duration
}

func (r *Result) OK() bool {
	return r.Err == nil && !r.Skipped && !r.Solution.IsNaN()
}

// Status category for logs and metrics
func (r *Result) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.OK():
		return "ok"
	case errors.Is(r.Err, ErrInsufficientSatellites), errors.Is(r.Err, ErrIncompletePseudoliteSet):
		return "insufficient"
	case errors.Is(r.Err, ErrMissingEphemeris):
		return "missing_ephemeris"
	case errors.Is(r.Err, ErrNotConverged), errors.Is(r.Err, ErrDampedNotConverged):
		return "not_converged"
	}
	return "error"
}

// Human readable position line
func (r *Result) Line() string {
	if !r.OK() {
		return "No result Calculated Yet"
	}
	p := r.Solution.Pos
	return fmt.Sprintf("xMeters = %.3f yMeters = %.3f zMeters = %.3f", p.X, p.Y, p.Z)
}

// Consumer of results. Called on the session worker.
type ResultSink interface {
	WriteResult(r *Result) error
}

// Counters of a session
type SessionStats struct {
	Batches  int64
	Solved   int64
	Failed   int64
	Skipped  int64
	Panics   int64
	Disabled int64
}

// Session runs one solver on a dedicated worker goroutine
type Session struct {
	ID  string
	opt *SessionOpt
	log *logrus.Entry

	in      chan *Batch
	out     chan Result
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	inMu    sync.RWMutex
	closed  bool
	eph     *EphemerisSource
	enabled bool
	cfg     *PslConfig
	state   SessionState
	stats   SessionStats
	mu      sync.Mutex

	// Worker confined
	sinks []ResultSink
	diag  *diagTracker
	seed  PositionSolution
	seq   uint64
	first bool
}

// NewSession creates a session and starts its worker
func NewSession(opt *SessionOpt) (*Session, error) {
	if opt == nil {
		opt = NewSessionOpt()
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1
	}
	if opt.Wls == nil {
		opt.Wls = NewWlsOpt()
	}
	if opt.Psl == nil {
		opt.Psl = NewPslOpt()
	}
	if opt.Smoother == nil {
		opt.Smoother = NoSmoothing{}
	}
	if opt.Mode != ModeConventional {
		if opt.Config == nil {
			return nil, fmt.Errorf("pseudolite configuration is required in %s mode", opt.Mode.String())
		}
		if err := opt.Config.Validate(); err != nil {
			return nil, fmt.Errorf("Validate() failed, err=%w", err)
		}
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:      id,
		opt:     opt,
		log:     Log.WithFields(logrus.Fields{"session": id, "mode": opt.Mode.String()}),
		in:      make(chan *Batch, opt.QueueSize),
		out:     make(chan Result, opt.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		eph:     NewEphemerisSource(opt.Nav, opt.Supl, opt.Reference),
		enabled: true,
		cfg:     opt.Config,
		sinks:   append([]ResultSink{}, opt.Sinks...),
		diag:    newDiagTracker(),
		seed:    PositionSolution{},
		first:   opt.SkipFirst,
	}
	if opt.Nav != nil || opt.Supl != nil {
		s.state = StateReady
	}

	s.wg.Add(1)
	go s.run()
	s.log.Infof("session started. state=%s", s.State().String())
	return s, nil
}

// Submit queues a batch. It blocks while the queue is full.
func (s *Session) Submit(ctx context.Context, b *Batch) error {
	s.inMu.RLock()
	defer s.inMu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.in <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results delivers published results. It is closed by Close and stays empty with SinkOnly.
func (s *Session) Results() <-chan Result {
	return s.out
}

// Close stops accepting batches, processes the queued ones and waits for the worker
func (s *Session) Close() {
	s.inMu.Lock()
	if s.closed {
		s.inMu.Unlock()
		return
	}
	s.closed = true
	close(s.in)
	s.inMu.Unlock()

	s.wg.Wait()
	s.cancel()
	st := s.Stats()
	s.log.Infof("session closed. batches=%d, solved=%d, failed=%d, skipped=%d", st.Batches, st.Solved, st.Failed, st.Skipped)
}

func (s *Session) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
}

func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetConfig replaces the pseudolite configuration used by later batches
func (s *Session) SetConfig(cfg *PslConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Validate() failed, err=%w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

func (s *Session) Config() *PslConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetNavigation provides navigation data decoded by the receiver
func (s *Session) SetNavigation(nav *Nav) {
	s.eph.SetHardware(nav)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized {
		s.state = StateReady
	}
}

// SetReference sets the reference location for SUPL requests
func (s *Session) SetReference(llh *PosLLH) {
	s.eph.SetReference(llh)
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		s.state = st
	}
}

func (s *Session) count(f func(st *SessionStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.stats)
}

func (s *Session) run() {
	defer s.wg.Done()
	defer close(s.out)
	for b := range s.in {
		if !s.Enabled() {
			s.count(func(st *SessionStats) { st.Disabled++ })
			continue
		}
		s.setState(StateComputing)
		r := s.process(b)
		s.setState(StateReady)
		s.publish(r)
	}
}

// process solves one batch. Panics are recovered into the result.
func (s *Session) process(b *Batch) (r *Result) {
	start := time.Now()
	s.seq++
	r = &Result{
		SessionID: s.ID,
		Seq:       s.seq,
		Mode:      s.opt.Mode,
		Solution:  NaNSolution(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.Solution = NaNSolution()
			r.Err = fmt.Errorf("panic in batch %d: %v", r.Seq, rec)
			s.count(func(st *SessionStats) { st.Panics++ })
		}
		r.Elapsed = time.Since(start)
	}()

	err := s.solve(b, r)
	if err != nil {
		r.Solution = NaNSolution()
		r.Err = err
	}
	return r
}

func (s *Session) solve(b *Batch, r *Result) error {
	slots, rt, err := ComputeMeasurements(b)
	if err != nil {
		return fmt.Errorf("ComputeMeasurements() failed, err=%w", err)
	}
	r.Time = rt.GTime()

	prs := ComputePseudoranges(&slots, rt.BiasNanos)
	prs = s.opt.Smoother.Smooth(rt.Tow(), prs, &slots)

	// Satellites in use
	cfg := s.Config()
	used := prs
	switch s.opt.Mode {
	case ModeConventional:
		if len(prs) < MIN_SATELLITES {
			return fmt.Errorf("%w: %d < %d", ErrInsufficientSatellites, len(prs), MIN_SATELLITES)
		}
	default:
		used, err = SelectPseudolites(prs, cfg, s.opt.Psl.Selection)
		if err != nil {
			return fmt.Errorf("SelectPseudolites() failed, err=%w", err)
		}
	}
	prns := make([]int, len(used))
	for i, p := range used {
		prns[i] = p.Prn
	}

	// Ephemeris gating
	nav, origin, err := s.eph.Select(s.ctx, prns, r.Time)
	if err != nil {
		return fmt.Errorf("Select() failed, err=%w", err)
	}
	r.Origin = origin
	for _, prn := range prns {
		if !nav.Has(prn, r.Time) {
			s.log.WithField("prn", prn).Warn("no ephemeris")
			return fmt.Errorf("%w: G%02d", ErrMissingEphemeris, prn)
		}
	}

	if s.first {
		s.first = false
		r.Skipped = true
		s.log.Debug("first usable batch skipped")
		return nil
	}

	switch s.opt.Mode {
	case ModeConventional:
		sol, err := CalcWls(used, nav, rt, s.seed, s.opt.Wls)
		r.Diagnostics = s.diag.snapshot(rt.Tow(), used, nil)
		if err != nil {
			return fmt.Errorf("CalcWls() failed, err=%w", err)
		}
		s.seed = sol.Solution()
		r.Solution = sol.Solution()
		llh := sol.Pos.ToLLH()
		r.Llh = &llh
		r.Sats = sol.Sats
		r.Iter = sol.Iter
		r.Dop = sol.Dop
	default:
		sol, err := CalcPseudolite(used, nav, rt, cfg, s.opt.Psl)
		r.Diagnostics = s.diag.snapshot(rt.Tow(), used, sol)
		r.Sats = sol.Sats
		r.Iter = sol.Iter
		if err != nil {
			return fmt.Errorf("CalcPseudolite() failed, err=%w", err)
		}
		r.Solution = sol.Solution()
	}
	return nil
}

func (s *Session) publish(r *Result) {
	s.count(func(st *SessionStats) {
		st.Batches++
		switch {
		case r.Skipped:
			st.Skipped++
		case r.OK():
			st.Solved++
		default:
			st.Failed++
		}
	})

	entry := s.log.WithFields(logrus.Fields{"seq": r.Seq, "status": r.Status()})
	if r.Err != nil {
		entry.WithError(r.Err).Info(r.Line())
	} else if DBG_ >= 1 {
		entry.Info(r.Line())
	}

	s.opt.Metrics.Observe(r, r.Elapsed)

	for _, sink := range s.sinks {
		if err := sink.WriteResult(r); err != nil {
			entry.WithError(err).Warn("sink failed")
		}
	}

	if !s.opt.SinkOnly {
		s.out <- *r
	}
}
