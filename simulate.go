// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

// Drives the stand-alone GNSS simulation over a truth trajectory.

package gnsssim

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/exp/rand"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkhts/gnsssim/internal/logging"
)

// Tolerance of the epoch scheduling test against decimal time stamps [s]
const EPOCH_TOLERANCE = 1e-9

// Reasons of skipped epochs
const (
	SKIP_TOO_FEW_SATS = "too_few_satellites"
	SKIP_SINGULAR     = "singular_geometry"
	SKIP_NOT_CONVERGE = "not_converged"
)

// TrajectorySample is one true navigation state of the user
type TrajectorySample struct {
	Time float64 // [s]
	LLH  PosLLH  // Latitude, longitude [rad], height [m]
	Vel  PosNED  // Velocity in NED [m/s]
	Att  Euler   // Body attitude [rad]
}

// Fix is one navigation solution. The attitude is copied from the truth.
type Fix struct {
	TrajectorySample
	NumSats    int                // Observations used
	Iterations int                // Gauss-Newton iterations (both solves)
	Dop        map[string]float64 // Dilution of precision
}

// ClockRecord is the receiver clock estimate of one fix
type ClockRecord struct {
	Time   float64
	Offset float64 // [m]
	Drift  float64 // [m/s]
}

// SkippedEpoch is a due epoch that did not produce a fix
type SkippedEpoch struct {
	Time    float64
	NumSats int
	Reason  string
	Err     error
}

// Result holds every record of a run, in time order
type Result struct {
	Fixes   []Fix
	Errors  []ErrorRecord
	Clocks  []ClockRecord
	Skipped []SkippedEpoch
}

// FixSolver computes a navigation solution from one batch of observations.
// prevPos/prevVel are the linearization point (previous estimate).
type FixSolver interface {
	Solve(ctx context.Context, batch Batch, prevPos, prevVel PosXYZ) (*LSSol, error)
}

// Recorder receives per-epoch run statistics
type Recorder interface {
	ObserveFix(t float64, sats, iterations int, posErr, velErr float64)
	ObserveSkip(t float64, sats int, reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFix(float64, int, int, float64, float64) {}
func (nopRecorder) ObserveSkip(float64, int, string)               {}

// Orchestrator states
type runState int

const (
	AwaitingFirstFix runState = iota
	SteadyState
)

func (s runState) String() string {
	switch s {
	case AwaitingFirstFix:
		return "AwaitingFirstFix"
	case SteadyState:
		return "SteadyState"
	}
	return fmt.Sprintf("runState(%d)", int(s))
}

// Simulator runs the epoch loop of a stand-alone GNSS receiver
type Simulator struct {
	cfg    *Config
	log    logging.Logger
	rec    Recorder
	solver FixSolver
}

// SimOption configures a Simulator
type SimOption func(*Simulator)

// WithLogger sets the logger (default: none)
func WithLogger(log logging.Logger) SimOption {
	return func(s *Simulator) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRecorder sets the run statistics recorder (default: none)
func WithRecorder(rec Recorder) SimOption {
	return func(s *Simulator) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// WithSolver replaces the least-squares solver
func WithSolver(solver FixSolver) SimOption {
	return func(s *Simulator) {
		if solver != nil {
			s.solver = solver
		}
	}
}

// NewSimulator creates a Simulator after validating the configuration
func NewSimulator(cfg *Config, opts ...SimOption) (*Simulator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg: cfg,
		log: logging.Noop(),
		rec: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.solver == nil {
		lsopt := NewLSOpt()
		lsopt.MaxIter = cfg.MaxIter
		lsopt.Log = s.log
		s.solver = &LSSolver{Opt: lsopt}
	}
	return s, nil
}

// Run processes the truth trajectory and returns the fixes, their errors
// and the clock estimates.
//
// The first sample initializes the satellite biases and is the first due
// epoch. Afterwards an epoch is due when at least EpochInterval has passed
// since the last fix. A due epoch whose batch cannot be solved is skipped:
// the previous estimate is kept and the next sample is due again.
func (s *Simulator) Run(ctx context.Context, profile []TrajectorySample) (*Result, error) {
	ctx, span := otel.Tracer("github.com/mkhts/gnsssim").Start(ctx, "gnsssim.Run",
		trace.WithAttributes(
			attribute.Int("samples", len(profile)),
			attribute.Int("no_sat", s.cfg.NoSat),
			attribute.String("seed", strconv.FormatUint(s.cfg.Seed, 10)),
		))
	defer span.End()

	res := &Result{}
	if len(profile) == 0 {
		return res, nil
	}

	// Set values for the run
	cfg := s.cfg
	rng := NewRand(cfg.Seed)

	// Satellite biases, drawn once at the initial true position
	first := profile[0]
	r0 := first.LLH.ToXYZ()
	sats, err := Satellites(first.Time, cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("Satellites() failed: %w", err)
	}
	biases := InitializeBiases(sats, r0, first.LLH, cfg, rng)

	s.log.Info(ctx, "simulation start",
		logging.Int("samples", len(profile)),
		logging.Float64("epoch_interval", cfg.EpochInterval),
		logging.Int("no_sat", cfg.NoSat),
	)

	// Estimator state (linearization point of the next fix)
	estPos := cfg.InitPos()
	estVel := PosXYZ{}

	state := AwaitingFirstFix
	tLast := first.Time
	for _, smp := range profile {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}

		if state == SteadyState && smp.Time-tLast < cfg.EpochInterval-EPOCH_TOLERANCE {
			continue
		}

		sol, nsat, err := s.epoch(ctx, smp, biases, estPos, estVel, rng)
		if err != nil {
			reason := skipReason(err)
			if reason == "" {
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}
			s.log.Warn(ctx, "epoch skipped",
				logging.Float64("t", smp.Time),
				logging.Int("sats", nsat),
				logging.String("state", state.String()),
				logging.String("reason", reason),
				logging.Err(err),
			)
			s.rec.ObserveSkip(smp.Time, nsat, reason)
			res.Skipped = append(res.Skipped, SkippedEpoch{Time: smp.Time, NumSats: nsat, Reason: reason, Err: err})
			continue
		}

		// Records of the fix
		llh, vel := PVECEFToNED(sol.Pos, sol.Vel)
		erec := CalcErrorsNED(smp.Time, llh, vel, smp.LLH, smp.Vel)

		// Attitude is reported as the NED-to-body rotation of the truth
		Cbn := EulerToCbn(smp.Att)
		att := CnbToEuler(Cbn.T())

		fix := Fix{
			TrajectorySample: TrajectorySample{Time: smp.Time, LLH: llh, Vel: vel, Att: att},
			NumSats:          sol.NumSats,
			Iterations:       sol.Iterations(),
			Dop:              sol.Dop,
		}
		res.Fixes = append(res.Fixes, fix)
		res.Errors = append(res.Errors, erec)
		res.Clocks = append(res.Clocks, ClockRecord{Time: smp.Time, Offset: sol.Clk.Offset, Drift: sol.Clk.Drift})

		velErr := PosXYZ{X: erec.Vel.N, Y: erec.Vel.E, Z: erec.Vel.D}.Norm()
		s.rec.ObserveFix(smp.Time, sol.NumSats, sol.Iterations(), erec.Norm3D(), velErr)
		s.log.Debug(ctx, "fix",
			logging.Float64("t", smp.Time),
			logging.Int("sats", sol.NumSats),
			logging.Int("iter", sol.Iterations()),
			logging.Float64("err_n", erec.Pos.N),
			logging.Float64("err_e", erec.Pos.E),
			logging.Float64("err_d", erec.Pos.D),
			logging.Float64("clk", sol.Clk.Offset),
		)

		// Carry the estimate forward
		estPos, estVel = sol.Pos, sol.Vel
		tLast = smp.Time
		state = SteadyState
	}

	span.SetAttributes(
		attribute.Int("fixes", len(res.Fixes)),
		attribute.Int("skipped", len(res.Skipped)),
	)
	s.log.Info(ctx, "simulation end",
		logging.Int("fixes", len(res.Fixes)),
		logging.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// epoch generates the measurements of one due epoch and solves them.
// It returns the number of observations even when the solve fails.
func (s *Simulator) epoch(ctx context.Context, smp TrajectorySample, biases *BiasSet, estPos, estVel PosXYZ, rng *rand.Rand) (*LSSol, int, error) {
	ctx, span := otel.Tracer("github.com/mkhts/gnsssim").Start(ctx, "gnsssim.epoch",
		trace.WithAttributes(attribute.Float64("t", smp.Time)))
	defer span.End()

	// True user state in ECEF
	r, v := PVNEDToECEF(smp.LLH, smp.Vel)

	sats, err := Satellites(smp.Time, s.cfg)
	if err != nil {
		return nil, 0, err
	}
	batch, nsat := GenerateMeasurements(smp.Time, sats, r, smp.LLH, v, biases, s.cfg, rng)
	span.SetAttributes(attribute.Int("sats", nsat))

	sol, err := s.solver.Solve(ctx, batch, estPos, estVel)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nsat, err
	}
	span.SetAttributes(attribute.Int("iterations", sol.Iterations()))
	return sol, nsat, nil
}

// skipReason classifies the errors that skip an epoch. Other errors abort the run.
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrTooFewSatellites):
		return SKIP_TOO_FEW_SATS
	case errors.Is(err, ErrSingularGeometry):
		return SKIP_SINGULAR
	case errors.Is(err, ErrNotConverged):
		return SKIP_NOT_CONVERGE
	}
	return ""
}
