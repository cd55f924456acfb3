// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mkhts/gnsssim/internal/logging"
)

type fakeRecorder struct {
	fixes   int
	skips   map[string]int
	lastErr float64
}

func (r *fakeRecorder) ObserveFix(t float64, sats, iterations int, posErr, velErr float64) {
	r.fixes++
	r.lastErr = posErr
}

func (r *fakeRecorder) ObserveSkip(t float64, sats int, reason string) {
	if r.skips == nil {
		r.skips = map[string]int{}
	}
	r.skips[reason]++
}

// failingSolver fails the first n calls and records every linearization point
type failingSolver struct {
	n     int
	err   error
	calls int
	seeds []PosXYZ
	next  FixSolver
}

func (s *failingSolver) Solve(ctx context.Context, batch Batch, prevPos, prevVel PosXYZ) (*LSSol, error) {
	s.calls++
	s.seeds = append(s.seeds, prevPos)
	if s.calls <= s.n {
		return nil, s.err
	}
	return s.next.Solve(ctx, batch, prevPos, prevVel)
}

func TestRunEpochScheduling(t *testing.T) {
	cfg := NewConfig()
	cfg.EpochInterval = 1.0
	prof := stationaryProfile(testLLH, 5, 0.1)
	require.Len(t, prof, 51)

	sim, err := NewSimulator(cfg)
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), prof)
	require.NoError(t, err)

	require.Len(t, res.Fixes, 6)
	require.Len(t, res.Errors, 6)
	require.Len(t, res.Clocks, 6)
	for i, fix := range res.Fixes {
		assert.InDelta(t, float64(i), fix.Time, 1e-9)
		assert.InDelta(t, float64(i), res.Errors[i].Time, 1e-9)
		assert.InDelta(t, float64(i), res.Clocks[i].Time, 1e-9)
	}
	assert.Empty(t, res.Skipped)
}

func TestRunNoiseFreeIsExact(t *testing.T) {
	cfg := noiseFreeConfig()
	cfg.EpochInterval = 0.5
	opt := NewProfileOpt()
	opt.Start = testLLH
	opt.Vel = PosNED{N: 20, E: 10, D: -1}
	opt.Att = Euler{Yaw: 0.4636}
	opt.Duration = 3
	opt.Step = 0.5
	prof, err := GenerateProfile(opt)
	require.NoError(t, err)

	sim, err := NewSimulator(cfg)
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), prof)
	require.NoError(t, err)
	require.Len(t, res.Fixes, len(prof))

	for i, e := range res.Errors {
		assert.Less(t, e.Norm3D(), 1e-6, "fix %d", i)
		assert.InDelta(t, 0, e.Vel.N, 1e-6)
		assert.InDelta(t, 0, e.Vel.E, 1e-6)
		assert.InDelta(t, 0, e.Vel.D, 1e-6)
		assert.InDelta(t, cfg.RxClockOffset+cfg.RxClockDrift*e.Time, res.Clocks[i].Offset, 1e-6)
		assert.InDelta(t, cfg.RxClockDrift, res.Clocks[i].Drift, 1e-6)

		// Attitude follows the truth
		assert.InDelta(t, prof[i].Att.Yaw, res.Fixes[i].Att.Yaw, 1e-12)
		assert.InDelta(t, 0, res.Fixes[i].Att.Roll, 1e-12)
		assert.InDelta(t, 0, res.Fixes[i].Att.Pitch, 1e-12)
	}
}

func TestRunAttitudeOutput(t *testing.T) {
	opt := NewProfileOpt()
	opt.Start = testLLH
	opt.Att = Euler{Roll: 0.1, Pitch: -0.2, Yaw: 3.5}
	opt.Duration = 1
	opt.Step = 1
	prof, err := GenerateProfile(opt)
	require.NoError(t, err)

	sim, err := NewSimulator(noiseFreeConfig())
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), prof)
	require.NoError(t, err)
	require.Len(t, res.Fixes, 2)

	// Angles come back through the NED-to-body matrix, yaw wrapped to (-pi, pi]
	for _, f := range res.Fixes {
		assert.InDelta(t, 0.1, f.Att.Roll, 1e-12)
		assert.InDelta(t, -0.2, f.Att.Pitch, 1e-12)
		assert.InDelta(t, 3.5-2*PI, f.Att.Yaw, 1e-12)
	}
}

func TestRunTraceSeed(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := NewConfig()
	cfg.Seed = math.MaxUint64
	sim, err := NewSimulator(cfg)
	require.NoError(t, err)
	_, err = sim.Run(context.Background(), stationaryProfile(testLLH, 1, 1))
	require.NoError(t, err)

	var seed string
	for _, span := range sr.Ended() {
		if span.Name() != "gnsssim.Run" {
			continue
		}
		for _, kv := range span.Attributes() {
			if kv.Key == "seed" {
				seed = kv.Value.AsString()
			}
		}
	}
	assert.Equal(t, "18446744073709551615", seed)
}

func TestRunReproducible(t *testing.T) {
	cfg := NewConfig()
	prof := stationaryProfile(testLLH, 4, 0.5)

	run := func(seed uint64) *Result {
		c := *cfg
		c.Seed = seed
		sim, err := NewSimulator(&c)
		require.NoError(t, err)
		res, err := sim.Run(context.Background(), prof)
		require.NoError(t, err)
		return res
	}

	a, b := run(5), run(5)
	assert.Equal(t, a.Fixes, b.Fixes)
	assert.Equal(t, a.Errors, b.Errors)
	assert.Equal(t, a.Clocks, b.Clocks)

	c := run(6)
	assert.NotEqual(t, a.Errors, c.Errors)
}

func TestRunSkipsFailedEpochs(t *testing.T) {
	cfg := NewConfig()
	cfg.EpochInterval = 1.0
	prof := stationaryProfile(testLLH, 3, 0.5)

	solver := &failingSolver{n: 2, err: ErrNotConverged, next: &LSSolver{Opt: NewLSOpt()}}
	rec := &fakeRecorder{}
	sim, err := NewSimulator(cfg, WithSolver(solver), WithRecorder(rec))
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), prof)
	require.NoError(t, err)

	// The first fix is retried on every sample until it succeeds
	require.Len(t, res.Skipped, 2)
	assert.InDelta(t, 0.0, res.Skipped[0].Time, 1e-9)
	assert.InDelta(t, 0.5, res.Skipped[1].Time, 1e-9)
	assert.Equal(t, SKIP_NOT_CONVERGE, res.Skipped[0].Reason)
	assert.ErrorIs(t, res.Skipped[0].Err, ErrNotConverged)

	// Then one fix per interval: 1.0, 2.0, 3.0
	require.Len(t, res.Fixes, 3)
	assert.InDelta(t, 1.0, res.Fixes[0].Time, 1e-9)
	assert.InDelta(t, 2.0, res.Fixes[1].Time, 1e-9)
	assert.InDelta(t, 3.0, res.Fixes[2].Time, 1e-9)

	// Until the first fix the solver is seeded with the initial guess, then with the previous fix
	require.Len(t, solver.seeds, 5)
	assert.Equal(t, cfg.InitPos(), solver.seeds[0])
	assert.Equal(t, cfg.InitPos(), solver.seeds[1])
	assert.Equal(t, cfg.InitPos(), solver.seeds[2])
	assert.NotEqual(t, cfg.InitPos(), solver.seeds[3])

	assert.Equal(t, 3, rec.fixes)
	assert.Equal(t, 2, rec.skips[SKIP_NOT_CONVERGE])
	assert.Less(t, rec.lastErr, 100.0)
}

func TestRunTooFewSatellites(t *testing.T) {
	cfg := NewConfig()
	cfg.NoSat = 3
	prof := stationaryProfile(testLLH, 1, 0.5)

	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, logging.Config{Level: "warn", Format: "json"})
	sim, err := NewSimulator(cfg, WithLogger(log))
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), prof)
	require.NoError(t, err)

	assert.Empty(t, res.Fixes)
	require.Len(t, res.Skipped, len(prof))
	for _, s := range res.Skipped {
		assert.Equal(t, SKIP_TOO_FEW_SATS, s.Reason)
		assert.Less(t, s.NumSats, NX)
	}
	assert.Contains(t, buf.String(), "epoch skipped")
	assert.Contains(t, buf.String(), SKIP_TOO_FEW_SATS)
}

func TestRunUnexpectedSolverError(t *testing.T) {
	cfg := NewConfig()
	boom := assert.AnError
	solver := &failingSolver{n: 1, err: boom}
	sim, err := NewSimulator(cfg, WithSolver(solver))
	require.NoError(t, err)

	_, err = sim.Run(context.Background(), stationaryProfile(testLLH, 1, 0.5))
	assert.ErrorIs(t, err, boom)
}

func TestRunCancelled(t *testing.T) {
	sim, err := NewSimulator(NewConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Run(ctx, stationaryProfile(testLLH, 1, 0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyProfile(t *testing.T) {
	sim, err := NewSimulator(NewConfig())
	require.NoError(t, err)
	res, err := sim.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Fixes)
}

func TestNewSimulatorInvalidConfig(t *testing.T) {
	_, err := NewSimulator(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := NewConfig()
	cfg.CodeTrackErrSD = -1
	_, err = NewSimulator(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
