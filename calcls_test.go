// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// batchAt synthesizes the observations of a user at testLLH moving with vn
func batchAt(t *testing.T, cfg *Config, tt float64, vn PosNED) (Batch, PosXYZ, PosXYZ) {
	t.Helper()
	r, v := PVNEDToECEF(testLLH, vn)
	sats, err := Satellites(tt, cfg)
	require.NoError(t, err)
	rng := NewRand(cfg.Seed)
	biases := InitializeBiases(sats, r, testLLH, cfg, rng)
	batch, n := GenerateMeasurements(tt, sats, r, testLLH, v, biases, cfg, rng)
	require.GreaterOrEqual(t, n, NX)
	return batch, r, v
}

func TestCalcLSNoiseFreeIsExact(t *testing.T) {
	cfg := noiseFreeConfig()
	const tt = 30.0
	batch, r, v := batchAt(t, cfg, tt, PosNED{N: 10, E: -5, D: 0.5})

	sol, err := CalcLS(context.Background(), batch, cfg.InitPos(), PosXYZ{}, NewLSOpt())
	require.NoError(t, err)

	assert.InDelta(t, 0, sol.Pos.Sub(r).Norm(), 1e-6)
	assert.InDelta(t, 0, sol.Vel.Sub(v).Norm(), 1e-6)
	assert.InDelta(t, cfg.RxClockOffset+cfg.RxClockDrift*tt, sol.Clk.Offset, 1e-6)
	assert.InDelta(t, cfg.RxClockDrift, sol.Clk.Drift, 1e-6)
	assert.Equal(t, len(batch), sol.NumSats)
	for _, res := range sol.Res {
		assert.InDelta(t, 0, res, 1e-6)
	}
}

func TestCalcLSConvergenceMonotonic(t *testing.T) {
	cfg := NewConfig()
	batch, r, _ := batchAt(t, cfg, 0, PosNED{})

	sol, err := CalcLS(context.Background(), batch, cfg.InitPos(), PosXYZ{}, NewLSOpt())
	require.NoError(t, err)

	require.NotEmpty(t, sol.PosSteps)
	assert.LessOrEqual(t, len(sol.PosSteps), MAX_LOOP_COUNT)
	assert.LessOrEqual(t, len(sol.VelSteps), MAX_LOOP_COUNT)
	for i := 1; i < len(sol.PosSteps); i++ {
		assert.Less(t, sol.PosSteps[i], sol.PosSteps[i-1], "position step %d", i)
	}
	for i := 1; i < len(sol.VelSteps); i++ {
		assert.Less(t, sol.VelSteps[i], sol.VelSteps[i-1], "velocity step %d", i)
	}
	assert.Less(t, sol.PosSteps[len(sol.PosSteps)-1], CONVERGENCE_THRESHOLD)
	assert.Equal(t, len(sol.PosSteps)+len(sol.VelSteps), sol.Iterations())

	// Noisy but sane
	assert.Less(t, sol.Pos.Sub(r).Norm(), 100.0)
}

func TestCalcLSSeededFromPreviousFix(t *testing.T) {
	cfg := NewConfig()
	batch, r, _ := batchAt(t, cfg, 0, PosNED{})

	cold, err := CalcLS(context.Background(), batch, cfg.InitPos(), PosXYZ{}, nil)
	require.NoError(t, err)
	warm, err := CalcLS(context.Background(), batch, r, PosXYZ{}, nil)
	require.NoError(t, err)

	assert.Less(t, len(warm.PosSteps), len(cold.PosSteps))
	assert.InDelta(t, 0, warm.Pos.Sub(cold.Pos).Norm(), 1e-3)
}

func TestCalcLSDop(t *testing.T) {
	cfg := noiseFreeConfig()
	batch, _, _ := batchAt(t, cfg, 0, PosNED{})

	sol, err := CalcLS(context.Background(), batch, cfg.InitPos(), PosXYZ{}, nil)
	require.NoError(t, err)

	d := sol.Dop
	assert.Greater(t, d["hdop"], 0.0)
	assert.Greater(t, d["vdop"], 0.0)
	assert.InDelta(t, d["pdop"]*d["pdop"], d["hdop"]*d["hdop"]+d["vdop"]*d["vdop"], 1e-9)
	assert.Greater(t, d["gdop"], d["pdop"])
}

func TestCalcLSTooFewSatellites(t *testing.T) {
	cfg := noiseFreeConfig()
	batch, _, _ := batchAt(t, cfg, 0, PosNED{})

	_, err := CalcLS(context.Background(), batch[:NX-1], cfg.InitPos(), PosXYZ{}, nil)
	assert.ErrorIs(t, err, ErrTooFewSatellites)

	_, err = CalcLS(context.Background(), nil, cfg.InitPos(), PosXYZ{}, nil)
	assert.ErrorIs(t, err, ErrTooFewSatellites)
}

func TestCalcLSSingularGeometry(t *testing.T) {
	cfg := noiseFreeConfig()
	batch, _, _ := batchAt(t, cfg, 0, PosNED{})

	// Four copies of one observation carry no position information
	same := Batch{batch[0], batch[0], batch[0], batch[0]}
	_, err := CalcLS(context.Background(), same, cfg.InitPos(), PosXYZ{}, nil)
	assert.ErrorIs(t, err, ErrSingularGeometry)
}

func TestCalcLSNotConverged(t *testing.T) {
	cfg := noiseFreeConfig()
	batch, _, _ := batchAt(t, cfg, 0, PosNED{})

	opt := NewLSOpt()
	opt.MaxIter = 1
	_, err := CalcLS(context.Background(), batch, cfg.InitPos(), PosXYZ{}, opt)
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestLSSolverImplementsFixSolver(t *testing.T) {
	var s FixSolver = &LSSolver{Opt: NewLSOpt()}
	cfg := noiseFreeConfig()
	batch, r, _ := batchAt(t, cfg, 0, PosNED{})

	sol, err := s.Solve(context.Background(), batch, PosXYZ{}, PosXYZ{})
	require.NoError(t, err)
	assert.InDelta(t, 0, sol.Pos.Sub(r).Norm(), 1e-6)
}

func TestSolveLS(t *testing.T) {
	// Overdetermined line fit y = 2x + 1 without noise
	G := mat.NewDense(4, 2, []float64{
		0, 1,
		1, 1,
		2, 1,
		3, 1,
	})
	dr := mat.NewVecDense(4, []float64{1, 3, 5, 7})

	x, err := SolveLS(G, dr)
	require.NoError(t, err)
	assert.InDelta(t, 2, x.AtVec(0), 1e-12)
	assert.InDelta(t, 1, x.AtVec(1), 1e-12)

	cov, err := CovLS(G)
	require.NoError(t, err)
	r, c := cov.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.InDelta(t, cov.At(0, 1), cov.At(1, 0), 1e-12)
}

func TestSolveLSErrors(t *testing.T) {
	G := mat.NewDense(3, 2, []float64{
		1, 2,
		2, 4,
		3, 6,
	})
	_, err := SolveLS(G, mat.NewVecDense(3, []float64{1, 2, 3}))
	assert.ErrorIs(t, err, ErrSingularGeometry)

	_, err = SolveLS(G, mat.NewVecDense(2, []float64{1, 2}))
	assert.Error(t, err)

	_, err = SolveLS(mat.NewDense(1, 2, []float64{1, 1}), mat.NewVecDense(1, []float64{1}))
	assert.ErrorIs(t, err, ErrSingularGeometry)
}
