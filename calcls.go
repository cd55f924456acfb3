// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

// Implements the iterated least-squares position, velocity and clock solution.

package gnsssim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mkhts/gnsssim/internal/logging"
)

var (
	ErrTooFewSatellites = errors.New("not enough satellites")
	ErrNotConverged     = errors.New("least squares did not converge")
)

// Calculation constants for LS processing
const (
	NX                    = 4      // Number of unknowns of each solve (3 + clock)
	MAX_LOOP_COUNT        = 20     // Default maximum number of iteration loops
	CONVERGENCE_THRESHOLD = 0.0001 // Convergence threshold on |dx| [m], [m/s]
)

// LSOpt contains options for the least-squares calculation
type LSOpt struct {
	MaxIter   int            // Maximum number of iterations of each solve
	Threshold float64        // Convergence threshold on the norm of the state update
	Log       logging.Logger // Debug output (nil: none)
}

// NewLSOpt creates a new LSOpt with default values
func NewLSOpt() *LSOpt {
	return &LSOpt{
		MaxIter:   MAX_LOOP_COUNT,
		Threshold: CONVERGENCE_THRESHOLD,
		Log:       nil,
	}
}

// ClockState is the receiver clock estimate in range units
type ClockState struct {
	Offset float64 // Clock offset [m]
	Drift  float64 // Clock drift [m/s]
}

// LSSol contains the results of the least-squares calculation
type LSSol struct {
	Pos      PosXYZ             // Receiver ECEF position
	Vel      PosXYZ             // Receiver ECEF velocity
	Clk      ClockState         // Receiver clock offset and drift
	NumSats  int                // Number of observations used
	Dop      map[string]float64 // Dilution of precision values: 'gdop', 'pdop', 'hdop', 'vdop'
	Res      []float64          // Final pseudorange residuals (batch order)
	PosSteps []float64          // |dx| of every position/clock iteration
	VelSteps []float64          // |dx| of every velocity/drift iteration
}

// NewLSSol creates a new empty LSSol
func NewLSSol() *LSSol {
	return &LSSol{
		Dop: map[string]float64{
			"gdop": 0,
			"pdop": 0,
			"hdop": 0,
			"vdop": 0,
		},
		Res:      []float64{},
		PosSteps: []float64{},
		VelSteps: []float64{},
	}
}

// Iterations returns the total number of Gauss-Newton iterations
func (s *LSSol) Iterations() int {
	return len(s.PosSteps) + len(s.VelSteps)
}

// CalcLS computes the receiver position, velocity and clock from one batch
//
// Parameters:
//   - batch: Observations of one epoch (at least 4)
//   - prevPos: Linearization point for position (previous fix or initial guess)
//   - prevVel: Linearization point for velocity
//   - opt: Calculation options
//
// Returns:
//   - LSSol: position, velocity and clock solution
//   - error: ErrTooFewSatellites, ErrSingularGeometry or ErrNotConverged
func CalcLS(ctx context.Context, batch Batch, prevPos, prevVel PosXYZ, opt *LSOpt) (*LSSol, error) {
	if opt == nil {
		opt = NewLSOpt()
	}
	log := opt.Log
	if log == nil {
		log = logging.Noop()
	}

	if len(batch) < NX {
		return nil, fmt.Errorf("%w: %d < %d", ErrTooFewSatellites, len(batch), NX)
	}

	rslt := NewLSSol()
	rslt.NumSats = len(batch)

	// Position and clock offset
	G, err := solvePosClock(ctx, batch, prevPos, opt, log, rslt)
	if err != nil {
		return nil, fmt.Errorf("solvePosClock() failed: %w", err)
	}

	// Velocity and clock drift (uses the converged position)
	err = solveVelDrift(ctx, batch, prevVel, opt, log, rslt)
	if err != nil {
		return nil, fmt.Errorf("solveVelDrift() failed: %w", err)
	}

	// Calculate DOP values from the final geometry
	err = setDop(G, rslt)
	if err != nil {
		return nil, fmt.Errorf("setDop() failed: %w", err)
	}

	return rslt, nil
}

// solvePosClock solves x = [position, clock offset] by Gauss-Newton iteration.
// It returns the design matrix of the last iteration.
func solvePosClock(ctx context.Context, batch Batch, prevPos PosXYZ, opt *LSOpt, log logging.Logger, rslt *LSSol) (*mat.Dense, error) {

	n := len(batch)

	// Unknowns (initial value: previous position, zero clock offset)
	upos := prevPos
	clk := 0.0

	// Design matrix and residual vector
	G := mat.NewDense(n, NX, nil)
	dr := mat.NewVecDense(n, nil)

	for loop := 0; loop < opt.MaxIter; loop++ {

		// Set up observation equations
		for i, ob := range batch {
			_, _, ri, u := lineOfSight(SatState{Pos: ob.SatPos, Vel: ob.SatVel}, upos)

			G.Set(i, 0, -u.X)
			G.Set(i, 1, -u.Y)
			G.Set(i, 2, -u.Z)
			G.Set(i, 3, 1)

			// Observed minus predicted pseudorange
			dr.SetVec(i, ob.Pr-(ri+clk))
		}

		if loop == 0 {
			LogMat(ctx, log, "G", G)
		}

		dx, err := SolveLS(G, dr)
		if err != nil {
			return nil, err
		}

		// Update receiver position and clock offset
		upos.X += dx.AtVec(0)
		upos.Y += dx.AtVec(1)
		upos.Z += dx.AtVec(2)
		clk += dx.AtVec(3)

		step := mat.Norm(dx, 2)
		rslt.PosSteps = append(rslt.PosSteps, step)
		log.Debug(ctx, "pos loop",
			logging.Int("loop", loop+1),
			logging.Float64("x", upos.X),
			logging.Float64("y", upos.Y),
			logging.Float64("z", upos.Z),
			logging.Float64("clk", clk),
			logging.Float64("step", step),
		)

		// Check convergence
		if step < opt.Threshold {
			rslt.Pos = upos
			rslt.Clk.Offset = clk
			rslt.Res = residuals(batch, upos, clk)
			return G, nil
		}
		if math.IsNaN(step) || math.IsInf(step, 0) {
			return nil, fmt.Errorf("%w: non-finite update at loop %d", ErrSingularGeometry, loop+1)
		}
	}

	return nil, fmt.Errorf("%w: position after %d loops", ErrNotConverged, opt.MaxIter)
}

// solveVelDrift solves x = [velocity, clock drift] by Gauss-Newton iteration
// around the converged position in rslt.
func solveVelDrift(ctx context.Context, batch Batch, prevVel PosXYZ, opt *LSOpt, log logging.Logger, rslt *LSSol) error {

	n := len(batch)
	upos := rslt.Pos

	// Unknowns (initial value: previous velocity, zero drift)
	uvel := prevVel
	drift := 0.0

	G := mat.NewDense(n, NX, nil)
	dr := mat.NewVecDense(n, nil)

	// Geometry does not change during the velocity solve
	svel := make([]PosXYZ, n)
	los := make([]PosXYZ, n)
	for i, ob := range batch {
		_, svel[i], _, los[i] = lineOfSight(SatState{Pos: ob.SatPos, Vel: ob.SatVel}, upos)
	}
	urot := upos.EarthRate()

	for loop := 0; loop < opt.MaxIter; loop++ {

		for i, ob := range batch {
			u := los[i]
			G.Set(i, 0, -u.X)
			G.Set(i, 1, -u.Y)
			G.Set(i, 2, -u.Z)
			G.Set(i, 3, 1)

			pred := u.Dot(svel[i].Sub(uvel.Add(urot))) + drift
			dr.SetVec(i, ob.PrRate-pred)
		}

		dx, err := SolveLS(G, dr)
		if err != nil {
			return err
		}

		uvel.X += dx.AtVec(0)
		uvel.Y += dx.AtVec(1)
		uvel.Z += dx.AtVec(2)
		drift += dx.AtVec(3)

		step := mat.Norm(dx, 2)
		rslt.VelSteps = append(rslt.VelSteps, step)
		log.Debug(ctx, "vel loop",
			logging.Int("loop", loop+1),
			logging.Float64("vx", uvel.X),
			logging.Float64("vy", uvel.Y),
			logging.Float64("vz", uvel.Z),
			logging.Float64("drift", drift),
			logging.Float64("step", step),
		)

		if step < opt.Threshold {
			rslt.Vel = uvel
			rslt.Clk.Drift = drift
			return nil
		}
		if math.IsNaN(step) || math.IsInf(step, 0) {
			return fmt.Errorf("%w: non-finite update at loop %d", ErrSingularGeometry, loop+1)
		}
	}

	return fmt.Errorf("%w: velocity after %d loops", ErrNotConverged, opt.MaxIter)
}

// residuals returns observed minus predicted pseudoranges at the solution
func residuals(batch Batch, upos PosXYZ, clk float64) []float64 {
	res := make([]float64, len(batch))
	for i, ob := range batch {
		_, _, ri, _ := lineOfSight(SatState{Pos: ob.SatPos}, upos)
		res[i] = ob.Pr - (ri + clk)
	}
	return res
}

// setDop calculates DOP values. The XYZ covariance is rotated into the local
// NED frame at the solution so that hdop/vdop are horizontal/vertical.
func setDop(G mat.Matrix, rslt *LSSol) error {
	cov, err := CovLS(G)
	if err != nil {
		return err
	}

	llh := rslt.Pos.ToLLH()
	R := mat.NewDense(NX, NX, nil)
	R.Slice(0, 3, 0, 3).(*mat.Dense).Copy(Cen(llh))
	R.Set(3, 3, 1)

	var tmp, q mat.Dense
	tmp.Mul(R, cov)
	q.Mul(&tmp, R.T())

	rslt.Dop["gdop"] = math.Sqrt(q.At(0, 0) + q.At(1, 1) + q.At(2, 2) + q.At(3, 3))
	rslt.Dop["pdop"] = math.Sqrt(q.At(0, 0) + q.At(1, 1) + q.At(2, 2))
	rslt.Dop["hdop"] = math.Sqrt(q.At(0, 0) + q.At(1, 1))
	rslt.Dop["vdop"] = math.Sqrt(q.At(2, 2))
	return nil
}

// LSSolver adapts CalcLS to the FixSolver interface
type LSSolver struct {
	Opt *LSOpt
}

func (s *LSSolver) Solve(ctx context.Context, batch Batch, prevPos, prevVel PosXYZ) (*LSSol, error) {
	return CalcLS(ctx, batch, prevPos, prevVel, s.Opt)
}
