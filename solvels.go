// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrSingularGeometry = errors.New("singular normal equations")

// Largest accepted condition number of G^T G
const MAX_COND = 1e12

// Solve the observation equation using unweighted least squares
// - dx = (G^t G)^-1 G^t dr, computed by LU factorization of G^t G (no explicit inverse)
// - An ill-conditioned G^t G (degenerate geometry) returns ErrSingularGeometry
func SolveLS(G mat.Matrix, dr mat.Vector) (dx *mat.VecDense, err error) {

	n, m := G.Dims()
	if l := dr.Len(); l != n {
		return nil, fmt.Errorf("invalid matrix size. G(%d x %d), dr(%d x 1)", n, m, l)
	}
	if n < m {
		return nil, fmt.Errorf("%w: %d equations < %d unknowns", ErrSingularGeometry, n, m)
	}

	// A (G^t G)
	var A mat.Dense
	A.Mul(G.T(), G)

	// b (G^t dr)
	var b mat.VecDense
	b.MulVec(G.T(), dr)

	var lu mat.LU
	lu.Factorize(&A)
	if cond := lu.Cond(); !(cond <= MAX_COND) { // NaN fails too
		return nil, fmt.Errorf("%w: cond=%g", ErrSingularGeometry, cond)
	}

	// Solve for x (A x = b)
	var x mat.VecDense
	if err = lu.SolveVecTo(&x, false, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularGeometry, err)
	}
	return &x, nil
}

// Covariance (G^t G)^-1 of an unweighted solution, used for DOP values
func CovLS(G mat.Matrix) (*mat.Dense, error) {
	_, m := G.Dims()

	var A mat.Dense
	A.Mul(G.T(), G)

	var lu mat.LU
	lu.Factorize(&A)
	if cond := lu.Cond(); !(cond <= MAX_COND) { // NaN fails too
		return nil, fmt.Errorf("%w: cond=%g", ErrSingularGeometry, cond)
	}

	var c mat.Dense
	if err := lu.SolveTo(&c, false, eye(m)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularGeometry, err)
	}
	return &c, nil
}

func eye(n int) *mat.DiagDense {
	d := make([]float64, n)
	for i := range d {
		d[i] = 1
	}
	return mat.NewDiagDense(n, d)
}
