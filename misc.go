// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mkhts/gnsssim/internal/logging"
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

// Wrap an angle difference into [-pi, pi)
func WrapPi(a float64) float64 {
	a = math.Mod(a+PI, 2*PI)
	if a < 0 {
		a += 2 * PI
	}
	return a - PI
}

// ------------------------------------
// Debug output
// ------------------------------------

// LogMat writes a matrix to the debug log
func LogMat(ctx context.Context, log logging.Logger, name string, X mat.Matrix) {
	r, c := X.Dims()
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	log.Debug(ctx, name,
		logging.String("dims", fmt.Sprintf("%dx%d", r, c)),
		logging.String("value", fmt.Sprintf("%v", fa)),
	)
}
