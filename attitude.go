// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Euler attitude of the body frame relative to NED [rad]
type Euler struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// EulerToCnb returns the coordinate transformation matrix from NED to body axes
func EulerToCnb(eul Euler) *mat.Dense {
	sp, cp := math.Sin(eul.Roll), math.Cos(eul.Roll)
	st, ct := math.Sin(eul.Pitch), math.Cos(eul.Pitch)
	sy, cy := math.Sin(eul.Yaw), math.Cos(eul.Yaw)

	return mat.NewDense(3, 3, []float64{
		ct * cy, ct * sy, -st,
		-cp*sy + sp*st*cy, cp*cy + sp*st*sy, sp * ct,
		sp*sy + cp*st*cy, -sp*cy + cp*st*sy, cp * ct,
	})
}

// CnbToEuler extracts the Euler angles from a NED-to-body matrix
func CnbToEuler(Cnb mat.Matrix) Euler {
	return Euler{
		Roll:  math.Atan2(Cnb.At(1, 2), Cnb.At(2, 2)),
		Pitch: -math.Asin(Cnb.At(0, 2)),
		Yaw:   math.Atan2(Cnb.At(0, 1), Cnb.At(0, 0)),
	}
}

// EulerToCbn returns the body-to-NED matrix (transpose of EulerToCnb)
func EulerToCbn(eul Euler) *mat.Dense {
	var Cbn mat.Dense
	Cbn.CloneFrom(EulerToCnb(eul).T())
	return &Cbn
}
