// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import "math"

// ErrorRecord is the navigation error of one fix, resolved along the
// north, east and down axes at the true position.
type ErrorRecord struct {
	Time float64 // [s]
	Pos  PosNED  // Position error [m]
	Vel  PosNED  // Velocity error [m/s]
	Att  Euler   // Attitude error [rad], always zero for GNSS-only fixes
}

// CalcErrorsNED calculates the curvilinear position error and NED velocity
// error of an estimate against the truth.
//
//	north = dLat (R_N + h), east = dLon (R_E + h) cos(lat), down = -dh
//
// where the radii and the height h are those of the true position.
func CalcErrorsNED(t float64, est PosLLH, estVel PosNED, truth PosLLH, truthVel PosNED) ErrorRecord {
	rn, re := truth.RadiiOfCurvature()

	dlat := est.Lat - truth.Lat
	dlon := WrapPi(est.Lon - truth.Lon)

	var rec ErrorRecord
	rec.Time = t
	rec.Pos.N = dlat * (rn + truth.Hei)
	rec.Pos.E = dlon * (re + truth.Hei) * math.Cos(truth.Lat)
	rec.Pos.D = -(est.Hei - truth.Hei)
	rec.Vel = estVel.Sub(truthVel)
	return rec
}

// Horizontal position error [m]
func (e ErrorRecord) Horizontal() float64 {
	return EucDist(&PosXYZ{X: e.Pos.N, Y: e.Pos.E}, &PosXYZ{})
}

// Position error magnitude [m]
func (e ErrorRecord) Norm3D() float64 {
	return PosXYZ{X: e.Pos.N, Y: e.Pos.E, Z: e.Pos.D}.Norm()
}
