// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"fmt"
	"math"
)

// Number of orbital planes. Satellite j is placed in plane (j mod NPLANE).
const NPLANE = 6

// SatState is the ECEF state of one satellite at a simulation time.
// Elevation depends on the user, so it is carried by Observation instead.
type SatState struct {
	Index int    // Satellite number (1-based)
	Pos   PosXYZ // ECEF position [m]
	Vel   PosXYZ // ECEF velocity [m/s]
}

// Satellites calculates the ECEF positions and velocities of every satellite
// of the circular-orbit constellation at time t [s].
// The result depends only on (t, cfg).
func Satellites(t float64, cfg *Config) ([]SatState, error) {
	if cfg.NoSat <= 0 || cfg.Ros <= 0 {
		return nil, fmt.Errorf("%w: no_sat=%d, r_os=%g", ErrInvalidConfig, cfg.NoSat, cfg.Ros)
	}

	// Angular rate of the satellites in their orbits
	omgIS := math.Sqrt(Mu / (cfg.Ros * cfg.Ros * cfg.Ros))

	// Constellation timing offset
	tc := t + cfg.ConstDeltaT

	incl := cfg.InclinationRad()
	sinI, cosI := math.Sin(incl), math.Cos(incl)

	sats := make([]SatState, 0, cfg.NoSat)
	for j := 1; j <= cfg.NoSat; j++ {

		// Argument of latitude
		uk := 2*PI*float64(j-1)/float64(cfg.NoSat) + omgIS*tc

		// Position and velocity in the orbital plane
		xk := cfg.Ros * math.Cos(uk)
		yk := cfg.Ros * math.Sin(uk)
		vxk := -cfg.Ros * omgIS * math.Sin(uk)
		vyk := cfg.Ros * omgIS * math.Cos(uk)

		// Longitude of the ascending node (Earth rotation included)
		omk := PI*float64(j%NPLANE)/3 + cfg.ConstDeltaLonRad() - OmegaIE*tc
		sinO, cosO := math.Sin(omk), math.Cos(omk)

		var s SatState
		s.Index = j
		s.Pos.X = xk*cosO - yk*cosI*sinO
		s.Pos.Y = xk*sinO + yk*cosI*cosO
		s.Pos.Z = yk * sinI

		// Velocity in the rotating frame
		s.Vel.X = vxk*cosO - vyk*cosI*sinO + OmegaIE*s.Pos.Y
		s.Vel.Y = vxk*sinO + vyk*cosI*cosO - OmegaIE*s.Pos.X
		s.Vel.Z = vyk * sinI

		sats = append(sats, s)
	}
	return sats, nil
}

// sagnacRotate returns the satellite position expressed in the ECEF frame at
// signal reception time. rng is an approximate transmitter-receiver range used
// to estimate the transit time; omg is the Earth rotation rate.
func sagnacRotate(p PosXYZ, rng, omg float64) PosXYZ {
	a := omg * rng / C
	return PosXYZ{
		X: p.X + a*p.Y,
		Y: -a*p.X + p.Y,
		Z: p.Z,
	}
}

// lineOfSight calculates the Sagnac-corrected geometry between a satellite
// and the user: the satellite position/velocity in the reception-time frame,
// the corrected range and the unit line-of-sight vector from user to satellite.
func lineOfSight(sat SatState, usr PosXYZ) (spos, svel PosXYZ, rng float64, u PosXYZ) {

	// Approximate range ignoring Earth rotation
	rng0 := EucDist(&sat.Pos, &usr)

	// Rotate satellite states by the transit-time angle
	spos = sagnacRotate(sat.Pos, rng0, OmegaIE)
	svel = sagnacRotate(sat.Vel.Add(sat.Pos.EarthRate()), rng0, OmegaIE)

	d := spos.Sub(usr)
	rng = d.Norm()
	u = d.Scale(1 / rng)
	return
}
