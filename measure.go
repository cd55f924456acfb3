// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"golang.org/x/exp/rand"
)

// Observation is one satellite's synthetic measurement at an epoch
type Observation struct {
	Sat    int     // Satellite number (1-based)
	Elev   float64 // Elevation at the true user position [rad]
	Pr     float64 // Pseudorange [m]
	PrRate float64 // Pseudorange rate [m/s]
	SatPos PosXYZ  // Satellite ECEF position [m]
	SatVel PosXYZ  // Satellite ECEF velocity [m/s]
}

// Batch is the set of observations of one epoch, in satellite order
type Batch []Observation

// Visible reports whether a satellite at elevation elev [rad] passes the mask.
// A satellite exactly at the mask angle is used.
func Visible(elev float64, cfg *Config) bool {
	return elev >= cfg.MaskAngleRad()
}

// GenerateMeasurements synthesizes pseudorange and pseudorange-rate
// observations of every satellite above the elevation mask.
//
// Parameters:
//   - t: Simulation time [s]
//   - sats: Satellite states at t
//   - usrPos, usrLLH, usrVel: True user ECEF position, its geodetic form, and ECEF velocity
//   - biases: Frozen satellite biases
//   - cfg: Error model and clock parameters
//   - rng: Run's random generator; two draws per visible satellite (code, then rate)
//
// Returns the batch and its size.
func GenerateMeasurements(
	t float64,
	sats []SatState,
	usrPos PosXYZ,
	usrLLH PosLLH,
	usrVel PosXYZ,
	biases *BiasSet,
	cfg *Config,
	rng *rand.Rand,
) (Batch, int) {

	batch := make(Batch, 0, len(sats))
	for _, sat := range sats {

		// Elevation mask
		elv := usrLLH.Elevation(usrPos, sat.Pos)
		if !Visible(elv, cfg) {
			continue
		}

		// True range and range rate including the Sagnac effect
		_, svel, rho, u := lineOfSight(sat, usrPos)
		rate := u.Dot(svel.Sub(usrVel.Add(usrPos.EarthRate())))

		var ob Observation
		ob.Sat = sat.Index
		ob.Elev = elv
		ob.Pr = rho + biases.Total(sat.Index) + cfg.RxClockOffset + cfg.RxClockDrift*t + gauss(rng, cfg.CodeTrackErrSD)
		ob.PrRate = rate + cfg.RxClockDrift + gauss(rng, cfg.RateTrackErrSD)
		ob.SatPos = sat.Pos
		ob.SatVel = sat.Vel
		batch = append(batch, ob)
	}
	return batch, len(batch)
}
