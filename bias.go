// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// BiasSet holds the residual range biases of every satellite.
// Biases are drawn once per run and do not follow the geometry afterwards,
// so the model is only meaningful for runs of up to about 30 minutes.
type BiasSet struct {
	SIS  []float64 // Signal in space error [m]
	Iono []float64 // Slant ionosphere residual [m]
	Trop []float64 // Slant troposphere residual [m]
}

// Total returns the range bias of satellite index i (1-based)
func (b *BiasSet) Total(i int) float64 {
	k := i - 1
	return b.SIS[k] + b.Iono[k] + b.Trop[k]
}

// Len returns the number of satellites covered by the set
func (b *BiasSet) Len() int {
	return len(b.SIS)
}

// NewRand creates the run's random generator. Every random draw of a run
// comes from this generator, in a fixed order, so a seed reproduces a run.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// gauss draws one zero-mean normal sample with standard deviation sd.
// A draw is consumed even when sd is 0 so the sequence does not depend on the error settings.
func gauss(rng *rand.Rand, sd float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: sd, Src: rng}.Rand()
}

// InitializeBiases draws the satellite biases at the initial true position.
// Satellites below the mask get a bias too (three draws per satellite, in
// order SIS, ionosphere, troposphere) so the number of draws is fixed by
// the constellation size.
func InitializeBiases(sats []SatState, usrPos PosXYZ, usrLLH PosLLH, cfg *Config, rng *rand.Rand) *BiasSet {
	b := &BiasSet{
		SIS:  make([]float64, len(sats)),
		Iono: make([]float64, len(sats)),
		Trop: make([]float64, len(sats)),
	}
	for k, sat := range sats {
		elv := usrLLH.Elevation(usrPos, sat.Pos)
		b.SIS[k] = gauss(rng, cfg.SISErrSD)
		b.Iono[k] = gauss(rng, cfg.ZenithIonoErrSD*IonoMapf(elv))
		b.Trop[k] = gauss(rng, cfg.ZenithTropErrSD*TropMapf(elv))
	}
	return b
}
