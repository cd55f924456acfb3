// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObliquityFactors(t *testing.T) {
	assert.InDelta(t, 1.0, IonoMapf(PI/2), 1e-12)
	assert.InDelta(t, 1.0, TropMapf(PI/2), 1e-12)
	assert.InDelta(t, 1/math.Sqrt(1-IONO_OBLIQ_K), IonoMapf(0), 1e-12)
	assert.InDelta(t, 1/math.Sqrt(1-TROP_OBLIQ_K), TropMapf(0), 1e-9)
	assert.Greater(t, IonoMapf(ToRad(10)), IonoMapf(ToRad(45)))
}

func TestInitializeBiasesDrawCount(t *testing.T) {
	cfg := NewConfig()
	sats, err := Satellites(0, cfg)
	require.NoError(t, err)
	r := testLLH.ToXYZ()

	rng := NewRand(3)
	b := InitializeBiases(sats, r, testLLH, cfg, rng)
	require.Equal(t, cfg.NoSat, b.Len())

	// Three draws per satellite, below-mask satellites included
	ref := NewRand(3)
	for k, s := range sats {
		elv := testLLH.Elevation(r, s.Pos)
		assert.Equal(t, gauss(ref, cfg.SISErrSD), b.SIS[k])
		assert.Equal(t, gauss(ref, cfg.ZenithIonoErrSD*IonoMapf(elv)), b.Iono[k])
		assert.Equal(t, gauss(ref, cfg.ZenithTropErrSD*TropMapf(elv)), b.Trop[k])
		assert.Equal(t, b.SIS[k]+b.Iono[k]+b.Trop[k], b.Total(s.Index))
	}
	assert.Equal(t, ref.Uint64(), rng.Uint64())
}

func TestInitializeBiasesZeroSD(t *testing.T) {
	cfg := noiseFreeConfig()
	sats, err := Satellites(0, cfg)
	require.NoError(t, err)

	b := InitializeBiases(sats, testLLH.ToXYZ(), testLLH, cfg, NewRand(cfg.Seed))
	for i := 1; i <= b.Len(); i++ {
		assert.Zero(t, b.Total(i))
	}
}

func TestNewRandReproducible(t *testing.T) {
	a, b := NewRand(11), NewRand(11)
	for i := 0; i < 10; i++ {
		assert.Equal(t, gauss(a, 1), gauss(b, 1))
	}
	assert.NotEqual(t, gauss(NewRand(11), 1), gauss(NewRand(12), 1))
}
