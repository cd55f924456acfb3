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

func TestSatellitesOrbit(t *testing.T) {
	cfg := NewConfig()
	sats, err := Satellites(100, cfg)
	require.NoError(t, err)
	require.Len(t, sats, cfg.NoSat)

	omg := math.Sqrt(Mu / math.Pow(cfg.Ros, 3))
	for i, s := range sats {
		assert.Equal(t, i+1, s.Index)
		assert.InDelta(t, cfg.Ros, s.Pos.Norm(), 1e-3)

		// Inertial speed is r * omega; the ECEF velocity adds the Earth rotation term
		inertial := s.Vel.Add(s.Pos.EarthRate())
		assert.InDelta(t, cfg.Ros*omg, inertial.Norm(), 1e-6)

		// Inclination bounds the latitude
		lat := math.Asin(s.Pos.Z / s.Pos.Norm())
		assert.LessOrEqual(t, math.Abs(lat), cfg.InclinationRad()+1e-9)
	}
}

func TestSatellitesVelocityIsDerivative(t *testing.T) {
	cfg := NewConfig()
	const tt, dt = 500.0, 1.0
	s0, err := Satellites(tt-dt, cfg)
	require.NoError(t, err)
	s1, err := Satellites(tt, cfg)
	require.NoError(t, err)
	s2, err := Satellites(tt+dt, cfg)
	require.NoError(t, err)

	for i := range s1 {
		fd := s2[i].Pos.Sub(s0[i].Pos).Scale(1 / (2 * dt))
		assert.InDelta(t, 0, fd.Sub(s1[i].Vel).Norm(), 1e-3, "satellite %d", i+1)
	}
}

func TestSatellitesDeterministic(t *testing.T) {
	cfg := NewConfig()
	a, err := Satellites(42.5, cfg)
	require.NoError(t, err)
	b, err := Satellites(42.5, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// The timing offset shifts the constellation in time
	cfg2 := NewConfig()
	cfg2.ConstDeltaT = 10
	c, err := Satellites(32.5, cfg2)
	require.NoError(t, err)
	for i := range a {
		assert.InDelta(t, 0, a[i].Pos.Sub(c[i].Pos).Norm(), 1e-6)
	}
}

func TestSatellitesInvalidConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.NoSat = 0
	_, err := Satellites(0, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = NewConfig()
	cfg.Ros = -1
	_, err = Satellites(0, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSagnacSign(t *testing.T) {
	usr := PosXYZ{X: Re, Y: 0, Z: 0}
	const rs = 2.656175e7
	const dlon = 0.3

	east := SatState{Pos: PosXYZ{X: rs * math.Cos(dlon), Y: rs * math.Sin(dlon)}}
	west := SatState{Pos: PosXYZ{X: rs * math.Cos(dlon), Y: -rs * math.Sin(dlon)}}

	want := OmegaIE * Re * rs * math.Sin(dlon) / C

	_, _, rngE, _ := lineOfSight(east, usr)
	geoE := EucDist(&east.Pos, &usr)
	assert.Less(t, rngE, geoE)
	assert.InDelta(t, -want, rngE-geoE, 1e-3)

	// Without Earth rotation the satellite is not moved
	assert.Equal(t, east.Pos, sagnacRotate(east.Pos, geoE, 0))

	_, _, rngW, _ := lineOfSight(west, usr)
	geoW := EucDist(&west.Pos, &usr)
	assert.Greater(t, rngW, geoW)
	assert.InDelta(t, want, rngW-geoW, 1e-3)
}

func TestLineOfSightUnitVector(t *testing.T) {
	cfg := NewConfig()
	sats, err := Satellites(0, cfg)
	require.NoError(t, err)
	usr := testLLH.ToXYZ()
	for _, s := range sats {
		spos, _, rng, u := lineOfSight(s, usr)
		assert.InDelta(t, 1, u.Norm(), 1e-12)
		assert.InDelta(t, rng, spos.Sub(usr).Norm(), 1e-6)
	}
}
