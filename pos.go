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
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Iteration limits for the geodetic latitude refinement in ToLLH
const (
	llhMaxLoop   = 30
	llhThreshold = 1e-7 // [m]
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position. Lat/Lon in radians, Hei in meters above the ellipsoid.
type PosLLH struct {
	Lat float64
	Lon float64
	Hei float64
}

func (llh *PosLLH) ToXYZ() PosXYZ {
	// Ellipsoid parameters
	f := Fe                     // Flattening
	a := Re                     // Semi-major axis
	e := math.Sqrt(f * (2 - f)) // Eccentricity

	// Conversion to Cartesian coordinates
	n := a / math.Sqrt(1-e*e*math.Sin(llh.Lat)*math.Sin(llh.Lat))
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-e*e) + llh.Hei) * math.Sin(llh.Lat),
	}
}

// Elevation of sat seen from usr. usrPos is usr in ECEF.
func (usr *PosLLH) Elevation(usrPos, sat PosXYZ) float64 {
	// Convert to NED coordinates to calculate elevation angle
	ned := sat.ToNED(usrPos, *usr)
	return ned.Elevation()
}

// RadiiOfCurvature returns the meridian (R_N) and transverse (R_E) radii of
// curvature of the ellipsoid at the latitude.
func (llh *PosLLH) RadiiOfCurvature() (rn, re float64) {
	e2 := Fe * (2 - Fe)
	t := 1 - e2*math.Sin(llh.Lat)*math.Sin(llh.Lat)
	rn = Re * (1 - e2) / math.Pow(t, 1.5)
	re = Re / math.Sqrt(t)
	return
}

// Read from string (degrees, degrees, meters)
func (llh *PosLLH) Set(s string) error {
	var err error
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("need 3 fields, got %d", len(f))
	}
	llh.Lat, err = strconv.ParseFloat(f[0], 64)
	if err != nil {
		return err
	}
	llh.Lon, err = strconv.ParseFloat(f[1], 64)
	if err != nil {
		return err
	}
	llh.Hei, err = strconv.ParseFloat(f[2], 64)
	if err != nil {
		return err
	}
	llh.Lat *= math.Pi / 180
	llh.Lon *= math.Pi / 180
	return nil
}

// Convert to string (degrees, degrees, meters)
func (llh *PosLLH) String() string {
	return fmt.Sprintf("%.8f %.8f %.4f", ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei)
}

func (llh *PosLLH) Type() string {
	return "llh"
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// ECEF vector. Used for both positions [m] and velocities [m/s].
type PosXYZ struct {
	X float64
	Y float64
	Z float64
}

func (p PosXYZ) Add(q PosXYZ) PosXYZ {
	return PosXYZ{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

func (p PosXYZ) Sub(q PosXYZ) PosXYZ {
	return PosXYZ{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

func (p PosXYZ) Scale(f float64) PosXYZ {
	return PosXYZ{X: f * p.X, Y: f * p.Y, Z: f * p.Z}
}

func (p PosXYZ) Dot(q PosXYZ) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

func (p PosXYZ) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// EarthRate returns Ω_ie p, the Earth-rotation cross product ω_ie × p.
func (p PosXYZ) EarthRate() PosXYZ {
	return PosXYZ{X: -OmegaIE * p.Y, Y: OmegaIE * p.X, Z: 0}
}

// ToLLH converts ECEF to geodetic coordinates by fixed-point iteration on Z.
func (pos *PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	e2 := Fe * (2 - Fe) // Squared eccentricity
	r2 := pos.X*pos.X + pos.Y*pos.Y
	z := pos.Z
	zk := 0.0
	v := Re // Radius of curvature in the prime vertical
	for i := 0; i < llhMaxLoop && math.Abs(z-zk) >= llhThreshold; i++ {
		zk = z
		sinp := z / math.Sqrt(r2+z*z)
		v = Re / math.Sqrt(1-e2*sinp*sinp)
		z = pos.Z + v*e2*sinp
	}

	var lat, lon float64
	if r2 > 1e-12 {
		lat = math.Atan(z / math.Sqrt(r2))
		lon = math.Atan2(pos.Y, pos.X)
	} else if pos.Z > 0 {
		lat = PI / 2
	} else {
		lat = -PI / 2
	}
	return PosLLH{Lat: lat, Lon: lon, Hei: math.Sqrt(r2+z*z) - v}
}

// ToNED resolves pos-base in the NED frame at the given geodetic location.
// Passing llh explicitly avoids a second ECEF->LLH conversion of base.
func (pos *PosXYZ) ToNED(base PosXYZ, llh PosLLH) PosNED {
	return ECEFToNED(pos.Sub(base), llh)
}

//-------------------------------------------------------------------
// PosNED
//-------------------------------------------------------------------

// Local-level vector resolved in North-East-Down axes.
// Used for relative positions [m] and velocities [m/s].
type PosNED struct {
	N float64
	E float64
	D float64
}

func (ned PosNED) Sub(o PosNED) PosNED {
	return PosNED{N: ned.N - o.N, E: ned.E - o.E, D: ned.D - o.D}
}

// Elevation of the direction -D above the local horizontal plane
func (ned PosNED) Elevation() float64 {
	r := math.Sqrt(ned.N*ned.N + ned.E*ned.E + ned.D*ned.D)
	if r == 0 {
		return PI / 2
	}
	return -math.Asin(ned.D / r)
}

// Cen returns the ECEF-to-NED coordinate transformation matrix at llh.
func Cen(llh PosLLH) *mat.Dense {
	sL, cL := math.Sin(llh.Lat), math.Cos(llh.Lat)
	sl, cl := math.Sin(llh.Lon), math.Cos(llh.Lon)
	return mat.NewDense(3, 3, []float64{
		-sL * cl, -sL * sl, cL,
		-sl, cl, 0,
		-cL * cl, -cL * sl, -sL,
	})
}

// ECEFToNED rotates an ECEF vector into NED axes at llh.
func ECEFToNED(v PosXYZ, llh PosLLH) PosNED {
	var out mat.VecDense
	out.MulVec(Cen(llh), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return PosNED{N: out.AtVec(0), E: out.AtVec(1), D: out.AtVec(2)}
}

// NEDToECEF rotates a NED vector into ECEF axes at llh.
func NEDToECEF(v PosNED, llh PosLLH) PosXYZ {
	var out mat.VecDense
	out.MulVec(Cen(llh).T(), mat.NewVecDense(3, []float64{v.N, v.E, v.D}))
	return PosXYZ{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// PVNEDToECEF converts a curvilinear position and NED velocity to ECEF.
func PVNEDToECEF(llh PosLLH, vn PosNED) (r, v PosXYZ) {
	return llh.ToXYZ(), NEDToECEF(vn, llh)
}

// PVECEFToNED converts an ECEF position and velocity to curvilinear
// position and NED velocity.
func PVECEFToNED(r, v PosXYZ) (PosLLH, PosNED) {
	llh := r.ToLLH()
	return llh, ECEFToNED(v, llh)
}
