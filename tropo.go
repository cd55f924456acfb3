// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"math"
)

// Obliquity factor coefficients of the thin-shell mapping 1/sqrt(1 - k cos^2(el))
const (
	IONO_OBLIQ_K = 0.899 // Ionosphere (shell at ~350 km)
	TROP_OBLIQ_K = 0.998 // Troposphere
)

// IonoMapf maps a zenith ionosphere delay to the slant direction at elevation elev [rad]
func IonoMapf(elev float64) float64 {
	return obliq(elev, IONO_OBLIQ_K)
}

// TropMapf maps a zenith troposphere delay to the slant direction at elevation elev [rad]
func TropMapf(elev float64) float64 {
	return obliq(elev, TROP_OBLIQ_K)
}

func obliq(elev, k float64) float64 {
	cosel := math.Cos(elev)
	return 1.0 / math.Sqrt(1.0-k*cosel*cosel)
}
