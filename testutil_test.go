// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

// Stationary test point used across the package tests
var testLLH = PosLLH{Lat: ToRad(50.4249), Lon: ToRad(-3.5963), Hei: 10}

// noiseFreeConfig returns the default configuration without any error source
func noiseFreeConfig() *Config {
	cfg := NewConfig()
	cfg.SISErrSD = 0
	cfg.ZenithIonoErrSD = 0
	cfg.ZenithTropErrSD = 0
	cfg.CodeTrackErrSD = 0
	cfg.RateTrackErrSD = 0
	return cfg
}

// stationaryProfile returns samples of a user at rest at llh every step seconds
func stationaryProfile(llh PosLLH, duration, step float64) []TrajectorySample {
	opt := NewProfileOpt()
	opt.Start = llh
	opt.Duration = duration
	opt.Step = step
	prof, err := GenerateProfile(opt)
	if err != nil {
		panic(err)
	}
	return prof
}
