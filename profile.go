// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

// Reads and writes motion profiles and simulation records as CSV.
//
// Profile (and fix) rows:
//
//	t [s], lat, lon, h [m], vN, vE, vD [m/s], roll, pitch, yaw
//
// Angles are in degrees in an input profile and in radians in every output file.

package gnsssim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

var ErrInputFormat = errors.New("invalid input format")

// Number of columns of a profile row
const PROFILE_COLS = 10

// ReadProfile reads a motion profile. Every row must have PROFILE_COLS
// numeric columns and times must not decrease. Lines starting with '#'
// are comments.
func ReadProfile(r io.Reader) ([]TrajectorySample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var prof []TrajectorySample
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputFormat, err)
		}
		if len(rec) != PROFILE_COLS {
			return nil, fmt.Errorf("%w: record %d has %d columns, want %d", ErrInputFormat, line, len(rec), PROFILE_COLS)
		}

		var v [PROFILE_COLS]float64
		for i, s := range rec {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d column %d: %v", ErrInputFormat, line, i+1, err)
			}
		}

		prof = append(prof, TrajectorySample{
			Time: v[0],
			LLH:  PosLLH{Lat: ToRad(v[1]), Lon: ToRad(v[2]), Hei: v[3]},
			Vel:  PosNED{N: v[4], E: v[5], D: v[6]},
			Att:  Euler{Roll: ToRad(v[7]), Pitch: ToRad(v[8]), Yaw: ToRad(v[9])},
		})
	}

	sorted := slices.IsSortedFunc(prof, func(a, b TrajectorySample) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	if !sorted {
		return nil, fmt.Errorf("%w: time stamps decrease", ErrInputFormat)
	}
	return prof, nil
}

// ReadProfileFile reads a motion profile file
func ReadProfileFile(fn string) ([]TrajectorySample, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prof, err := ReadProfile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return prof, nil
}

// WriteProfile writes a motion profile with angles in degrees, readable by ReadProfile
func WriteProfile(w io.Writer, prof []TrajectorySample) error {
	return writeRows(w, len(prof), func(i int) []float64 {
		p := prof[i]
		return []float64{
			p.Time, ToDeg(p.LLH.Lat), ToDeg(p.LLH.Lon), p.LLH.Hei,
			p.Vel.N, p.Vel.E, p.Vel.D,
			ToDeg(p.Att.Roll), ToDeg(p.Att.Pitch), ToDeg(p.Att.Yaw),
		}
	})
}

// WriteFixes writes the navigation solutions (angles in radians)
func WriteFixes(w io.Writer, fixes []Fix) error {
	return writeRows(w, len(fixes), func(i int) []float64 {
		f := fixes[i]
		return []float64{
			f.Time, f.LLH.Lat, f.LLH.Lon, f.LLH.Hei,
			f.Vel.N, f.Vel.E, f.Vel.D,
			f.Att.Roll, f.Att.Pitch, f.Att.Yaw,
		}
	})
}

// WriteErrors writes the navigation errors: t, dN, dE, dD, dvN, dvE, dvD and the attitude errors
func WriteErrors(w io.Writer, errs []ErrorRecord) error {
	return writeRows(w, len(errs), func(i int) []float64 {
		e := errs[i]
		return []float64{
			e.Time, e.Pos.N, e.Pos.E, e.Pos.D,
			e.Vel.N, e.Vel.E, e.Vel.D,
			e.Att.Roll, e.Att.Pitch, e.Att.Yaw,
		}
	})
}

// WriteClocks writes the receiver clock estimates: t, offset [m], drift [m/s]
func WriteClocks(w io.Writer, clks []ClockRecord) error {
	return writeRows(w, len(clks), func(i int) []float64 {
		c := clks[i]
		return []float64{c.Time, c.Offset, c.Drift}
	})
}

func writeRows(w io.Writer, n int, row func(i int) []float64) error {
	cw := csv.NewWriter(w)
	for i := 0; i < n; i++ {
		vals := row(i)
		rec := make([]string, len(vals))
		for k, v := range vals {
			rec[k] = strconv.FormatFloat(v, 'g', 17, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ProfileOpt contains the parameters of a generated motion profile
type ProfileOpt struct {
	Start    PosLLH  // Initial position (rad, rad, m)
	Vel      PosNED  // Constant NED velocity [m/s]
	Att      Euler   // Constant attitude [rad]
	Duration float64 // [s]
	Step     float64 // Sample interval [s]
}

// NewProfileOpt creates a ProfileOpt with default values
func NewProfileOpt() *ProfileOpt {
	return &ProfileOpt{
		Start:    PosLLH{Lat: ToRad(50.4249), Lon: ToRad(-3.5963), Hei: 10}, // Stationary test point
		Vel:      PosNED{},
		Att:      Euler{},
		Duration: 60,
		Step:     0.1,
	}
}

// GenerateProfile creates a straight-line motion profile at constant NED
// velocity, integrating the curvilinear position sample by sample.
func GenerateProfile(opt *ProfileOpt) ([]TrajectorySample, error) {
	if opt.Step <= 0 || opt.Duration < 0 {
		return nil, fmt.Errorf("%w: step=%g, duration=%g", ErrInvalidConfig, opt.Step, opt.Duration)
	}

	n := int(math.Floor(opt.Duration/opt.Step+1e-9)) + 1
	prof := make([]TrajectorySample, 0, n)

	llh := opt.Start
	for i := 0; i < n; i++ {
		if i > 0 {
			rn, re := llh.RadiiOfCurvature()
			llh.Hei -= opt.Vel.D * opt.Step
			llh.Lat += opt.Vel.N / (rn + llh.Hei) * opt.Step
			llh.Lon = WrapPi(llh.Lon + opt.Vel.E/((re+llh.Hei)*math.Cos(llh.Lat))*opt.Step)
		}
		prof = append(prof, TrajectorySample{
			Time: float64(i) * opt.Step,
			LLH:  llh,
			Vel:  opt.Vel,
			Att:  opt.Att,
		})
	}
	return prof, nil
}
