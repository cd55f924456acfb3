// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.18
//

package gnsssim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains the GNSS simulation and least-squares options.
// Angles are in degrees as written in configuration files; use the *Rad
// helpers inside the calculation.
type Config struct {
	EpochInterval   float64    `yaml:"epoch_interval"`     // Interval between GNSS fixes [s]
	InitEstPos      [3]float64 `yaml:"init_est_r_ea_e"`    // Initial ECEF position guess [m]
	NoSat           int        `yaml:"no_sat"`             // Number of satellites in the constellation
	Ros             float64    `yaml:"r_os"`               // Orbital radius of satellites [m]
	Inclination     float64    `yaml:"inclination"`        // Inclination angle of satellites [deg]
	ConstDeltaLon   float64    `yaml:"const_delta_lambda"` // Longitude offset of constellation [deg]
	ConstDeltaT     float64    `yaml:"const_delta_t"`      // Timing offset of constellation [s]
	MaskAngle       float64    `yaml:"mask_angle"`         // Elevation mask [deg]
	SISErrSD        float64    `yaml:"SIS_err_SD"`         // Signal in space error SD [m]
	ZenithIonoErrSD float64    `yaml:"zenith_iono_err_SD"` // Zenith ionosphere error SD [m]
	ZenithTropErrSD float64    `yaml:"zenith_trop_err_SD"` // Zenith troposphere error SD [m]
	CodeTrackErrSD  float64    `yaml:"code_track_err_SD"`  // Code tracking error SD [m]
	RateTrackErrSD  float64    `yaml:"rate_track_err_SD"`  // Range-rate tracking error SD [m/s]
	RxClockOffset   float64    `yaml:"rx_clock_offset"`    // Receiver clock offset at time 0 [m]
	RxClockDrift    float64    `yaml:"rx_clock_drift"`     // Receiver clock drift at time 0 [m/s]
	Seed            uint64     `yaml:"seed"`               // Seed of the run's random generator
	MaxIter         int        `yaml:"max_iter"`           // Maximum Gauss-Newton iterations per solve
}

// NewConfig creates a Config with default values
// Defaults describe a GPS-like 30 satellite constellation
func NewConfig() *Config {
	return &Config{
		EpochInterval:   0.5,
		InitEstPos:      [3]float64{0, 0, 0}, // Center of the Earth
		NoSat:           30,
		Ros:             2.656175e7,
		Inclination:     55,
		ConstDeltaLon:   0,
		ConstDeltaT:     0,
		MaskAngle:       10,
		SISErrSD:        1,
		ZenithIonoErrSD: 2,
		ZenithTropErrSD: 0.2,
		CodeTrackErrSD:  1,
		RateTrackErrSD:  0.02,
		RxClockOffset:   10000,
		RxClockDrift:    100,
		Seed:            1,
		MaxIter:         MAX_LOOP_COUNT,
	}
}

// DecodeConfig decodes a YAML document from r into dst. Unknown keys are
// rejected and an empty document leaves dst unchanged.
func DecodeConfig(r io.Reader, dst any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a YAML configuration on top of the defaults.
// Keys missing from the file keep their default values.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := NewConfig()
	if err := DecodeConfig(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file
func LoadConfigFile(fn string) (*Config, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks the configuration. All failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.NoSat <= 0:
		return fmt.Errorf("%w: no_sat must be positive, got %d", ErrInvalidConfig, c.NoSat)
	case c.Ros <= 0:
		return fmt.Errorf("%w: r_os must be positive, got %g", ErrInvalidConfig, c.Ros)
	case c.EpochInterval < 0:
		return fmt.Errorf("%w: epoch_interval must not be negative, got %g", ErrInvalidConfig, c.EpochInterval)
	case c.MaskAngle < -90 || c.MaskAngle > 90:
		return fmt.Errorf("%w: mask_angle out of range, got %g", ErrInvalidConfig, c.MaskAngle)
	case c.MaxIter <= 0:
		return fmt.Errorf("%w: max_iter must be positive, got %d", ErrInvalidConfig, c.MaxIter)
	}
	sds := []struct {
		key string
		val float64
	}{
		{"SIS_err_SD", c.SISErrSD},
		{"zenith_iono_err_SD", c.ZenithIonoErrSD},
		{"zenith_trop_err_SD", c.ZenithTropErrSD},
		{"code_track_err_SD", c.CodeTrackErrSD},
		{"rate_track_err_SD", c.RateTrackErrSD},
	}
	for _, sd := range sds {
		if sd.val < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %g", ErrInvalidConfig, sd.key, sd.val)
		}
	}
	return nil
}

// InitPos returns the configured initial position guess
func (c *Config) InitPos() PosXYZ {
	return PosXYZ{X: c.InitEstPos[0], Y: c.InitEstPos[1], Z: c.InitEstPos[2]}
}

func (c *Config) InclinationRad() float64   { return ToRad(c.Inclination) }
func (c *Config) ConstDeltaLonRad() float64 { return ToRad(c.ConstDeltaLon) }
func (c *Config) MaskAngleRad() float64     { return ToRad(c.MaskAngle) }
