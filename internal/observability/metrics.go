// Package observability holds the run metrics and tracing setup of the simulator.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector bundles the Prometheus metrics of a simulation run.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Fixes       prometheus.Counter
	Skipped     *prometheus.CounterVec
	Iterations  prometheus.Histogram
	VisibleSats prometheus.Gauge
	PosError    prometheus.Gauge
	VelError    prometheus.Gauge
	SimTime     prometheus.Gauge
}

// NewSimCollector registers the simulator metrics against reg, defaulting
// to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fixes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gnsssim_fixes_total",
		Help: "Number of navigation fixes produced.",
	}), "gnsssim_fixes_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnsssim_skipped_epochs_total",
		Help: "Number of due epochs without a fix, labeled by reason.",
	}, []string{"reason"}), "gnsssim_skipped_epochs_total")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gnsssim_ls_iterations",
		Help:    "Gauss-Newton iterations per fix (position and velocity solves).",
		Buckets: prometheus.LinearBuckets(2, 2, 10),
	}), "gnsssim_ls_iterations")
	if err != nil {
		return nil, err
	}

	visible, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnsssim_visible_satellites",
		Help: "Satellites above the elevation mask at the last due epoch.",
	}), "gnsssim_visible_satellites")
	if err != nil {
		return nil, err
	}

	posErr, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnsssim_position_error_meters",
		Help: "3D position error of the last fix.",
	}), "gnsssim_position_error_meters")
	if err != nil {
		return nil, err
	}

	velErr, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnsssim_velocity_error_meters_per_second",
		Help: "3D velocity error of the last fix.",
	}), "gnsssim_velocity_error_meters_per_second")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnsssim_last_fix_time_seconds",
		Help: "Simulation time of the last fix.",
	}), "gnsssim_last_fix_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:    gatherer,
		Fixes:       fixes,
		Skipped:     skipped,
		Iterations:  iterations,
		VisibleSats: visible,
		PosError:    posErr,
		VelError:    velErr,
		SimTime:     simTime,
	}, nil
}

// ObserveFix records a successful fix.
func (c *SimCollector) ObserveFix(t float64, sats, iterations int, posErr, velErr float64) {
	if c == nil {
		return
	}
	c.Fixes.Inc()
	c.Iterations.Observe(float64(iterations))
	c.VisibleSats.Set(float64(sats))
	c.PosError.Set(posErr)
	c.VelError.Set(velErr)
	c.SimTime.Set(t)
}

// ObserveSkip records a due epoch that produced no fix.
func (c *SimCollector) ObserveSkip(t float64, sats int, reason string) {
	if c == nil {
		return
	}
	c.Skipped.WithLabelValues(reason).Inc()
	c.VisibleSats.Set(float64(sats))
}

// WriteTextfile writes every gathered metric to filename in the text
// exposition format, for the node exporter textfile collector.
func (c *SimCollector) WriteTextfile(filename string) error {
	g := c.gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(filename, g); err != nil {
		return fmt.Errorf("write metrics %s: %w", filename, err)
	}
	return nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
