package metrics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespaceConstant            = "wpmu_clone"
	metricsSubsystemConstant            = "rewrite"
	dispatchedMetricNameConstant        = "dispatched_total"
	dispatchedMetricHelpConstant        = "Background commands dispatched."
	succeededMetricNameConstant         = "succeeded_total"
	succeededMetricHelpConstant         = "Background commands that exited successfully."
	failedMetricNameConstant            = "failed_total"
	failedMetricHelpConstant            = "Background commands that failed or could not be waited on."
	timedOutMetricNameConstant          = "timed_out_total"
	timedOutMetricHelpConstant          = "Background commands terminated by the command timeout."
	inFlightMetricNameConstant          = "in_flight"
	inFlightMetricHelpConstant          = "Background commands currently held by the process pool."
	registrationErrorTemplateConstant   = "unable to register metric collectors: %w"
	textfileExportErrorTemplateConstant = "unable to write metrics textfile %s: %w"
)

// Recorder tracks process pool outcomes in a dedicated Prometheus registry.
type Recorder struct {
	registry   *prometheus.Registry
	dispatched prometheus.Counter
	succeeded  prometheus.Counter
	failed     prometheus.Counter
	timedOut   prometheus.Counter
	inFlight   prometheus.Gauge
}

// NewRecorder registers the rewrite collectors in a fresh registry.
func NewRecorder() (*Recorder, error) {
	recorder := &Recorder{
		registry:   prometheus.NewRegistry(),
		dispatched: newCounter(dispatchedMetricNameConstant, dispatchedMetricHelpConstant),
		succeeded:  newCounter(succeededMetricNameConstant, succeededMetricHelpConstant),
		failed:     newCounter(failedMetricNameConstant, failedMetricHelpConstant),
		timedOut:   newCounter(timedOutMetricNameConstant, timedOutMetricHelpConstant),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Subsystem: metricsSubsystemConstant,
			Name:      inFlightMetricNameConstant,
			Help:      inFlightMetricHelpConstant,
		}),
	}

	var registrationErrors []error
	for _, collector := range []prometheus.Collector{recorder.dispatched, recorder.succeeded, recorder.failed, recorder.timedOut, recorder.inFlight} {
		if registrationError := recorder.registry.Register(collector); registrationError != nil {
			registrationErrors = append(registrationErrors, registrationError)
		}
	}
	if len(registrationErrors) > 0 {
		return nil, fmt.Errorf(registrationErrorTemplateConstant, errors.Join(registrationErrors...))
	}

	return recorder, nil
}

// RecordDispatched counts a newly started background command.
func (recorder *Recorder) RecordDispatched() {
	recorder.dispatched.Inc()
}

// RecordCompleted counts a reaped background command.
func (recorder *Recorder) RecordCompleted(succeeded bool, timedOut bool) {
	if succeeded {
		recorder.succeeded.Inc()
	} else {
		recorder.failed.Inc()
	}
	if timedOut {
		recorder.timedOut.Inc()
	}
}

// SetInFlight publishes the number of commands still running.
func (recorder *Recorder) SetInFlight(count int) {
	recorder.inFlight.Set(float64(count))
}

// Gatherer exposes the registry for inspection.
func (recorder *Recorder) Gatherer() prometheus.Gatherer {
	return recorder.registry
}

// WriteTextfile atomically writes the current values to path. An empty path is a no-op.
func (recorder *Recorder) WriteTextfile(path string) error {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return nil
	}
	if writeError := prometheus.WriteToTextfile(trimmedPath, recorder.registry); writeError != nil {
		return fmt.Errorf(textfileExportErrorTemplateConstant, trimmedPath, writeError)
	}
	return nil
}

func newCounter(name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespaceConstant,
		Subsystem: metricsSubsystemConstant,
		Name:      name,
		Help:      help,
	})
}
