package buzz

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Metrics receives the engine's observability signals.
type Metrics interface {
	CacheLookup(category string, hit bool)
	ClassificationFailure()
	MissingData(component string)
	InvariantViolation(field string)
	BatchItem(outcome string)
	ObserveCompute(d time.Duration)
}

// NopMetrics discards every signal.
type NopMetrics struct{}

func (NopMetrics) CacheLookup(string, bool)     {}
func (NopMetrics) ClassificationFailure()       {}
func (NopMetrics) MissingData(string)           {}
func (NopMetrics) InvariantViolation(string)    {}
func (NopMetrics) BatchItem(string)             {}
func (NopMetrics) ObserveCompute(time.Duration) {}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
