package admission

// MetricsRecorder receives admission-control measurements. Implementations
// must be safe for concurrent use; the controller calls them on every check.
type MetricsRecorder interface {
	// Add increments a counter.
	Add(name string, value float64, tags map[string]string)
	// Observe records one sample of a distribution (for example latency).
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if recorder != nil' in the hot path.
type NoOpMetricsRecorder struct{}

func (NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}
