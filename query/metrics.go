package query

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RunStarted(RunKind)                       {}
func (NoopMetrics) RunSettled(RunKind, time.Duration, error) {}
func (NoopMetrics) Deduplicated()                            {}
func (NoopMetrics) Evict(EvictReason)                        {}
func (NoopMetrics) Size(string, int, int)                    {}

var _ Metrics = NoopMetrics{}
