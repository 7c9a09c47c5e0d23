package metrics

import "time"

// NopMetrics discards all metrics.
type NopMetrics struct{}

var _ Recorder = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordAssignmentCreated(bool)                      {}
func (n *NopMetrics) RecordAssignmentRejected(string)                   {}
func (n *NopMetrics) RecordAssignmentUpdated()                          {}
func (n *NopMetrics) RecordAssignmentDeleted()                          {}
func (n *NopMetrics) RecordNotification(string, bool)                   {}
func (n *NopMetrics) ObserveRequest(string, string, int, time.Duration) {}
