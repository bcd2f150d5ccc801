// Package metrics records lifecycle metrics for forpostctl.
//
// Components receive a Recorder and default to NoopRecorder, so metrics stay
// optional: the CLI runs with the no-op recorder, the daemon swaps in a
// PrometheusRecorder and serves it on /metrics.
//
//	rec := metrics.NewPrometheusRecorder(reg)
//	mgr := manager.New(deps).WithRecorder(rec)
package metrics
