/*
Copyright 2026 The Cocotabled Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics is the Prometheus-backed implementation of the arb.Recorder
// interface, the one concrete metrics collaborator the engine reaches through
// its narrow interface seam.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
	"github.com/tunedctl/cocotabled/internal/arb"
)

// Recorder implements arb.Recorder on top of three counter vectors,
// registered into the supplied prometheus.Registerer. Grounded on the general
// client_golang usage pattern of a struct holding pre-created metric handles
// rather than calling prometheus.MustRegister ad hoc at each call site.
type Recorder struct {
	granted  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	applies  *prometheus.CounterVec
}

var _ arb.Recorder = (*Recorder)(nil)

// New creates and registers a Recorder's metrics into reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		granted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocotabled",
			Name:      "resources_granted_total",
			Help:      "Count of resources granted per insert, labeled by resource code and whether it was a full or partial grant.",
		}, []string{"resource_code", "partial"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocotabled",
			Name:      "requests_dropped_total",
			Help:      "Count of requests dropped before any resource was granted, labeled by reason.",
		}, []string{"reason"}),
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocotabled",
			Name:      "apply_actions_total",
			Help:      "Count of apply_action invocations, labeled by resource code and success.",
		}, []string{"resource_code", "success"}),
	}
	reg.MustRegister(r.granted, r.dropped, r.applies)
	return r
}

// ObserveGranted implements arb.Recorder.
func (r *Recorder) ObserveGranted(code apiconfig.ResourceCode, granted, total int) {
	partial := strconv.FormatBool(granted < total)
	r.granted.WithLabelValues(codeLabel(code), partial).Add(float64(granted))
}

// ObserveDropped implements arb.Recorder.
func (r *Recorder) ObserveDropped(reason string) {
	r.dropped.WithLabelValues(reason).Inc()
}

// ObserveApply implements arb.Recorder.
func (r *Recorder) ObserveApply(code apiconfig.ResourceCode, success bool) {
	r.applies.WithLabelValues(codeLabel(code), strconv.FormatBool(success)).Inc()
}

func codeLabel(code apiconfig.ResourceCode) string {
	return strconv.FormatUint(uint64(code), 10)
}
