// Copyright 2026 The ClaimDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance backed by the global meter provider.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// Instruments are the domain counters shared by the request pipeline and the
// background workers. A zero Instruments is safe to use and records nothing.
type Instruments struct {
	rejections    metric.Int64Counter
	failOpen      metric.Int64Counter
	auditFailures metric.Int64Counter
	auditDropped  metric.Int64Counter
	touchDropped  metric.Int64Counter
}

// NewInstruments registers the domain counters on m.
func NewInstruments(m *Meter) (*Instruments, error) {
	var (
		in  Instruments
		err error
	)
	if in.rejections, err = m.CreateCounter("claimdesk.pipeline.rejections", "Requests rejected by the access pipeline"); err != nil {
		return nil, err
	}
	if in.failOpen, err = m.CreateCounter("claimdesk.ratelimit.fail_open", "Requests allowed because the rate-limit store was unavailable"); err != nil {
		return nil, err
	}
	if in.auditFailures, err = m.CreateCounter("claimdesk.audit.write_failures", "Audit rows that could not be persisted"); err != nil {
		return nil, err
	}
	if in.auditDropped, err = m.CreateCounter("claimdesk.audit.dropped", "Audit rows dropped because the queue was full"); err != nil {
		return nil, err
	}
	if in.touchDropped, err = m.CreateCounter("claimdesk.apikey.touch_dropped", "API key last-used updates dropped"); err != nil {
		return nil, err
	}
	return &in, nil
}

// Rejection counts a pipeline rejection by stage and kind.
func (in *Instruments) Rejection(ctx context.Context, stage, kind string) {
	if in == nil || in.rejections == nil {
		return
	}
	in.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}

// FailOpen counts a rate-limit decision taken without the counter store.
func (in *Instruments) FailOpen(ctx context.Context) {
	if in == nil || in.failOpen == nil {
		return
	}
	in.failOpen.Add(ctx, 1)
}

// AuditWriteFailed counts an audit row that failed to persist.
func (in *Instruments) AuditWriteFailed(ctx context.Context) {
	if in == nil || in.auditFailures == nil {
		return
	}
	in.auditFailures.Add(ctx, 1)
}

// AuditDropped counts an audit row rejected by a full queue.
func (in *Instruments) AuditDropped(ctx context.Context) {
	if in == nil || in.auditDropped == nil {
		return
	}
	in.auditDropped.Add(ctx, 1)
}

// TouchDropped counts a skipped API key last-used update.
func (in *Instruments) TouchDropped(ctx context.Context) {
	if in == nil || in.touchDropped == nil {
		return
	}
	in.touchDropped.Add(ctx, 1)
}
