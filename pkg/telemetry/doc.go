// Package telemetry provides logging, tracing, metrics and event publishing
// for specification resolution and artifact installation.
//
// # Architecture
//
// Telemetry bundles four independent parts:
//
//  1. Logger wraps zerolog with resolution and location field helpers.
//  2. Tracer starts OpenTelemetry spans, exported over OTLP or to stdout.
//  3. Metrics keeps Prometheus counters and histograms in a private registry.
//  4. EventPublisher fans resolution and lifecycle events out to subscribers.
//
// Components receive a *Telemetry and must tolerate nil. Every accessor and
// record method is safe to call on a nil receiver, so tests can pass nil.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Level = "debug"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	if srv := tel.Metrics.NewMetricsServer(); srv != nil {
//	    go srv.ListenAndServe()
//	}
//
// # Operations
//
// StartOperation opens a span and starts a timer. End records the outcome on
// the span; callers record metrics with the timer's duration:
//
//	op := tel.StartOperation(ctx, "lifecycle.install",
//	    telemetry.AttrLocation.String(location))
//	err := runtime.Install(op.Ctx, location, verify)
//	op.End(err)
//	tel.MetricsOrNil().RecordTransition("install", status, op.Timer.Duration())
//
// # Metrics
//
// The following series are exported under the configured namespace:
//
//	resolutions_total{scheme,status}
//	resolution_duration_seconds{scheme}
//	artifacts_resolved_total{scheme}
//	lifecycle_transitions_total{transition,status}
//	install_duration_seconds{transition}
//	policy_violations_total{policy,severity}
//	errors_by_class_total{class}
//	config_reloads_total{status}
//
// # Events
//
// Events carry a type such as artifact.installed or policy.violation, a level
// and optional resolution and location fields. Subscribers may install a
// filter:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    alert(e)
//	}, telemetry.FilterByLevel(telemetry.EventLevelError))
//
// With EnableAsync set, events are buffered and delivered by a background
// goroutine; a full buffer drops the event and Publish reports it. Shutdown
// drains the buffer.
package telemetry
