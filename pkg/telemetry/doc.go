// Package telemetry provides logging, tracing and metrics for the wareform CLI.
//
// # Logging
//
// Logger wraps zerolog. Library packages take a plain zerolog.Logger, so the
// CLI hands them Logger.Zerolog() or a component child:
//
//	tel, err := telemetry.NewTelemetry(ctx, cfg)
//	backend := state.NewLocalBackend(path, tel.Logger.Zerolog())
//
// # Tracing
//
// Each pipeline stage runs inside a span (config.load, plan.diff,
// policy.evaluate, render.plan, state.apply). Exporters are none (default),
// stdout (written to stderr) and otlp (gRPC):
//
//	op := telemetry.StartOperation(ctx, telemetry.SpanPlanDiff)
//	plan := engine.Diff(current, desired)
//	op.SetAttributes(telemetry.AttrActionCount.Int(len(plan)))
//	op.End(nil)
//
// # Metrics
//
// Counters and histograms live on a private Prometheus registry. A CLI run
// is too short to be scraped, so the registry is written once at Shutdown
// to the textfile configured with --metrics-file or WAREFORM_METRICS_FILE,
// for the node exporter textfile collector:
//
//	wareform_plan_actions_total{action,resource_kind}
//	wareform_policy_violations_total{policy,severity}
//	wareform_applies_total{status}
//	wareform_managed_resources{resource_kind}
//	wareform_stage_duration_seconds{stage}
package telemetry
