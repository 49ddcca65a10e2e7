package transform

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/footprint-studio/styleflow/transform"

// instruments 封装 OTel tracer 与 meter
type instruments struct {
	tracer  trace.Tracer
	active  metric.Int64UpDownCounter
	retries metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	inst := instruments{tracer: tp.Tracer(instrumentationName)}

	// 创建失败时退化为 noop 计数器
	var err error
	inst.active, err = meter.Int64UpDownCounter("transform.active",
		metric.WithDescription("Transformations currently in flight"),
		metric.WithUnit("{transform}"))
	if err != nil {
		inst.active = nil
	}
	inst.retries, err = meter.Int64Counter("transform.retry.total",
		metric.WithDescription("Backend retries after a failed attempt"),
		metric.WithUnit("{retry}"))
	if err != nil {
		inst.retries = nil
	}
	return inst
}

func (i instruments) addActive(ctx context.Context, delta int64, style string) {
	if i.active != nil {
		i.active.Add(ctx, delta, metric.WithAttributes(attribute.String("style", style)))
	}
}

func (i instruments) addRetry(ctx context.Context, provider string) {
	if i.retries != nil {
		i.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
}
