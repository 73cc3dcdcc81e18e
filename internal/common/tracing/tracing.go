package tracing

import (
	"fmt"
	"io"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// InitTracer 初始化Jaeger Tracer
//
// endpoint 形如 http://host:14268/api/traces 时走 collector，
// 否则按 host:port 当作 agent 地址。
func InitTracer(serviceName, endpoint string, sampler float64) (opentracing.Tracer, io.Closer, error) {
	reporter := &jaegercfg.ReporterConfig{
		LogSpans: true,
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		reporter.CollectorEndpoint = endpoint
	} else {
		reporter.LocalAgentHostPort = endpoint
	}

	samplerCfg := &jaegercfg.SamplerConfig{
		Type:  jaeger.SamplerTypeConst,
		Param: sampler,
	}
	if sampler > 0 && sampler < 1 {
		samplerCfg.Type = jaeger.SamplerTypeProbabilistic
	}

	cfg := &jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler:     samplerCfg,
		Reporter:    reporter,
	}

	tracer, closer, err := cfg.NewTracer(jaegercfg.Logger(jaeger.StdLogger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init jaeger tracer: %w", err)
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, closer, nil
}
