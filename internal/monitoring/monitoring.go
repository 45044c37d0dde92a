// Package monitoring queries Prometheus for the vLLM serving metrics
// the suites assert on: request rates, token statistics, and latency
// averages per served model.
package monitoring

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/opendatahub-io/odh-e2e/internal/logger"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// vLLM metric names scraped from model server /metrics endpoints.
const (
	VLLMNumRequestRunning            = "vllm:num_requests_running"
	VLLMRequestSuccessTotal          = "vllm:request_success_total"
	VLLMRequestPromptTokensSum       = "vllm:request_prompt_tokens_sum"
	VLLMRequestPromptTokensCount     = "vllm:request_prompt_tokens_count"
	VLLMRequestGenerationTokensSum   = "vllm:request_generation_tokens_sum"
	VLLMRequestGenerationTokensCount = "vllm:request_generation_tokens_count"
	VLLMTimeToFirstTokenSecondsSum   = "vllm:time_to_first_token_seconds_sum"
	VLLMTimeToFirstTokenSecondsCount = "vllm:time_to_first_token_seconds_count"
	VLLMTimePerOutputTokenSecondsSum = "vllm:time_per_output_token_seconds_sum"
	VLLMTimePerOutputTokenSecondsCnt = "vllm:time_per_output_token_seconds_count"
)

const (
	LabelModelName = "model_name"
	LabelNamespace = "namespace"
)

// Querier is the slice of the Prometheus v1 API the suites use.
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error)
}

type bearerRoundTripper struct {
	token string
	next  http.RoundTripper
}

func (rt *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.token != "" {
		req.Header.Set("Authorization", "Bearer "+rt.token)
	}
	return rt.next.RoundTrip(req)
}

// NewAPI builds a Prometheus query API against the given URL. The
// token authenticates against openshift-monitoring's thanos-querier;
// leave it empty for an unauthenticated Prometheus.
func NewAPI(promURL, token string) (promv1.API, error) {
	client, err := promapi.NewClient(promapi.Config{
		Address: promURL,
		RoundTripper: &bearerRoundTripper{
			token: token,
			next:  promapi.DefaultRoundTripper,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client for %s: %w", promURL, err)
	}
	return promv1.NewAPI(client), nil
}

// QueryScalar performs a Prometheus query and extracts the first
// vector sample as a float. Empty or non-vector results yield zero.
func QueryScalar(ctx context.Context, promAPI Querier, query string, metricName string) (float64, error) {
	val, warn, err := promAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0.0, fmt.Errorf("failed to query Prometheus for %s: %w", metricName, err)
	}

	if warn != nil {
		logger.Log.Warn("Prometheus warnings", "metric", metricName, "warnings", warn)
	}

	if val.Type() != model.ValVector {
		logger.Log.Debug("Prometheus query returned non-vector type", "metric", metricName, "type", val.Type().String())
		return 0.0, nil
	}

	vec := val.(model.Vector)
	resultVal := 0.0
	if len(vec) > 0 {
		resultVal = float64(vec[0].Value)
		FixValue(&resultVal)
	}

	return resultVal, nil
}

// queryWithFallback tries the namespaced query first and falls back to
// the namespace-free form when it returns zero, covering deployments
// whose metric relabeling drops the namespace label.
func queryWithFallback(ctx context.Context, promAPI Querier, queryWithNS, queryWithoutNS, metricName string) (float64, error) {
	result, err := QueryScalar(ctx, promAPI, queryWithNS, metricName)
	if err != nil {
		return 0.0, err
	}
	if result != 0.0 {
		return result, nil
	}

	logger.Log.Debug("Primary query returned zero, trying fallback without namespace", "metric", metricName)
	return QueryScalar(ctx, promAPI, queryWithoutNS, metricName)
}

// ModelLoad aggregates the serving metrics for one model.
type ModelLoad struct {
	// ArrivalRate is successful requests per minute.
	ArrivalRate float64

	AvgInputTokens  float64
	AvgOutputTokens float64

	// TTFTAverage and ITLAverage are in milliseconds.
	TTFTAverage float64
	ITLAverage  float64
}

func rateQuery(metric, modelName, namespace string) (string, string) {
	withNS := fmt.Sprintf(`sum(rate(%s{%s="%s",%s="%s"}[1m]))`,
		metric, LabelModelName, modelName, LabelNamespace, namespace)
	withoutNS := fmt.Sprintf(`sum(rate(%s{%s="%s"}[1m]))`,
		metric, LabelModelName, modelName)
	return withNS, withoutNS
}

func ratioQuery(sumMetric, countMetric, modelName, namespace string) (string, string) {
	sumNS, sumNoNS := rateQuery(sumMetric, modelName, namespace)
	cntNS, cntNoNS := rateQuery(countMetric, modelName, namespace)
	return sumNS + "/" + cntNS, sumNoNS + "/" + cntNoNS
}

// CollectModelLoad gathers arrival rate, token averages, and latency
// averages for a served model.
func CollectModelLoad(ctx context.Context, promAPI Querier, modelName, namespace string) (*ModelLoad, error) {
	load := &ModelLoad{}

	arrivalNS, arrivalNoNS := rateQuery(VLLMRequestSuccessTotal, modelName, namespace)
	arrival, err := queryWithFallback(ctx, promAPI, arrivalNS, arrivalNoNS, "ArrivalRate")
	if err != nil {
		return nil, err
	}
	load.ArrivalRate = arrival * 60 // req/sec to req/min

	promptNS, promptNoNS := ratioQuery(VLLMRequestPromptTokensSum, VLLMRequestPromptTokensCount, modelName, namespace)
	if load.AvgInputTokens, err = queryWithFallback(ctx, promAPI, promptNS, promptNoNS, "AvgInputTokens"); err != nil {
		return nil, err
	}

	genNS, genNoNS := ratioQuery(VLLMRequestGenerationTokensSum, VLLMRequestGenerationTokensCount, modelName, namespace)
	if load.AvgOutputTokens, err = queryWithFallback(ctx, promAPI, genNS, genNoNS, "AvgOutputTokens"); err != nil {
		return nil, err
	}

	ttftNS, ttftNoNS := ratioQuery(VLLMTimeToFirstTokenSecondsSum, VLLMTimeToFirstTokenSecondsCount, modelName, namespace)
	ttft, err := queryWithFallback(ctx, promAPI, ttftNS, ttftNoNS, "TTFTAverageTime")
	if err != nil {
		return nil, err
	}
	load.TTFTAverage = ttft * 1000 // seconds to milliseconds

	itlNS, itlNoNS := ratioQuery(VLLMTimePerOutputTokenSecondsSum, VLLMTimePerOutputTokenSecondsCnt, modelName, namespace)
	itl, err := queryWithFallback(ctx, promAPI, itlNS, itlNoNS, "ITLAverage")
	if err != nil {
		return nil, err
	}
	load.ITLAverage = itl * 1000

	return load, nil
}

// MetricsAvailable reports whether fresh vLLM metrics exist for the
// model. Samples older than 5 minutes count as stale.
func MetricsAvailable(ctx context.Context, promAPI Querier, modelName, namespace string) (bool, string) {
	query := fmt.Sprintf(`%s{%s="%s",%s="%s"}`,
		VLLMNumRequestRunning, LabelModelName, modelName, LabelNamespace, namespace)

	val, _, err := promAPI.Query(ctx, query, time.Now())
	if err != nil {
		return false, fmt.Sprintf("failed to query Prometheus: %v", err)
	}
	if val.Type() != model.ValVector {
		return false, fmt.Sprintf("no vLLM metrics found for model %q in namespace %q", modelName, namespace)
	}

	vec := val.(model.Vector)
	if len(vec) == 0 {
		fallback := fmt.Sprintf(`%s{%s="%s"}`, VLLMNumRequestRunning, LabelModelName, modelName)
		val, _, err = promAPI.Query(ctx, fallback, time.Now())
		if err != nil {
			return false, fmt.Sprintf("failed to query Prometheus: %v", err)
		}
		if val.Type() == model.ValVector {
			vec = val.(model.Vector)
		}
		if len(vec) == 0 {
			return false, fmt.Sprintf("no vLLM metrics found for model %q, check the ServiceMonitor and the /metrics endpoint", modelName)
		}
	}

	for _, sample := range vec {
		age := time.Since(sample.Timestamp.Time())
		if age > 5*time.Minute {
			return false, fmt.Sprintf("vLLM metrics for model %q are stale, last update %v ago", modelName, age)
		}
	}
	return true, ""
}

// WaitForScalar polls the query until the predicate accepts its value.
func WaitForScalar(ctx context.Context, promAPI Querier, query, what string, cfg wait.Config, accept func(float64) bool) (float64, error) {
	return wait.ForValue(ctx, what, cfg, func(ctx context.Context) (float64, bool, error) {
		v, err := QueryScalar(ctx, promAPI, query, what)
		if err != nil {
			return 0, false, err
		}
		return v, accept(v), nil
	})
}

// WaitForMetricAbove polls until the query value exceeds threshold.
func WaitForMetricAbove(ctx context.Context, promAPI Querier, query, what string, threshold float64, cfg wait.Config) (float64, error) {
	return WaitForScalar(ctx, promAPI, query, what, cfg, func(v float64) bool { return v > threshold })
}

// WaitForMetricBelow polls until the query value drops below threshold.
func WaitForMetricBelow(ctx context.Context, promAPI Querier, query, what string, threshold float64, cfg wait.Config) (float64, error) {
	return WaitForScalar(ctx, promAPI, query, what, cfg, func(v float64) bool { return v < threshold })
}

// FixValue zeroes NaN and infinite samples.
func FixValue(x *float64) {
	if math.IsNaN(*x) || math.IsInf(*x, 0) {
		*x = 0
	}
}
