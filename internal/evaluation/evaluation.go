// Package evaluation drives TrustyAI LMEvalJob runs: CR construction,
// completion waits and score extraction from the job results.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"

	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// CompleteState is the terminal success state of an LMEvalJob.
const CompleteState = "Complete"

// ModelArg is one name/value pair passed to the evaluation harness.
type ModelArg struct {
	Name  string
	Value string
}

// JobSpec describes an LMEvalJob.
type JobSpec struct {
	Name      string
	Namespace string

	// Model selects the harness backend: "hf" for in-pod models,
	// "local-completions" for a served endpoint.
	Model     string
	ModelArgs []ModelArg

	TaskNames []string

	// Limit restricts each task to a fraction or count of samples,
	// e.g. "0.01". Empty runs the full task.
	Limit string

	LogSamples         bool
	AllowOnline        bool
	AllowCodeExecution bool
}

// BuildJob assembles the LMEvalJob object.
func BuildJob(spec JobSpec) *unstructured.Unstructured {
	args := make([]interface{}, 0, len(spec.ModelArgs))
	for _, a := range spec.ModelArgs {
		args = append(args, map[string]interface{}{"name": a.Name, "value": a.Value})
	}
	tasks := make([]interface{}, 0, len(spec.TaskNames))
	for _, t := range spec.TaskNames {
		tasks = append(tasks, t)
	}

	s := map[string]interface{}{
		"model":      spec.Model,
		"taskList":   map[string]interface{}{"taskNames": tasks},
		"logSamples": spec.LogSamples,
	}
	if len(args) > 0 {
		s["modelArgs"] = args
	}
	if spec.Limit != "" {
		s["limit"] = spec.Limit
	}
	if spec.AllowOnline {
		s["allowOnline"] = true
	}
	if spec.AllowCodeExecution {
		s["allowCodeExecution"] = true
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "trustyai.opendatahub.io/v1alpha1",
		"kind":       "LMEvalJob",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
		},
		"spec": s,
	}}
}

// WaitForComplete waits for status.state == Complete. Evaluations are
// slow; the default timeout is generous.
func WaitForComplete(ctx context.Context, dyn dynamic.Interface, namespace, name string, cfg wait.Config) (*unstructured.Unstructured, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Minute
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	return resources.WaitForStatusField(ctx, dyn, resources.LMEvalJobGVR, namespace, name, CompleteState, cfg, "state")
}

// Results holds the parsed evaluation output, keyed by task name and
// then by metric (e.g. "acc,none" -> 0.73).
type Results struct {
	Scores map[string]map[string]float64
}

type rawResults struct {
	Results map[string]map[string]json.RawMessage `json:"results"`
}

// ParseResults decodes the status.results JSON document of a completed
// job. Non-numeric metric entries (aliases, stderr strings) are
// skipped.
func ParseResults(job *unstructured.Unstructured) (*Results, error) {
	raw, found, err := unstructured.NestedString(job.Object, "status", "results")
	if err != nil {
		return nil, fmt.Errorf("failed to read results of %s: %w", job.GetName(), err)
	}
	if !found || raw == "" {
		return nil, fmt.Errorf("lmevaljob %s has no results in status", job.GetName())
	}

	var decoded rawResults
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode results of %s: %w", job.GetName(), err)
	}

	out := &Results{Scores: map[string]map[string]float64{}}
	for task, metrics := range decoded.Results {
		for metric, value := range metrics {
			var f float64
			if err := json.Unmarshal(value, &f); err != nil {
				continue
			}
			if out.Scores[task] == nil {
				out.Scores[task] = map[string]float64{}
			}
			out.Scores[task][metric] = f
		}
	}
	if len(out.Scores) == 0 {
		return nil, fmt.Errorf("lmevaljob %s results contain no numeric scores", job.GetName())
	}
	return out, nil
}

// Score returns the named metric for a task.
func (r *Results) Score(task, metric string) (float64, bool) {
	m, ok := r.Scores[task]
	if !ok {
		return 0, false
	}
	v, ok := m[metric]
	return v, ok
}
