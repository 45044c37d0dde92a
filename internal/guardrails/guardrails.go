// Package guardrails drives the TrustyAI GuardrailsOrchestrator: CR
// construction, the detection gateway in front of an LLM, and the
// standalone detections API.
package guardrails

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// OrchestratorSpec describes a GuardrailsOrchestrator instance wired
// to a generation model and a detector configmap.
type OrchestratorSpec struct {
	Name      string
	Namespace string

	// OrchestratorConfig names the configmap with generation and
	// detector service endpoints.
	OrchestratorConfig string

	// GatewayConfig, when set, enables the detection gateway sidecar
	// with its route-to-detector mapping.
	GatewayConfig string

	Replicas int64
}

// BuildOrchestrator assembles the GuardrailsOrchestrator object.
func BuildOrchestrator(spec OrchestratorSpec) *unstructured.Unstructured {
	replicas := spec.Replicas
	if replicas == 0 {
		replicas = 1
	}

	s := map[string]interface{}{
		"orchestratorConfig": spec.OrchestratorConfig,
		"replicas":           replicas,
	}
	if spec.GatewayConfig != "" {
		s["enableGuardrailsGateway"] = true
		s["guardrailsGatewayConfig"] = spec.GatewayConfig
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "trustyai.opendatahub.io/v1alpha1",
		"kind":       "GuardrailsOrchestrator",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
		},
		"spec": s,
	}}
}

// DetectorService locates one detector endpoint.
type DetectorService struct {
	Hostname string `json:"hostname"`
	Port     int64  `json:"port"`
}

type detectorConfig struct {
	Type             string          `json:"type"`
	Service          DetectorService `json:"service"`
	ChunkerID        string          `json:"chunker_id"`
	DefaultThreshold float64         `json:"default_threshold"`
}

type orchestratorConfig struct {
	ChatGeneration struct {
		Service DetectorService `json:"service"`
	} `json:"chat_generation"`
	Detectors map[string]detectorConfig `json:"detectors"`
}

// OrchestratorConfigData renders the orchestrator configmap payload:
// the generation endpoint plus the configured detector services.
func OrchestratorConfigData(generation DetectorService, detectors map[string]DetectorService) (map[string]string, error) {
	cfg := orchestratorConfig{Detectors: map[string]detectorConfig{}}
	cfg.ChatGeneration.Service = generation
	for name, svc := range detectors {
		cfg.Detectors[name] = detectorConfig{
			Type:             "text_contents",
			Service:          svc,
			ChunkerID:        "whole_doc_chunker",
			DefaultThreshold: 0.5,
		}
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render orchestrator config: %w", err)
	}
	return map[string]string{"config.yaml": string(raw)}, nil
}

type gatewayRoute struct {
	Name      string   `json:"name"`
	Detectors []string `json:"detectors"`
}

type gatewayDetector struct {
	Name           string                 `json:"name"`
	Input          bool                   `json:"input"`
	Output         bool                   `json:"output"`
	DetectorParams map[string]interface{} `json:"detector_params,omitempty"`
}

type gatewayConfig struct {
	Orchestrator struct {
		Host string `json:"host"`
		Port int64  `json:"port"`
	} `json:"orchestrator"`
	Detectors []gatewayDetector `json:"detectors"`
	Routes    []gatewayRoute    `json:"routes"`
}

// GatewayConfigData renders the guardrails gateway configmap: named
// routes (e.g. "pii", "passthrough") mapped onto detector sets.
func GatewayConfigData(orchestratorHost string, routes map[string][]string) (map[string]string, error) {
	cfg := gatewayConfig{}
	cfg.Orchestrator.Host = orchestratorHost
	cfg.Orchestrator.Port = 8033

	seen := map[string]bool{}
	for _, detectors := range routes {
		for _, d := range detectors {
			if !seen[d] {
				seen[d] = true
				cfg.Detectors = append(cfg.Detectors, gatewayDetector{Name: d, Input: true, Output: true})
			}
		}
	}
	for name, detectors := range routes {
		cfg.Routes = append(cfg.Routes, gatewayRoute{Name: name, Detectors: detectors})
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render gateway config: %w", err)
	}
	return map[string]string{"config.yaml": string(raw)}, nil
}
