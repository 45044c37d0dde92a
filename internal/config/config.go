// Package config resolves suite configuration from the environment.
// Everything has a default that matches a stock cluster layout so a
// plain `go test -tags e2e ./test/e2e/...` works against a kubeconfig.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries the endpoints and namespaces the suites operate on.
type Config struct {
	// ApplicationsNamespace is where the platform operators deploy
	// their services (TrustyAI operator configmap, etc.).
	ApplicationsNamespace string

	// PrometheusURL is the base URL of the cluster monitoring stack
	// used for model metric checks. Empty disables metric assertions.
	PrometheusURL string

	// MaaSBaseURL is the Model-as-a-Service API base, e.g.
	// "https://maas.apps.example.com/maas-api". Empty skips MaaS tests.
	MaaSBaseURL string

	// S3 settings for staging model artifacts.
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// ServingRuntimeImage is the vLLM runtime image deployed by the
	// serving suites.
	ServingRuntimeImage string

	// ModelCarImage is an oci:// modelcar reference holding a servable
	// model. Empty skips the modelcar serving tests.
	ModelCarImage string

	// WorkbenchImage is the notebook image the workbench suite starts.
	WorkbenchImage string

	// SkipCleanup leaves test resources in place for debugging.
	SkipCleanup bool

	// DefaultTimeout bounds most readiness waits.
	DefaultTimeout time.Duration
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		ApplicationsNamespace: getEnvOrDefault("ODH_APPLICATIONS_NAMESPACE", "opendatahub"),
		PrometheusURL:         os.Getenv("PROMETHEUS_URL"),
		MaaSBaseURL:           os.Getenv("MAAS_BASE_URL"),
		S3Endpoint:            getEnvOrDefault("MODEL_S3_ENDPOINT", "http://minio.minio.svc.cluster.local:9000"),
		S3Bucket:              getEnvOrDefault("MODEL_S3_BUCKET", "models"),
		S3AccessKey:           getEnvOrDefault("MODEL_S3_ACCESS_KEY", "minio"),
		S3SecretKey:           getEnvOrDefault("MODEL_S3_SECRET_KEY", "minio123"),
		S3Region:              getEnvOrDefault("MODEL_S3_REGION", "us-east-1"),
		ServingRuntimeImage:   getEnvOrDefault("SERVING_RUNTIME_IMAGE", "quay.io/modh/vllm:latest"),
		ModelCarImage:         os.Getenv("MODEL_CAR_IMAGE"),
		WorkbenchImage:        getEnvOrDefault("WORKBENCH_IMAGE", "quay.io/modh/odh-minimal-notebook-container:v3"),
		SkipCleanup:           getEnvOrDefault("E2E_SKIP_CLEANUP", "false") == "true",
		DefaultTimeout:        getDurationOrDefault("E2E_DEFAULT_TIMEOUT", 10*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// Bare numbers are treated as seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
