// Package serving builds and observes KServe serving resources:
// ServingRuntime, InferenceService and LLMInferenceService. The CRDs
// are owned by the KServe operator; this package only assembles specs
// and reads status.
package serving

import (
	"context"
	"fmt"
	"net/url"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// Deployment modes understood by the KServe controller.
const (
	RawDeployment = "RawDeployment"
	Serverless    = "Serverless"
	ModelMesh     = "ModelMesh"
)

const (
	deploymentModeAnnotation = "serving.kserve.io/deploymentMode"
	stopAnnotation           = "serving.kserve.io/stop"
	kueueQueueLabel          = "kueue.x-k8s.io/queue-name"
	isvcLabel                = "serving.kserve.io/inferenceservice"
)

// RuntimeSpec describes a vLLM ServingRuntime to create.
type RuntimeSpec struct {
	Name      string
	Namespace string
	Image     string
	Args      []string
}

// BuildServingRuntime assembles the ServingRuntime object.
func BuildServingRuntime(spec RuntimeSpec) *unstructured.Unstructured {
	args := spec.Args
	if len(args) == 0 {
		args = []string{"--model=/mnt/models", "--served-model-name={{.Name}}"}
	}
	argList := make([]interface{}, 0, len(args))
	for _, a := range args {
		argList = append(argList, a)
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "serving.kserve.io/v1alpha1",
		"kind":       "ServingRuntime",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
		},
		"spec": map[string]interface{}{
			"supportedModelFormats": []interface{}{
				map[string]interface{}{"name": "vLLM", "autoSelect": true},
			},
			"multiModel": false,
			"containers": []interface{}{
				map[string]interface{}{
					"name":  "kserve-container",
					"image": spec.Image,
					"args":  argList,
					"ports": []interface{}{
						map[string]interface{}{"containerPort": int64(8080), "protocol": "TCP"},
					},
				},
			},
		},
	}}
}

// ServiceSpec describes an InferenceService to create.
type ServiceSpec struct {
	Name      string
	Namespace string

	// RuntimeName pins a ServingRuntime; empty lets KServe auto-select
	// one for the model format.
	RuntimeName string

	// ModelFormat defaults to vLLM.
	ModelFormat string

	DeploymentMode string

	// StorageURI locates the model, "s3://bucket/path" or
	// "oci://registry/modelcar:tag".
	StorageURI string

	// StorageKey names the S3 credentials secret; ignored for oci://.
	StorageKey string

	MinReplicas *int64
	MaxReplicas *int64

	// KueueQueue, when set, labels the service for Kueue admission.
	KueueQueue string

	// CPURequest and MemoryRequest set identical requests and limits
	// on the predictor container, making quota consumption exact for
	// admission tests.
	CPURequest    string
	MemoryRequest string

	// External exposes the predictor outside the cluster.
	External bool
}

// BuildInferenceService assembles the InferenceService object.
func BuildInferenceService(spec ServiceSpec) *unstructured.Unstructured {
	mode := spec.DeploymentMode
	if mode == "" {
		mode = RawDeployment
	}

	labels := map[string]interface{}{}
	if spec.KueueQueue != "" {
		labels[kueueQueueLabel] = spec.KueueQueue
	}
	if spec.External && mode == RawDeployment {
		labels["networking.kserve.io/visibility"] = "exposed"
	}

	format := spec.ModelFormat
	if format == "" {
		format = "vLLM"
	}
	model := map[string]interface{}{
		"modelFormat": map[string]interface{}{"name": format},
		"storageUri":  spec.StorageURI,
	}
	if spec.RuntimeName != "" {
		model["runtime"] = spec.RuntimeName
	}
	if spec.StorageKey != "" {
		model["storage"] = map[string]interface{}{"key": spec.StorageKey}
	}
	if spec.CPURequest != "" || spec.MemoryRequest != "" {
		quantities := map[string]interface{}{}
		if spec.CPURequest != "" {
			quantities["cpu"] = spec.CPURequest
		}
		if spec.MemoryRequest != "" {
			quantities["memory"] = spec.MemoryRequest
		}
		model["resources"] = map[string]interface{}{
			"requests": quantities,
			"limits":   quantities,
		}
	}

	predictor := map[string]interface{}{"model": model}
	if spec.MinReplicas != nil {
		predictor["minReplicas"] = *spec.MinReplicas
	}
	if spec.MaxReplicas != nil {
		predictor["maxReplicas"] = *spec.MaxReplicas
	}

	obj := map[string]interface{}{
		"apiVersion": "serving.kserve.io/v1beta1",
		"kind":       "InferenceService",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
			"annotations": map[string]interface{}{
				deploymentModeAnnotation: mode,
			},
		},
		"spec": map[string]interface{}{
			"predictor": predictor,
		},
	}
	if len(labels) > 0 {
		obj["metadata"].(map[string]interface{})["labels"] = labels
	}
	return &unstructured.Unstructured{Object: obj}
}

// LLMServiceSpec describes an LLMInferenceService.
type LLMServiceSpec struct {
	Name       string
	Namespace  string
	ModelURI   string
	ModelName  string
	Replicas   *int64
	KueueQueue string
}

// BuildLLMInferenceService assembles the LLMInferenceService object
// served through the inference gateway.
func BuildLLMInferenceService(spec LLMServiceSpec) *unstructured.Unstructured {
	meta := map[string]interface{}{
		"name":      spec.Name,
		"namespace": spec.Namespace,
	}
	if spec.KueueQueue != "" {
		meta["labels"] = map[string]interface{}{kueueQueueLabel: spec.KueueQueue}
	}

	s := map[string]interface{}{
		"model": map[string]interface{}{
			"uri":  spec.ModelURI,
			"name": spec.ModelName,
		},
		"router": map[string]interface{}{
			"route":   map[string]interface{}{},
			"gateway": map[string]interface{}{},
		},
	}
	if spec.Replicas != nil {
		s["replicas"] = *spec.Replicas
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "serving.kserve.io/v1alpha1",
		"kind":       "LLMInferenceService",
		"metadata":   meta,
		"spec":       s,
	}}
}

// WaitForReady waits for the InferenceService Ready condition and for
// its predictor deployment to have all replicas available.
func WaitForReady(ctx context.Context, dyn dynamic.Interface, kube kubernetes.Interface, namespace, name string, cfg wait.Config) (*unstructured.Unstructured, error) {
	isvc, err := resources.WaitForCondition(ctx, dyn, resources.InferenceServiceGVR, namespace, name, "Ready", "True", cfg)
	if err != nil {
		return nil, err
	}
	if err := waitForPredictorReplicas(ctx, kube, namespace, name, cfg); err != nil {
		return nil, err
	}
	return isvc, nil
}

func waitForPredictorReplicas(ctx context.Context, kube kubernetes.Interface, namespace, name string, cfg wait.Config) error {
	selector := fmt.Sprintf("%s=%s", isvcLabel, name)
	what := fmt.Sprintf("predictor deployment of %s/%s to have available replicas", namespace, name)

	return wait.For(ctx, what, cfg, func(ctx context.Context) (bool, error) {
		list, err := kube.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			return false, err
		}
		if len(list.Items) == 0 {
			return false, fmt.Errorf("no predictor deployment found for %s/%s", namespace, name)
		}
		for i := range list.Items {
			if !deploymentReady(&list.Items[i]) {
				return false, nil
			}
		}
		return true, nil
	})
}

func deploymentReady(d *appsv1.Deployment) bool {
	want := int32(1)
	if d.Spec.Replicas != nil {
		want = *d.Spec.Replicas
	}
	return d.Status.AvailableReplicas >= want
}

// URL resolves the inference endpoint from the service status:
// status.url for raw deployments, the predictor component URL for
// serverless ones.
func URL(isvc *unstructured.Unstructured) (*url.URL, error) {
	if raw, found, _ := unstructured.NestedString(isvc.Object, "status", "url"); found && raw != "" {
		return url.Parse(raw)
	}
	if raw, found, _ := unstructured.NestedString(isvc.Object, "status", "components", "predictor", "url"); found && raw != "" {
		return url.Parse(raw)
	}
	return nil, fmt.Errorf("inference service %s has no URL in status", isvc.GetName())
}

// Stop annotates the service stopped (scales the predictor down) or
// removes the annotation to resume.
func Stop(ctx context.Context, dyn dynamic.Interface, namespace, name string, stopped bool) error {
	isvc, err := resources.Get(ctx, dyn, resources.InferenceServiceGVR, namespace, name)
	if err != nil {
		return err
	}
	annotations := isvc.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	if stopped {
		annotations[stopAnnotation] = "true"
	} else {
		delete(annotations, stopAnnotation)
	}
	isvc.SetAnnotations(annotations)

	_, err = dyn.Resource(resources.InferenceServiceGVR).Namespace(namespace).Update(ctx, isvc, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to update stop annotation on %s/%s: %w", namespace, name, err)
	}
	return nil
}

// WaitForPredictorScaledTo waits until the predictor deployment
// reports exactly want replicas, used by stop/resume and
// scale-to-zero tests.
func WaitForPredictorScaledTo(ctx context.Context, kube kubernetes.Interface, namespace, name string, want int32, cfg wait.Config) error {
	selector := fmt.Sprintf("%s=%s", isvcLabel, name)
	what := fmt.Sprintf("predictor of %s/%s to scale to %d replicas", namespace, name, want)
	if cfg.Timeout == 0 {
		cfg.Timeout = 6 * time.Minute
	}

	return wait.For(ctx, what, cfg, func(ctx context.Context) (bool, error) {
		list, err := kube.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil || len(list.Items) == 0 {
			return false, err
		}
		for i := range list.Items {
			if list.Items[i].Status.Replicas != want {
				return false, nil
			}
		}
		return true, nil
	})
}
