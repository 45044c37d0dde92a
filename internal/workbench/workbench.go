// Package workbench builds Kubeflow Notebook workbenches and observes
// their lifecycle. The Notebook CRD is owned by the workbenches
// operator; its controller runs one pod per notebook.
package workbench

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

const (
	// stoppedAnnotation makes the controller scale the notebook pod
	// away; removing it restarts the notebook.
	stoppedAnnotation = "kubeflow-resource-stopped"

	nameLabel = "notebook-name"
)

// NotebookSpec describes a workbench notebook to create.
type NotebookSpec struct {
	Name      string
	Namespace string
	Image     string
}

// BuildNotebook assembles the Notebook object.
func BuildNotebook(spec NotebookSpec) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kubeflow.org/v1",
		"kind":       "Notebook",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
		},
		"spec": map[string]interface{}{
			"template": map[string]interface{}{
				"spec": map[string]interface{}{
					"containers": []interface{}{
						map[string]interface{}{
							"name":  spec.Name,
							"image": spec.Image,
							"ports": []interface{}{
								map[string]interface{}{"containerPort": int64(8888), "protocol": "TCP"},
							},
						},
					},
				},
			},
		},
	}}
}

// WaitForRunning waits until the notebook pod is Ready.
func WaitForRunning(ctx context.Context, kube kubernetes.Interface, namespace, name string, cfg wait.Config) error {
	_, err := resources.WaitForPodsReady(ctx, kube, namespace, nameLabel+"="+name, 1, cfg)
	return err
}

// SetStopped annotates the notebook stopped or removes the annotation
// to restart it.
func SetStopped(ctx context.Context, dyn dynamic.Interface, namespace, name string, stopped bool) error {
	nb, err := resources.Get(ctx, dyn, resources.NotebookGVR, namespace, name)
	if err != nil {
		return err
	}
	annotations := nb.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	if stopped {
		annotations[stoppedAnnotation] = time.Now().UTC().Format(time.RFC3339)
	} else {
		delete(annotations, stoppedAnnotation)
	}
	nb.SetAnnotations(annotations)

	_, err = dyn.Resource(resources.NotebookGVR).Namespace(namespace).Update(ctx, nb, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to update stop annotation on notebook %s/%s: %w", namespace, name, err)
	}
	return nil
}

// WaitForStopped waits until no notebook pods remain.
func WaitForStopped(ctx context.Context, kube kubernetes.Interface, namespace, name string, cfg wait.Config) error {
	what := fmt.Sprintf("notebook %s/%s pods to terminate", namespace, name)
	return wait.For(ctx, what, cfg, func(ctx context.Context) (bool, error) {
		pods, err := resources.ListPods(ctx, kube, namespace, nameLabel+"="+name)
		if err != nil {
			return false, err
		}
		return len(pods) == 0, nil
	})
}
