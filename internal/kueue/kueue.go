// Package kueue builds Kueue admission resources and observes workload
// admission for queued inference services.
package kueue

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
	// QueueLabel marks a pod or inference service for admission by a
	// LocalQueue.
	QueueLabel = "kueue.x-k8s.io/queue-name"

	// AdmissionGate is the scheduling gate Kueue places on pods it has
	// not admitted yet.
	AdmissionGate = "kueue.x-k8s.io/admission"

	// AdmittedCondition is set on a Workload once quota is reserved and
	// all admission checks pass.
	AdmittedCondition = "Admitted"
)

// ResourceQuota is one resource line of a ClusterQueue flavor.
type ResourceQuota struct {
	Name         string
	NominalQuota string
}

// BuildResourceFlavor assembles a cluster-scoped ResourceFlavor with an
// empty spec, matching all nodes.
func BuildResourceFlavor(name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kueue.x-k8s.io/v1beta1",
		"kind":       "ResourceFlavor",
		"metadata": map[string]interface{}{
			"name": name,
		},
		"spec": map[string]interface{}{},
	}}
}

// BuildClusterQueue assembles a ClusterQueue with a single resource
// group covering the given flavor and quotas. The namespace selector is
// empty so every namespace may submit.
func BuildClusterQueue(name, flavorName string, quotas []ResourceQuota) *unstructured.Unstructured {
	covered := make([]interface{}, 0, len(quotas))
	flavorQuotas := make([]interface{}, 0, len(quotas))
	for _, q := range quotas {
		covered = append(covered, q.Name)
		flavorQuotas = append(flavorQuotas, map[string]interface{}{
			"name":         q.Name,
			"nominalQuota": q.NominalQuota,
		})
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kueue.x-k8s.io/v1beta1",
		"kind":       "ClusterQueue",
		"metadata": map[string]interface{}{
			"name": name,
		},
		"spec": map[string]interface{}{
			"namespaceSelector": map[string]interface{}{},
			"resourceGroups": []interface{}{
				map[string]interface{}{
					"coveredResources": covered,
					"flavors": []interface{}{
						map[string]interface{}{
							"name":      flavorName,
							"resources": flavorQuotas,
						},
					},
				},
			},
		},
	}}
}

// BuildLocalQueue assembles a namespaced LocalQueue pointing at a
// ClusterQueue.
func BuildLocalQueue(name, namespace, clusterQueue string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kueue.x-k8s.io/v1beta1",
		"kind":       "LocalQueue",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]interface{}{
			"clusterQueue": clusterQueue,
		},
	}}
}

// WorkloadForOwner finds the Workload Kueue created for the given owner
// name, matching by owner reference.
func WorkloadForOwner(ctx context.Context, dyn dynamic.Interface, namespace, ownerName string) (*unstructured.Unstructured, error) {
	list, err := dyn.Resource(resources.WorkloadGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	for i := range list.Items {
		for _, ref := range list.Items[i].GetOwnerReferences() {
			if ref.Name == ownerName {
				return &list.Items[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no workload owned by %q in namespace %s", ownerName, namespace)
}

// WaitForWorkloadAdmitted waits until the owner's Workload carries
// Admitted=True.
func WaitForWorkloadAdmitted(ctx context.Context, dyn dynamic.Interface, namespace, ownerName string, cfg wait.Config) (*unstructured.Unstructured, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return wait.ForValue(ctx, fmt.Sprintf("workload for %s/%s admitted", namespace, ownerName), cfg,
		func(ctx context.Context) (*unstructured.Unstructured, bool, error) {
			wl, err := WorkloadForOwner(ctx, dyn, namespace, ownerName)
			if err != nil {
				return nil, false, err
			}
			ok, err := resources.HasCondition(wl, AdmittedCondition, "True")
			return wl, ok, err
		})
}

// PodsGatedByAdmission reports which of the labeled pods still carry
// the Kueue admission scheduling gate.
func PodsGatedByAdmission(ctx context.Context, kube kubernetes.Interface, namespace, labelSelector string) ([]string, error) {
	pods, err := resources.ListPods(ctx, kube, namespace, labelSelector)
	if err != nil {
		return nil, err
	}

	var gated []string
	for _, pod := range pods {
		for _, gate := range pod.Spec.SchedulingGates {
			if gate.Name == AdmissionGate {
				gated = append(gated, pod.Name)
				break
			}
		}
	}
	return gated, nil
}

// FlavorUsage returns the reserved amount of a resource on a flavor
// from the ClusterQueue's status, as the raw quantity string.
func FlavorUsage(cq *unstructured.Unstructured, flavorName, resourceName string) (string, error) {
	reservations, found, err := unstructured.NestedSlice(cq.Object, "status", "flavorsReservation")
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("clusterqueue %s has no flavorsReservation status", cq.GetName())
	}

	for _, r := range reservations {
		flavor, ok := r.(map[string]interface{})
		if !ok || flavor["name"] != flavorName {
			continue
		}
		res, _, _ := unstructured.NestedSlice(flavor, "resources")
		for _, entry := range res {
			m, ok := entry.(map[string]interface{})
			if !ok || m["name"] != resourceName {
				continue
			}
			switch v := m["total"].(type) {
			case string:
				return v, nil
			case int64:
				return fmt.Sprintf("%d", v), nil
			case float64:
				return fmt.Sprintf("%g", v), nil
			}
		}
	}
	return "", fmt.Errorf("no reservation for flavor %q resource %q on clusterqueue %s", flavorName, resourceName, cq.GetName())
}
