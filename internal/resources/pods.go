package resources

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// FailedPodsError reports pods that entered a terminal failure state
// while the suite was waiting for readiness.
type FailedPodsError struct {
	Namespace string
	Pods      []string
}

func (e *FailedPodsError) Error() string {
	return fmt.Sprintf("pods in namespace %s entered a failed state: %s", e.Namespace, strings.Join(e.Pods, ", "))
}

// ListPods lists pods by label selector.
func ListPods(ctx context.Context, kube kubernetes.Interface, namespace, labelSelector string) ([]corev1.Pod, error) {
	list, err := kube.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s with selector %q: %w", namespace, labelSelector, err)
	}
	return list.Items, nil
}

// WaitForPodsReady waits until at least minReady pods matching the
// selector are Ready. Pods that crash or fail outright surface as a
// FailedPodsError in the timeout.
func WaitForPodsReady(ctx context.Context, kube kubernetes.Interface, namespace, labelSelector string, minReady int, cfg wait.Config) ([]corev1.Pod, error) {
	what := fmt.Sprintf("%d ready pod(s) in %s matching %q", minReady, namespace, labelSelector)
	return wait.ForValue(ctx, what, cfg, func(ctx context.Context) ([]corev1.Pod, bool, error) {
		pods, err := ListPods(ctx, kube, namespace, labelSelector)
		if err != nil {
			return nil, false, err
		}

		if failed := failedPodNames(pods); len(failed) > 0 {
			return nil, false, &FailedPodsError{Namespace: namespace, Pods: failed}
		}

		ready := 0
		for i := range pods {
			if IsPodReady(&pods[i]) {
				ready++
			}
		}
		return pods, ready >= minReady, nil
	})
}

// IsPodReady reports whether the pod has a Ready condition with
// status True.
func IsPodReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// PodSchedulingGates returns the names of any scheduling gates still
// present on the pod. Kueue keeps gated workloads unschedulable by
// leaving its admission gate in place.
func PodSchedulingGates(pod *corev1.Pod) []string {
	gates := make([]string, 0, len(pod.Spec.SchedulingGates))
	for _, g := range pod.Spec.SchedulingGates {
		gates = append(gates, g.Name)
	}
	return gates
}

func failedPodNames(pods []corev1.Pod) []string {
	var failed []string
	for i := range pods {
		pod := &pods[i]
		if pod.Status.Phase == corev1.PodFailed {
			failed = append(failed, pod.Name)
			continue
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil && cs.State.Waiting.Reason == "CrashLoopBackOff" {
				failed = append(failed, pod.Name)
				break
			}
		}
	}
	return failed
}
