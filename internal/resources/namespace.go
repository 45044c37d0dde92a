package resources

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/opendatahub-io/odh-e2e/internal/logger"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// CreateNamespace creates a namespace with the given labels and waits
// for it to become Active. Callers own teardown via DeleteNamespace.
func CreateNamespace(ctx context.Context, kube kubernetes.Interface, name string, labels map[string]string) (*corev1.Namespace, error) {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
		},
	}
	created, err := kube.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create namespace %s: %w", name, err)
	}

	err = wait.For(ctx, fmt.Sprintf("namespace %s to become Active", name), wait.Config{Timeout: 2 * time.Minute}, func(ctx context.Context) (bool, error) {
		got, err := kube.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		return got.Status.Phase == corev1.NamespaceActive, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteNamespace deletes the namespace and waits until it is gone.
// Deleting an already-absent namespace is not an error.
func DeleteNamespace(ctx context.Context, kube kubernetes.Interface, name string) error {
	err := kube.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}

	logger.Log.Info("waiting for namespace deletion", "namespace", name)
	return wait.For(ctx, fmt.Sprintf("namespace %s to be deleted", name), wait.Config{Timeout: 4 * time.Minute}, func(ctx context.Context) (bool, error) {
		_, err := kube.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	})
}
