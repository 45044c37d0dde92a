package resources

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/opendatahub-io/odh-e2e/internal/logger"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// Custom resource lifecycle helpers over the dynamic client. The suite
// never owns CRD schemas; everything here works on unstructured
// objects and reads operator-written status.

// Create creates the object under its GVR and returns the server copy.
func Create(ctx context.Context, dyn dynamic.Interface, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	created, err := dyn.Resource(gvr).Namespace(obj.GetNamespace()).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s/%s: %w", gvr.Resource, obj.GetNamespace(), obj.GetName(), err)
	}
	logger.Log.Info("created resource", "gvr", gvr.Resource, "namespace", created.GetNamespace(), "name", created.GetName())
	return created, nil
}

// Get fetches the named object.
func Get(ctx context.Context, dyn dynamic.Interface, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error) {
	return dyn.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
}

// Delete removes the object and waits until it is gone. Absent objects
// are ignored so teardown is idempotent.
func Delete(ctx context.Context, dyn dynamic.Interface, gvr schema.GroupVersionResource, namespace, name string) error {
	err := dyn.Resource(gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s %s/%s: %w", gvr.Resource, namespace, name, err)
	}

	return wait.For(ctx, fmt.Sprintf("%s %s/%s to be deleted", gvr.Resource, namespace, name), wait.Config{Timeout: 4 * time.Minute}, func(ctx context.Context) (bool, error) {
		_, err := Get(ctx, dyn, gvr, namespace, name)
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	})
}

// Condition is one entry of a resource's status.conditions list.
type Condition struct {
	Type    string
	Status  string
	Reason  string
	Message string
}

// Conditions extracts status.conditions from an unstructured object.
func Conditions(obj *unstructured.Unstructured) ([]Condition, error) {
	raw, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil {
		return nil, fmt.Errorf("failed to read status.conditions of %s: %w", obj.GetName(), err)
	}
	if !found {
		return nil, nil
	}

	conds := make([]Condition, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		c := Condition{}
		c.Type, _, _ = unstructured.NestedString(m, "type")
		c.Status, _, _ = unstructured.NestedString(m, "status")
		c.Reason, _, _ = unstructured.NestedString(m, "reason")
		c.Message, _, _ = unstructured.NestedString(m, "message")
		conds = append(conds, c)
	}
	return conds, nil
}

// HasCondition reports whether the object carries the given condition
// type with the given status.
func HasCondition(obj *unstructured.Unstructured, condType, status string) (bool, error) {
	conds, err := Conditions(obj)
	if err != nil {
		return false, err
	}
	for _, c := range conds {
		if c.Type == condType {
			return c.Status == status, nil
		}
	}
	return false, nil
}

// WaitForCondition polls the object until status.conditions contains
// condType with the wanted status.
func WaitForCondition(ctx context.Context, dyn dynamic.Interface, gvr schema.GroupVersionResource, namespace, name, condType, status string, cfg wait.Config) (*unstructured.Unstructured, error) {
	what := fmt.Sprintf("%s %s/%s condition %s=%s", gvr.Resource, namespace, name, condType, status)
	return wait.ForValue(ctx, what, cfg, func(ctx context.Context) (*unstructured.Unstructured, bool, error) {
		obj, err := Get(ctx, dyn, gvr, namespace, name)
		if err != nil {
			return nil, false, err
		}
		ok, err := HasCondition(obj, condType, status)
		if err != nil {
			return nil, false, err
		}
		return obj, ok, nil
	})
}

// WaitForStatusField polls until the given dotted status field equals
// want, e.g. ("state", "Complete") for LMEvalJob.
func WaitForStatusField(ctx context.Context, dyn dynamic.Interface, gvr schema.GroupVersionResource, namespace, name string, want string, cfg wait.Config, fields ...string) (*unstructured.Unstructured, error) {
	path := append([]string{"status"}, fields...)
	what := fmt.Sprintf("%s %s/%s %v=%s", gvr.Resource, namespace, name, fields, want)
	return wait.ForValue(ctx, what, cfg, func(ctx context.Context) (*unstructured.Unstructured, bool, error) {
		obj, err := Get(ctx, dyn, gvr, namespace, name)
		if err != nil {
			return nil, false, err
		}
		got, _, err := unstructured.NestedString(obj.Object, path...)
		if err != nil {
			return nil, false, err
		}
		return obj, got == want, nil
	})
}
