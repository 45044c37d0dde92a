package resources

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// S3Credentials describes an S3-compatible object store holding model
// artifacts.
type S3Credentials struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string
	Region    string
}

// CreateS3Secret creates the storage secret KServe storage-initializer
// containers read. The data keys are fixed by the serving runtime
// contract.
func CreateS3Secret(ctx context.Context, kube kubernetes.Interface, namespace, name string, creds S3Credentials) (*corev1.Secret, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Annotations: map[string]string{
				"serving.kserve.io/s3-endpoint":          creds.Endpoint,
				"serving.kserve.io/s3-region":            creds.Region,
				"serving.kserve.io/s3-useanoncredential": "false",
			},
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"AWS_ACCESS_KEY_ID":     creds.AccessKey,
			"AWS_SECRET_ACCESS_KEY": creds.SecretKey,
			"AWS_S3_BUCKET":         creds.Bucket,
			"AWS_S3_ENDPOINT":       creds.Endpoint,
			"AWS_DEFAULT_REGION":    creds.Region,
		},
	}
	created, err := kube.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 secret %s/%s: %w", namespace, name, err)
	}
	return created, nil
}

// CreateOpaqueSecret creates a plain opaque secret.
func CreateOpaqueSecret(ctx context.Context, kube kubernetes.Interface, namespace, name string, data map[string]string) (*corev1.Secret, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Type:       corev1.SecretTypeOpaque,
		StringData: data,
	}
	created, err := kube.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create secret %s/%s: %w", namespace, name, err)
	}
	return created, nil
}

// CreateConfigMap creates a configmap with the given data.
func CreateConfigMap(ctx context.Context, kube kubernetes.Interface, namespace, name string, data map[string]string) (*corev1.ConfigMap, error) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Data:       data,
	}
	created, err := kube.CoreV1().ConfigMaps(namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create configmap %s/%s: %w", namespace, name, err)
	}
	return created, nil
}

// CreateServiceAccount creates a service account.
func CreateServiceAccount(ctx context.Context, kube kubernetes.Interface, namespace, name string) (*corev1.ServiceAccount, error) {
	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	created, err := kube.CoreV1().ServiceAccounts(namespace).Create(ctx, sa, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create service account %s/%s: %w", namespace, name, err)
	}
	return created, nil
}
