// Package cluster builds the Kubernetes client set the suites share:
// a typed clientset for core resources, a dynamic client for
// operator-owned custom resources, and a controller-runtime client for
// structured get/list against arbitrary objects.
package cluster

import (
	"fmt"
	"os"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Clients bundles every flavor of API access the suites need.
type Clients struct {
	RestConfig *rest.Config
	Kube       kubernetes.Interface
	Dynamic    dynamic.Interface
	Client     client.Client
	Discovery  discovery.DiscoveryInterface
	Scheme     *runtime.Scheme
}

// New loads the kubeconfig named by KUBECONFIG, falling back to
// in-cluster configuration, and constructs all clients from it.
func New() (*Clients, error) {
	cfg, err := loadRestConfig()
	if err != nil {
		return nil, err
	}
	cfg.WarningHandler = rest.NoWarnings{}

	kube, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	disco, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))

	crClient, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller-runtime client: %w", err)
	}

	return &Clients{
		RestConfig: cfg,
		Kube:       kube,
		Dynamic:    dyn,
		Client:     crClient,
		Discovery:  disco,
		Scheme:     scheme,
	}, nil
}

func loadRestConfig() (*rest.Config, error) {
	if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", kubeconfig, err)
		}
		return cfg, nil
	}
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("no KUBECONFIG set and in-cluster config unavailable: %w", err)
	}
	return cfg, nil
}

// ResourceRegistered reports whether the API server serves the given
// group/version resource. Suites use it to skip when an operator is
// not installed.
func (c *Clients) ResourceRegistered(gvr schema.GroupVersionResource) (bool, error) {
	list, err := c.Discovery.ServerResourcesForGroupVersion(gvr.GroupVersion().String())
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to discover %s: %w", gvr.GroupVersion(), err)
	}
	for _, r := range list.APIResources {
		if r.Name == gvr.Resource {
			return true, nil
		}
	}
	return false, nil
}
