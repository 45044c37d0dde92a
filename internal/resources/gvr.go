package resources

import "k8s.io/apimachinery/pkg/runtime/schema"

// GroupVersionResources for every operator-owned custom resource the
// suites touch. The schemas belong to the operators; the suite only
// creates instances and reads status.
var (
	InferenceServiceGVR = schema.GroupVersionResource{
		Group: "serving.kserve.io", Version: "v1beta1", Resource: "inferenceservices",
	}
	LLMInferenceServiceGVR = schema.GroupVersionResource{
		Group: "serving.kserve.io", Version: "v1alpha1", Resource: "llminferenceservices",
	}
	ServingRuntimeGVR = schema.GroupVersionResource{
		Group: "serving.kserve.io", Version: "v1alpha1", Resource: "servingruntimes",
	}
	TrustyAIServiceGVR = schema.GroupVersionResource{
		Group: "trustyai.opendatahub.io", Version: "v1alpha1", Resource: "trustyaiservices",
	}
	LMEvalJobGVR = schema.GroupVersionResource{
		Group: "trustyai.opendatahub.io", Version: "v1alpha1", Resource: "lmevaljobs",
	}
	GuardrailsOrchestratorGVR = schema.GroupVersionResource{
		Group: "trustyai.opendatahub.io", Version: "v1alpha1", Resource: "guardrailsorchestrators",
	}
	LlamaStackDistributionGVR = schema.GroupVersionResource{
		Group: "llamastack.io", Version: "v1alpha1", Resource: "llamastackdistributions",
	}
	ScaledObjectGVR = schema.GroupVersionResource{
		Group: "keda.sh", Version: "v1alpha1", Resource: "scaledobjects",
	}
	NotebookGVR = schema.GroupVersionResource{
		Group: "kubeflow.org", Version: "v1", Resource: "notebooks",
	}

	ResourceFlavorGVR = schema.GroupVersionResource{
		Group: "kueue.x-k8s.io", Version: "v1beta1", Resource: "resourceflavors",
	}
	ClusterQueueGVR = schema.GroupVersionResource{
		Group: "kueue.x-k8s.io", Version: "v1beta1", Resource: "clusterqueues",
	}
	LocalQueueGVR = schema.GroupVersionResource{
		Group: "kueue.x-k8s.io", Version: "v1beta1", Resource: "localqueues",
	}
	WorkloadGVR = schema.GroupVersionResource{
		Group: "kueue.x-k8s.io", Version: "v1beta1", Resource: "workloads",
	}
)
