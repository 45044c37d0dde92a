/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/serving"
	"github.com/opendatahub-io/odh-e2e/internal/storage"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

var _ = Describe("Model serving", Ordered, func() {
	var (
		ctx       context.Context
		namespace string
		isvcName  string
		modelURL  string
	)

	BeforeAll(func() {
		ctx = context.Background()
		skipIfNotRegistered(resources.InferenceServiceGVR, "KServe")

		namespace = newTestNamespace(ctx, "e2e-serving")
		isvcName = "qwen-isvc"

		By("creating the S3 credentials secret")
		_, err := resources.CreateS3Secret(ctx, clients.Kube, namespace, "models-s3", resources.S3Credentials{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		Expect(err).NotTo(HaveOccurred())

		By("creating the vLLM serving runtime")
		runtime := serving.BuildServingRuntime(serving.RuntimeSpec{
			Name:      "vllm-runtime",
			Namespace: namespace,
			Image:     cfg.ServingRuntimeImage,
		})
		_, err = resources.Create(ctx, clients.Dynamic, resources.ServingRuntimeGVR, runtime)
		Expect(err).NotTo(HaveOccurred())

		By("creating the InferenceService")
		isvc := serving.BuildInferenceService(serving.ServiceSpec{
			Name:           isvcName,
			Namespace:      namespace,
			RuntimeName:    "vllm-runtime",
			DeploymentMode: serving.RawDeployment,
			StorageURI:     "s3://" + cfg.S3Bucket + "/qwen2",
			StorageKey:     "models-s3",
			MinReplicas:    ptr.To(int64(1)),
			MaxReplicas:    ptr.To(int64(2)),
			External:       true,
		})
		_, err = resources.Create(ctx, clients.Dynamic, resources.InferenceServiceGVR, isvc)
		Expect(err).NotTo(HaveOccurred())
	})

	It("has the model artifact staged in the bucket", func() {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		Expect(err).NotTo(HaveOccurred())

		keys, err := store.ListKeys(ctx, cfg.S3Bucket, "qwen2/")
		if err != nil {
			Skip("object store not reachable from the test runner: " + err.Error())
		}
		Expect(keys).NotTo(BeEmpty(), "the model must be staged under "+storage.StorageURI(cfg.S3Bucket, "qwen2"))
	})

	It("becomes ready and reports an endpoint URL", func() {
		isvc, err := serving.WaitForReady(ctx, clients.Dynamic, clients.Kube, namespace, isvcName,
			wait.Config{Timeout: cfg.DefaultTimeout})
		Expect(err).NotTo(HaveOccurred())

		u, err := serving.URL(isvc)
		Expect(err).NotTo(HaveOccurred())
		modelURL = u.String()
		_, _ = fmt.Fprintf(GinkgoWriter, "inference endpoint: %s\n", modelURL)
	})

	It("lists the served model on the OpenAI endpoint", func() {
		client := inference.NewOpenAIClient(modelURL, inference.ClientOptions{InsecureSkipVerify: true})
		models, err := client.ListModels(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(models).NotTo(BeEmpty())
	})

	It("answers a chat completion", func() {
		client := inference.NewOpenAIClient(modelURL, inference.ClientOptions{InsecureSkipVerify: true})
		resp, err := client.ChatCompletion(ctx, inference.ChatRequest{
			Model:     isvcName,
			Messages:  []inference.ChatMessage{{Role: "user", Content: "Name the capital of France in one word."}},
			MaxTokens: 16,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Choices[0].Message.Content).NotTo(BeEmpty())
	})

	It("scales the predictor to zero when stopped and back up on resume", func() {
		By("stopping the service")
		Expect(serving.Stop(ctx, clients.Dynamic, namespace, isvcName, true)).To(Succeed())
		Expect(serving.WaitForPredictorScaledTo(ctx, clients.Kube, namespace, isvcName, 0,
			wait.Config{Timeout: 6 * time.Minute})).To(Succeed())

		By("resuming the service")
		Expect(serving.Stop(ctx, clients.Dynamic, namespace, isvcName, false)).To(Succeed())
		_, err := serving.WaitForReady(ctx, clients.Dynamic, clients.Kube, namespace, isvcName,
			wait.Config{Timeout: cfg.DefaultTimeout})
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Open inference protocol", Ordered, func() {
	var (
		ctx       context.Context
		namespace string
		v2        *inference.V2Client
	)

	const isvcName = "sklearn-iris"

	BeforeAll(func() {
		ctx = context.Background()
		skipIfNotRegistered(resources.InferenceServiceGVR, "KServe")

		namespace = newTestNamespace(ctx, "e2e-oip")

		_, err := resources.CreateS3Secret(ctx, clients.Kube, namespace, "models-s3", resources.S3Credentials{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		Expect(err).NotTo(HaveOccurred())

		By("creating a sklearn InferenceService with an auto-selected runtime")
		isvc := serving.BuildInferenceService(serving.ServiceSpec{
			Name:           isvcName,
			Namespace:      namespace,
			ModelFormat:    "sklearn",
			DeploymentMode: serving.RawDeployment,
			StorageURI:     "s3://" + cfg.S3Bucket + "/sklearn-iris",
			StorageKey:     "models-s3",
			MinReplicas:    ptr.To(int64(1)),
			External:       true,
		})
		_, err = resources.Create(ctx, clients.Dynamic, resources.InferenceServiceGVR, isvc)
		Expect(err).NotTo(HaveOccurred())

		ready, err := serving.WaitForReady(ctx, clients.Dynamic, clients.Kube, namespace, isvcName,
			wait.Config{Timeout: cfg.DefaultTimeout})
		Expect(err).NotTo(HaveOccurred())

		u, err := serving.URL(ready)
		Expect(err).NotTo(HaveOccurred())
		v2 = inference.NewV2Client(u.String(), inference.ClientOptions{InsecureSkipVerify: true})
	})

	It("reports the server and model ready", func() {
		Eventually(func(g Gomega) {
			ok, err := v2.ServerReady(ctx)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(ok).To(BeTrue())

			ok, err = v2.ModelReady(ctx, isvcName)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(ok).To(BeTrue())
		}, 2*time.Minute, 5*time.Second).Should(Succeed())
	})

	It("serves the model metadata document", func() {
		meta, err := v2.Metadata(ctx, isvcName)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Name).To(Equal(isvcName))
	})

	It("classifies iris samples over the v2 protocol", func() {
		resp, err := v2.Infer(ctx, isvcName, inference.InferRequest{
			Inputs: []inference.Tensor{{
				Name:     "input-0",
				Shape:    []int64{2, 4},
				Datatype: "FP64",
				Data: []interface{}{
					6.8, 2.8, 4.8, 1.4,
					6.0, 3.4, 4.5, 1.6,
				},
			}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Outputs).NotTo(BeEmpty())
		Expect(resp.Outputs[0].Data).To(HaveLen(2), "one class per sample")
	})
})

var _ = Describe("Modelcar storage", Ordered, func() {
	var (
		ctx       context.Context
		namespace string
	)

	const isvcName = "modelcar-isvc"

	BeforeAll(func() {
		ctx = context.Background()
		skipIfNotRegistered(resources.InferenceServiceGVR, "KServe")
		if cfg.ModelCarImage == "" {
			Skip("MODEL_CAR_IMAGE not set")
		}

		namespace = newTestNamespace(ctx, "e2e-modelcar")
	})

	It("has the modelcar image in the registry", func() {
		exists, err := storage.ImageExists(storage.ModelcarURI(cfg.ModelCarImage))
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue(), "modelcar image %s must be pullable", cfg.ModelCarImage)
	})

	It("serves a model pulled from an oci:// modelcar", func() {
		runtime := serving.BuildServingRuntime(serving.RuntimeSpec{
			Name:      "vllm-runtime",
			Namespace: namespace,
			Image:     cfg.ServingRuntimeImage,
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.ServingRuntimeGVR, runtime)
		Expect(err).NotTo(HaveOccurred())

		// oci:// storage needs no credentials secret.
		isvc := serving.BuildInferenceService(serving.ServiceSpec{
			Name:           isvcName,
			Namespace:      namespace,
			RuntimeName:    "vllm-runtime",
			DeploymentMode: serving.RawDeployment,
			StorageURI:     storage.ModelcarURI(cfg.ModelCarImage),
			MinReplicas:    ptr.To(int64(1)),
			External:       true,
		})
		_, err = resources.Create(ctx, clients.Dynamic, resources.InferenceServiceGVR, isvc)
		Expect(err).NotTo(HaveOccurred())

		ready, err := serving.WaitForReady(ctx, clients.Dynamic, clients.Kube, namespace, isvcName,
			wait.Config{Timeout: cfg.DefaultTimeout})
		Expect(err).NotTo(HaveOccurred())

		u, err := serving.URL(ready)
		Expect(err).NotTo(HaveOccurred())

		client := inference.NewOpenAIClient(u.String(), inference.ClientOptions{InsecureSkipVerify: true})
		models, err := client.ListModels(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(models).NotTo(BeEmpty())
	})
})

var _ = Describe("LLM inference service", func() {
	It("serves a model through the inference gateway", func(ctx context.Context) {
		skipIfNotRegistered(resources.LLMInferenceServiceGVR, "KServe LLM serving")

		namespace := newTestNamespace(ctx, "e2e-llmisvc")

		llmisvc := serving.BuildLLMInferenceService(serving.LLMServiceSpec{
			Name:      "qwen-llm",
			Namespace: namespace,
			ModelURI:  "hf://Qwen/Qwen2.5-0.5B-Instruct",
			ModelName: "Qwen/Qwen2.5-0.5B-Instruct",
			Replicas:  ptr.To(int64(1)),
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.LLMInferenceServiceGVR, llmisvc)
		Expect(err).NotTo(HaveOccurred())

		_, err = resources.WaitForCondition(ctx, clients.Dynamic, resources.LLMInferenceServiceGVR,
			namespace, "qwen-llm", "Ready", "True", wait.Config{Timeout: cfg.DefaultTimeout})
		Expect(err).NotTo(HaveOccurred())
	})
})
