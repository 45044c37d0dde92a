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

	"github.com/opendatahub-io/odh-e2e/internal/kueue"
	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/serving"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

var _ = Describe("Kueue admission for inference services", Ordered, func() {
	var (
		ctx        context.Context
		namespace  string
		flavorName string
		cqName     string
	)

	const (
		localQueue = "models"
		isvcName   = "queued-isvc"
	)

	BeforeAll(func() {
		ctx = context.Background()
		skipIfNotRegistered(resources.ClusterQueueGVR, "Kueue")
		skipIfNotRegistered(resources.InferenceServiceGVR, "KServe")

		namespace = newTestNamespace(ctx, "e2e-kueue")
		flavorName = resources.UniqueName("default-flavor")
		cqName = resources.UniqueName("models-queue")

		By("creating the resource flavor and queues")
		_, err := resources.Create(ctx, clients.Dynamic, resources.ResourceFlavorGVR,
			kueue.BuildResourceFlavor(flavorName))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func(ctx context.Context) {
			_ = resources.Delete(ctx, clients.Dynamic, resources.ResourceFlavorGVR, "", flavorName)
		})

		// Quota sized for exactly one predictor so a second service
		// must queue.
		_, err = resources.Create(ctx, clients.Dynamic, resources.ClusterQueueGVR,
			kueue.BuildClusterQueue(cqName, flavorName, []kueue.ResourceQuota{
				{Name: "cpu", NominalQuota: "2"},
				{Name: "memory", NominalQuota: "8Gi"},
			}))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func(ctx context.Context) {
			_ = resources.Delete(ctx, clients.Dynamic, resources.ClusterQueueGVR, "", cqName)
		})

		_, err = resources.Create(ctx, clients.Dynamic, resources.LocalQueueGVR,
			kueue.BuildLocalQueue(localQueue, namespace, cqName))
		Expect(err).NotTo(HaveOccurred())

		By("creating a queue-labeled InferenceService")
		runtime := serving.BuildServingRuntime(serving.RuntimeSpec{
			Name:      "vllm-runtime",
			Namespace: namespace,
			Image:     cfg.ServingRuntimeImage,
		})
		_, err = resources.Create(ctx, clients.Dynamic, resources.ServingRuntimeGVR, runtime)
		Expect(err).NotTo(HaveOccurred())

		isvc := serving.BuildInferenceService(serving.ServiceSpec{
			Name:           isvcName,
			Namespace:      namespace,
			RuntimeName:    "vllm-runtime",
			DeploymentMode: serving.RawDeployment,
			StorageURI:     "s3://" + cfg.S3Bucket + "/qwen2",
			MinReplicas:    ptr.To(int64(1)),
			KueueQueue:     localQueue,
			CPURequest:     "2",
			MemoryRequest:  "8Gi",
		})
		_, err = resources.Create(ctx, clients.Dynamic, resources.InferenceServiceGVR, isvc)
		Expect(err).NotTo(HaveOccurred())
	})

	It("admits the workload through the cluster queue", func() {
		wl, err := kueue.WaitForWorkloadAdmitted(ctx, clients.Dynamic, namespace, isvcName+"-predictor",
			wait.Config{Timeout: 5 * time.Minute})
		Expect(err).NotTo(HaveOccurred())
		_, _ = fmt.Fprintf(GinkgoWriter, "workload %s admitted\n", wl.GetName())
	})

	It("removes the scheduling gate from admitted pods", func() {
		Eventually(func(g Gomega) {
			selector := "serving.kserve.io/inferenceservice=" + isvcName
			gated, err := kueue.PodsGatedByAdmission(ctx, clients.Kube, namespace, selector)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(gated).To(BeEmpty(), "admitted pods must not stay gated")
		}, 3*time.Minute, 5*time.Second).Should(Succeed())
	})

	It("keeps an over-quota service gated", func() {
		second := serving.BuildInferenceService(serving.ServiceSpec{
			Name:           "queued-isvc-2",
			Namespace:      namespace,
			RuntimeName:    "vllm-runtime",
			DeploymentMode: serving.RawDeployment,
			StorageURI:     "s3://" + cfg.S3Bucket + "/qwen2",
			MinReplicas:    ptr.To(int64(1)),
			KueueQueue:     localQueue,
			CPURequest:     "2",
			MemoryRequest:  "8Gi",
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.InferenceServiceGVR, second)
		Expect(err).NotTo(HaveOccurred())

		By("waiting for the gated pod to appear")
		selector := "serving.kserve.io/inferenceservice=queued-isvc-2"
		Eventually(func(g Gomega) {
			gated, err := kueue.PodsGatedByAdmission(ctx, clients.Kube, namespace, selector)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(gated).NotTo(BeEmpty(), "the second service exceeds quota and must stay gated")
		}, 3*time.Minute, 5*time.Second).Should(Succeed())

		By("checking it stays gated")
		Consistently(func(g Gomega) {
			gated, err := kueue.PodsGatedByAdmission(ctx, clients.Kube, namespace, selector)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(gated).NotTo(BeEmpty())
		}, 30*time.Second, 5*time.Second).Should(Succeed())
	})

	It("accounts the admitted resources on the cluster queue", func() {
		Eventually(func(g Gomega) {
			cq, err := resources.Get(ctx, clients.Dynamic, resources.ClusterQueueGVR, "", cqName)
			g.Expect(err).NotTo(HaveOccurred())

			usage, err := kueue.FlavorUsage(cq, flavorName, "cpu")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(usage).NotTo(BeEmpty())
			g.Expect(usage).NotTo(Equal("0"))
		}, 2*time.Minute, 5*time.Second).Should(Succeed())
	})
})
