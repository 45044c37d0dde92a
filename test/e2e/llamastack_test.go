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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
	"github.com/opendatahub-io/odh-e2e/internal/llamastack"
	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

var _ = Describe("LlamaStack distribution", Ordered, func() {
	var (
		ctx       context.Context
		namespace string
		client    *llamastack.Client
	)

	const distName = "lsd-llama-milvus"

	BeforeAll(func() {
		ctx = context.Background()
		skipIfNotRegistered(resources.LlamaStackDistributionGVR, "LlamaStack operator")

		namespace = newTestNamespace(ctx, "e2e-llamastack")

		By("creating the distribution")
		dist := llamastack.BuildDistribution(llamastack.DistributionSpec{
			Name:         distName,
			Namespace:    namespace,
			Distribution: "rh-dev",
			VLLMURL:      fmt.Sprintf("http://qwen-isvc-predictor.%s.svc.cluster.local:8080/v1", namespace),
			ModelName:    "qwen-isvc",
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.LlamaStackDistributionGVR, dist)
		Expect(err).NotTo(HaveOccurred())

		_, err = llamastack.WaitForReady(ctx, clients.Dynamic, namespace, distName,
			wait.Config{Timeout: cfg.DefaultTimeout})
		Expect(err).NotTo(HaveOccurred())

		base := fmt.Sprintf("http://%s-service.%s.svc.cluster.local:8321", distName, namespace)
		client = llamastack.NewClient(base, inference.ClientOptions{})
	})

	It("reports a healthy server", func() {
		status, err := client.Health(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal("OK"))
	})

	It("registers the served model", func() {
		models, err := client.ListModels(ctx)
		Expect(err).NotTo(HaveOccurred())

		var ids []string
		for _, m := range models {
			ids = append(ids, m.Identifier)
		}
		Expect(ids).To(ContainElement("qwen-isvc"))
	})

	It("answers chat completions through the stack", func() {
		resp, err := client.ChatCompletion(ctx, inference.ChatRequest{
			Model:     "qwen-isvc",
			Messages:  []inference.ChatMessage{{Role: "user", Content: "Say hello in one word."}},
			MaxTokens: 16,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Choices).NotTo(BeEmpty())
		Expect(resp.Choices[0].Message.Content).NotTo(BeEmpty())
	})
})
