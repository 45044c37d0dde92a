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

	"github.com/opendatahub-io/odh-e2e/internal/evaluation"
	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

var _ = Describe("LM evaluation jobs", func() {
	It("evaluates a hub model and reports scores", func(ctx context.Context) {
		skipIfNotRegistered(resources.LMEvalJobGVR, "TrustyAI LMEval")

		namespace := newTestNamespace(ctx, "e2e-lmeval")

		job := evaluation.BuildJob(evaluation.JobSpec{
			Name:      "arceasy-eval",
			Namespace: namespace,
			Model:     "hf",
			ModelArgs: []evaluation.ModelArg{
				{Name: "pretrained", Value: "google/flan-t5-base"},
			},
			TaskNames:   []string{"arc_easy"},
			Limit:       "0.01",
			LogSamples:  true,
			AllowOnline: true,
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.LMEvalJobGVR, job)
		Expect(err).NotTo(HaveOccurred())

		done, err := evaluation.WaitForComplete(ctx, clients.Dynamic, namespace, "arceasy-eval",
			wait.Config{Timeout: 60 * time.Minute, Interval: 30 * time.Second})
		Expect(err).NotTo(HaveOccurred())

		results, err := evaluation.ParseResults(done)
		Expect(err).NotTo(HaveOccurred())

		score, ok := results.Score("arc_easy", "acc,none")
		Expect(ok).To(BeTrue(), "arc_easy accuracy must be reported")
		Expect(score).To(BeNumerically(">=", 0))
		Expect(score).To(BeNumerically("<=", 1))
		_, _ = fmt.Fprintf(GinkgoWriter, "arc_easy accuracy: %f\n", score)
	})

	It("evaluates a served model over local-completions", func(ctx context.Context) {
		skipIfNotRegistered(resources.LMEvalJobGVR, "TrustyAI LMEval")
		skipIfNotRegistered(resources.InferenceServiceGVR, "KServe")

		namespace := newTestNamespace(ctx, "e2e-lmeval-served")

		// Points at a predictor service in the same namespace; the
		// serving suite documents the endpoint layout.
		endpoint := fmt.Sprintf("http://qwen-isvc-predictor.%s.svc.cluster.local:8080/v1/completions", namespace)
		job := evaluation.BuildJob(evaluation.JobSpec{
			Name:      "served-eval",
			Namespace: namespace,
			Model:     "local-completions",
			ModelArgs: []evaluation.ModelArg{
				{Name: "model", Value: "qwen-isvc"},
				{Name: "base_url", Value: endpoint},
				{Name: "num_concurrent", Value: "1"},
				{Name: "max_retries", Value: "3"},
				{Name: "tokenized_requests", Value: "False"},
				{Name: "tokenizer", Value: "Qwen/Qwen2.5-0.5B-Instruct"},
			},
			TaskNames:   []string{"arc_easy"},
			Limit:       "0.01",
			AllowOnline: true,
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.LMEvalJobGVR, job)
		if err != nil {
			Skip("could not create served-model evaluation: " + err.Error())
		}

		done, err := evaluation.WaitForComplete(ctx, clients.Dynamic, namespace, "served-eval",
			wait.Config{Timeout: 60 * time.Minute, Interval: 30 * time.Second})
		Expect(err).NotTo(HaveOccurred())

		results, err := evaluation.ParseResults(done)
		Expect(err).NotTo(HaveOccurred())
		Expect(results.Scores).To(HaveKey("arc_easy"))
	})
})
