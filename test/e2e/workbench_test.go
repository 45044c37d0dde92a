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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
	"github.com/opendatahub-io/odh-e2e/internal/workbench"
)

var _ = Describe("Workbench notebook", Ordered, func() {
	var (
		ctx       context.Context
		namespace string
	)

	const notebookName = "minimal-workbench"

	BeforeAll(func() {
		ctx = context.Background()
		skipIfNotRegistered(resources.NotebookGVR, "Workbenches")

		namespace = newTestNamespace(ctx, "e2e-workbench")

		By("creating the notebook")
		nb := workbench.BuildNotebook(workbench.NotebookSpec{
			Name:      notebookName,
			Namespace: namespace,
			Image:     cfg.WorkbenchImage,
		})
		_, err := resources.Create(ctx, clients.Dynamic, resources.NotebookGVR, nb)
		Expect(err).NotTo(HaveOccurred())
	})

	It("starts the notebook pod", func() {
		Expect(workbench.WaitForRunning(ctx, clients.Kube, namespace, notebookName,
			wait.Config{Timeout: cfg.DefaultTimeout})).To(Succeed())
	})

	It("stops on annotation and starts again when it is removed", func() {
		By("stopping the notebook")
		Expect(workbench.SetStopped(ctx, clients.Dynamic, namespace, notebookName, true)).To(Succeed())
		Expect(workbench.WaitForStopped(ctx, clients.Kube, namespace, notebookName,
			wait.Config{Timeout: 5 * time.Minute})).To(Succeed())

		By("restarting the notebook")
		Expect(workbench.SetStopped(ctx, clients.Dynamic, namespace, notebookName, false)).To(Succeed())
		Expect(workbench.WaitForRunning(ctx, clients.Kube, namespace, notebookName,
			wait.Config{Timeout: cfg.DefaultTimeout})).To(Succeed())
	})
})
