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
	"errors"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
	"github.com/opendatahub-io/odh-e2e/internal/maas"
)

var _ = Describe("Models as a Service", Ordered, func() {
	var (
		ctx    context.Context
		client *maas.Client
	)

	BeforeAll(func() {
		ctx = context.Background()
		if cfg.MaaSBaseURL == "" {
			Skip("MAAS_BASE_URL not set")
		}
		saToken := os.Getenv("MAAS_SA_TOKEN")
		if saToken == "" {
			Skip("MAAS_SA_TOKEN not set")
		}
		client = maas.NewClient(cfg.MaaSBaseURL, saToken, inference.ClientOptions{InsecureSkipVerify: true})
	})

	It("mints a token carrying the caller's identity", func() {
		tok, err := client.MintToken(ctx, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.Token).NotTo(BeEmpty())

		claims, err := maas.ParseTokenClaims(tok.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Subject).NotTo(BeEmpty())
		Expect(claims.ExpiresAt).To(BeTemporally("~", time.Now().Add(10*time.Minute), time.Minute))
	})

	It("lists the model catalog with a minted token", func() {
		tok, err := client.MintToken(ctx, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		models, err := client.ListModels(ctx, tok.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(models).NotTo(BeEmpty())
	})

	It("answers a chat completion with a minted token", func() {
		tok, err := client.MintToken(ctx, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		models, err := client.ListModels(ctx, tok.Token)
		Expect(err).NotTo(HaveOccurred())
		if len(models) == 0 {
			Skip("no models exposed through the gateway")
		}

		resp, err := client.Chat(ctx, tok.Token, models[0].URL, models[0].ID, "Say hello in one word.")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Choices[0].Message.Content).NotTo(BeEmpty())
	})

	It("rejects revoked tokens", func() {
		tok, err := client.MintToken(ctx, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		Expect(client.RevokeAllTokens(ctx)).To(Succeed())

		Eventually(func(g Gomega) {
			_, err := client.ListModels(ctx, tok.Token)
			g.Expect(err).To(HaveOccurred())

			var se *inference.StatusError
			g.Expect(errors.As(err, &se)).To(BeTrue())
			g.Expect(se.Code).To(Equal(http.StatusUnauthorized))
		}, time.Minute, 5*time.Second).Should(Succeed())
	})

	It("rejects requests carrying a malformed token", func() {
		_, err := client.ListModels(ctx, "not-a-jwt")
		Expect(err).To(HaveOccurred())

		var se *inference.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rate limits bursts beyond the tier allowance", func() {
		tok, err := client.MintToken(ctx, 10*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		models, err := client.ListModels(ctx, tok.Token)
		Expect(err).NotTo(HaveOccurred())
		if len(models) == 0 {
			Skip("no models exposed through the gateway")
		}

		result, err := client.ProbeRateLimit(ctx, tok.Token, models[0].URL, models[0].ID, 30)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Accepted).To(BeNumerically(">", 0), "some requests must get through")
		Expect(result.Limited).To(BeNumerically(">", 0), "a 30-request burst must trip the free tier limit")
	})
})
