package integration

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/test-integration/sync/helpers"
)

var _ = Describe("DOAJ target", Label("doaj"), func() {
	var (
		tempDir      string
		articlesFile string
		doaj         *helpers.MockDOAJServer
		list         []*articles.Article
		server       *helpers.ServerTestHelper
	)

	start := func(apiKey string) {
		keyFile, err := helpers.WriteSecret(tempDir, "doaj-key", apiKey)
		Expect(err).NotTo(HaveOccurred())
		cfg := fileStorageConfig(tempDir, articlesFile, helpers.DOAJTarget("doaj", doaj.URL, keyFile))
		server = startServer(tempDir, cfg)
	}

	BeforeEach(func() {
		tempDir = createTempDir("doaj-test-")
		DeferCleanup(cleanupTempDir, tempDir)

		doaj = helpers.NewMockDOAJServer(doajAPIKey)
		DeferCleanup(doaj.Close)

		past := time.Now().Add(-24 * time.Hour)
		list = []*articles.Article{
			helpers.NewArticle("a-1", past),
			helpers.NewArticle("a-2", past.Add(time.Minute)),
		}
		articlesFile = filepath.Join(tempDir, "articles.json")
		Expect(helpers.WriteArticles(articlesFile, list...)).To(Succeed())
	})

	Context("New articles", func() {
		BeforeEach(func() {
			start(doajAPIKey)
		})

		It("should identify before submitting", func() {
			By("identifying on the first tick")
			report := server.MustUpdate("doaj")
			Expect(report.Identified).To(Equal(2))
			Expect(report.Submitted).To(BeZero())

			rec := server.GetRecord("doaj", "a-1")
			Expect(rec.Status).To(Equal(status.StatusUnsubmitted))
			Expect(rec.IdentifyTimestamp).NotTo(BeNil())

			By("submitting on the second tick")
			report = server.MustUpdate("doaj")
			Expect(report.Submitted).To(Equal(2))
			Expect(report.Failed).To(BeZero())

			for _, a := range list {
				rec := server.GetRecord("doaj", a.ID)
				Expect(rec.Status).To(Equal(status.StatusSuccess), a.ID)
				Expect(rec.ExternalID).To(HavePrefix("doaj-"))
				Expect(rec.LastError).To(BeEmpty())

				doc, ok := doaj.Article(rec.ExternalID)
				Expect(ok).To(BeTrue())
				Expect(string(doc)).To(ContainSubstring(a.Permalink))
			}

			creates, updates, _, searches := doaj.Stats()
			Expect(creates).To(Equal(2))
			Expect(updates).To(BeZero())
			Expect(searches).To(Equal(2))

			By("doing nothing once everything is in sync")
			report = server.MustUpdate("doaj")
			Expect(report.Submitted + report.Identified + report.Checked).To(BeZero())

			summary := server.GetSummary("doaj")
			Expect(summary.Statuses[status.StatusSuccess]).To(Equal(2))
			Expect(summary.Global.LastGlobalError).To(BeEmpty())
		})

		It("should adopt an entry found by identification", func() {
			doaj.AddSearchHit(fmt.Sprintf(`bibjson.link.url.exact:"%s"`, list[0].Permalink), "existing-1")

			report := server.MustUpdate("doaj")
			Expect(report.Identified).To(Equal(2))

			rec := server.GetRecord("doaj", "a-1")
			Expect(rec.Status).To(Equal(status.StatusSuccess))
			Expect(rec.ExternalID).To(Equal("existing-1"))

			server.MustUpdate("doaj")
			creates, _, _, _ := doaj.Stats()
			Expect(creates).To(Equal(1), "only the unknown article is created")
		})
	})

	Context("Synchronized articles", func() {
		BeforeEach(func() {
			start(doajAPIKey)
			server.MustUpdate("doaj")
			server.MustUpdate("doaj")
			Expect(server.GetRecord("doaj", "a-1").Status).To(Equal(status.StatusSuccess))
		})

		It("should resubmit articles modified in the CMS", func() {
			list[0].ModifiedAt = time.Now().Add(time.Minute).UTC()
			list[0].Title = "Corrected title"
			Expect(helpers.WriteArticles(articlesFile, list...)).To(Succeed())

			report := server.MustUpdate("doaj")
			Expect(report.Modified).To(Equal(1))
			Expect(report.Submitted).To(Equal(1))

			rec := server.GetRecord("doaj", "a-1")
			Expect(rec.Status).To(Equal(status.StatusSuccess))
			doc, ok := doaj.Article(rec.ExternalID)
			Expect(ok).To(BeTrue())
			Expect(string(doc)).To(ContainSubstring("Corrected title"))

			_, updates, _, _ := doaj.Stats()
			Expect(updates).To(Equal(1))
		})

		It("should recreate entries that vanished from the index", func() {
			original := server.GetRecord("doaj", "a-2").ExternalID
			doaj.Forget(original)

			resp, _, err := server.Do(http.MethodPost, "/v1/targets/doaj/mark-modified", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			report := server.MustUpdate("doaj")
			Expect(report.Submitted).To(Equal(2))
			Expect(report.Failed).To(BeZero())

			rec := server.GetRecord("doaj", "a-2")
			Expect(rec.Status).To(Equal(status.StatusSuccess))
			Expect(rec.ExternalID).NotTo(Equal(original))
			_, ok := doaj.Article(rec.ExternalID)
			Expect(ok).To(BeTrue())
		})

		It("should delete entries through the admin API", func() {
			externalID := server.GetRecord("doaj", "a-1").ExternalID

			code, op := server.ArticleOperation(http.MethodDelete, "doaj", "a-1", "")
			Expect(code).To(Equal(http.StatusOK), op.Error)
			Expect(op.Record.Status).To(Equal(status.StatusUnsubmitted))
			Expect(op.Record.ExternalID).To(BeEmpty())

			_, ok := doaj.Article(externalID)
			Expect(ok).To(BeFalse())
			_, _, deletes, _ := doaj.Stats()
			Expect(deletes).To(Equal(1))
		})

		It("should reset records while keeping registry identifiers", func() {
			externalID := server.GetRecord("doaj", "a-1").ExternalID

			resp, _, err := server.Do(http.MethodPost, "/v1/targets/doaj/reset?keepExternalId=true", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			rec := server.GetRecord("doaj", "a-1")
			Expect(rec.Status).To(Equal(status.StatusUnsubmitted))
			Expect(rec.ExternalID).To(Equal(externalID))
			Expect(rec.SubmitTimestamp).To(BeNil())
		})
	})

	Context("Admin API", func() {
		BeforeEach(func() {
			start(doajAPIKey)
		})

		It("should reject operations without the admin token", func() {
			resp, _, err := server.Do(http.MethodPost, "/v1/targets/doaj/update", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bearer"))
		})

		It("should report unknown targets and articles", func() {
			resp, _, err := server.Do(http.MethodGet, "/v1/targets/zenodo", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			code, _ := server.ArticleOperation(http.MethodPost, "doaj", "missing", "submit")
			Expect(code).To(Equal(http.StatusNotFound))
		})
	})

	Context("Rejected credentials", func() {
		BeforeEach(func() {
			start("wrong-key")
			server.MustUpdate("doaj")
		})

		It("should abort the tick and record a global error", func() {
			code, tick := server.TriggerUpdate("doaj")
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(tick.Error).To(ContainSubstring("tick aborted"))
			Expect(tick.Report.AbortReason).NotTo(BeEmpty())

			summary := server.GetSummary("doaj")
			Expect(summary.Global.LastGlobalError).NotTo(BeEmpty())

			rec := server.GetRecord("doaj", "a-1")
			Expect(rec.Status).To(Equal(status.StatusError))
			Expect(rec.LastError).NotTo(BeEmpty())
			Expect(rec.ExternalID).To(BeEmpty())
		})
	})
})
