package integration

import (
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/test-integration/sync/helpers"
)

var _ = Describe("Crossref target", Label("crossref"), func() {
	const (
		username = "depositor"
		password = "s3cret"
	)

	var (
		tempDir  string
		crossref *helpers.MockCrossrefServer
		server   *helpers.ServerTestHelper
	)

	start := func(configuredPassword string) {
		passwordFile, err := helpers.WriteSecret(tempDir, "crossref-password", configuredPassword)
		Expect(err).NotTo(HaveOccurred())

		articlesFile := filepath.Join(tempDir, "articles.json")
		Expect(helpers.WriteArticles(articlesFile,
			helpers.NewArticle("c-1", time.Now().Add(-time.Hour)),
		)).To(Succeed())

		cfg := fileStorageConfig(tempDir, articlesFile,
			helpers.CrossrefTarget("crossref", crossref, username, passwordFile))
		server = startServer(tempDir, cfg)
	}

	BeforeEach(func() {
		tempDir = createTempDir("crossref-test-")
		DeferCleanup(cleanupTempDir, tempDir)

		crossref = helpers.NewMockCrossrefServer(username, password)
		DeferCleanup(crossref.Close)
	})

	It("should deposit and confirm asynchronously", func() {
		start(password)

		By("depositing on the first tick")
		report := server.MustUpdate("crossref")
		Expect(report.Submitted).To(Equal(1))

		rec := server.GetRecord("crossref", "c-1")
		Expect(rec.Status).To(Equal(status.StatusPending))
		Expect(rec.ExternalID).To(BeEmpty())
		Expect(rec.SubmitTimestamp).NotTo(BeNil())

		deposits := crossref.Deposits()
		Expect(deposits).To(HaveLen(1))
		for _, xml := range deposits {
			Expect(xml).To(ContainSubstring("<doi>10.5555/c-1</doi>"))
			Expect(xml).To(ContainSubstring("Journal of Integration Testing"))
		}

		By("leaving queued batches pending")
		report = server.MustUpdate("crossref")
		Expect(report.Checked).To(Equal(1))
		Expect(report.Submitted).To(BeZero())
		Expect(server.GetRecord("crossref", "c-1").Status).To(Equal(status.StatusPending))

		By("recording the DOI once the batch completes")
		crossref.SetOutcome(helpers.DepositSucceeded, "Successfully added")
		report = server.MustUpdate("crossref")
		Expect(report.Checked).To(Equal(1))

		rec = server.GetRecord("crossref", "c-1")
		Expect(rec.Status).To(Equal(status.StatusSuccess))
		Expect(rec.ExternalID).To(Equal("10.5555/c-1"))
		Expect(crossref.Checks()).To(Equal(2))
	})

	It("should record failed deposits as errors", func() {
		start(password)
		crossref.SetOutcome(helpers.DepositFailed, "Invalid ISSN")

		server.MustUpdate("crossref")
		report := server.MustUpdate("crossref")
		Expect(report.Checked).To(Equal(1))

		rec := server.GetRecord("crossref", "c-1")
		Expect(rec.Status).To(Equal(status.StatusError))
		Expect(rec.LastError).To(ContainSubstring("Invalid ISSN"))
	})

	It("should check a single article on demand", func() {
		start(password)
		server.MustUpdate("crossref")
		crossref.SetOutcome(helpers.DepositSucceeded, "")

		code, op := server.ArticleOperation(http.MethodPost, "crossref", "c-1", "check")
		Expect(code).To(Equal(http.StatusOK), op.Error)
		Expect(op.Record.Status).To(Equal(status.StatusSuccess))
	})

	It("should abort the tick when the deposit login is rejected", func() {
		start("wrong-password")

		code, tick := server.TriggerUpdate("crossref")
		Expect(code).To(Equal(http.StatusBadGateway))
		Expect(tick.Report.AbortReason).NotTo(BeEmpty())
		Expect(crossref.Deposits()).To(BeEmpty())

		summary := server.GetSummary("crossref")
		Expect(summary.Global.LastGlobalError).To(ContainSubstring("login"))
	})
})
