package integration

import (
	"net/http"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	testclock "k8s.io/utils/clock/testing"

	"github.com/stacklok/biblio-sync/database"
	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/articles/sqlrepo"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/db"
	"github.com/stacklok/biblio-sync/internal/status"
	"github.com/stacklok/biblio-sync/internal/sync/state"
	"github.com/stacklok/biblio-sync/test-integration/sync/helpers"
)

var _ = Describe("Postgres storage", Label("postgres"), Ordered, func() {
	const (
		dbName = "biblio"
		dbUser = "biblio"
		dbPass = "biblio-pass"
	)

	var (
		tempDir  string
		dbConfig *config.DatabaseConfig
		conn     *db.Connection
		doaj     *helpers.MockDOAJServer
		server   *helpers.ServerTestHelper
	)

	BeforeAll(func() {
		tempDir = createTempDir("postgres-test-")
		DeferCleanup(cleanupTempDir, tempDir)

		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase(dbName),
			postgres.WithUsername(dbUser),
			postgres.WithPassword(dbPass),
			postgres.BasicWaitStrategies(),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(tc.TerminateContainer(container)).To(Succeed())
		})

		host, err := container.Host(ctx)
		Expect(err).NotTo(HaveOccurred())
		port, err := container.MappedPort(ctx, "5432/tcp")
		Expect(err).NotTo(HaveOccurred())
		passwordFile, err := helpers.WriteSecret(tempDir, "db-password", dbPass)
		Expect(err).NotTo(HaveOccurred())

		portNum, err := strconv.Atoi(port.Port())
		Expect(err).NotTo(HaveOccurred())
		dbConfig = &config.DatabaseConfig{
			Host:         host,
			Port:         portNum,
			User:         dbUser,
			PasswordFile: passwordFile,
			Database:     dbName,
			SSLMode:      "disable",
		}

		conn, err = db.NewConnection(ctx, dbConfig)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(conn.Close)
		Expect(database.MigrateUp(conn)).To(Succeed())

		past := time.Now().Add(-24 * time.Hour)
		Expect(sqlrepo.New(conn).Import(ctx, []*articles.Article{
			helpers.NewArticle("p-1", past),
			helpers.NewArticle("p-2", past.Add(time.Minute)),
		})).To(Succeed())

		doaj = helpers.NewMockDOAJServer(doajAPIKey)
		DeferCleanup(doaj.Close)

		keyFile, err := helpers.WriteSecret(tempDir, "doaj-key", doajAPIKey)
		Expect(err).NotTo(HaveOccurred())
		tokenFile, err := helpers.WriteSecret(tempDir, "admin-token", adminToken)
		Expect(err).NotTo(HaveOccurred())

		cfg := &config.Config{
			Targets:  []config.TargetConfig{helpers.DOAJTarget("doaj", doaj.URL, keyFile)},
			Storage:  config.StorageConfig{Type: config.StorageTypePostgres},
			Database: dbConfig,
			API:      config.APIConfig{AdminTokenFile: tokenFile},
		}
		configPath, err := helpers.WriteConfigYAML(tempDir, cfg)
		Expect(err).NotTo(HaveOccurred())

		server = helpers.NewServerTestHelper(ctx, configPath, adminToken)
		Expect(server.StartServer()).To(Succeed())
		DeferCleanup(func() {
			Expect(server.StopServer()).To(Succeed())
		})
		server.WaitForServerReady(30 * time.Second)
	})

	It("should report the database in readiness", func() {
		resp, _, err := server.Do(http.MethodGet, "/readiness", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("should synchronize articles stored in the database", func() {
		report := server.MustUpdate("doaj")
		Expect(report.Identified).To(Equal(2))

		report = server.MustUpdate("doaj")
		Expect(report.Submitted).To(Equal(2))

		rec := server.GetRecord("doaj", "p-1")
		Expect(rec.Status).To(Equal(status.StatusSuccess))
		Expect(rec.ExternalID).To(HavePrefix("doaj-"))
	})

	It("should persist records in the sync tables", func() {
		store, err := state.NewDBStore(conn, "doaj", testclock.NewFakePassiveClock(time.Now()))
		Expect(err).NotTo(HaveOccurred())

		records, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		for _, rec := range records {
			Expect(rec.Status).To(Equal(status.StatusSuccess))
			Expect(rec.SubmitTimestamp).NotTo(BeNil())
			Expect(rec.IdentifyTimestamp).NotTo(BeNil())
		}

		global, err := store.GetGlobal(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(global.LastUpdateTime).NotTo(BeNil())
	})

	It("should pick up articles added to the database", func() {
		Expect(sqlrepo.New(conn).Put(ctx, helpers.NewArticle("p-3", time.Now().Add(-time.Hour)))).To(Succeed())

		report := server.MustUpdate("doaj")
		Expect(report.Identified).To(Equal(1))
		report = server.MustUpdate("doaj")
		Expect(report.Submitted).To(Equal(1))

		summary := server.GetSummary("doaj")
		Expect(summary.Statuses[status.StatusSuccess]).To(Equal(3))
	})
})
