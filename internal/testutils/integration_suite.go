package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"paperlib/internal/config"
)

// IntegrationSuite runs Postgres and Weaviate in containers for tests that
// need the real backends.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client

	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	pgHost            string
	pgPort            int
	weaviateHost      string
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// MigrationPath is the file:// URL of the repository's migrations.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("paperlib_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)
	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	s.pgHost, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.pgPort, err = strconv.Atoi(pgPort.Port())
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.25.0",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = weaviateC

	host, err := weaviateC.Host(ctx)
	require.NoError(s.T, err)
	port, err := weaviateC.MappedPort(ctx, "8080")
	require.NoError(s.T, err)
	s.weaviateHost = fmt.Sprintf("%s:%s", host, port.Port())

	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

// GetAppConfig returns a config pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	dir := s.T.TempDir()
	return &config.Config{
		DBHost:                     s.pgHost,
		DBPort:                     s.pgPort,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "paperlib_test",
		ChunkIndexBackend:          "weaviate",
		WeaviateHost:               s.weaviateHost,
		WeaviateScheme:             "http",
		ContentDir:                 filepath.Join(dir, "papers"),
		VocabularyPath:             filepath.Join(dir, "vocabulary.yaml"),
		QueryLogPath:               filepath.Join(dir, "query.log"),
		MigrationPath:              MigrationPath(),
		GenerationModel:            "gemini-1.5-flash",
		SyncBatchSize:              100,
		SyncConcurrency:            4,
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		s.weaviateContainer.Terminate(ctx)
	}
}
