package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperlib/features/document"
	"paperlib/internal/lifecycle"
)

const selectQuery = `SELECT id, title, authors, year, journal, doi, url, abstract, status, metadata_incomplete, crossref_verified, needs_processing, ai_summary, feed_blurb, chemistries, topics, updated_at FROM documents`

var documentColumns = []string{"id", "title", "authors", "year", "journal", "doi", "url", "abstract", "status", "metadata_incomplete", "crossref_verified", "needs_processing", "ai_summary", "feed_blurb", "chemistries", "topics", "updated_at"}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(documentColumns).
			AddRow("smith2020", "Cathode Aging", "{Smith,Jones}", "2020", "J. Power Sources", "", "", "",
				"summarized", false, true, false, "short summary", "", "{NMC}", "{degradation}", time.Now())
		mock.ExpectQuery(regexp.QuoteMeta(selectQuery + ` WHERE id = $1`)).
			WithArgs("smith2020").
			WillReturnRows(rows)

		doc, err := repo.Get(context.Background(), "smith2020")
		require.NoError(t, err)
		assert.Equal(t, "Cathode Aging", doc.Title)
		assert.Equal(t, []string{"Smith", "Jones"}, doc.Authors)
		assert.Equal(t, lifecycle.StatusSummarized, doc.Status)
		assert.Equal(t, []string{"NMC"}, doc.Chemistries)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectQuery + ` WHERE id = $1`)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, document.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	doc := &document.Document{
		ID:          "smith2020",
		Title:       "Cathode Aging",
		Authors:     []string{"Smith"},
		Year:        "2020",
		Journal:     "J. Power Sources",
		Chemistries: []string{"NMC"},
		Topics:      []string{},
		// Lifecycle values on the input never reach the query.
		Status: lifecycle.StatusComplete,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (id, title, authors, year, journal, doi, url, abstract, ai_summary, feed_blurb, chemistries, topics)`)).
		WithArgs(doc.ID, doc.Title, pq.Array(doc.Authors), doc.Year, doc.Journal, "", "", "", "", "", pq.Array(doc.Chemistries), pq.Array(doc.Topics)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Put(context.Background(), doc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Put_EmptyArrays(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	insert := regexp.QuoteMeta(`INSERT INTO documents (id, title, authors, year, journal, doi, url, abstract, ai_summary, feed_blurb, chemistries, topics)`)

	t.Run("RepoBindsNilSlicesAsEmptyArrays", func(t *testing.T) {
		mock.ExpectExec(insert).
			WithArgs("lee2022", "Sodium Anodes", "{}", "2022", "", "", "", "", "", "", "{}", "{}").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Put(context.Background(), &document.Document{ID: "lee2022", Title: "Sodium Anodes", Year: "2022"}))
	})

	t.Run("ServiceStoresRecordWithoutAuthors", func(t *testing.T) {
		svc := document.NewService(repo, &MockChunks{}, &MockLedger{})
		doc := &document.Document{ID: "x", Title: "T", Journal: "J", Year: "2020"}

		mock.ExpectExec(insert).
			WithArgs("x", "T", "{}", "2020", "J", "", "", "", "", "", "{}", "{}").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, svc.Put(context.Background(), doc))
		assert.NotNil(t, doc.Authors)
		assert.False(t, doc.Facts(true, true).BibliographyComplete())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	query := regexp.QuoteMeta(`UPDATE documents SET status = $1, metadata_incomplete = $2, crossref_verified = $3, needs_processing = $4, updated_at = NOW() WHERE id = $5`)

	tests := []struct {
		name     string
		id       string
		affected int64
		wantErr  error
	}{
		{"Updated", "smith2020", 1, nil},
		{"NotFound", "missing", 0, document.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec(query).
				WithArgs("complete", false, true, false, tt.id).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.UpdateLifecycle(context.Background(), tt.id, lifecycle.Classification{
				Status:           lifecycle.StatusComplete,
				CrossrefVerified: true,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) FROM documents GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("complete", 4).
			AddRow("incomplete", 2))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[lifecycle.StatusComplete])
	assert.Equal(t, 2, counts[lifecycle.StatusIncomplete])
	assert.Zero(t, counts[lifecycle.StatusSummarized])
}
