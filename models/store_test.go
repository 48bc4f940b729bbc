package models

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vectorsearch/listings/app/database"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// --- Helpers ---

// newMockPool returns a pool whose statements run against sqlmock. Every
// expectation must be met by the end of the test.
func newMockPool(t *testing.T) (*database.Pool, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger, _ := logtest.NewNullLogger()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               database.NewGormLogger(logger),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return database.NewPool(db), mock
}

func productColumns() []string {
	return []string{"id", "title", "description", "category", "price", "brand", "condition", "color"}
}

func searchRows(n int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"search_results"})
	for i := 1; i <= n; i++ {
		rows.AddRow([]byte(fmt.Sprintf(
			`{"id": %d, "title": "Lamp %d", "price": "19.99", "similarity_score": %.2f}`,
			i, i, 1-float64(i)/100,
		)))
	}
	return rows
}

const searchColumnsArray = `{"id","title","description","category","price","brand","condition","color"}`

// --- Tests: repository statements ---

func TestGetByIDStatement(t *testing.T) {
	t.Run("Row is returned", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectQuery(`SELECT \* FROM "products" WHERE "products"."id" = \$1`).
			WillReturnRows(sqlmock.NewRows(productColumns()).
				AddRow(7, "Lamp", "Desk lamp", "Home", "19.99", "Acme", "new", "black"))

		product, err := NewProductsRepository(pool).GetByID(context.Background(), 7)

		require.NoError(t, err)
		expected := lampProduct()
		expected.ID = 7
		assert.Equal(t, &expected, product)
	})

	t.Run("Empty result is not found", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectQuery(`SELECT \* FROM "products" WHERE "products"."id" = \$1`).
			WillReturnRows(sqlmock.NewRows(productColumns()))

		product, err := NewProductsRepository(pool).GetByID(context.Background(), 99)

		assert.Nil(t, product)
		assert.ErrorIs(t, err, ErrProductNotFound)
		assert.NotErrorIs(t, err, database.ErrConnection)
	})
}

func TestListStatement(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectQuery(`SELECT \* FROM "products" ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(productColumns()))

	products, err := NewProductsRepository(pool).List(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestCreateStatement(t *testing.T) {
	t.Run("Store assigns the id", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "products"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		mock.ExpectCommit()

		lamp := lampProduct()
		lamp.ID = 5
		id, err := NewProductsRepository(pool).Create(context.Background(), &lamp)

		require.NoError(t, err)
		assert.Equal(t, uint(42), id)
		assert.Equal(t, uint(42), lamp.ID)
	})

	t.Run("Rejected row is a constraint violation", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "products"`).
			WillReturnError(&pgconn.PgError{Code: "23502", Message: `null value in column "title"`})
		mock.ExpectRollback()

		lamp := lampProduct()
		_, err := NewProductsRepository(pool).Create(context.Background(), &lamp)

		assert.ErrorIs(t, err, ErrConstraintViolation)
		assert.Equal(t, uint(0), lamp.ID)
	})
}

func TestUpdateStatement(t *testing.T) {
	testCases := []struct {
		name        string
		affected    int64
		expectedErr error
	}{
		{name: "Every field is replaced", affected: 1},
		{name: "No matching row is not found", affected: 0, expectedErr: ErrProductNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool, mock := newMockPool(t)
			mock.ExpectBegin()
			mock.ExpectExec(`UPDATE "products" SET`).
				WithArgs("Acme", "Home", "black", "new", "Desk lamp", "19.99", "Lamp", 7).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))
			mock.ExpectCommit()

			lamp := lampProduct()
			lamp.ID = 7
			err := NewProductsRepository(pool).Update(context.Background(), lamp)

			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestDeleteStatement(t *testing.T) {
	testCases := []struct {
		name        string
		affected    int64
		expectedErr error
	}{
		{name: "Row is removed", affected: 1},
		{name: "No matching row is not found", affected: 0, expectedErr: ErrProductNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool, mock := newMockPool(t)
			mock.ExpectBegin()
			mock.ExpectExec(`DELETE FROM "products" WHERE "products"."id" = \$1`).
				WithArgs(9).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))
			mock.ExpectCommit()

			err := NewProductsRepository(pool).Delete(context.Background(), 9)

			if tc.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

// --- Tests: search statement ---

func TestSearchStatement(t *testing.T) {
	t.Run("Arguments are forwarded and results capped", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT search_results FROM vectorize.search(")).
			WithArgs(DefaultSearchJob, "  Desk LAMP ", searchColumnsArray, MaxSearchResults).
			WillReturnRows(searchRows(12))

		results, err := NewSearcher(pool, "").Search(context.Background(), "  Desk LAMP ")

		require.NoError(t, err)
		require.Len(t, results, MaxSearchResults)
		for i, res := range results {
			assert.Equal(t, uint(i+1), res.ID, "Ranking order is kept")
		}
		assert.Equal(t, "Lamp 1", results[0].Title)
		assert.InDelta(t, 0.99, results[0].SimilarityScore, 1e-9)
	})

	t.Run("Configured job name is used", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectQuery(regexp.QuoteMeta("vectorize.search(")).
			WithArgs("listings_job", "chair", searchColumnsArray, MaxSearchResults).
			WillReturnRows(searchRows(2))

		results, err := NewSearcher(pool, "listings_job").Search(context.Background(), "chair")

		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("Malformed envelope is a ranking error", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectQuery(regexp.QuoteMeta("vectorize.search(")).
			WillReturnRows(sqlmock.NewRows([]string{"search_results"}).
				AddRow([]byte(`{"id": 1, "similarity_score": 0.9}`)).
				AddRow([]byte(`{"id": "two"}`)))

		results, err := NewSearcher(pool, "").Search(context.Background(), "lamp")

		assert.Nil(t, results)
		assert.ErrorIs(t, err, ErrRankingFunction)
	})

	t.Run("Function error is a ranking error", func(t *testing.T) {
		pool, mock := newMockPool(t)
		mock.ExpectQuery(regexp.QuoteMeta("vectorize.search(")).
			WillReturnError(errors.New(`job "product_search_openai" does not exist`))

		results, err := NewSearcher(pool, "").Search(context.Background(), "lamp")

		assert.Nil(t, results)
		assert.ErrorIs(t, err, ErrRankingFunction)
		assert.NotErrorIs(t, err, database.ErrConnection)
	})
}

func TestCreateSearchJobStatement(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta("SELECT vectorize.table(")).
		WithArgs(
			DefaultSearchJob,
			"products",
			"id",
			`{"title","description","category","brand","condition","color"}`,
			DefaultTransformer,
			"realtime",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewSearcher(pool, "").CreateSearchJob(context.Background(), ""))
}
