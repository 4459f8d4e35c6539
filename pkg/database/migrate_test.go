package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newsdesk/pkg/config"
)

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	migrations := fstest.MapFS{
		"0002_sections.up.sql":   {Data: []byte("CREATE TABLE sections (id TEXT)")},
		"0001_articles.up.sql":   {Data: []byte("CREATE TABLE articles (id TEXT)")},
		"0001_articles.down.sql": {Data: []byte("DROP TABLE articles")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(selectMigrated)).
		WithArgs("0001_articles.up.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(regexp.QuoteMeta(selectMigrated)).
		WithArgs("0002_sections.up.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE sections")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertMigrated)).
		WithArgs("0002_sections.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), sqlxDB, migrations, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"0002_sections.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackFailedFile(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	migrations := fstest.MapFS{
		"0001_articles.up.sql": {Data: []byte("CREATE TABLE articles (id TEXT)")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectMigrated)).
		WithArgs("0001_articles.up.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE articles")).
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	applied, err := Migrate(context.Background(), sqlxDB, migrations, nil)
	require.Error(t, err)
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "news", Password: "p@ss word", Name: "newsdesk", SSLMode: "disable"})
	assert.Equal(t, "postgres://news:p%40ss%20word@db:5432/newsdesk?application_name=newsdesk&sslmode=disable", dsn)
}
