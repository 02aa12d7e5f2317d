package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/sensor"
)

func sampleMeasurement(t *testing.T) sensor.Measurement {
	t.Helper()
	m, ok := sensor.Parse("CO2=955,HUM=46.3,TMP=32.0")
	require.True(t, ok)
	m.Set(sensor.FieldTime, "2026-10-19T10:00:00")
	return m
}

const sampleFieldsJSON = `{"co2":"955","humidity":"46.3","temperature":"32.0","time":"2026-10-19T10:00:00"}`

func setupMockStorage(t *testing.T, d dialect) (*sql.DB, sqlmock.Sqlmock, *sqlStorage) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, newSQLStorage(db, d)
}

func TestSQLStorage_Store(t *testing.T) {
	for _, d := range []dialect{mysqlDialect, postgresDialect, sqliteDialect} {
		t.Run(d.name, func(t *testing.T) {
			db, mock, s := setupMockStorage(t, d)
			defer db.Close()

			mock.ExpectExec(regexp.QuoteMeta(d.insertSQL)).
				WithArgs("955", "46.3", "32.0", "2026-10-19T10:00:00", sampleFieldsJSON).
				WillReturnResult(sqlmock.NewResult(1, 1))

			require.NoError(t, s.Store(sampleMeasurement(t)))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStorage_StoreError(t *testing.T) {
	db, mock, s := setupMockStorage(t, postgresDialect)
	defer db.Close()

	mock.ExpectExec("INSERT INTO measurements").WillReturnError(errors.New("connection reset"))

	err := s.Store(sampleMeasurement(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PostgreSQL")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorage_InitDatabase(t *testing.T) {
	db, mock, s := setupMockStorage(t, postgresDialect)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS measurements").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.InitDatabase())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorage_CloseIdempotent(t *testing.T) {
	db, mock, s := setupMockStorage(t, mysqlDialect)
	mock.ExpectClose()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
	_ = db
}

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	s, err := NewDatabaseStorage(config.DatabaseStorageConfig{Type: "sqlite", DSN: path})
	require.NoError(t, err)

	require.NoError(t, s.Store(sampleMeasurement(t)))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var co2, fields string
	require.NoError(t, db.QueryRow("SELECT co2, fields FROM measurements").Scan(&co2, &fields))
	assert.Equal(t, "955", co2)
	assert.JSONEq(t, sampleFieldsJSON, fields)
}

func TestNewDatabaseStorage_Unsupported(t *testing.T) {
	_, err := NewDatabaseStorage(config.DatabaseStorageConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestParseMySQLDSN(t *testing.T) {
	db, server, err := parseMySQLDSN("user:pw@tcp(localhost:3306)/sensors?parseTime=true")
	require.NoError(t, err)
	assert.Equal(t, "sensors", db)
	assert.Equal(t, "user:pw@tcp(localhost:3306)/?parseTime=true", server)

	_, _, err = parseMySQLDSN("nodatabase")
	assert.Error(t, err)
}

func TestParsePostgreSQLDSN(t *testing.T) {
	db, server, err := parsePostgreSQLDSN("postgres://u:p@localhost:5432/sensors?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "sensors", db)
	assert.Equal(t, "postgres://u:p@localhost:5432/postgres?sslmode=disable", server)

	db, server, err = parsePostgreSQLDSN("host=localhost user=u dbname=sensors")
	require.NoError(t, err)
	assert.Equal(t, "sensors", db)
	assert.Equal(t, "host=localhost user=u dbname=postgres", server)

	_, _, err = parsePostgreSQLDSN("host=localhost")
	assert.Error(t, err)
}

type fakeBackend struct {
	stored []sensor.Measurement
	err    error
	closed bool
}

func (b *fakeBackend) Store(m sensor.Measurement) error {
	if b.err != nil {
		return b.err
	}
	b.stored = append(b.stored, m)
	return nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func TestManager_FanOutContinuesOnError(t *testing.T) {
	failing := &fakeBackend{err: errors.New("down")}
	ok := &fakeBackend{}
	m := NewManager(failing)
	m.AddBackend(ok)
	assert.Equal(t, 2, m.Len())

	err := m.Store(sampleMeasurement(t))
	assert.Error(t, err)
	assert.Len(t, ok.stored, 1)

	m.Close()
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
	assert.Zero(t, m.Len())
}
