package storage

import (
	"database/sql"
	"fmt"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/sensor"
)

// DatabaseType names a SQL backend
type DatabaseType string

const (
	// MySQL
	MySQL DatabaseType = "mysql"
	// PostgreSQL
	PostgreSQL DatabaseType = "postgresql"
	// SQLite
	SQLite DatabaseType = "sqlite"
)

// DatabaseStorage is a StorageBackend backed by SQL
type DatabaseStorage interface {
	StorageBackend
	// InitDatabase creates the schema if needed
	InitDatabase() error
}

// NewDatabaseStorage opens the configured SQL backend
func NewDatabaseStorage(cfg config.DatabaseStorageConfig) (DatabaseStorage, error) {
	switch DatabaseType(cfg.Type) {
	case MySQL:
		return NewMySQLStorage(cfg.DSN)
	case PostgreSQL:
		return NewPostgreSQLStorage(cfg.DSN)
	case SQLite:
		return NewSQLiteStorage(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// dialect holds the statements that differ between databases.
type dialect struct {
	name      string
	schema    []string
	insertSQL string
}

// sqlStorage implements DatabaseStorage for any dialect.
type sqlStorage struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStorage(db *sql.DB, d dialect) *sqlStorage {
	return &sqlStorage{db: db, dialect: d}
}

// InitDatabase creates the measurements table
func (s *sqlStorage) InitDatabase() error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create %s schema failed: %w", s.dialect.name, err)
		}
	}
	logger.Info("%s measurements table ready", s.dialect.name)
	return nil
}

// Store inserts one measurement. The three sensor fields get their own
// columns; the full ordered record is kept as JSON.
func (s *sqlStorage) Store(m sensor.Measurement) error {
	fields, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serialize measurement failed: %w", err)
	}

	co2, _ := m.Get(sensor.FieldCO2)
	humidity, _ := m.Get(sensor.FieldHumidity)
	temperature, _ := m.Get(sensor.FieldTemperature)
	recordedAt, _ := m.Get(sensor.FieldTime)

	if _, err := s.db.Exec(s.dialect.insertSQL, co2, humidity, temperature, recordedAt, string(fields)); err != nil {
		return fmt.Errorf("insert into %s failed: %w", s.dialect.name, err)
	}

	logger.Debug("stored measurement in %s", s.dialect.name)
	return nil
}

// Close closes the database connection
func (s *sqlStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close %s failed: %w", s.dialect.name, err)
	}
	logger.Info("%s connection closed", s.dialect.name)
	return nil
}
