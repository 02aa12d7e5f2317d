package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/eddielth/co2-sensor/logger"
)

var mysqlDialect = dialect{
	name: "MySQL",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS measurements (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		co2 VARCHAR(32) NOT NULL,
		humidity VARCHAR(32) NOT NULL,
		temperature VARCHAR(32) NOT NULL,
		recorded_at VARCHAR(64),
		fields JSON,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	insertSQL: `INSERT INTO measurements (co2, humidity, temperature, recorded_at, fields) VALUES (?, ?, ?, ?, ?)`,
}

// NewMySQLStorage connects to MySQL, creating the database and table if needed
func NewMySQLStorage(dsn string) (DatabaseStorage, error) {
	database, serverDSN, err := parseMySQLDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse MySQL DSN failed: %w", err)
	}

	serverDB, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to MySQL server failed: %w", err)
	}
	defer serverDB.Close()

	_, err = serverDB.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", database))
	if err != nil {
		return nil, fmt.Errorf("create database failed: %w", err)
	}
	logger.Info("MySQL database %s exists", database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to MySQL database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("MySQL ping failed: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Minute * 5)

	storage := newSQLStorage(db, mysqlDialect)
	if err := storage.InitDatabase(); err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

// parseMySQLDSN splits "user:pass@tcp(host)/db?params" into the database
// name and a DSN for the server without a database.
func parseMySQLDSN(dsn string) (database string, serverDSN string, err error) {
	parts := strings.Split(dsn, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid DSN, cannot extract database name")
	}

	dbParts := strings.SplitN(parts[len(parts)-1], "?", 2)
	database = dbParts[0]
	if database == "" {
		return "", "", fmt.Errorf("invalid DSN, empty database name")
	}

	serverDSN = strings.Join(parts[:len(parts)-1], "/") + "/"
	if len(dbParts) > 1 {
		serverDSN += "?" + dbParts[1]
	}
	return database, serverDSN, nil
}
