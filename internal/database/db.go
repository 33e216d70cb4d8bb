package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jgoulah/flowmeter/internal/schema"
	"github.com/jgoulah/flowmeter/pkg/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a delete targets a row that does not exist
var ErrNotFound = errors.New("not found")

// StorageError wraps a failure of the underlying storage engine
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// DB wraps the database connection and the schema it was built from
type DB struct {
	conn   *sql.DB
	path   string
	schema *schema.Schema
	logger *zap.Logger

	existed bool // file was present before the connection was opened
}

// ObjectStatus reports whether a declared table or view can be queried
type ObjectStatus struct {
	Name string
	Err  error
}

// OK reports whether the object was queryable
func (s ObjectStatus) OK() bool {
	return s.Err == nil
}

// New opens the database file and makes sure it matches the schema
func New(ctx context.Context, dbPath string, s *schema.Schema, logger *zap.Logger) (*DB, error) {
	db, err := Open(dbPath, s, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Open opens the database file without touching the schema
func Open(dbPath string, s *schema.Schema, logger *zap.Logger) (*DB, error) {
	if s == nil {
		return nil, errors.New("opening database: nil schema")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	_, statErr := os.Stat(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One long-lived handle; SQLite has a single writer anyway
	conn.SetMaxOpenConns(1)

	return &DB{
		conn:    conn,
		path:    dbPath,
		schema:  s,
		logger:  logger,
		existed: statErr == nil,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Initialize creates tables, triggers and views when the file is new or any
// declared object cannot be queried
func (db *DB) Initialize(ctx context.Context) error {
	if db.existed && consistent(db.Check(ctx)) {
		db.logger.Debug("database is consistent", zap.String("path", db.path))
		return nil
	}

	if db.existed {
		db.logger.Warn("database is inconsistent, recreating schema objects", zap.String("path", db.path))
	} else {
		db.logger.Info("creating database", zap.String("path", db.path), zap.String("schema", db.schema.Source()))
	}

	if err := db.create(ctx); err != nil {
		return err
	}
	db.existed = true

	for _, status := range db.Check(ctx) {
		if !status.OK() {
			return storageErr("verifying "+status.Name, status.Err)
		}
	}
	return nil
}

// Check probes every declared table and view
func (db *DB) Check(ctx context.Context) []ObjectStatus {
	objects := db.schema.Objects()
	statuses := make([]ObjectStatus, 0, len(objects))
	for _, name := range objects {
		// Names are validated identifiers, so formatting them in is safe
		rows, err := db.conn.QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", name))
		if err == nil {
			err = rows.Close()
		}
		if err != nil {
			db.logger.Debug("object not queryable", zap.String("object", name), zap.Error(err))
		}
		statuses = append(statuses, ObjectStatus{Name: name, Err: err})
	}
	return statuses
}

func consistent(statuses []ObjectStatus) bool {
	for _, s := range statuses {
		if !s.OK() {
			return false
		}
	}
	return true
}

func (db *DB) create(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning schema transaction", err)
	}
	defer tx.Rollback()

	for _, stmt := range db.schema.DDL() {
		db.logger.Debug("executing ddl", zap.String("sql", stmt))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storageErr("creating schema", fmt.Errorf("%s: %w", stmt, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing schema", err)
	}
	return nil
}

func (db *DB) statement(name string) (string, error) {
	return db.schema.Statement(name)
}

func readingStatement(op string, kind models.Kind) string {
	switch op {
	case "all":
		return fmt.Sprintf("all_%s_readings", kind)
	default:
		return fmt.Sprintf("%s_%s_reading", op, kind)
	}
}

// InsertReading stores a reading and returns its id
func (db *DB) InsertReading(ctx context.Context, kind models.Kind, ts time.Time, value float64) (int64, error) {
	query, err := db.statement(readingStatement("insert", kind))
	if err != nil {
		return 0, err
	}

	res, err := db.conn.ExecContext(ctx, query, ts.Local().Format(models.TimestampLayout), value)
	if err != nil {
		return 0, storageErr(fmt.Sprintf("inserting %s reading", kind), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(fmt.Sprintf("reading id of %s reading", kind), err)
	}

	db.logger.Info("reading stored",
		zap.Stringer("kind", kind),
		zap.Int64("id", id),
		zap.Float64("value", value),
	)
	return id, nil
}

// LastReading returns the most recent reading, or nil if there is none
func (db *DB) LastReading(ctx context.Context, kind models.Kind) (*models.Reading, error) {
	query, err := db.statement(readingStatement("last", kind))
	if err != nil {
		return nil, err
	}

	var tsStr string
	reading := models.Reading{Kind: kind}
	err = db.conn.QueryRowContext(ctx, query).Scan(&reading.ID, &tsStr, &reading.Value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying last %s reading", kind), err)
	}

	reading.Timestamp, err = parseTimestamp(tsStr)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying last %s reading", kind), err)
	}
	return &reading, nil
}

// ListReadings returns all readings of a kind, oldest first
func (db *DB) ListReadings(ctx context.Context, kind models.Kind) ([]models.Reading, error) {
	query, err := db.statement(readingStatement("all", kind))
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying %s readings", kind), err)
	}
	defer rows.Close()

	var results []models.Reading
	for rows.Next() {
		var tsStr string
		reading := models.Reading{Kind: kind}
		if err := rows.Scan(&reading.ID, &tsStr, &reading.Value); err != nil {
			return nil, storageErr("scanning row", err)
		}

		reading.Timestamp, err = parseTimestamp(tsStr)
		if err != nil {
			return nil, storageErr(fmt.Sprintf("querying %s readings", kind), err)
		}
		results = append(results, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(fmt.Sprintf("querying %s readings", kind), err)
	}
	return results, nil
}

// DeleteReading removes a single reading
func (db *DB) DeleteReading(ctx context.Context, kind models.Kind, id int64) error {
	query, err := db.statement(readingStatement("delete", kind))
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return storageErr(fmt.Sprintf("deleting %s reading %d", kind, id), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s reading %d: %w", kind, id, ErrNotFound)
	}

	db.logger.Info("reading deleted", zap.Stringer("kind", kind), zap.Int64("id", id))
	return nil
}

// DeleteAllReadings empties every reading table
func (db *DB) DeleteAllReadings(ctx context.Context) error {
	query, err := db.statement("delete_all_readings")
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("deleting all readings", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return storageErr("deleting all readings", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("deleting all readings", err)
	}

	db.logger.Info("all readings deleted")
	return nil
}

// UpsertProvider inserts the contract or updates the existing one for its type
func (db *DB) UpsertProvider(ctx context.Context, p models.Provider) error {
	query, err := db.statement("upsert_provider")
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx, query, p.EnergyType.String(), p.AnnualEnergy, p.StartDate.Format(models.DateLayout))
	if err != nil {
		return storageErr(fmt.Sprintf("saving %s provider", p.EnergyType), err)
	}

	db.logger.Info("provider saved",
		zap.Stringer("energy_type", p.EnergyType),
		zap.Int64("annual_energy", p.AnnualEnergy),
		zap.String("start_date", p.StartDate.Format(models.DateLayout)),
	)
	return nil
}

// GetProvider returns the contract for an energy type, or nil if none is stored
func (db *DB) GetProvider(ctx context.Context, kind models.Kind) (*models.Provider, error) {
	query, err := db.statement("get_provider")
	if err != nil {
		return nil, err
	}

	p, err := scanProvider(db.conn.QueryRowContext(ctx, query, kind.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying %s provider", kind), err)
	}
	return p, nil
}

// ListProviders returns every stored contract ordered by energy type
func (db *DB) ListProviders(ctx context.Context) ([]models.Provider, error) {
	query, err := db.statement("all_providers")
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("querying providers", err)
	}
	defer rows.Close()

	var results []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, storageErr("scanning provider", err)
		}
		results = append(results, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("querying providers", err)
	}
	return results, nil
}

// DeleteProvider removes the contract for an energy type
func (db *DB) DeleteProvider(ctx context.Context, kind models.Kind) error {
	query, err := db.statement("delete_provider")
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, query, kind.String())
	if err != nil {
		return storageErr(fmt.Sprintf("deleting %s provider", kind), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s provider: %w", kind, ErrNotFound)
	}

	db.logger.Info("provider deleted", zap.Stringer("energy_type", kind))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProvider(row scanner) (*models.Provider, error) {
	var energyType, startDate string
	var p models.Provider
	if err := row.Scan(&energyType, &p.AnnualEnergy, &startDate); err != nil {
		return nil, err
	}

	kind, err := models.ParseKind(energyType)
	if err != nil {
		return nil, err
	}
	p.EnergyType = kind

	p.StartDate, err = time.ParseInLocation(models.DateLayout, startDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	return &p, nil
}

func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.ParseInLocation(models.TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return ts, nil
}
