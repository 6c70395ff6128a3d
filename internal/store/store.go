// Package store persists flight listings in a single-file SQLite table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kjstillabower/flight-listing-service/internal/apperr"
	"github.com/kjstillabower/flight-listing-service/internal/models"
	"github.com/kjstillabower/flight-listing-service/internal/observability"
	"github.com/kjstillabower/flight-listing-service/internal/query"
)

// Options configures Open.
type Options struct {
	Path         string
	MaxOpenConns int           // default 4
	BusyTimeout  time.Duration // default 5s
}

// Store is the row store adapter. It is safe for concurrent use; the handle
// is shared by every component that reads or replaces listings.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates the SQLite file at opts.Path and ensures the schema.
// The file uses a rollback journal (not WAL) so the single file always holds
// the full committed dataset.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", apperr.ErrStorageUnavailable)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 4
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create directory: %w", apperr.ErrStorageUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", apperr.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	s := &Store{db: db, path: opts.Path, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store opened", zap.String("path", opts.Path), zap.Int("max_open_conns", opts.MaxOpenConns))
	return s, nil
}

// dsn builds a modernc DSN that applies pragmas to every pooled connection.
// _txlock=immediate takes the write lock at BEGIN so a replace never has to
// upgrade a shared lock while readers are active.
func dsn(opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(DELETE)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + uriPathEscaper.Replace(opts.Path) + "?" + q.Encode()
}

// uriPathEscaper escapes the characters SQLite's URI parser treats specially
// in a file: path. SQLite decodes %HH in the path back to the raw byte.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

const schema = `
CREATE TABLE IF NOT EXISTS flights (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	date TEXT NOT NULL,
	origin TEXT NOT NULL,
	destination TEXT NOT NULL,
	airline TEXT NOT NULL,
	duration TEXT NOT NULL,
	flight_type TEXT NOT NULL,
	price_inr INTEGER NOT NULL,
	origin_country TEXT NOT NULL,
	destination_country TEXT NOT NULL,
	link TEXT NOT NULL,
	rain_probability REAL NOT NULL CHECK (rain_probability >= 0 AND rain_probability <= 1),
	free_meal INTEGER NOT NULL,
	min_checked_luggage_price INTEGER,
	min_checked_luggage_weight TEXT,
	total_with_min_luggage INTEGER,
	CHECK ((min_checked_luggage_price IS NULL) = (min_checked_luggage_weight IS NULL)
		AND (min_checked_luggage_price IS NULL) = (total_with_min_luggage IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_flights_price ON flights(price_inr, uuid);
CREATE INDEX IF NOT EXISTS idx_flights_date ON flights(date, uuid);
CREATE INDEX IF NOT EXISTS idx_flights_route ON flights(origin, destination);
CREATE INDEX IF NOT EXISTS idx_flights_airline ON flights(airline);
`

func (s *Store) createSchema(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %w", apperr.ErrStorageOperationFailed, err)
	}
	return nil
}

// conn acquires one pooled connection. Failure here is the only path to
// ErrStorageUnavailable; failures after it are operation failures.
func (s *Store) conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageUnavailable, err)
	}
	return conn, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that a connection can be obtained and the file answers queries.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrStorageUnavailable, err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the flights matching f in the order given by sort.
// limit <= 0 returns every matching row from offset on.
func (s *Store) Load(ctx context.Context, f query.Filter, sort query.Sort, limit, offset int) (flights []models.Flight, err error) {
	defer observeOp("load", time.Now(), &err)

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stmt := query.Select(f, sort, limit, offset)
	rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query flights: %w", apperr.ErrStorageOperationFailed, err)
	}
	defer func() { _ = rows.Close() }()

	flights = make([]models.Flight, 0, max(limit, 0))
	for rows.Next() {
		fl, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %w", apperr.ErrStorageOperationFailed, err)
		}
		flights = append(flights, fl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %w", apperr.ErrStorageOperationFailed, err)
	}
	return flights, nil
}

// Count returns the number of flights matching f.
func (s *Store) Count(ctx context.Context, f query.Filter) (n int64, err error) {
	defer observeOp("count", time.Now(), &err)

	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	stmt := query.Count(f)
	if err := conn.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count flights: %w", apperr.ErrStorageOperationFailed, err)
	}
	return n, nil
}

const insertSQL = `
INSERT INTO flights (
	uuid, date, origin, destination, airline, duration, flight_type, price_inr,
	origin_country, destination_country, link, rain_probability, free_meal,
	min_checked_luggage_price, min_checked_luggage_weight, total_with_min_luggage
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ReplaceAll deletes every row and inserts flights in one transaction.
// Readers observe either the previous dataset or the new one. Any insert
// failure rolls the whole replace back; constraint violations are reported
// as ErrInvalidRecord.
func (s *Store) ReplaceAll(ctx context.Context, flights []models.Flight) (inserted int, err error) {
	defer observeOp("replace_all", time.Now(), &err)

	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", apperr.ErrStorageOperationFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+query.Table); err != nil {
		return 0, fmt.Errorf("%w: delete flights: %w", apperr.ErrStorageOperationFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare insert: %w", apperr.ErrStorageOperationFailed, err)
	}
	defer stmt.Close()

	for i, fl := range flights {
		if _, err := stmt.ExecContext(ctx,
			fl.UUID, fl.Date, fl.Origin, fl.Destination, fl.Airline, fl.Duration, fl.FlightType, fl.PriceINR,
			fl.OriginCountry, fl.DestinationCountry, fl.Link, fl.RainProbability, fl.FreeMeal,
			nullInt(fl.MinCheckedLuggagePrice), nullString(fl.MinCheckedLuggageWeight), nullInt(fl.TotalWithMinLuggage),
		); err != nil {
			if isConstraint(err) {
				return 0, fmt.Errorf("%w: record %d (uuid %s): %w", apperr.ErrInvalidRecord, i, fl.UUID, err)
			}
			return 0, fmt.Errorf("%w: insert record %d: %w", apperr.ErrStorageOperationFailed, i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", apperr.ErrStorageOperationFailed, err)
	}
	s.logger.Info("flights replaced", zap.Int("inserted", inserted))
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanFlight reads one row selected with query.Columns.
func scanFlight(r rowScanner) (models.Flight, error) {
	var fl models.Flight
	var luggagePrice, luggageTotal sql.NullInt64
	var luggageWeight sql.NullString
	err := r.Scan(
		&fl.ID, &fl.UUID, &fl.Date, &fl.Origin, &fl.Destination, &fl.Airline, &fl.Duration,
		&fl.FlightType, &fl.PriceINR, &fl.OriginCountry, &fl.DestinationCountry, &fl.Link,
		&fl.RainProbability, &fl.FreeMeal,
		&luggagePrice, &luggageWeight, &luggageTotal,
	)
	if err != nil {
		return models.Flight{}, err
	}
	if luggagePrice.Valid && luggageWeight.Valid && luggageTotal.Valid {
		price := int(luggagePrice.Int64)
		weight := luggageWeight.String
		total := int(luggageTotal.Int64)
		fl.MinCheckedLuggagePrice = &price
		fl.MinCheckedLuggageWeight = &weight
		fl.TotalWithMinLuggage = &total
	}
	return fl, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// isConstraint reports whether err is a SQLite constraint violation
// (NOT NULL, CHECK, UNIQUE). Extended codes share the primary code in the low byte.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func observeOp(op string, start time.Time, errp *error) {
	status := "success"
	if *errp != nil {
		status = string(apperr.Categorize(*errp))
	}
	observability.StorageOperationsTotal.WithLabelValues(op, status).Inc()
	observability.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
