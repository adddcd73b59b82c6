package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"imovel-monitor/internal/models"
)

type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname, sslmode string) (*DB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// NewDBFromConn wraps an open connection pool
func NewDBFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the listings and run_records tables if they don't exist
func (db *DB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS listings (
		id VARCHAR(36) PRIMARY KEY,
		agency VARCHAR(100) NOT NULL,
		external_code VARCHAR(100) NOT NULL,
		deal_type VARCHAR(10) NOT NULL,
		title TEXT NOT NULL,
		property_type VARCHAR(50),
		price VARCHAR(100),
		area VARCHAR(50),
		bedrooms VARCHAR(10),
		bathrooms VARCHAR(10),
		parking_spaces VARCHAR(10),
		address TEXT,
		neighborhood VARCHAR(150),
		url TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		deactivated_at TIMESTAMP,
		collected_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_listing_key ON listings(agency, external_code, deal_type);
	CREATE INDEX IF NOT EXISTS idx_collected_at ON listings(collected_at DESC);
	CREATE INDEX IF NOT EXISTS idx_listings_deal_type ON listings(deal_type);

	CREATE TABLE IF NOT EXISTS run_records (
		id SERIAL PRIMARY KEY,
		run_uuid VARCHAR(36) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'RUNNING',
		collected_count INTEGER NOT NULL DEFAULT 0,
		new_count INTEGER NOT NULL DEFAULT 0,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_started_at ON run_records(started_at DESC);
	`
	_, err := db.conn.Exec(query)
	return err
}

const listingColumns = `id, agency, external_code, deal_type, title, property_type, price, area,
	bedrooms, bathrooms, parking_spaces, address, neighborhood, url,
	active, deactivated_at, collected_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var deactivatedAt sql.NullTime
	var propertyType, price, area, bedrooms, bathrooms, parking, address, neighborhood, url sql.NullString
	err := row.Scan(
		&l.ID, &l.Agency, &l.ExternalCode, &l.DealType, &l.Title,
		&propertyType, &price, &area, &bedrooms, &bathrooms, &parking, &address, &neighborhood, &url,
		&l.Active, &deactivatedAt, &l.CollectedAt,
	)
	if err != nil {
		return nil, err
	}
	l.PropertyType = propertyType.String
	l.Price = price.String
	l.Area = area.String
	l.Bedrooms = bedrooms.String
	l.Bathrooms = bathrooms.String
	l.ParkingSpaces = parking.String
	l.Address = address.String
	l.Neighborhood = neighborhood.String
	l.URL = url.String
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		l.DeactivatedAt = &t
	}
	return &l, nil
}

// FindByKey looks a listing up by its natural key, active or not
func (db *DB) FindByKey(ctx context.Context, key models.ListingKey) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE agency = $1 AND external_code = $2 AND deal_type = $3`

	l, err := scanListing(db.conn.QueryRowContext(ctx, query, key.Agency, key.ExternalCode, key.DealType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// Insert stores a new listing; an existing key is left untouched
func (db *DB) Insert(ctx context.Context, l *models.Listing) (bool, error) {
	l.EnsureID()
	query := `
	INSERT INTO listings (` + listingColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (agency, external_code, deal_type) DO NOTHING
	`
	res, err := db.conn.ExecContext(ctx, query,
		l.ID, l.Agency, l.ExternalCode, l.DealType, l.Title,
		l.PropertyType, l.Price, l.Area, l.Bedrooms, l.Bathrooms, l.ParkingSpaces,
		l.Address, l.Neighborhood, l.URL,
		l.Active, l.DeactivatedAt, l.CollectedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// whereClause renders f as a WHERE clause with positional parameters
func whereClause(f ListingFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if !f.IncludeInactive {
		conds = append(conds, "active = TRUE")
	}
	if f.DealType != "" {
		add("deal_type = ?", string(f.DealType))
	}
	if f.PropertyType != "" {
		add("LOWER(property_type) = LOWER(?)", f.PropertyType)
	}
	if f.Agency != "" {
		add("LOWER(agency) = LOWER(?)", f.Agency)
	}
	if f.Neighborhood != "" {
		add("(neighborhood ILIKE ? OR address ILIKE ?)", "%"+f.Neighborhood+"%")
	}
	if f.Since != nil {
		add("collected_at >= ?", *f.Since)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns matching listings, newest first
func (db *DB) List(ctx context.Context, f ListingFilters, limit int) ([]models.Listing, error) {
	where, args := whereClause(f)
	query := `SELECT ` + listingColumns + ` FROM listings` + where + ` ORDER BY collected_at DESC, id ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (db *DB) Count(ctx context.Context, f ListingFilters) (int64, error) {
	where, args := whereClause(f)
	var n int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`+where, args...).Scan(&n)
	return n, err
}

// CountByAgency groups matching listings by agency
func (db *DB) CountByAgency(ctx context.Context, f ListingFilters) (map[string]int64, error) {
	where, args := whereClause(f)
	rows, err := db.conn.QueryContext(ctx, `SELECT agency, COUNT(*) FROM listings`+where+` GROUP BY agency`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var agency string
		var n int64
		if err := rows.Scan(&agency, &n); err != nil {
			return nil, err
		}
		counts[agency] = n
	}
	return counts, rows.Err()
}

// Deactivate marks a listing inactive (logical deletion)
func (db *DB) Deactivate(ctx context.Context, id string, now time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE listings SET active = FALSE, deactivated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) AppendRunRecord(ctx context.Context, r *models.RunRecord) error {
	query := `
	INSERT INTO run_records (run_uuid, started_at, status, collected_count, new_count, duration_seconds, error_message)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`
	return db.conn.QueryRowContext(ctx, query,
		r.RunUUID, r.StartedAt, r.Status, r.CollectedCount, r.NewCount, r.DurationSeconds, r.ErrorMessage,
	).Scan(&r.ID)
}

// UpdateRunRecord only touches records still RUNNING
func (db *DB) UpdateRunRecord(ctx context.Context, id uint, u models.RunUpdate) error {
	var rec models.RunRecord
	u.Apply(&rec)
	res, err := db.conn.ExecContext(ctx, `
	UPDATE run_records
	SET status = $1, collected_count = $2, new_count = $3, duration_seconds = $4, error_message = $5
	WHERE id = $6 AND status = $7
	`, rec.Status, rec.CollectedCount, rec.NewCount, rec.DurationSeconds, rec.ErrorMessage, id, models.RunStatusRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := db.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM run_records WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrRunFinalized
}

func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	query := `
		SELECT id, run_uuid, started_at, status, collected_count, new_count, duration_seconds, error_message
		FROM run_records
		ORDER BY started_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		var msg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunUUID, &r.StartedAt, &r.Status, &r.CollectedCount, &r.NewCount, &r.DurationSeconds, &msg); err != nil {
			return nil, err
		}
		r.ErrorMessage = msg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *DB) LastRun(ctx context.Context) (*models.RunRecord, error) {
	runs, err := db.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}
