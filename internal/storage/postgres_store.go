package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ambulance-tracking/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies the bundled migrations in file name order. Every
// statement is idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	applied := make([]string, 0, len(names))
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return applied, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func (p *PostgresStore) SaveDispatch(ctx context.Context, d *models.Dispatch) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO dispatches(id, session_id, user_id, emergency_type, origin_lat, origin_lon, start_lat, start_lon, status, payment_ref, created_at, updated_at, arrived_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.ID, d.SessionID, d.UserID, string(d.EmergencyType), d.Origin.Latitude, d.Origin.Longitude, d.Start.Latitude, d.Start.Longitude, d.Status, d.PaymentRef, d.CreatedAt, d.UpdatedAt, d.ArrivedAt)
	return err
}

func (p *PostgresStore) UpdateDispatch(ctx context.Context, d *models.Dispatch) error {
	res, err := p.db.ExecContext(ctx, `UPDATE dispatches SET status=$1, payment_ref=$2, updated_at=$3, arrived_at=$4 WHERE id=$5`, d.Status, d.PaymentRef, d.UpdatedAt, d.ArrivedAt, d.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetDispatch(ctx context.Context, id string) (*models.Dispatch, error) {
	var (
		d         models.Dispatch
		emergency string
		arrived   sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, session_id, user_id, emergency_type, origin_lat, origin_lon, start_lat, start_lon, status, payment_ref, created_at, updated_at, arrived_at FROM dispatches WHERE id=$1`, id).
		Scan(&d.ID, &d.SessionID, &d.UserID, &emergency, &d.Origin.Latitude, &d.Origin.Longitude, &d.Start.Latitude, &d.Start.Longitude, &d.Status, &d.PaymentRef, &d.CreatedAt, &d.UpdatedAt, &arrived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.EmergencyType = models.EmergencyType(emergency)
	if arrived.Valid {
		t := arrived.Time
		d.ArrivedAt = &t
	}
	return &d, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }
