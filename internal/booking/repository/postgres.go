package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/booking/domain"
)

// ConstraintBkgRef is the unique constraint on (tenant_id, bkg_ref).
const ConstraintBkgRef = "bookings_tenant_bkg_ref_key"

const bookingColumns = `id, tenant_id, bkg_ref, status, full_name, email, service_slug, service_name_snapshot,
	price_snapshot, currency, preferred_at, notes, created_at, updated_at`

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a booking repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts b. A duplicate reference surfaces as a unique violation on ConstraintBkgRef.
func (r *PostgresRepository) Create(ctx context.Context, b *domain.Booking) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO bookings (id, tenant_id, bkg_ref, status, full_name, email,
		service_slug, service_name_snapshot, price_snapshot, currency, preferred_at, notes, created_at, updated_at)
		VALUES (:id, :tenant_id, :bkg_ref, :status, :full_name, :email, :service_slug, :service_name_snapshot,
		:price_snapshot, :currency, :preferred_at, :notes, :created_at, :updated_at)`, b)
	return err
}

// GetByRef returns the booking with bkgRef in the tenant, or nil if not found.
func (r *PostgresRepository) GetByRef(ctx context.Context, tenantID, bkgRef string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE tenant_id = $1 AND bkg_ref = $2`, tenantID, bkgRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns one page of the tenant's bookings ordered by preferred date, and the
// total matching the filter. A day filter matches preferred_at within that UTC day.
func (r *PostgresRepository) List(ctx context.Context, tenantID string, f domain.ListFilter) ([]*domain.Booking, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.Day != nil {
		start := time.Date(f.Day.Year(), f.Day.Month(), f.Day.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, start, start.AddDate(0, 0, 1))
		where = append(where, "preferred_at >= $"+strconv.Itoa(len(args)-1), "preferred_at < $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM bookings WHERE `+cond, args...); err != nil {
		return nil, 0, err
	}
	out := []*domain.Booking{}
	if total == 0 {
		return out, 0, nil
	}
	pageArgs := append(args, f.PageSize, f.Offset())
	err := r.db.SelectContext(ctx, &out, `SELECT `+bookingColumns+` FROM bookings WHERE `+cond+
		` ORDER BY preferred_at ASC, created_at ASC LIMIT $`+strconv.Itoa(len(pageArgs)-1)+` OFFSET $`+strconv.Itoa(len(pageArgs)), pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, tenantID, bkgRef string, from, to domain.Status, now time.Time) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.GetContext(ctx, &b, `UPDATE bookings SET status = $4, updated_at = $5
		WHERE tenant_id = $1 AND bkg_ref = $2 AND status = $3
		RETURNING `+bookingColumns, tenantID, bkgRef, string(from), string(to), now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
