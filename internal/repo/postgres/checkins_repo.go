package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenboard/checkin/internal/domain"
)

type CheckInRepo interface {
	Insert(ctx context.Context, anonymousID string, deviceInfo *string) (*domain.CheckIn, error)
	GetByID(ctx context.Context, id string) (*domain.CheckIn, error)
	Update(ctx context.Context, id string, patch domain.CheckInPatch) (*domain.CheckIn, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListActive(ctx context.Context) ([]domain.CheckIn, error)
	ListAll(ctx context.Context) ([]domain.CheckIn, error)
	FirstByAnonymousID(ctx context.Context, anonymousID string, activeOnly bool) (*domain.CheckIn, error)
	ListByAnonymousID(ctx context.Context, anonymousID string) ([]domain.CheckIn, error)
}

type CheckInRepoImpl struct{ pool *pgxpool.Pool }

func NewCheckInRepo(pool *pgxpool.Pool) *CheckInRepoImpl { return &CheckInRepoImpl{pool: pool} }

const checkInCols = `id, anonymous_id, device_info, status, check_in_time, check_out_time, updated_at`

func scanCheckIn(row pgx.Row) (*domain.CheckIn, error) {
	var c domain.CheckIn
	err := row.Scan(
		&c.ID, &c.AnonymousID, &c.DeviceInfo, &c.Status,
		&c.CheckInTime, &c.CheckOutTime, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CheckInRepoImpl) Insert(ctx context.Context, anonymousID string, deviceInfo *string) (*domain.CheckIn, error) {
	const q = `INSERT INTO check_ins (id, anonymous_id, device_info, status)
  VALUES ($1, $2, $3, 'active')
  RETURNING ` + checkInCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanCheckIn(r.pool.QueryRow(ctx, q, uuid.NewString(), anonymousID, deviceInfo))
}

func (r *CheckInRepoImpl) GetByID(ctx context.Context, id string) (*domain.CheckIn, error) {
	const q = `SELECT ` + checkInCols + ` FROM check_ins WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCheckIn(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CheckInRepoImpl) Update(ctx context.Context, id string, patch domain.CheckInPatch) (*domain.CheckIn, error) {
	const q = `UPDATE check_ins SET
    status = COALESCE($2::text, status),
    check_out_time = COALESCE($3::timestamptz, check_out_time),
    updated_at = now()
  WHERE id=$1
  RETURNING ` + checkInCols

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCheckIn(r.pool.QueryRow(ctx, q, id, status, patch.CheckOutTime))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CheckInRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM check_ins WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *CheckInRepoImpl) ListActive(ctx context.Context) ([]domain.CheckIn, error) {
	const q = `SELECT ` + checkInCols + ` FROM check_ins
  WHERE status='active' ORDER BY check_in_time DESC`
	return r.list(ctx, q)
}

func (r *CheckInRepoImpl) ListAll(ctx context.Context) ([]domain.CheckIn, error) {
	const q = `SELECT ` + checkInCols + ` FROM check_ins ORDER BY check_in_time DESC`
	return r.list(ctx, q)
}

func (r *CheckInRepoImpl) ListByAnonymousID(ctx context.Context, anonymousID string) ([]domain.CheckIn, error) {
	const q = `SELECT ` + checkInCols + ` FROM check_ins
  WHERE anonymous_id=$1 ORDER BY check_in_time DESC`
	return r.list(ctx, q, anonymousID)
}

func (r *CheckInRepoImpl) FirstByAnonymousID(ctx context.Context, anonymousID string, activeOnly bool) (*domain.CheckIn, error) {
	q := `SELECT ` + checkInCols + ` FROM check_ins WHERE anonymous_id=$1`
	if activeOnly {
		q += ` AND status='active'`
	}
	q += ` ORDER BY check_in_time DESC LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCheckIn(r.pool.QueryRow(ctx, q, anonymousID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CheckInRepoImpl) list(ctx context.Context, q string, args ...any) ([]domain.CheckIn, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cs := make([]domain.CheckIn, 0)
	for rows.Next() {
		var c domain.CheckIn
		if err := rows.Scan(
			&c.ID, &c.AnonymousID, &c.DeviceInfo, &c.Status,
			&c.CheckInTime, &c.CheckOutTime, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

var _ CheckInRepo = (*CheckInRepoImpl)(nil)
