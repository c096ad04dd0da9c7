package coupons

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lilgiftcorner/server/internal/config"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	ownsDB bool // Track if we created the DB connection (for Close())
}

const couponColumns = `id, code, type, value, min_order_value, max_discount, usage_limit, usage_count,
	user_usage_limit, valid_from, valid_until, is_active, created_at, updated_at`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS coupons (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	type             TEXT NOT NULL,
	value            DOUBLE PRECISION NOT NULL,
	min_order_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_discount     DOUBLE PRECISION,
	usage_limit      INTEGER,
	usage_count      INTEGER NOT NULL DEFAULT 0,
	user_usage_limit INTEGER NOT NULL DEFAULT 1,
	valid_from       TIMESTAMPTZ NOT NULL,
	valid_until      TIMESTAMPTZ NOT NULL,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (usage_limit IS NULL OR usage_count <= usage_limit)
);
CREATE TABLE IF NOT EXISTS coupon_usage (
	id              TEXT PRIMARY KEY,
	coupon_id       TEXT NOT NULL REFERENCES coupons(id),
	user_id         TEXT NOT NULL,
	order_id        TEXT NOT NULL,
	discount_amount DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_coupon_usage_coupon_user ON coupon_usage (coupon_id, user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_coupon_usage_coupon_order ON coupon_usage (coupon_id, order_id);
CREATE TABLE IF NOT EXISTS coupon_user_usage (
	coupon_id  TEXT NOT NULL REFERENCES coupons(id),
	user_id    TEXT NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (coupon_id, user_id)
);
`

// NewPostgresRepository creates a PostgreSQL-backed repository and ensures its tables.
func NewPostgresRepository(connectionString string, poolConfig config.PostgresPoolConfig) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)

	r := &PostgresRepository{db: db, ownsDB: true}
	if err := r.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgresRepositoryWithDB creates a PostgreSQL-backed repository using an existing pool.
// The caller owns the pool and is expected to have run EnsureSchema.
func NewPostgresRepositoryWithDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, ownsDB: false}
}

// EnsureSchema creates the coupon tables if they are missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create coupon schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (Coupon, error) {
	var c Coupon
	var couponType string
	var maxDiscount sql.NullFloat64
	var usageLimit sql.NullInt64

	err := row.Scan(
		&c.ID,
		&c.Code,
		&couponType,
		&c.Value,
		&c.MinOrderValue,
		&maxDiscount,
		&usageLimit,
		&c.UsageCount,
		&c.UserUsageLimit,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Coupon{}, err
	}

	c.Type = DiscountType(couponType)
	if maxDiscount.Valid {
		v := maxDiscount.Float64
		c.MaxDiscount = &v
	}
	if usageLimit.Valid {
		v := int(usageLimit.Int64)
		c.UsageLimit = &v
	}
	c.ValidFrom = c.ValidFrom.UTC()
	c.ValidUntil = c.ValidUntil.UTC()
	return c, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, where string, arg any) (Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE %s`, couponColumns, where)
	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Coupon{}, ErrCouponNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("query coupon: %w", err)
	}
	return c, nil
}

// GetCoupon retrieves an active coupon by code.
func (r *PostgresRepository) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	return r.queryOne(ctx, "code = $1 AND is_active = true", NormalizeCode(code))
}

// GetCouponByID retrieves a coupon by ID.
func (r *PostgresRepository) GetCouponByID(ctx context.Context, id string) (Coupon, error) {
	return r.queryOne(ctx, "id = $1", id)
}

func (r *PostgresRepository) queryMany(ctx context.Context, query string, args ...any) ([]Coupon, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	coupons := make([]Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return coupons, nil
}

// ListCoupons returns coupons newest first.
func (r *PostgresRepository) ListCoupons(ctx context.Context, limit int) ([]Coupon, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM coupons ORDER BY created_at DESC LIMIT $1`, couponColumns)
	return r.queryMany(ctx, query, limit)
}

// ListActive returns coupons active at now.
func (r *PostgresRepository) ListActive(ctx context.Context, now time.Time) ([]Coupon, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM coupons
		WHERE is_active = true AND valid_from <= $1 AND valid_until > $1
		ORDER BY valid_until ASC
	`, couponColumns)
	return r.queryMany(ctx, query, now)
}

// CreateCoupon inserts a coupon.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c Coupon) error {
	query := fmt.Sprintf(`INSERT INTO coupons (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, couponColumns)

	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		NormalizeCode(c.Code),
		string(c.Type),
		c.Value,
		c.MinOrderValue,
		nullFloat(c.MaxDiscount),
		nullInt(c.UsageLimit),
		c.UsageCount,
		c.UserUsageLimit,
		c.ValidFrom,
		c.ValidUntil,
		c.IsActive,
		created,
		updated,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// UpdateCoupon applies a partial update.
func (r *PostgresRepository) UpdateCoupon(ctx context.Context, id string, update Update) (Coupon, error) {
	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Type != nil {
		add("type", string(*update.Type))
	}
	if update.Value != nil {
		add("value", *update.Value)
	}
	if update.MinOrderValue != nil {
		add("min_order_value", *update.MinOrderValue)
	}
	if update.MaxDiscount != nil {
		add("max_discount", *update.MaxDiscount)
	}
	if update.UsageLimit != nil {
		add("usage_limit", *update.UsageLimit)
	}
	if update.UserUsageLimit != nil {
		add("user_usage_limit", *update.UserUsageLimit)
	}
	if update.ValidFrom != nil {
		add("valid_from", *update.ValidFrom)
	}
	if update.ValidUntil != nil {
		add("valid_until", *update.ValidUntil)
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE coupons SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), couponColumns)

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Coupon{}, ErrCouponNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("update coupon: %w", err)
	}
	return c, nil
}

// IncrementUsage increments usage_count only while it is below usage_limit.
func (r *PostgresRepository) IncrementUsage(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = $2
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check coupon: %w", err)
	}
	if !exists {
		return ErrCouponNotFound
	}
	return ErrCouponUsageLimitReached
}

// ReleaseUsage decrements usage_count while it is positive.
func (r *PostgresRepository) ReleaseUsage(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE coupons SET usage_count = usage_count - 1, updated_at = $2
		WHERE id = $1 AND usage_count > 0
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// ReserveUserUsage increments the (coupon, user) counter while it is below limit. On a
// conflicting row the update only applies under the WHERE guard.
func (r *PostgresRepository) ReserveUserUsage(ctx context.Context, couponID, userID string, limit int) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO coupon_user_usage (coupon_id, user_id, count, updated_at)
		VALUES ($1, $2, 1, $4)
		ON CONFLICT (coupon_id, user_id) DO UPDATE
		SET count = coupon_user_usage.count + 1, updated_at = EXCLUDED.updated_at
		WHERE coupon_user_usage.count < $3
	`, couponID, userID, limit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve user usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrCouponAlreadyUsed
	}
	return nil
}

// ReleaseUserUsage decrements the (coupon, user) counter while it is positive.
func (r *PostgresRepository) ReleaseUserUsage(ctx context.Context, couponID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE coupon_user_usage SET count = count - 1, updated_at = $3
		WHERE coupon_id = $1 AND user_id = $2 AND count > 0
	`, couponID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release user usage: %w", err)
	}
	return nil
}

// HasOrderUsage reports whether a usage row exists for the coupon and order.
func (r *PostgresRepository) HasOrderUsage(ctx context.Context, couponID, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupon_usage WHERE coupon_id = $1 AND order_id = $2)`,
		couponID, orderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("find order usage: %w", err)
	}
	return exists, nil
}

// CountUserUsage counts usage rows of a coupon by a user.
func (r *PostgresRepository) CountUserUsage(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return n, nil
}

// RecordUsage inserts a usage row.
func (r *PostgresRepository) RecordUsage(ctx context.Context, u Usage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupon_usage (id, coupon_id, user_id, order_id, discount_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.CouponID, u.UserID, u.OrderID, u.DiscountAmount, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrUsageRecorded
	}
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// DeleteCoupon soft-deletes a coupon.
func (r *PostgresRepository) DeleteCoupon(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE coupons SET is_active = false, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// Close closes the database connection if we own it.
func (r *PostgresRepository) Close() error {
	if r.ownsDB {
		return r.db.Close()
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
