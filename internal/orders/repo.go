package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// ErrAlreadyExists: payment reference sudah punya order. Ini kunci
// idempotency saga: replay webhook berhenti di sini tanpa side effect baru.
var ErrAlreadyExists = errors.New("order already exists for payment reference")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateOrder meng-assign ID + order number lalu insert. Order number dari
// sequence server, human-facing.
func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return err
	}
	o.ID = uuid.NewString()
	o.OrderNumber = fmt.Sprintf("CO-%06d", seq)

	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, buyer_id, payment_reference, payment_status,
		                   subtotal, discount, discount_tier, total,
		                   customer_email, customer_name, country, purchased_items, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, o.ID, o.OrderNumber, o.BuyerID, o.PaymentReference, o.PaymentStatus,
		o.Subtotal, o.Discount, o.DiscountTier, o.Total,
		o.CustomerEmail, o.CustomerName, o.Country, items, o.PaidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) ClearCart(ctx context.Context, buyerID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM carts WHERE buyer_id=$1`, buyerID)
	return err
}

func (r *Repo) UpdateCustomerRef(ctx context.Context, buyerID, customerRef string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE buyers SET payment_customer_id=$2 WHERE id=$1`, buyerID, customerRef)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("buyer not found: %s", buyerID)
	}
	return nil
}

func (r *Repo) GetIdentityMapping(ctx context.Context, buyerID string) (string, bool, error) {
	var lmsUserID string
	err := r.DB.QueryRow(ctx, `SELECT lms_user_id FROM identity_mappings WHERE buyer_id=$1`, buyerID).Scan(&lmsUserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return lmsUserID, true, nil
}

// SaveIdentityMapping tidak pernah meng-overwrite mapping yang sudah ada.
func (r *Repo) SaveIdentityMapping(ctx context.Context, buyerID, lmsUserID string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO identity_mappings(buyer_id, lms_user_id)
		VALUES ($1,$2)
		ON CONFLICT (buyer_id) DO NOTHING
	`, buyerID, lmsUserID)
	return err
}

func (r *Repo) InsertEnrollment(ctx context.Context, e *Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO enrollments(id, buyer_id, order_id, product_id, product_type, lms_product_type,
		                        enroll_key, title, validity_duration, validity_unit,
		                        enrolled_at, expires_at, outcome, status, error_message, retry_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, e.ID, e.BuyerID, e.OrderID, e.ProductID, e.ProductType, e.LMSProductType,
		e.EnrollKey, e.Title, e.ValidityDuration, e.ValidityUnit,
		e.EnrolledAt, e.ExpiresAt, e.Outcome, e.Status, nullIfEmpty(e.ErrorMessage), e.RetryCount)
	return err
}

// ActiveEntitlements: pasangan (product_id, enroll_key) yg masih aktif,
// dipakai duplicate filter saat validasi checkout.
func (r *Repo) ActiveEntitlements(ctx context.Context, buyerID string) ([]EntitlementPair, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, enroll_key FROM enrollments
		WHERE buyer_id=$1 AND status='active'
		  AND (expires_at IS NULL OR expires_at > now())
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntitlementPair
	for rows.Next() {
		var e EntitlementPair
		if err := rows.Scan(&e.ProductID, &e.EnrollKey); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type EntitlementPair struct {
	ProductID string `json:"product_id"`
	EnrollKey string `json:"enroll_key"`
}

func (r *Repo) ListOrders(ctx context.Context, buyerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_number, buyer_id, payment_reference, payment_status,
		       subtotal, discount, COALESCE(discount_tier,''), total,
		       customer_email, COALESCE(customer_name,''), COALESCE(country,''),
		       purchased_items, paid_at, created_at
		FROM orders WHERE buyer_id=$1 ORDER BY paid_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var items []byte
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.BuyerID, &o.PaymentReference, &o.PaymentStatus,
			&o.Subtotal, &o.Discount, &o.DiscountTier, &o.Total,
			&o.CustomerEmail, &o.CustomerName, &o.Country,
			&items, &o.PaidAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &o.Items); err != nil {
				return nil, fmt.Errorf("decode purchased items for order %s: %w", o.ID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ListEnrollmentsByBuyer(ctx context.Context, buyerID string) ([]Enrollment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, buyer_id, order_id, product_id, product_type, lms_product_type,
		       enroll_key, title, validity_duration, validity_unit,
		       enrolled_at, expires_at, outcome, status, COALESCE(error_message,''), retry_count, created_at
		FROM enrollments WHERE buyer_id=$1 ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.BuyerID, &e.OrderID, &e.ProductID, &e.ProductType, &e.LMSProductType,
			&e.EnrollKey, &e.Title, &e.ValidityDuration, &e.ValidityUnit,
			&e.EnrolledAt, &e.ExpiresAt, &e.Outcome, &e.Status, &e.ErrorMessage, &e.RetryCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
