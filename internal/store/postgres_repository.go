/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. Students are stored
 * with their per-term financials as a jsonb document plus a numeric aggregate
 * balance and a bigint version column used for optimistic concurrency.
 * `Apply` maps the atomic multi-path write onto a single database transaction:
 * either every part commits or the whole write rolls back.
 *
 * Tables: students, transactions (secondary index on order_reference),
 * fee_adjustments, bursar_activity, school_config (singleton row),
 * notifications, users. See schema.sql.
 *
 * @dependencies
 * - context, encoding/json, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhs/fees-service/internal/domain"
)

// PostgresRepository is the production Repository backed by a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const studentColumns = `id, name, surname, student_number, student_type, grade_category, grade, guardian_phone, balance, terms, version, created_at`

func scanStudent(row pgx.Row) (*domain.Student, error) {
	var s domain.Student
	var termsRaw []byte
	err := row.Scan(
		&s.ID, &s.Name, &s.Surname, &s.StudentNumber, &s.StudentType,
		&s.GradeCategory, &s.Grade, &s.GuardianPhoneNumber,
		&s.Financials.Balance, &termsRaw, &s.Version, &s.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(termsRaw, &s.Financials.Terms); err != nil {
		return nil, fmt.Errorf("decode student terms: %w", err)
	}
	return &s, nil
}

// FindStudentByID retrieves one student with their financial sub-document.
func (r *PostgresRepository) FindStudentByID(ctx context.Context, id string) (*domain.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	return scanStudent(r.db.QueryRow(ctx, query, id))
}

// StudentNumberExists checks the uniqueness pre-condition for provisioning.
// The authoritative guard is the unique index on student_number; this check
// only exists to give callers a friendly error before the insert.
func (r *PostgresRepository) StudentNumberExists(ctx context.Context, studentNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE student_number = $1)`, studentNumber).Scan(&exists)
	return exists, err
}

// ListStudentIDs returns every student id, used when billing a new term.
func (r *PostgresRepository) ListStudentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM students ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const transactionColumns = `id, student_id, amount, type, status, display_status, term_key,
	receipt_number, bursar_id, bursar_username, order_reference, gateway_response,
	reason, adjustment_type, signed_amount, admin_id, last_error, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var gatewayResponse []byte
	err := row.Scan(
		&t.ID, &t.StudentID, &t.Amount, &t.Type, &t.Status, &t.DisplayStatus, &t.TermKey,
		&t.ReceiptNumber, &t.BursarID, &t.BursarUsername, &t.OrderReference, &gatewayResponse,
		&t.Reason, &t.AdjustmentType, &t.SignedAmount, &t.AdminID, &t.LastError,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	t.GatewayResponse = gatewayResponse
	return &t, nil
}

// FindTransactionByID retrieves one transaction by primary id.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

// FindTransactionByOrderReference resolves the gateway's order reference back
// to our transaction record. Order references are unique per initiation.
func (r *PostgresRepository) FindTransactionByOrderReference(ctx context.Context, orderReference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE order_reference = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, orderReference))
}

// GetConfig loads the singleton school configuration.
func (r *PostgresRepository) GetConfig(ctx context.Context) (*domain.SchoolConfig, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM school_config WHERE id = 1`).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	var cfg domain.SchoolConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode school config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig upserts the singleton school configuration.
func (r *PostgresRepository) SaveConfig(ctx context.Context, cfg *domain.SchoolConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode school config: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO school_config (id, data, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, raw)
	return err
}

// FindUserByID retrieves a credential record.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	query := `SELECT id, username, password_hash, role, name, surname, COALESCE(student_number, ''), created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Role,
		&u.Profile.Name, &u.Profile.Surname, &u.Profile.StudentNumber, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserPassword replaces a user's password hash.
func (r *PostgresRepository) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateNotification inserts a notification record. Callers treat failures as
// best-effort and only log them.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, title, message, type, user_id, role, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.Title, n.Message, n.Type, n.UserID, n.Role, n.Read, n.CreatedAt)
	return err
}

// Apply performs one atomic multi-path write inside a single database
// transaction. Precondition failures (version or status mismatch) abort the
// whole write with the corresponding sentinel error.
func (r *PostgresRepository) Apply(ctx context.Context, w LedgerWrite) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if w.Student != nil {
		if err := applyStudentUpdate(ctx, tx, w.Student); err != nil {
			return err
		}
	}
	if w.StatusChange != nil {
		if err := applyStatusChange(ctx, tx, w.StatusChange); err != nil {
			return err
		}
	}
	if w.NewTransaction != nil {
		if err := insertTransaction(ctx, tx, w.NewTransaction); err != nil {
			return err
		}
	}
	if w.Adjustment != nil {
		if err := insertAdjustment(ctx, tx, w.Adjustment); err != nil {
			return err
		}
	}
	if w.Activity != nil {
		if err := insertActivity(ctx, tx, w.Activity); err != nil {
			return err
		}
	}
	if w.NewStudent != nil {
		if err := insertStudent(ctx, tx, w.NewStudent); err != nil {
			return err
		}
	}
	if w.NewUser != nil {
		if err := insertUser(ctx, tx, w.NewUser); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func applyStudentUpdate(ctx context.Context, tx pgx.Tx, u *StudentUpdate) error {
	termsRaw, err := json.Marshal(u.Terms)
	if err != nil {
		return fmt.Errorf("encode student terms: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE students SET terms = $1, balance = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`, termsRaw, u.Balance, u.StudentID, u.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, u.StudentID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrStudentNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func applyStatusChange(ctx context.Context, tx pgx.Tx, c *StatusChange) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1, display_status = $2,
			gateway_response = COALESCE($3, gateway_response),
			last_error = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`, c.NewStatus, c.DisplayStatus, []byte(c.GatewayResponse), c.LastError, time.Now().UTC(), c.TransactionID, c.ExpectedStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, c.TransactionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrTransactionNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, student_id, amount, type, status, display_status, term_key,
			receipt_number, bursar_id, bursar_username, order_reference, gateway_response,
			reason, adjustment_type, signed_amount, admin_id, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, t.ID, t.StudentID, t.Amount, t.Type, t.Status, t.DisplayStatus, t.TermKey,
		t.ReceiptNumber, t.BursarID, t.BursarUsername, t.OrderReference, []byte(t.GatewayResponse),
		t.Reason, t.AdjustmentType, t.SignedAmount, t.AdminID, t.LastError, t.CreatedAt, t.UpdatedAt)
	return err
}

func insertAdjustment(ctx context.Context, tx pgx.Tx, a *domain.FeeAdjustment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO fee_adjustments (
			id, student_id, adjustment_amount, term_key, reason, adjustment_type,
			admin_id, old_fee, new_fee, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.StudentID, a.AdjustmentAmount, a.TermKey, a.Reason, a.AdjustmentType,
		a.AdminID, a.OldFee, a.NewFee, a.CreatedAt)
	return err
}

func insertActivity(ctx context.Context, tx pgx.Tx, b *domain.BursarActivity) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bursar_activity (
			id, bursar_id, bursar_username, student_id, student_name, amount,
			term_key, receipt_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.BursarID, b.BursarUsername, b.StudentID, b.StudentName, b.Amount,
		b.TermKey, b.ReceiptNumber, b.CreatedAt)
	return err
}

func insertStudent(ctx context.Context, tx pgx.Tx, s *domain.Student) error {
	termsRaw, err := json.Marshal(s.Financials.Terms)
	if err != nil {
		return fmt.Errorf("encode student terms: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO students (
			id, name, surname, student_number, student_type, grade_category, grade,
			guardian_phone, balance, terms, version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.Name, s.Surname, s.StudentNumber, s.StudentType, s.GradeCategory, s.Grade,
		s.GuardianPhoneNumber, s.Financials.Balance, termsRaw, s.Version, s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateStudentNumber
	}
	return err
}

func insertUser(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, name, surname, student_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Username, u.PasswordHash, u.Role, u.Profile.Name, u.Profile.Surname, u.Profile.StudentNumber, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateStudentNumber
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
