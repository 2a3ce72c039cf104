package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"studio-booking/errors"
	"studio-booking/models"
)

const verificationColumns = `id, student_name, student_email, amount, confirmation_number,
	status, created_at, verified_at, class_details, package_details`

// PostgresStore persists the ledger in the payment_verifications table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type verificationRow struct {
	ID                 string       `db:"id"`
	StudentName        string       `db:"student_name"`
	StudentEmail       string       `db:"student_email"`
	Amount             float64      `db:"amount"`
	ConfirmationNumber string       `db:"confirmation_number"`
	Status             string       `db:"status"`
	CreatedAt          time.Time    `db:"created_at"`
	VerifiedAt         sql.NullTime `db:"verified_at"`
	ClassDetails       []byte       `db:"class_details"`
	PackageDetails     []byte       `db:"package_details"`
}

func (r verificationRow) toModel() (*models.PaymentVerification, error) {
	v := &models.PaymentVerification{
		ID:                 r.ID,
		StudentName:        r.StudentName,
		StudentEmail:       r.StudentEmail,
		Amount:             r.Amount,
		ConfirmationNumber: r.ConfirmationNumber,
		Status:             models.VerificationStatus(r.Status),
		CreatedAt:          r.CreatedAt,
	}
	if r.VerifiedAt.Valid {
		at := r.VerifiedAt.Time
		v.VerifiedAt = &at
	}
	if len(r.ClassDetails) > 0 {
		v.ClassDetails = &models.ClassDetails{}
		if err := json.Unmarshal(r.ClassDetails, v.ClassDetails); err != nil {
			return nil, fmt.Errorf("decoding class_details of %s: %w", r.ID, err)
		}
	}
	if len(r.PackageDetails) > 0 {
		v.PackageDetails = &models.PackageDetails{}
		if err := json.Unmarshal(r.PackageDetails, v.PackageDetails); err != nil {
			return nil, fmt.Errorf("decoding package_details of %s: %w", r.ID, err)
		}
	}
	return v, nil
}

// jsonArg encodes a details payload for a JSONB column, NULL when absent.
func jsonArg(v interface{}, present bool) (interface{}, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *PostgresStore) Insert(ctx context.Context, v *models.PaymentVerification) error {
	classArg, err := jsonArg(v.ClassDetails, v.ClassDetails != nil)
	if err != nil {
		return errors.E(errors.Invalid, "encoding class details", err)
	}
	packageArg, err := jsonArg(v.PackageDetails, v.PackageDetails != nil)
	if err != nil {
		return errors.E(errors.Invalid, "encoding package details", err)
	}

	query := `
		INSERT INTO payment_verifications (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var verifiedAt interface{}
	if v.VerifiedAt != nil {
		verifiedAt = v.VerifiedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, query,
		v.ID, v.StudentName, v.StudentEmail, v.Amount, v.ConfirmationNumber,
		string(v.Status), v.CreatedAt.UTC(), verifiedAt, classArg, packageArg)
	if err != nil {
		return errors.E(errors.Internal, "error saving verification", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.PaymentVerification, error) {
	var row verificationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+verificationColumns+` FROM payment_verifications WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("verification not found: " + id)
	}
	if err != nil {
		return nil, errors.E(errors.Internal, "error retrieving verification", err)
	}
	return row.toModel()
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.PaymentVerification, error) {
	return s.selectMany(ctx, `SELECT `+verificationColumns+` FROM payment_verifications ORDER BY created_at DESC, id ASC`)
}

func (s *PostgresStore) ListPending(ctx context.Context, since time.Time) ([]*models.PaymentVerification, error) {
	return s.selectMany(ctx,
		`SELECT `+verificationColumns+` FROM payment_verifications
		WHERE status = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC`,
		string(models.StatusPending), since.UTC())
}

func (s *PostgresStore) selectMany(ctx context.Context, query string, args ...interface{}) ([]*models.PaymentVerification, error) {
	var rows []verificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.E(errors.Internal, "error listing verifications", err)
	}

	out := make([]*models.PaymentVerification, 0, len(rows))
	for _, r := range rows {
		v, err := r.toModel()
		if err != nil {
			return nil, errors.E(errors.Internal, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payment_verifications SET status = $1, verified_at = $2 WHERE id = $3 AND status = $4`,
		string(models.StatusVerified), at.UTC(), id, string(models.StatusPending))
	if err != nil {
		return false, errors.E(errors.Internal, "error updating verification", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.E(errors.Internal, "error checking verification update", err)
	}
	return rows == 1, nil
}

func (s *PostgresStore) PendingConfirmationExists(ctx context.Context, number string, since time.Time) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM payment_verifications WHERE confirmation_number = $1 AND status = $2 AND created_at > $3)`,
		number, string(models.StatusPending), since.UTC())
	if err != nil {
		return false, errors.E(errors.Internal, "error checking confirmation number", err)
	}
	return exists, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
