/**
 * @description
 * Student provisioning: creating a new student record seeds the per-term fee
 * schedule from the active terms in the school configuration, and creates the
 * student's login credential in the same atomic write.
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: Credential record identifiers.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 * - golang.org/x/crypto/bcrypt: Default password hashing.
 * - internal/domain, internal/store.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/mhs/fees-service/internal/domain"
	"github.com/mhs/fees-service/internal/store"
)

// CreateStudentInput carries the identity and academic fields of a new
// student. Financials are derived server-side from the school configuration.
type CreateStudentInput struct {
	Name                string
	Surname             string
	StudentNumber       string
	StudentType         domain.StudentType
	GradeCategory       domain.GradeCategory
	Grade               string
	GuardianPhoneNumber string
}

// Validate checks the enum fields and required identity fields.
func (in CreateStudentInput) Validate() error {
	if in.Name == "" || in.Surname == "" || in.StudentNumber == "" {
		return &ValidationError{Msg: "name, surname and studentNumber are required"}
	}
	if !in.StudentType.Valid() {
		return &ValidationError{Msg: fmt.Sprintf("unknown student type %q", in.StudentType)}
	}
	if !in.GradeCategory.Valid() {
		return &ValidationError{Msg: fmt.Sprintf("unknown grade category %q", in.GradeCategory)}
	}
	return nil
}

// CreateStudent provisions a student and their login credential. The student
// is billed for every currently active term at the fee rate selected by their
// type, grade category and grade. Credential username is the student number;
// the password defaults to a configured value the student must change.
func (s *Service) CreateStudent(ctx context.Context, in CreateStudentInput, defaultPassword string) (*domain.Student, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.StudentNumberExists(ctx, in.StudentNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, store.ErrDuplicateStudentNumber
	}

	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	terms := make(map[string]domain.TermBalance, len(cfg.ActiveTerms))
	for _, termKey := range cfg.ActiveTerms {
		terms[termKey] = domain.TermBalance{
			Fee:  BaseFee(cfg.Fees, in.StudentType, in.GradeCategory, in.Grade),
			Paid: decimal.Zero,
		}
	}

	student := &domain.Student{
		ID:                  NewStudentID(now),
		Name:                in.Name,
		Surname:             in.Surname,
		StudentNumber:       in.StudentNumber,
		StudentType:         in.StudentType,
		GradeCategory:       in.GradeCategory,
		Grade:               in.Grade,
		GuardianPhoneNumber: in.GuardianPhoneNumber,
		Financials: domain.Financials{
			Balance: RecomputeBalance(terms),
			Terms:   terms,
		},
		Version:   1,
		CreatedAt: now,
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing default password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     in.StudentNumber,
		PasswordHash: string(hash),
		Role:         "student",
		Profile: domain.UserProfile{
			Name:          in.Name,
			Surname:       in.Surname,
			StudentNumber: in.StudentNumber,
		},
		CreatedAt: now,
	}

	if err := s.repo.Apply(ctx, store.LedgerWrite{
		NewStudent: student,
		NewUser:    user,
	}); err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, "Student Created",
		fmt.Sprintf("New student %s (%s) registered", student.FullName(), student.StudentNumber),
		"info", "", "admin")

	return student, nil
}

// ChangePassword verifies the user's current password and replaces the hash.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return &ValidationError{Msg: "new password must be at least 6 characters"}
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing new password: %w", err)
	}
	return s.repo.UpdateUserPassword(ctx, userID, string(hash))
}
