package models

import (
	"time"

	"github.com/google/uuid"
)

type Student struct {
	ID            uuid.UUID `json:"id" db:"id"`
	InstitutionID uuid.UUID `json:"institution_id" db:"institution_id"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Email         string    `json:"email" db:"email"`
	Phone         *string   `json:"phone" db:"phone"`
	Address       *string   `json:"address" db:"address"`
	Notes         *string   `json:"notes" db:"notes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type Professor struct {
	ID            uuid.UUID `json:"id" db:"id"`
	InstitutionID uuid.UUID `json:"institution_id" db:"institution_id"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	Email         string    `json:"email" db:"email"`
	Phone         *string   `json:"phone" db:"phone"`
	Department    *string   `json:"department" db:"department"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Cycle struct {
	ID            uuid.UUID `json:"id" db:"id"`
	InstitutionID uuid.UUID `json:"institution_id" db:"institution_id"`
	Name          string    `json:"name" db:"name"`
	StartDate     time.Time `json:"start_date" db:"start_date"`
	EndDate       time.Time `json:"end_date" db:"end_date"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Subject struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	InstitutionID uuid.UUID  `json:"institution_id" db:"institution_id"`
	CycleID       *uuid.UUID `json:"cycle_id" db:"cycle_id"`
	ProfessorID   *uuid.UUID `json:"professor_id" db:"professor_id"`
	Code          string     `json:"code" db:"code"`
	Name          string     `json:"name" db:"name"`
	Description   *string    `json:"description" db:"description"`
	Credits       int        `json:"credits" db:"credits"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentDropped   = "dropped"
)

type Enrollment struct {
	ID         uuid.UUID `json:"id" db:"id"`
	StudentID  uuid.UUID `json:"student_id" db:"student_id"`
	SubjectID  uuid.UUID `json:"subject_id" db:"subject_id"`
	CycleID    uuid.UUID `json:"cycle_id" db:"cycle_id"`
	Status     string    `json:"status" db:"status"`
	Grade      *float64  `json:"grade" db:"grade"`
	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`
}

// EnrollmentDetail joins an enrollment with its student and subject for
// listing screens.
type EnrollmentDetail struct {
	Enrollment
	StudentFirstName string `json:"student_first_name" db:"student_first_name"`
	StudentLastName  string `json:"student_last_name" db:"student_last_name"`
	SubjectName      string `json:"subject_name" db:"subject_name"`
	SubjectCode      string `json:"subject_code" db:"subject_code"`
}

type CreateStudentRequest struct {
	FirstName string  `json:"first_name" validate:"required,min=2,max=100"`
	LastName  string  `json:"last_name" validate:"required,min=2,max=100"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Address   *string `json:"address" validate:"omitempty,max=200"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}

type UpdateStudentRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=2,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=2,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Address   *string `json:"address" validate:"omitempty,max=200"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}

type CreateProfessorRequest struct {
	FirstName  string  `json:"first_name" validate:"required,min=2,max=100"`
	LastName   string  `json:"last_name" validate:"required,min=2,max=100"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Department *string `json:"department" validate:"omitempty,max=100"`
}

type CreateCycleRequest struct {
	Name      string    `json:"name" validate:"required,min=2,max=100"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

type CreateSubjectRequest struct {
	Code        string  `json:"code" validate:"required,min=2,max=20"`
	Name        string  `json:"name" validate:"required,min=2,max=150"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Credits     int     `json:"credits" validate:"required,min=1,max=30"`
	CycleID     *string `json:"cycle_id" validate:"omitempty,uuid4"`
	ProfessorID *string `json:"professor_id" validate:"omitempty,uuid4"`
}

type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	SubjectID string `json:"subject_id" validate:"required,uuid4"`
	CycleID   string `json:"cycle_id" validate:"required,uuid4"`
}

type UpdateEnrollmentRequest struct {
	Status *string  `json:"status" validate:"omitempty,oneof=active completed dropped"`
	Grade  *float64 `json:"grade" validate:"omitempty,min=0,max=10"`
}
