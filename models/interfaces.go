package models

import "github.com/google/uuid"

type InstitutionRepositoryInterface interface {
	Create(institution *Institution) error
	GetByID(id uuid.UUID) (*Institution, error)
}

type UserRepositoryInterface interface {
	Create(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id uuid.UUID) (*User, error)
}

type StudentRepositoryInterface interface {
	Create(student *Student) error
	GetByID(institutionID, id uuid.UUID) (*Student, error)
	List(institutionID uuid.UUID, page, limit int) ([]Student, int, error)
	Update(student *Student) error
	Delete(institutionID, id uuid.UUID) error
}

type ProfessorRepositoryInterface interface {
	Create(professor *Professor) error
	GetByID(institutionID, id uuid.UUID) (*Professor, error)
	List(institutionID uuid.UUID) ([]Professor, error)
	Delete(institutionID, id uuid.UUID) error
}

type CycleRepositoryInterface interface {
	Create(cycle *Cycle) error
	GetByID(institutionID, id uuid.UUID) (*Cycle, error)
	List(institutionID uuid.UUID) ([]Cycle, error)
	Delete(institutionID, id uuid.UUID) error
}

type SubjectRepositoryInterface interface {
	Create(subject *Subject) error
	GetByID(institutionID, id uuid.UUID) (*Subject, error)
	List(institutionID uuid.UUID) ([]Subject, error)
	Delete(institutionID, id uuid.UUID) error
}

type EnrollmentRepositoryInterface interface {
	Create(enrollment *Enrollment) error
	GetByID(id uuid.UUID) (*Enrollment, error)
	ListByStudent(studentID uuid.UUID) ([]EnrollmentDetail, error)
	ListBySubject(subjectID uuid.UUID) ([]EnrollmentDetail, error)
	Update(enrollment *Enrollment) error
	Delete(id uuid.UUID) error
}
