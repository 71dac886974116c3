package models

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type InstitutionRepository struct {
	db *sqlx.DB
}

func NewInstitutionRepository(db *sqlx.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

func (r *InstitutionRepository) Create(institution *Institution) error {
	query := `
		INSERT INTO institutions (name)
		VALUES ($1)
		RETURNING id, created_at`

	return r.db.QueryRow(query, institution.Name).
		Scan(&institution.ID, &institution.CreatedAt)
}

func (r *InstitutionRepository) GetByID(id uuid.UUID) (*Institution, error) {
	var institution Institution
	query := `SELECT * FROM institutions WHERE id = $1`
	err := r.db.Get(&institution, query, id)
	if err != nil {
		return nil, err
	}
	return &institution, nil
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *User) error {
	query := `
		INSERT INTO users (institution_id, email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return r.db.QueryRow(query, user.InstitutionID, user.Email, user.PasswordHash, user.FullName, user.Role).
		Scan(&user.ID, &user.CreatedAt)
}

func (r *UserRepository) GetByEmail(email string) (*User, error) {
	var user User
	query := `SELECT * FROM users WHERE email = $1`
	err := r.db.Get(&user, query, email)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id uuid.UUID) (*User, error) {
	var user User
	query := `SELECT * FROM users WHERE id = $1`
	err := r.db.Get(&user, query, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type StudentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) Create(student *Student) error {
	query := `
		INSERT INTO students (institution_id, first_name, last_name, email, phone, address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(query,
		student.InstitutionID, student.FirstName, student.LastName,
		student.Email, student.Phone, student.Address, student.Notes).
		Scan(&student.ID, &student.CreatedAt, &student.UpdatedAt)
}

func (r *StudentRepository) GetByID(institutionID, id uuid.UUID) (*Student, error) {
	var student Student
	query := `SELECT * FROM students WHERE id = $1 AND institution_id = $2`
	err := r.db.Get(&student, query, id, institutionID)
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *StudentRepository) List(institutionID uuid.UUID, page, limit int) ([]Student, int, error) {
	offset := (page - 1) * limit

	var total int
	err := r.db.Get(&total, `SELECT COUNT(*) FROM students WHERE institution_id = $1`, institutionID)
	if err != nil {
		return nil, 0, err
	}

	var students []Student
	query := `
		SELECT * FROM students
		WHERE institution_id = $1
		ORDER BY last_name, first_name
		LIMIT $2 OFFSET $3`
	err = r.db.Select(&students, query, institutionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

func (r *StudentRepository) Update(student *Student) error {
	query := `
		UPDATE students
		SET first_name = $1, last_name = $2, email = $3, phone = $4, address = $5, notes = $6, updated_at = NOW()
		WHERE id = $7 AND institution_id = $8`
	_, err := r.db.Exec(query,
		student.FirstName, student.LastName, student.Email,
		student.Phone, student.Address, student.Notes,
		student.ID, student.InstitutionID)
	return err
}

func (r *StudentRepository) Delete(institutionID, id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM students WHERE id = $1 AND institution_id = $2`, id, institutionID)
	return err
}

type ProfessorRepository struct {
	db *sqlx.DB
}

func NewProfessorRepository(db *sqlx.DB) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

func (r *ProfessorRepository) Create(professor *Professor) error {
	query := `
		INSERT INTO professors (institution_id, first_name, last_name, email, phone, department)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return r.db.QueryRow(query,
		professor.InstitutionID, professor.FirstName, professor.LastName,
		professor.Email, professor.Phone, professor.Department).
		Scan(&professor.ID, &professor.CreatedAt)
}

func (r *ProfessorRepository) GetByID(institutionID, id uuid.UUID) (*Professor, error) {
	var professor Professor
	query := `SELECT * FROM professors WHERE id = $1 AND institution_id = $2`
	err := r.db.Get(&professor, query, id, institutionID)
	if err != nil {
		return nil, err
	}
	return &professor, nil
}

func (r *ProfessorRepository) List(institutionID uuid.UUID) ([]Professor, error) {
	var professors []Professor
	query := `SELECT * FROM professors WHERE institution_id = $1 ORDER BY last_name, first_name`
	err := r.db.Select(&professors, query, institutionID)
	if err != nil {
		return nil, err
	}
	return professors, nil
}

func (r *ProfessorRepository) Delete(institutionID, id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM professors WHERE id = $1 AND institution_id = $2`, id, institutionID)
	return err
}

type CycleRepository struct {
	db *sqlx.DB
}

func NewCycleRepository(db *sqlx.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

func (r *CycleRepository) Create(cycle *Cycle) error {
	query := `
		INSERT INTO cycles (institution_id, name, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return r.db.QueryRow(query,
		cycle.InstitutionID, cycle.Name, cycle.StartDate, cycle.EndDate, cycle.IsActive).
		Scan(&cycle.ID, &cycle.CreatedAt)
}

func (r *CycleRepository) GetByID(institutionID, id uuid.UUID) (*Cycle, error) {
	var cycle Cycle
	query := `SELECT * FROM cycles WHERE id = $1 AND institution_id = $2`
	err := r.db.Get(&cycle, query, id, institutionID)
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (r *CycleRepository) List(institutionID uuid.UUID) ([]Cycle, error) {
	var cycles []Cycle
	query := `SELECT * FROM cycles WHERE institution_id = $1 ORDER BY start_date DESC`
	err := r.db.Select(&cycles, query, institutionID)
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *CycleRepository) Delete(institutionID, id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM cycles WHERE id = $1 AND institution_id = $2`, id, institutionID)
	return err
}

type SubjectRepository struct {
	db *sqlx.DB
}

func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Create(subject *Subject) error {
	query := `
		INSERT INTO subjects (institution_id, cycle_id, professor_id, code, name, description, credits)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return r.db.QueryRow(query,
		subject.InstitutionID, subject.CycleID, subject.ProfessorID,
		subject.Code, subject.Name, subject.Description, subject.Credits).
		Scan(&subject.ID, &subject.CreatedAt)
}

func (r *SubjectRepository) GetByID(institutionID, id uuid.UUID) (*Subject, error) {
	var subject Subject
	query := `SELECT * FROM subjects WHERE id = $1 AND institution_id = $2`
	err := r.db.Get(&subject, query, id, institutionID)
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

func (r *SubjectRepository) List(institutionID uuid.UUID) ([]Subject, error) {
	var subjects []Subject
	query := `SELECT * FROM subjects WHERE institution_id = $1 ORDER BY code`
	err := r.db.Select(&subjects, query, institutionID)
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

func (r *SubjectRepository) Delete(institutionID, id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM subjects WHERE id = $1 AND institution_id = $2`, id, institutionID)
	return err
}

type EnrollmentRepository struct {
	db *sqlx.DB
}

func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) Create(enrollment *Enrollment) error {
	query := `
		INSERT INTO enrollments (student_id, subject_id, cycle_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, enrolled_at`

	return r.db.QueryRow(query,
		enrollment.StudentID, enrollment.SubjectID, enrollment.CycleID, enrollment.Status).
		Scan(&enrollment.ID, &enrollment.EnrolledAt)
}

func (r *EnrollmentRepository) GetByID(id uuid.UUID) (*Enrollment, error) {
	var enrollment Enrollment
	query := `SELECT * FROM enrollments WHERE id = $1`
	err := r.db.Get(&enrollment, query, id)
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) ListByStudent(studentID uuid.UUID) ([]EnrollmentDetail, error) {
	var enrollments []EnrollmentDetail
	query := `
		SELECT e.*, s.first_name AS student_first_name, s.last_name AS student_last_name,
		       sub.name AS subject_name, sub.code AS subject_code
		FROM enrollments e
		JOIN students s ON e.student_id = s.id
		JOIN subjects sub ON e.subject_id = sub.id
		WHERE e.student_id = $1
		ORDER BY e.enrolled_at DESC`
	err := r.db.Select(&enrollments, query, studentID)
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) ListBySubject(subjectID uuid.UUID) ([]EnrollmentDetail, error) {
	var enrollments []EnrollmentDetail
	query := `
		SELECT e.*, s.first_name AS student_first_name, s.last_name AS student_last_name,
		       sub.name AS subject_name, sub.code AS subject_code
		FROM enrollments e
		JOIN students s ON e.student_id = s.id
		JOIN subjects sub ON e.subject_id = sub.id
		WHERE e.subject_id = $1
		ORDER BY s.last_name, s.first_name`
	err := r.db.Select(&enrollments, query, subjectID)
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *EnrollmentRepository) Update(enrollment *Enrollment) error {
	query := `UPDATE enrollments SET status = $1, grade = $2 WHERE id = $3`
	_, err := r.db.Exec(query, enrollment.Status, enrollment.Grade, enrollment.ID)
	return err
}

func (r *EnrollmentRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM enrollments WHERE id = $1`, id)
	return err
}
