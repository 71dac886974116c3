package handlers

import (
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pepocero/gestioneducativa-sub000/middleware"
	"github.com/pepocero/gestioneducativa-sub000/models"
)

// EnrollmentHandler links students to subjects within a cycle. All
// referenced entities are checked against the caller's institution so
// one tenant cannot enroll students into another tenant's subjects.
type EnrollmentHandler struct {
	enrollmentRepo models.EnrollmentRepositoryInterface
	studentRepo    models.StudentRepositoryInterface
	subjectRepo    models.SubjectRepositoryInterface
	cycleRepo      models.CycleRepositoryInterface
	validator      *validator.Validate
}

func NewEnrollmentHandler(enrollmentRepo models.EnrollmentRepositoryInterface, studentRepo models.StudentRepositoryInterface, subjectRepo models.SubjectRepositoryInterface, cycleRepo models.CycleRepositoryInterface) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollmentRepo: enrollmentRepo,
		studentRepo:    studentRepo,
		subjectRepo:    subjectRepo,
		cycleRepo:      cycleRepo,
		validator:      validator.New(),
	}
}

func (h *EnrollmentHandler) Create(c *fiber.Ctx) error {
	var req models.CreateEnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}

	studentID, _ := uuid.Parse(req.StudentID)
	subjectID, _ := uuid.Parse(req.SubjectID)
	cycleID, _ := uuid.Parse(req.CycleID)

	institutionID := middleware.GetInstitutionID(c)
	if _, err := h.studentRepo.GetByID(institutionID, studentID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student not found"})
	}
	if _, err := h.subjectRepo.GetByID(institutionID, subjectID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Subject not found"})
	}
	if _, err := h.cycleRepo.GetByID(institutionID, cycleID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Cycle not found"})
	}

	enrollment := &models.Enrollment{
		StudentID: studentID,
		SubjectID: subjectID,
		CycleID:   cycleID,
		Status:    models.EnrollmentActive,
	}
	if err := h.enrollmentRepo.Create(enrollment); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Student already enrolled in this subject"})
	}
	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (h *EnrollmentHandler) ListByStudent(c *fiber.Ctx) error {
	studentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student id"})
	}
	if _, err := h.studentRepo.GetByID(middleware.GetInstitutionID(c), studentID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student not found"})
	}
	enrollments, err := h.enrollmentRepo.ListByStudent(studentID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (h *EnrollmentHandler) ListBySubject(c *fiber.Ctx) error {
	subjectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid subject id"})
	}
	if _, err := h.subjectRepo.GetByID(middleware.GetInstitutionID(c), subjectID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Subject not found"})
	}
	enrollments, err := h.enrollmentRepo.ListBySubject(subjectID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (h *EnrollmentHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment id"})
	}

	var req models.UpdateEnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}

	enrollment, err := h.enrollmentRepo.GetByID(id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enrollment not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if _, err := h.studentRepo.GetByID(middleware.GetInstitutionID(c), enrollment.StudentID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enrollment not found"})
	}

	if req.Status != nil {
		enrollment.Status = *req.Status
	}
	if req.Grade != nil {
		enrollment.Grade = req.Grade
	}

	if err := h.enrollmentRepo.Update(enrollment); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update enrollment"})
	}
	return c.JSON(enrollment)
}

func (h *EnrollmentHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment id"})
	}
	enrollment, err := h.enrollmentRepo.GetByID(id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enrollment not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if _, err := h.studentRepo.GetByID(middleware.GetInstitutionID(c), enrollment.StudentID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enrollment not found"})
	}
	if err := h.enrollmentRepo.Delete(id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete enrollment"})
	}
	return c.JSON(fiber.Map{"message": "Enrollment deleted"})
}
