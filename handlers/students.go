package handlers

import (
	"database/sql"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pepocero/gestioneducativa-sub000/middleware"
	"github.com/pepocero/gestioneducativa-sub000/models"
	"github.com/pepocero/gestioneducativa-sub000/security"
)

type StudentHandler struct {
	repo      models.StudentRepositoryInterface
	processor *security.FormProcessor
	validator *validator.Validate
}

func NewStudentHandler(repo models.StudentRepositoryInterface, processor *security.FormProcessor) *StudentHandler {
	return &StudentHandler{repo: repo, processor: processor, validator: validator.New()}
}

var studentFields = map[string]security.FieldKind{
	"first_name": security.FieldName,
	"last_name":  security.FieldName,
	"email":      security.FieldEmail,
	"phone":      security.FieldPhone,
	"address":    security.FieldAddress,
	"notes":      security.FieldNotes,
}

func (h *StudentHandler) Create(c *fiber.Ctx) error {
	var req models.CreateStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}

	record := map[string]any{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"email":      req.Email,
	}
	putOptional(record, "phone", req.Phone)
	putOptional(record, "address", req.Address)
	putOptional(record, "notes", req.Notes)

	form := h.processor.Process(security.ClassForm, record, studentFields, middleware.CallerIdentity(c))
	if !form.Valid {
		return rejectForm(c, form)
	}

	student := &models.Student{
		InstitutionID: middleware.GetInstitutionID(c),
		FirstName:     form.Sanitized["first_name"].(string),
		LastName:      form.Sanitized["last_name"].(string),
		Email:         form.Sanitized["email"].(string),
		Phone:         takeOptional(form.Sanitized, "phone"),
		Address:       takeOptional(form.Sanitized, "address"),
		Notes:         takeOptional(form.Sanitized, "notes"),
	}
	if err := h.repo.Create(student); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create student"})
	}
	return c.Status(fiber.StatusCreated).JSON(student)
}

func (h *StudentHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student id"})
	}
	student, err := h.repo.GetByID(middleware.GetInstitutionID(c), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(student)
}

func (h *StudentHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	students, total, err := h.repo.List(middleware.GetInstitutionID(c), page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{
		"students": students,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func (h *StudentHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student id"})
	}

	var req models.UpdateStudentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}

	institutionID := middleware.GetInstitutionID(c)
	student, err := h.repo.GetByID(institutionID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	record := map[string]any{}
	putOptional(record, "first_name", req.FirstName)
	putOptional(record, "last_name", req.LastName)
	putOptional(record, "email", req.Email)
	putOptional(record, "phone", req.Phone)
	putOptional(record, "address", req.Address)
	putOptional(record, "notes", req.Notes)

	form := h.processor.Process(security.ClassForm, record, studentFields, middleware.CallerIdentity(c))
	if !form.Valid {
		return rejectForm(c, form)
	}

	if v, ok := form.Sanitized["first_name"].(string); ok {
		student.FirstName = v
	}
	if v, ok := form.Sanitized["last_name"].(string); ok {
		student.LastName = v
	}
	if v, ok := form.Sanitized["email"].(string); ok {
		student.Email = v
	}
	if v := takeOptional(form.Sanitized, "phone"); v != nil {
		student.Phone = v
	}
	if v := takeOptional(form.Sanitized, "address"); v != nil {
		student.Address = v
	}
	if v := takeOptional(form.Sanitized, "notes"); v != nil {
		student.Notes = v
	}

	if err := h.repo.Update(student); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update student"})
	}
	return c.JSON(student)
}

func (h *StudentHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student id"})
	}
	if err := h.repo.Delete(middleware.GetInstitutionID(c), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete student"})
	}
	return c.JSON(fiber.Map{"message": "Student deleted"})
}

func putOptional(record map[string]any, name string, value *string) {
	if value != nil {
		record[name] = *value
	}
}

func takeOptional(sanitized map[string]any, name string) *string {
	if v, ok := sanitized[name].(string); ok {
		return &v
	}
	return nil
}
