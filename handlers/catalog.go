package handlers

import (
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pepocero/gestioneducativa-sub000/middleware"
	"github.com/pepocero/gestioneducativa-sub000/models"
	"github.com/pepocero/gestioneducativa-sub000/security"
)

// CatalogHandler serves the institution-scoped reference entities:
// professors, academic cycles, and subjects.
type CatalogHandler struct {
	professorRepo models.ProfessorRepositoryInterface
	cycleRepo     models.CycleRepositoryInterface
	subjectRepo   models.SubjectRepositoryInterface
	processor     *security.FormProcessor
	validator     *validator.Validate
}

func NewCatalogHandler(professorRepo models.ProfessorRepositoryInterface, cycleRepo models.CycleRepositoryInterface, subjectRepo models.SubjectRepositoryInterface, processor *security.FormProcessor) *CatalogHandler {
	return &CatalogHandler{
		professorRepo: professorRepo,
		cycleRepo:     cycleRepo,
		subjectRepo:   subjectRepo,
		processor:     processor,
		validator:     validator.New(),
	}
}

var professorFields = map[string]security.FieldKind{
	"first_name": security.FieldName,
	"last_name":  security.FieldName,
	"email":      security.FieldEmail,
	"phone":      security.FieldPhone,
	"department": security.FieldName,
}

var subjectFields = map[string]security.FieldKind{
	"code":        security.FieldCode,
	"name":        security.FieldTitle,
	"description": security.FieldDescription,
}

func (h *CatalogHandler) CreateProfessor(c *fiber.Ctx) error {
	var req models.CreateProfessorRequest
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
	putOptional(record, "department", req.Department)

	form := h.processor.Process(security.ClassForm, record, professorFields, middleware.CallerIdentity(c))
	if !form.Valid {
		return rejectForm(c, form)
	}

	professor := &models.Professor{
		InstitutionID: middleware.GetInstitutionID(c),
		FirstName:     form.Sanitized["first_name"].(string),
		LastName:      form.Sanitized["last_name"].(string),
		Email:         form.Sanitized["email"].(string),
		Phone:         takeOptional(form.Sanitized, "phone"),
		Department:    takeOptional(form.Sanitized, "department"),
	}
	if err := h.professorRepo.Create(professor); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create professor"})
	}
	return c.Status(fiber.StatusCreated).JSON(professor)
}

func (h *CatalogHandler) ListProfessors(c *fiber.Ctx) error {
	professors, err := h.professorRepo.List(middleware.GetInstitutionID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{"professors": professors})
}

func (h *CatalogHandler) DeleteProfessor(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid professor id"})
	}
	if err := h.professorRepo.Delete(middleware.GetInstitutionID(c), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete professor"})
	}
	return c.JSON(fiber.Map{"message": "Professor deleted"})
}

func (h *CatalogHandler) CreateCycle(c *fiber.Ctx) error {
	var req models.CreateCycleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}

	form := h.processor.Process(security.ClassForm, map[string]any{"name": req.Name},
		map[string]security.FieldKind{"name": security.FieldTitle}, middleware.CallerIdentity(c))
	if !form.Valid {
		return rejectForm(c, form)
	}

	cycle := &models.Cycle{
		InstitutionID: middleware.GetInstitutionID(c),
		Name:          form.Sanitized["name"].(string),
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		IsActive:      true,
	}
	if err := h.cycleRepo.Create(cycle); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create cycle"})
	}
	return c.Status(fiber.StatusCreated).JSON(cycle)
}

func (h *CatalogHandler) ListCycles(c *fiber.Ctx) error {
	cycles, err := h.cycleRepo.List(middleware.GetInstitutionID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{"cycles": cycles})
}

func (h *CatalogHandler) DeleteCycle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid cycle id"})
	}
	if err := h.cycleRepo.Delete(middleware.GetInstitutionID(c), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete cycle"})
	}
	return c.JSON(fiber.Map{"message": "Cycle deleted"})
}

func (h *CatalogHandler) CreateSubject(c *fiber.Ctx) error {
	var req models.CreateSubjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}

	record := map[string]any{
		"code": req.Code,
		"name": req.Name,
	}
	putOptional(record, "description", req.Description)

	form := h.processor.Process(security.ClassForm, record, subjectFields, middleware.CallerIdentity(c))
	if !form.Valid {
		return rejectForm(c, form)
	}

	institutionID := middleware.GetInstitutionID(c)
	subject := &models.Subject{
		InstitutionID: institutionID,
		Code:          form.Sanitized["code"].(string),
		Name:          form.Sanitized["name"].(string),
		Description:   takeOptional(form.Sanitized, "description"),
		Credits:       req.Credits,
	}

	if req.CycleID != nil {
		id, err := uuid.Parse(*req.CycleID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid cycle id"})
		}
		if _, err := h.cycleRepo.GetByID(institutionID, id); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Cycle not found"})
		}
		subject.CycleID = &id
	}
	if req.ProfessorID != nil {
		id, err := uuid.Parse(*req.ProfessorID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid professor id"})
		}
		if _, err := h.professorRepo.GetByID(institutionID, id); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Professor not found"})
		}
		subject.ProfessorID = &id
	}

	if err := h.subjectRepo.Create(subject); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create subject"})
	}
	return c.Status(fiber.StatusCreated).JSON(subject)
}

func (h *CatalogHandler) GetSubject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid subject id"})
	}
	subject, err := h.subjectRepo.GetByID(middleware.GetInstitutionID(c), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Subject not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(subject)
}

func (h *CatalogHandler) ListSubjects(c *fiber.Ctx) error {
	subjects, err := h.subjectRepo.List(middleware.GetInstitutionID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{"subjects": subjects})
}

func (h *CatalogHandler) DeleteSubject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid subject id"})
	}
	if err := h.subjectRepo.Delete(middleware.GetInstitutionID(c), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete subject"})
	}
	return c.JSON(fiber.Map{"message": "Subject deleted"})
}
