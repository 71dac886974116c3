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
	"github.com/pepocero/gestioneducativa-sub000/services"
)

type AuthHandler struct {
	userRepo        models.UserRepositoryInterface
	institutionRepo models.InstitutionRepositoryInterface
	processor       *security.FormProcessor
	logger          security.EventLogger
	passwordPolicy  *services.PasswordPolicy
	validator       *validator.Validate
}

func NewAuthHandler(userRepo models.UserRepositoryInterface, institutionRepo models.InstitutionRepositoryInterface, processor *security.FormProcessor, logger security.EventLogger) *AuthHandler {
	return &AuthHandler{
		userRepo:        userRepo,
		institutionRepo: institutionRepo,
		processor:       processor,
		logger:          logger,
		passwordPolicy:  services.DefaultPasswordPolicy(),
		validator:       validator.New(),
	}
}

var registerFields = map[string]security.FieldKind{
	"email":            security.FieldEmail,
	"password":         security.FieldPassword,
	"confirmPassword":  security.FieldPassword,
	"full_name":        security.FieldName,
	"institution_name": security.FieldName,
}

var loginFields = map[string]security.FieldKind{
	"email":    security.FieldEmail,
	"password": security.FieldPassword,
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	caller := middleware.CallerIdentity(c)
	form := h.processor.Process(security.ClassRegister, map[string]any{
		"email":            req.Email,
		"password":         req.Password,
		"confirmPassword":  req.ConfirmPassword,
		"full_name":        req.FullName,
		"institution_name": req.InstitutionName,
	}, registerFields, caller)
	if !form.Valid {
		return rejectForm(c, form)
	}

	req.Email = form.Sanitized["email"].(string)
	req.FullName = form.Sanitized["full_name"].(string)
	req.InstitutionName = form.Sanitized["institution_name"].(string)

	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}
	if err := h.passwordPolicy.Validate(req.Password); err != nil {
		h.logger.LogAuth(security.EventRegistrationFailure, caller, "weak password")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	existingUser, _ := h.userRepo.GetByEmail(req.Email)
	if existingUser != nil {
		h.logger.LogAuth(security.EventRegistrationFailure, caller, "email already registered")
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already registered"})
	}

	// New institution unless the request joins an existing one. The
	// founding user administers it; invited users start as staff.
	role := models.RoleStaff
	var institutionID uuid.UUID
	if req.InstitutionID != "" {
		id, err := uuid.Parse(req.InstitutionID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid institution id"})
		}
		if _, err := h.institutionRepo.GetByID(id); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Institution not found"})
		}
		institutionID = id
	} else {
		institution := &models.Institution{Name: req.InstitutionName}
		if err := h.institutionRepo.Create(institution); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create institution"})
		}
		institutionID = institution.ID
		role = models.RoleAdmin
	}

	user := &models.User{
		InstitutionID: institutionID,
		Email:         req.Email,
		FullName:      req.FullName,
		Role:          role,
		IsActive:      true,
	}
	if err := user.HashPassword(req.Password); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process password"})
	}
	if err := h.userRepo.Create(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user"})
	}

	caller.UserID = user.ID
	h.logger.LogAuth(security.EventRegistrationSuccess, caller, "")

	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role, user.InstitutionID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user.ToResponse(), "token": token})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	caller := middleware.CallerIdentity(c)
	form := h.processor.Process(security.ClassLogin, map[string]any{
		"email":    req.Email,
		"password": req.Password,
	}, loginFields, caller)
	if !form.Valid {
		return rejectForm(c, form)
	}
	req.Email = form.Sanitized["email"].(string)

	user, err := h.userRepo.GetByEmail(req.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			h.logger.LogAuth(security.EventLoginFailure, caller, "unknown email")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if !user.IsActive {
		h.logger.LogAuth(security.EventLoginFailure, caller, "account disabled")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Account disabled"})
	}
	if !user.CheckPassword(req.Password) {
		caller.UserID = user.ID
		h.logger.LogAuth(security.EventLoginFailure, caller, "wrong password")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}

	caller.UserID = user.ID
	h.logger.LogAuth(security.EventLoginSuccess, caller, "")

	token, err := middleware.GenerateToken(user.ID, user.Email, user.Role, user.InstitutionID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}
	return c.JSON(fiber.Map{"user": user.ToResponse(), "token": token})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	user, err := h.userRepo.GetByID(userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	return c.JSON(fiber.Map{"user": user.ToResponse()})
}

// rejectForm maps a failed pipeline result onto the transport: 429 when
// the abuse gate refused the attempt, 400 for anything the sanitizer or
// class validation flagged.
func rejectForm(c *fiber.Ctx, form security.FormResult) error {
	if form.RateLimit != nil && !form.RateLimit.Allowed {
		if form.RateLimit.RetryAfter > 0 {
			c.Set("Retry-After", strconv.Itoa(int(form.RateLimit.RetryAfter.Seconds())))
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "Too many attempts",
			"details": form.Errors,
		})
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":    "Validation failed",
		"details":  form.Errors,
		"warnings": form.Warnings,
	})
}
