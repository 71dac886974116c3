package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepocero/gestioneducativa-sub000/models"
	"github.com/pepocero/gestioneducativa-sub000/security"
)

type fakeUserRepo struct {
	byEmail map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: map[string]*models.User{}}
}

func (r *fakeUserRepo) Create(user *models.User) error {
	user.ID = uuid.New()
	r.byEmail[user.Email] = user
	return nil
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) GetByID(id uuid.UUID) (*models.User, error) {
	for _, u := range r.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeInstitutionRepo struct {
	byID map[uuid.UUID]*models.Institution
}

func newFakeInstitutionRepo() *fakeInstitutionRepo {
	return &fakeInstitutionRepo{byID: map[uuid.UUID]*models.Institution{}}
}

func (r *fakeInstitutionRepo) Create(institution *models.Institution) error {
	institution.ID = uuid.New()
	r.byID[institution.ID] = institution
	return nil
}

func (r *fakeInstitutionRepo) GetByID(id uuid.UUID) (*models.Institution, error) {
	if i, ok := r.byID[id]; ok {
		return i, nil
	}
	return nil, sql.ErrNoRows
}

func authTestApp(t *testing.T) (*fiber.App, *fakeUserRepo, *fakeInstitutionRepo, *security.BufferedLogger) {
	t.Helper()
	limiter := security.NewMemoryLimiter()
	t.Cleanup(limiter.Stop)
	logger := security.NewBufferedLogger(security.BufferedLoggerConfig{}, nil)
	t.Cleanup(logger.Stop)
	processor := security.NewFormProcessor(limiter, logger, nil)

	users := newFakeUserRepo()
	institutions := newFakeInstitutionRepo()
	h := NewAuthHandler(users, institutions, processor, logger)

	app := fiber.New()
	app.Post("/register", h.Register)
	app.Post("/login", h.Login)
	return app, users, institutions, logger
}

func jsonReq(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterCreatesInstitutionAdmin(t *testing.T) {
	app, users, institutions, logger := authTestApp(t)

	resp, err := app.Test(jsonReq(http.MethodPost, "/register", `{
		"email": "Founder@School.edu",
		"password": "Str0ngPass!x",
		"confirmPassword": "Str0ngPass!x",
		"full_name": "Founder Person",
		"institution_name": "Escuela Central"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out struct {
		User  models.UserResponse `json:"user"`
		Token string              `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, models.RoleAdmin, out.User.Role, "founding user administers the new institution")
	assert.Equal(t, "founder@school.edu", out.User.Email, "email stored normalized")

	assert.Len(t, institutions.byID, 1)
	assert.Contains(t, users.byEmail, "founder@school.edu")
	assert.Len(t, logger.Events(security.Filter{Type: security.EventRegistrationSuccess}), 1)
}

func TestRegisterJoinExistingInstitutionAsStaff(t *testing.T) {
	app, _, institutions, _ := authTestApp(t)
	existing := &models.Institution{Name: "Escuela Central"}
	require.NoError(t, institutions.Create(existing))

	resp, err := app.Test(jsonReq(http.MethodPost, "/register", `{
		"email": "staff@school.edu",
		"password": "Str0ngPass!x",
		"confirmPassword": "Str0ngPass!x",
		"full_name": "Staff Person",
		"institution_id": "`+existing.ID.String()+`"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out struct {
		User models.UserResponse `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, models.RoleStaff, out.User.Role)
	assert.Equal(t, existing.ID, out.User.InstitutionID)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	app, _, _, logger := authTestApp(t)

	resp, err := app.Test(jsonReq(http.MethodPost, "/register", `{
		"email": "weak@school.edu",
		"password": "password123",
		"confirmPassword": "password123",
		"full_name": "Weak Person",
		"institution_name": "Escuela"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventRegistrationFailure}), 1)
}

func TestRegisterRejectsMismatchedConfirmation(t *testing.T) {
	app, _, _, _ := authTestApp(t)

	resp, err := app.Test(jsonReq(http.MethodPost, "/register", `{
		"email": "user@school.edu",
		"password": "Str0ngPass!x",
		"confirmPassword": "Other0Pass!x",
		"full_name": "Some Person",
		"institution_name": "Escuela"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app, users, _, _ := authTestApp(t)
	existing := &models.User{Email: "taken@school.edu", FullName: "Existing", Role: models.RoleStaff}
	require.NoError(t, users.Create(existing))

	resp, err := app.Test(jsonReq(http.MethodPost, "/register", `{
		"email": "taken@school.edu",
		"password": "Str0ngPass!x",
		"confirmPassword": "Str0ngPass!x",
		"full_name": "Other Person",
		"institution_name": "Escuela"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func seedUser(t *testing.T, users *fakeUserRepo, email, password string) *models.User {
	t.Helper()
	u := &models.User{Email: email, FullName: "Seeded User", Role: models.RoleStaff, IsActive: true}
	require.NoError(t, u.HashPassword(password))
	require.NoError(t, users.Create(u))
	return u
}

func TestLoginSuccess(t *testing.T) {
	app, users, _, logger := authTestApp(t)
	seedUser(t, users, "user@school.edu", "Str0ngPass!x")

	resp, err := app.Test(jsonReq(http.MethodPost, "/login", `{
		"email": "user@school.edu",
		"password": "Str0ngPass!x"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Token)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventLoginSuccess}), 1)
}

func TestLoginWrongPassword(t *testing.T) {
	app, users, _, logger := authTestApp(t)
	seedUser(t, users, "user@school.edu", "Str0ngPass!x")

	resp, err := app.Test(jsonReq(http.MethodPost, "/login", `{
		"email": "user@school.edu",
		"password": "wrong-pass"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventLoginFailure}), 1)
}

func TestLoginDisabledAccount(t *testing.T) {
	app, users, _, _ := authTestApp(t)
	u := seedUser(t, users, "user@school.edu", "Str0ngPass!x")
	u.IsActive = false

	resp, err := app.Test(jsonReq(http.MethodPost, "/login", `{
		"email": "user@school.edu",
		"password": "Str0ngPass!x"
	}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	app, _, _, _ := authTestApp(t)

	body := `{"email": "ghost@school.edu", "password": "wrong1"}`
	for i := 0; i < 5; i++ {
		resp, err := app.Test(jsonReq(http.MethodPost, "/login", body))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	}

	resp, err := app.Test(jsonReq(http.MethodPost, "/login", body))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
