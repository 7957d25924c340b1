package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/staff-card-api/internal/models"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
)

type mockAdminRepo struct {
	admins   []*models.Admin
	countErr error
	created  *models.Admin
}

func (m *mockAdminRepo) FindByEmail(_ context.Context, email string) (*models.Admin, error) {
	for _, a := range m.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdminRepo) FindByID(_ context.Context, id int64) (*models.Admin, error) {
	for _, a := range m.admins {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAdminRepo) Count(context.Context) (int, error) {
	return len(m.admins), m.countErr
}

func (m *mockAdminRepo) Create(_ context.Context, admin *models.Admin) error {
	admin.ID = int64(len(m.admins) + 1)
	m.admins = append(m.admins, admin)
	m.created = admin
	return nil
}

type mockAuthProfessorRepo struct {
	professors []*models.Professor
	err        error
}

func (m *mockAuthProfessorRepo) FindByEmail(_ context.Context, email string) (*models.Professor, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.professors {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthProfessorRepo) FindByID(_ context.Context, id int64) (*models.Professor, error) {
	for _, p := range m.professors {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthServiceForTest(t *testing.T) (*AuthService, *mockAdminRepo, *mockAuthProfessorRepo) {
	t.Helper()
	admins := &mockAdminRepo{admins: []*models.Admin{{ID: 1, Email: "admin@email.com", Password: hashPassword(t, "secret")}}}
	professors := &mockAuthProfessorRepo{professors: []*models.Professor{{ID: 7, Email: "sara@example.edu", Password: hashPassword(t, "prof-pass")}}}
	svc := NewAuthService(admins, professors, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "staff-card-api",
	})
	return svc, admins, professors
}

func TestAuthServiceLoginAdmin(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@email.com", Password: "secret", UserType: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, AdminRedirect, resp.Redirect)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.True(t, claims.IsAdmin())
}

func TestAuthServiceLoginProfessorByDefault(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "sara@example.edu", Password: "prof-pass"})
	require.NoError(t, err)
	assert.Equal(t, ProfessorRedirect, resp.Redirect)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, models.RoleProfessor, claims.Role)
	assert.Equal(t, "7", claims.Subject)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _, professors := newAuthServiceForTest(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "sara@example.edu", Password: "wrong"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.edu", Password: "x"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "a@b.io", Password: "x", UserType: "root"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	professors.err = errors.New("db down")
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "sara@example.edu", Password: "prof-pass"})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t)

	claims := &models.JWTClaims{UserID: 1, Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims.Role = "superuser"
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(badRole)
	assert.Error(t, err)
}

func TestAuthServiceVerifySession(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t)

	require.NoError(t, svc.VerifySession(context.Background(), &models.JWTClaims{UserID: 7, Role: models.RoleProfessor}))
	require.NoError(t, svc.VerifySession(context.Background(), &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}))

	err := svc.VerifySession(context.Background(), &models.JWTClaims{UserID: 99, Role: models.RoleProfessor})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceEnsureAdmin(t *testing.T) {
	svc, admins, _ := newAuthServiceForTest(t)

	created, err := svc.EnsureAdmin(context.Background(), "root@email.com", "pw")
	require.NoError(t, err)
	assert.False(t, created)

	admins.admins = nil
	created, err = svc.EnsureAdmin(context.Background(), "root@email.com", "pw")
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, admins.created)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins.created.Password), []byte("pw")))

	admins.admins = nil
	created, err = svc.EnsureAdmin(context.Background(), "root@email.com", "")
	require.NoError(t, err)
	assert.False(t, created)
}
