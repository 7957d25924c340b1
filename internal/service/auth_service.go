package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/staff-card-api/internal/models"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
)

// Landing pages returned after login.
const (
	AdminRedirect     = "/dashboard"
	ProfessorRedirect = "/profile"
)

type authAdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
	FindByID(ctx context.Context, id int64) (*models.Admin, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, admin *models.Admin) error
}

type authProfessorRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Professor, error)
	FindByID(ctx context.Context, id int64) (*models.Professor, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService provides authentication use cases for administrators and professors.
type AuthService struct {
	admins     authAdminRepository
	professors authProfessorRepository
	validator  *validator.Validate
	logger     *zap.Logger
	config     AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(admins authAdminRepository, professors authProfessorRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = time.Hour
	}
	return &AuthService{admins: admins, professors: professors, validator: validate, logger: logger, config: config}
}

// Login authenticates against the table selected by UserType and issues an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	var (
		id       int64
		email    string
		hash     string
		role     models.UserRole
		redirect string
	)
	if req.UserType == models.RoleAdmin {
		admin, err := s.admins.FindByEmail(ctx, req.Email)
		if err != nil {
			return nil, s.lookupError(err)
		}
		id, email, hash = admin.ID, admin.Email, admin.Password
		role, redirect = models.RoleAdmin, AdminRedirect
	} else {
		professor, err := s.professors.FindByEmail(ctx, req.Email)
		if err != nil {
			return nil, s.lookupError(err)
		}
		id, email, hash = professor.ID, professor.Email, professor.Password
		role, redirect = models.RoleProfessor, ProfessorRedirect
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	token, err := s.generateAccessToken(id, role, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	s.logger.Info("user logged in", zap.Int64("user_id", id), zap.String("role", string(role)))
	return &models.LoginResponse{
		Token:     token,
		Redirect:  redirect,
		Role:      role,
		ExpiresIn: int64(s.config.AccessTokenExpiry.Seconds()),
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleProfessor {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid role")
	}

	return claims, nil
}

// VerifySession checks that the account behind the claims still exists.
func (s *AuthService) VerifySession(ctx context.Context, claims *models.JWTClaims) error {
	var err error
	switch claims.Role {
	case models.RoleAdmin:
		_, err = s.admins.FindByID(ctx, claims.UserID)
	case models.RoleProfessor:
		_, err = s.professors.FindByID(ctx, claims.UserID)
	default:
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid session")
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "invalid session")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session user")
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator when the admins table is empty.
// It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, nil
	}
	total, err := s.admins.Count(ctx)
	if err != nil {
		return false, err
	}
	if total > 0 {
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.admins.Create(ctx, &models.Admin{Email: email, Password: string(hash)}); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap administrator created", zap.String("email", email))
	return true, nil
}

func (s *AuthService) lookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
}

func (s *AuthService) generateAccessToken(id int64, role models.UserRole, email string) (string, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	subject := strconv.FormatInt(id, 10)
	claims := &models.JWTClaims{
		UserID: id,
		Role:   role,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}
