package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/staff-card-api/internal/dto"
	"github.com/noah-isme/staff-card-api/internal/models"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
)

var allowedPhotoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

type professorRepository interface {
	List(ctx context.Context, filter models.ProfessorFilter) ([]models.Professor, error)
	FindByID(ctx context.Context, id int64) (*models.Professor, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, professor *models.Professor) error
	Update(ctx context.Context, professor *models.Professor) error
	Delete(ctx context.Context, id int64) error
}

type photoStore interface {
	GenerateName(original string) string
	SaveStream(name string, r io.Reader) (string, error)
	Delete(name string) error
}

type qrInvalidator interface {
	Invalidate(ctx context.Context, content string) error
}

// ProfessorServiceConfig bounds uploads and links professors to their QR deep links.
type ProfessorServiceConfig struct {
	MaxPhotoBytes int64
	ProfileURL    func(id int64) string
}

// ProfessorService orchestrates professor directory operations.
type ProfessorService struct {
	repo      professorRepository
	photos    photoStore
	qr        qrInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ProfessorServiceConfig
}

// NewProfessorService constructs a ProfessorService.
func NewProfessorService(repo professorRepository, photos photoStore, qr qrInvalidator, validate *validator.Validate, logger *zap.Logger, cfg ProfessorServiceConfig) *ProfessorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfessorService{repo: repo, photos: photos, qr: qr, validator: validate, logger: logger, cfg: cfg}
}

// List returns professors with decoded subjects.
func (s *ProfessorService) List(ctx context.Context, filter models.ProfessorFilter) ([]dto.ProfessorResponse, error) {
	professors, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list professors")
	}
	out := make([]dto.ProfessorResponse, len(professors))
	for i, p := range professors {
		out[i] = dto.NewProfessorResponse(p)
	}
	return out, nil
}

// Get returns one professor. Professors may only read their own record.
func (s *ProfessorService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*dto.ProfessorResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, appErrors.ErrForbidden
	}
	professor, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewProfessorResponse(*professor)
	return &resp, nil
}

// Create registers a professor with a hashed password and an optional photo.
func (s *ProfessorService) Create(ctx context.Context, req dto.CreateProfessorRequest, photo *dto.PhotoUpload) (*dto.CreatedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid professor payload")
	}
	email := strings.TrimSpace(req.Email)
	if err := s.ensureUniqueEmail(ctx, email, 0); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	photoName, err := s.storePhoto(photo)
	if err != nil {
		return nil, err
	}

	subjects := dto.EncodeSubjects(req.Matieres)
	professor := &models.Professor{
		Nom:       strings.TrimSpace(req.Nom),
		Prenom:    strings.TrimSpace(req.Prenom),
		Email:     email,
		Password:  string(hash),
		Telephone: normalizeOptional(req.Telephone),
		Matieres:  &subjects,
		Statut:    req.Statut,
		Photo:     photoName,
	}
	if err := s.repo.Create(ctx, professor); err != nil {
		s.discardPhoto(photoName)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create professor")
	}

	s.logger.Info("professor created", zap.Int64("professor_id", professor.ID))
	return &dto.CreatedResponse{ID: professor.ID}, nil
}

// UpdateProfile applies a professor's own edits. A new photo replaces and deletes the previous one.
func (s *ProfessorService) UpdateProfile(ctx context.Context, id int64, req dto.UpdateProfileRequest, photo *dto.PhotoUpload) (*dto.ProfessorResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	professor, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		email := strings.TrimSpace(*req.Email)
		if !strings.EqualFold(email, professor.Email) {
			if err := s.ensureUniqueEmail(ctx, email, id); err != nil {
				return nil, err
			}
		}
		professor.Email = email
	}
	if req.Nom != nil && strings.TrimSpace(*req.Nom) != "" {
		professor.Nom = strings.TrimSpace(*req.Nom)
	}
	if req.Prenom != nil && strings.TrimSpace(*req.Prenom) != "" {
		professor.Prenom = strings.TrimSpace(*req.Prenom)
	}
	if req.Telephone != nil {
		professor.Telephone = normalizeOptional(req.Telephone)
	}
	if req.Statut != nil && *req.Statut != "" {
		professor.Statut = *req.Statut
	}
	if req.Matieres != nil {
		subjects := dto.EncodeSubjects(req.Matieres)
		professor.Matieres = &subjects
	}

	newPhoto, err := s.storePhoto(photo)
	if err != nil {
		return nil, err
	}
	oldPhoto := professor.Photo
	if newPhoto != nil {
		professor.Photo = newPhoto
	}

	if err := s.repo.Update(ctx, professor); err != nil {
		s.discardPhoto(newPhoto)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update professor")
	}
	if newPhoto != nil {
		s.discardPhoto(oldPhoto)
	}

	resp := dto.NewProfessorResponse(*professor)
	return &resp, nil
}

// Delete removes a professor, then the stored photo and cached QR images.
func (s *ProfessorService) Delete(ctx context.Context, id int64) error {
	professor, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete professor")
	}
	s.discardPhoto(professor.Photo)
	if s.qr != nil && s.cfg.ProfileURL != nil {
		if err := s.qr.Invalidate(ctx, s.cfg.ProfileURL(id)); err != nil {
			s.logger.Warn("failed to invalidate qr cache", zap.Int64("professor_id", id), zap.Error(err))
		}
	}
	s.logger.Info("professor deleted", zap.Int64("professor_id", id))
	return nil
}

func (s *ProfessorService) load(ctx context.Context, id int64) (*models.Professor, error) {
	professor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	return professor, nil
}

func (s *ProfessorService) ensureUniqueEmail(ctx context.Context, email string, excludeID int64) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}
	return nil
}

func (s *ProfessorService) storePhoto(photo *dto.PhotoUpload) (*string, error) {
	if photo == nil {
		return nil, nil
	}
	if s.photos == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "photo storage is not configured")
	}
	ext := strings.ToLower(filepath.Ext(photo.Filename))
	if _, ok := allowedPhotoExtensions[ext]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported photo type %q", ext))
	}
	if s.cfg.MaxPhotoBytes > 0 && photo.Size > s.cfg.MaxPhotoBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo exceeds the maximum size")
	}

	src, err := photo.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read photo")
	}
	defer src.Close() //nolint:errcheck

	name, err := s.photos.SaveStream(s.photos.GenerateName(photo.Filename), src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
	}
	return &name, nil
}

func (s *ProfessorService) discardPhoto(name *string) {
	if name == nil || *name == "" || s.photos == nil {
		return
	}
	if err := s.photos.Delete(*name); err != nil {
		s.logger.Warn("failed to delete photo", zap.String("photo", *name), zap.Error(err))
	}
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
