package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/staff-card-api/internal/dto"
	"github.com/noah-isme/staff-card-api/internal/models"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
	"github.com/noah-isme/staff-card-api/pkg/response"
)

type professorService interface {
	List(ctx context.Context, filter models.ProfessorFilter) ([]dto.ProfessorResponse, error)
	Get(ctx context.Context, id int64, actor *models.JWTClaims) (*dto.ProfessorResponse, error)
	Create(ctx context.Context, req dto.CreateProfessorRequest, photo *dto.PhotoUpload) (*dto.CreatedResponse, error)
	UpdateProfile(ctx context.Context, id int64, req dto.UpdateProfileRequest, photo *dto.PhotoUpload) (*dto.ProfessorResponse, error)
	Delete(ctx context.Context, id int64) error
}

type professorImporter interface {
	Import(ctx context.Context, r io.Reader) (*dto.ImportResult, error)
}

// ProfessorHandler wires professor directory routes.
type ProfessorHandler struct {
	professors    professorService
	importer      professorImporter
	maxSheetBytes int64
}

// NewProfessorHandler constructs a ProfessorHandler.
func NewProfessorHandler(professors professorService, importer professorImporter, maxSheetBytes int64) *ProfessorHandler {
	return &ProfessorHandler{professors: professors, importer: importer, maxSheetBytes: maxSheetBytes}
}

// List godoc
// @Summary List professors
// @Tags Professors
// @Produce json
// @Param search query string false "Search by name or email"
// @Param statut query string false "permanent or vacataire"
// @Success 200 {object} response.Envelope
// @Router /professeurs [get]
func (h *ProfessorHandler) List(c *gin.Context) {
	filter := models.ProfessorFilter{Search: strings.TrimSpace(c.Query("search"))}
	if statut := strings.TrimSpace(c.Query("statut")); statut != "" {
		value := models.ProfessorStatus(strings.ToLower(statut))
		filter.Statut = &value
	}

	professors, err := h.professors.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, professors, map[string]interface{}{"total": len(professors)})
}

// Get godoc
// @Summary Get professor detail
// @Tags Professors
// @Produce json
// @Param id path int true "Professor ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /professeurs/{id} [get]
func (h *ProfessorHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	professor, err := h.professors.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, professor)
}

// Me godoc
// @Summary Current professor's profile
// @Tags Professors
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /professeurs/me [get]
func (h *ProfessorHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	professor, err := h.professors.Get(c.Request.Context(), claims.UserID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, professor)
}

// Create godoc
// @Summary Register a professor
// @Tags Professors
// @Accept multipart/form-data
// @Produce json
// @Param nom formData string true "Last name"
// @Param prenom formData string true "First name"
// @Param email formData string true "Email"
// @Param password formData string true "Password"
// @Param telephone formData string false "Phone"
// @Param matieres formData []string false "Subjects, repeated or comma separated"
// @Param statut formData string true "permanent or vacataire"
// @Param photo formData file false "Photo (jpg, png, gif)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /professeurs [post]
func (h *ProfessorHandler) Create(c *gin.Context) {
	var req dto.CreateProfessorRequest
	if c.ContentType() == "application/json" {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid professor payload"))
			return
		}
	} else {
		req = dto.CreateProfessorRequest{
			Nom:      c.PostForm("nom"),
			Prenom:   c.PostForm("prenom"),
			Email:    c.PostForm("email"),
			Password: c.PostForm("password"),
			Matieres: c.PostFormArray("matieres"),
			Statut:   models.ProfessorStatus(strings.ToLower(strings.TrimSpace(c.PostForm("statut")))),
		}
		if phone, ok := c.GetPostForm("telephone"); ok {
			req.Telephone = &phone
		}
	}

	photo, err := photoFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	created, err := h.professors.Create(c.Request.Context(), req, photo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// UpdateMe godoc
// @Summary Update the current professor's profile
// @Description Only submitted fields change. A new photo replaces the stored one.
// @Tags Professors
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file false "Photo (jpg, png, gif)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /professeurs/me [put]
func (h *ProfessorHandler) UpdateMe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateProfileRequest
	if c.ContentType() == "application/json" {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
			return
		}
	} else {
		req.Nom = optionalForm(c, "nom")
		req.Prenom = optionalForm(c, "prenom")
		req.Email = optionalForm(c, "email")
		if phone, ok := c.GetPostForm("telephone"); ok {
			req.Telephone = &phone
		}
		if statut := optionalForm(c, "statut"); statut != nil {
			value := models.ProfessorStatus(strings.ToLower(strings.TrimSpace(*statut)))
			req.Statut = &value
		}
		if subjects, ok := c.GetPostFormArray("matieres"); ok {
			req.Matieres = subjects
		}
	}

	photo, err := photoFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	updated, err := h.professors.UpdateProfile(c.Request.Context(), claims.UserID, req, photo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated)
}

// Delete godoc
// @Summary Delete a professor and their photo
// @Tags Professors
// @Param id path int true "Professor ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /professeurs/{id} [delete]
func (h *ProfessorHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.professors.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadExcel godoc
// @Summary Import professors from a spreadsheet
// @Description First sheet only; the header row names the columns. All rows are inserted or none.
// @Tags Professors
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx workbook"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /upload-excel [post]
func (h *ProfessorHandler) UploadExcel(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "spreadsheet file is required"))
		return
	}
	if h.maxSheetBytes > 0 && header.Size > h.maxSheetBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "spreadsheet exceeds the maximum size"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read spreadsheet"))
		return
	}
	defer file.Close() //nolint:errcheck

	result, err := h.importer.Import(c.Request.Context(), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func photoFromRequest(c *gin.Context) (*dto.PhotoUpload, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, nil
	}
	header, err := c.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid photo upload")
	}
	return uploadFromHeader(header), nil
}

func uploadFromHeader(header *multipart.FileHeader) *dto.PhotoUpload {
	return &dto.PhotoUpload{
		Filename: header.Filename,
		Size:     header.Size,
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}
}

// optionalForm treats blank fields as not submitted.
func optionalForm(c *gin.Context, key string) *string {
	value, ok := c.GetPostForm(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
