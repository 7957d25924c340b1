package dto

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/noah-isme/staff-card-api/internal/models"
)

// ProfessorResponse is the public view of a professor with subjects decoded.
type ProfessorResponse struct {
	ID        int64                  `json:"id"`
	Nom       string                 `json:"nom"`
	Prenom    string                 `json:"prenom"`
	Email     string                 `json:"email"`
	Telephone *string                `json:"telephone,omitempty"`
	Matieres  []string               `json:"matieres"`
	Statut    models.ProfessorStatus `json:"statut"`
	Photo     *string                `json:"photo,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// CreateProfessorRequest carries the fields accepted when an admin registers a professor.
type CreateProfessorRequest struct {
	Nom       string                 `json:"nom" validate:"required,max=100"`
	Prenom    string                 `json:"prenom" validate:"required,max=100"`
	Email     string                 `json:"email" validate:"required,email"`
	Password  string                 `json:"password" validate:"required,min=6"`
	Telephone *string                `json:"telephone" validate:"omitempty,max=30"`
	Matieres  []string               `json:"matieres"`
	Statut    models.ProfessorStatus `json:"statut" validate:"required,oneof=permanent vacataire"`
}

// UpdateProfileRequest carries the editable fields of a professor's own profile.
type UpdateProfileRequest struct {
	Nom       *string                 `json:"nom" validate:"omitempty,max=100"`
	Prenom    *string                 `json:"prenom" validate:"omitempty,max=100"`
	Email     *string                 `json:"email" validate:"omitempty,email"`
	Telephone *string                 `json:"telephone" validate:"omitempty,max=30"`
	Matieres  []string                `json:"matieres"`
	Statut    *models.ProfessorStatus `json:"statut" validate:"omitempty,oneof=permanent vacataire"`
}

// PhotoUpload is an uploaded photo handed from the HTTP layer to the service.
type PhotoUpload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// CreatedResponse returns the identifier of a newly created record.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// ImportResult summarises a spreadsheet import.
type ImportResult struct {
	Inserted int `json:"inserted"`
}

// MessageResponse wraps a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// DecodeSubjects turns the stored subject JSON into a slice; absent or invalid data yields an empty list.
func DecodeSubjects(raw *string) []string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return []string{}
	}
	var subjects []string
	if err := json.Unmarshal([]byte(*raw), &subjects); err != nil || subjects == nil {
		return []string{}
	}
	return subjects
}

// EncodeSubjects serialises subjects for storage, trimming blanks.
func EncodeSubjects(subjects []string) string {
	cleaned := NormalizeSubjects(subjects)
	payload, _ := json.Marshal(cleaned)
	return string(payload)
}

// NormalizeSubjects splits comma separated entries and drops empty values.
func NormalizeSubjects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// NewProfessorResponse maps a model into its response shape.
func NewProfessorResponse(p models.Professor) ProfessorResponse {
	return ProfessorResponse{
		ID:        p.ID,
		Nom:       p.Nom,
		Prenom:    p.Prenom,
		Email:     p.Email,
		Telephone: p.Telephone,
		Matieres:  DecodeSubjects(p.Matieres),
		Statut:    p.Statut,
		Photo:     p.Photo,
		CreatedAt: p.CreatedAt,
	}
}
