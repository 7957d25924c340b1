package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/staff-card-api/internal/dto"
	"github.com/noah-isme/staff-card-api/internal/models"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
)

var importColumns = []string{"nom", "prenom", "email", "password", "telephone", "matieres", "statut"}

type importProfessorRepository interface {
	CreateMany(ctx context.Context, professors []models.Professor) (int, error)
}

type importRow struct {
	Nom    string                 `validate:"required,max=100"`
	Prenom string                 `validate:"required,max=100"`
	Email  string                 `validate:"required,email"`
	Statut models.ProfessorStatus `validate:"required,oneof=permanent vacataire"`
}

// ImportService loads professors from the first sheet of an xlsx workbook.
type ImportService struct {
	repo      importProfessorRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewImportService constructs an ImportService.
func NewImportService(repo importProfessorRepository, validate *validator.Validate, logger *zap.Logger) *ImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{repo: repo, validator: validate, logger: logger}
}

// Import parses the workbook and inserts every row in a single transaction.
func (s *ImportService) Import(ctx context.Context, r io.Reader) (*dto.ImportResult, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "unable to read spreadsheet")
	}
	defer book.Close() //nolint:errcheck

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrImportFailed, "spreadsheet has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "unable to read sheet")
	}
	if len(rows) < 2 {
		return nil, appErrors.Clone(appErrors.ErrImportFailed, "spreadsheet has no data rows")
	}

	index := headerIndex(rows[0])
	for _, required := range []string{"nom", "prenom", "email"} {
		if _, ok := index[required]; !ok {
			return nil, appErrors.Clone(appErrors.ErrImportFailed, fmt.Sprintf("missing column %q", required))
		}
	}

	professors := make([]models.Professor, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		professor, err := s.buildProfessor(row, index)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, fmt.Sprintf("invalid row %d", i+2))
		}
		professors = append(professors, professor)
	}
	if len(professors) == 0 {
		return nil, appErrors.Clone(appErrors.ErrImportFailed, "spreadsheet has no data rows")
	}

	inserted, err := s.repo.CreateMany(ctx, professors)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "import rolled back")
	}
	s.logger.Info("professors imported", zap.Int("count", inserted))
	return &dto.ImportResult{Inserted: inserted}, nil
}

func (s *ImportService) buildProfessor(row []string, index map[string]int) (models.Professor, error) {
	cell := func(name string) string {
		pos, ok := index[name]
		if !ok || pos >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[pos])
	}

	statut := models.ProfessorStatus(strings.ToLower(cell("statut")))
	if statut == "" {
		statut = models.StatusPermanent
	}
	candidate := importRow{Nom: cell("nom"), Prenom: cell("prenom"), Email: cell("email"), Statut: statut}
	if err := s.validator.Struct(candidate); err != nil {
		return models.Professor{}, err
	}

	password := cell("password")
	if password == "" {
		generated, err := randomPassword()
		if err != nil {
			return models.Professor{}, err
		}
		password = generated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Professor{}, err
	}

	subjects := dto.EncodeSubjects([]string{cell("matieres")})
	telephone := cell("telephone")
	return models.Professor{
		Nom:       candidate.Nom,
		Prenom:    candidate.Prenom,
		Email:     candidate.Email,
		Password:  string(hash),
		Telephone: normalizeOptional(&telephone),
		Matieres:  &subjects,
		Statut:    candidate.Statut,
	}, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(importColumns))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		for _, column := range importColumns {
			if key == column {
				if _, seen := index[key]; !seen {
					index[key] = i
				}
			}
		}
	}
	return index
}

func blankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func randomPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
