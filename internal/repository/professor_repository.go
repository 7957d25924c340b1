package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/staff-card-api/internal/models"
)

const professorColumns = "id, nom, prenom, email, password, telephone, matieres, statut, photo, created_at"

// ProfessorRepository manages persistence for professors.
type ProfessorRepository struct {
	db *sqlx.DB
}

// NewProfessorRepository constructs a ProfessorRepository.
func NewProfessorRepository(db *sqlx.DB) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

// List returns professors matching the filter ordered by id.
func (r *ProfessorRepository) List(ctx context.Context, filter models.ProfessorFilter) ([]models.Professor, error) {
	base := "FROM professeurs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Statut != nil {
		conditions = append(conditions, fmt.Sprintf("statut = $%d", len(args)+1))
		args = append(args, *filter.Statut)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(nom) LIKE $%d OR LOWER(prenom) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY id ASC", professorColumns, base)
	var professors []models.Professor
	if err := r.db.SelectContext(ctx, &professors, query, args...); err != nil {
		return nil, fmt.Errorf("list professors: %w", err)
	}
	return professors, nil
}

// ListAll returns every professor; it backs the bulk card export.
func (r *ProfessorRepository) ListAll(ctx context.Context) ([]models.Professor, error) {
	return r.List(ctx, models.ProfessorFilter{})
}

// FindByID fetches a professor by ID.
func (r *ProfessorRepository) FindByID(ctx context.Context, id int64) (*models.Professor, error) {
	query := "SELECT " + professorColumns + " FROM professeurs WHERE id = $1"
	var professor models.Professor
	if err := r.db.GetContext(ctx, &professor, query, id); err != nil {
		return nil, err
	}
	return &professor, nil
}

// FindByEmail fetches a professor by email.
func (r *ProfessorRepository) FindByEmail(ctx context.Context, email string) (*models.Professor, error) {
	query := "SELECT " + professorColumns + " FROM professeurs WHERE LOWER(email) = LOWER($1)"
	var professor models.Professor
	if err := r.db.GetContext(ctx, &professor, query, email); err != nil {
		return nil, err
	}
	return &professor, nil
}

// ExistsByEmail checks if another professor uses the same email.
func (r *ProfessorRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM professeurs WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID > 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check professor email: %w", err)
	}
	return true, nil
}

const insertProfessor = `INSERT INTO professeurs (nom, prenom, email, password, telephone, matieres, statut, photo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

// Create inserts a professor and sets its generated ID.
func (r *ProfessorRepository) Create(ctx context.Context, professor *models.Professor) error {
	if professor.CreatedAt.IsZero() {
		professor.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowxContext(ctx, insertProfessor, insertArgs(professor)...)
	if err := row.Scan(&professor.ID); err != nil {
		return fmt.Errorf("create professor: %w", err)
	}
	return nil
}

// CreateMany inserts all professors in one transaction; any failure rolls back every row.
func (r *ProfessorRepository) CreateMany(ctx context.Context, professors []models.Professor) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range professors {
		if professors[i].CreatedAt.IsZero() {
			professors[i].CreatedAt = now
		}
		if err := tx.QueryRowxContext(ctx, insertProfessor, insertArgs(&professors[i])...).Scan(&professors[i].ID); err != nil {
			return 0, fmt.Errorf("import row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(professors), nil
}

// Update modifies the editable fields of a professor.
func (r *ProfessorRepository) Update(ctx context.Context, professor *models.Professor) error {
	const query = `UPDATE professeurs SET nom = :nom, prenom = :prenom, email = :email, telephone = :telephone,
		matieres = :matieres, statut = :statut, photo = :photo WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, professor)
	if err != nil {
		return fmt.Errorf("update professor: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a professor. sql.ErrNoRows is returned when nothing was deleted.
func (r *ProfessorRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM professeurs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete professor: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func insertArgs(p *models.Professor) []interface{} {
	return []interface{}{p.Nom, p.Prenom, p.Email, p.Password, p.Telephone, p.Matieres, p.Statut, p.Photo, p.CreatedAt}
}
