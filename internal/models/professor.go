package models

import "time"

// ProfessorStatus is the employment status printed on a card.
type ProfessorStatus string

const (
	StatusPermanent ProfessorStatus = "permanent"
	StatusVacataire ProfessorStatus = "vacataire"
)

// Professor represents a teaching-staff record. Matieres holds the JSON-encoded subject list.
type Professor struct {
	ID        int64           `db:"id" json:"id"`
	Nom       string          `db:"nom" json:"nom"`
	Prenom    string          `db:"prenom" json:"prenom"`
	Email     string          `db:"email" json:"email"`
	Password  string          `db:"password" json:"-"`
	Telephone *string         `db:"telephone" json:"telephone,omitempty"`
	Matieres  *string         `db:"matieres" json:"-"`
	Statut    ProfessorStatus `db:"statut" json:"statut"`
	Photo     *string         `db:"photo" json:"photo,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ProfessorFilter captures filtering options for listing professors.
type ProfessorFilter struct {
	Search string
	Statut *ProfessorStatus
}
