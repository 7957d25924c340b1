package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/staff-card-api/internal/models"
	"github.com/noah-isme/staff-card-api/pkg/cardpdf"
	"github.com/noah-isme/staff-card-api/pkg/config"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
	"github.com/noah-isme/staff-card-api/pkg/qr"
)

type cardRepoStub struct {
	professors []models.Professor
	listErr    error
}

func (r *cardRepoStub) FindByID(_ context.Context, id int64) (*models.Professor, error) {
	for _, p := range r.professors {
		if p.ID == id {
			professor := p
			return &professor, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *cardRepoStub) ListAll(context.Context) ([]models.Professor, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.professors, nil
}

// selectiveEncoder fails for profile links whose id is listed.
type selectiveEncoder struct {
	inner  *qr.Encoder
	failOn map[string]bool
}

func (e *selectiveEncoder) Encode(ctx context.Context, content string, opts qr.Options) ([]byte, error) {
	for suffix := range e.failOn {
		if strings.HasSuffix(content, suffix) {
			return nil, errors.New("qr backend unavailable")
		}
	}
	return e.inner.Encode(ctx, content, opts)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }

func seedProfessors(n int) []models.Professor {
	out := make([]models.Professor, n)
	for i := range out {
		subjects := `["Analyse","Physique"]`
		out[i] = models.Professor{
			ID:       int64(i + 1),
			Nom:      "Nom",
			Prenom:   "Prenom",
			Email:    "prof@example.edu",
			Statut:   models.StatusPermanent,
			Matieres: &subjects,
		}
	}
	return out
}

func newCardService(t *testing.T, professors []models.Professor, failOn map[string]bool, cfg CardServiceConfig) *CardService {
	t.Helper()
	renderer, err := cardpdf.NewRenderer(cardpdf.Config{
		PublicBaseURL:     "https://staff.example.edu",
		InstitutionName:   "Example University",
		InstitutionDomain: "www.example.edu",
		QRPixelSize:       64,
		Compress:          true,
	}, &selectiveEncoder{inner: qr.NewEncoder(), failOn: failOn}, nil, cardpdf.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	metrics := NewMetricsService()
	orchestrator := NewBatchOrchestrator(renderer, 3, metrics, nil)
	return NewCardService(&cardRepoStub{professors: professors}, renderer, orchestrator, metrics, nil, cfg)
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}
}

func professorClaims(id int64) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleProfessor}
}

func zipEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		entries[f.Name] = body
	}
	return entries
}

func TestCardServiceRenderOneAuthorization(t *testing.T) {
	svc := newCardService(t, seedProfessors(3), nil, CardServiceConfig{})

	card, err := svc.RenderOne(context.Background(), 2, professorClaims(2))
	require.NoError(t, err)
	assert.Equal(t, "carte_Nom_Prenom.pdf", card.Filename)
	assert.True(t, bytes.HasPrefix(card.Data, []byte("%PDF-")))

	_, err = svc.RenderOne(context.Background(), 3, professorClaims(2))
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	_, err = svc.RenderOne(context.Background(), 3, adminClaims())
	require.NoError(t, err)

	_, err = svc.RenderOne(context.Background(), 99, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.RenderOne(context.Background(), 1, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCardServiceRenderOneFailure(t *testing.T) {
	svc := newCardService(t, seedProfessors(1), map[string]bool{"/professeurs/1": true}, CardServiceConfig{})

	_, err := svc.RenderOne(context.Background(), 1, adminClaims())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRenderFailed.Code, appErr.Code)
	var renderErr *cardpdf.RenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestCardServiceStreamBatchOmitsFailedCards(t *testing.T) {
	failOn := map[string]bool{"/professeurs/2": true, "/professeurs/5": true}
	svc := newCardService(t, seedProfessors(6), failOn, CardServiceConfig{BatchMode: config.BatchModeBestEffort})

	buf := &bytes.Buffer{}
	summary, err := svc.StreamBatch(context.Background(), adminClaims(), buf)
	require.NoError(t, err)

	entries := zipEntries(t, buf.Bytes())
	require.Len(t, entries, 4)
	for _, id := range []string{"1", "3", "4", "6"} {
		data, ok := entries["carte_Nom_Prenom_"+id+".pdf"]
		require.True(t, ok, "missing card %s", id)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	}
	assert.Equal(t, 6, summary.Requested)
	assert.Equal(t, 4, summary.Rendered)
	assert.Equal(t, []int64{2, 5}, summary.FailedIDs)
	assert.Equal(t, 4, summary.Archived)
	assert.True(t, summary.Streamed)
}

func TestCardServiceStreamBatchManifest(t *testing.T) {
	failOn := map[string]bool{"/professeurs/1": true}
	svc := newCardService(t, seedProfessors(2), failOn, CardServiceConfig{BatchMode: config.BatchModeBestEffort, Manifest: true})

	buf := &bytes.Buffer{}
	summary, err := svc.StreamBatch(context.Background(), adminClaims(), buf)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Archived)

	entries := zipEntries(t, buf.Bytes())
	require.Len(t, entries, 2)
	var manifest BatchSummary
	require.NoError(t, json.Unmarshal(entries[ManifestEntryName], &manifest))
	assert.Equal(t, 1, manifest.Rendered)
	assert.Equal(t, []int64{1}, manifest.FailedIDs)
	assert.Equal(t, []string{"carte_Nom_Prenom_2.pdf"}, manifest.Entries)
}

func TestCardServiceStreamBatchStrict(t *testing.T) {
	svc := newCardService(t, seedProfessors(3), map[string]bool{"/professeurs/3": true}, CardServiceConfig{BatchMode: config.BatchModeStrict})

	buf := &bytes.Buffer{}
	summary, err := svc.StreamBatch(context.Background(), adminClaims(), buf)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRenderFailed.Code, appErrors.FromError(err).Code)
	assert.Zero(t, buf.Len())
	assert.Equal(t, []int64{3}, summary.FailedIDs)
	assert.Zero(t, summary.Archived)
	assert.False(t, summary.Streamed)

	svc = newCardService(t, seedProfessors(3), nil, CardServiceConfig{BatchMode: config.BatchModeStrict})
	buf.Reset()
	_, err = svc.StreamBatch(context.Background(), adminClaims(), buf)
	require.NoError(t, err)
	assert.Len(t, zipEntries(t, buf.Bytes()), 3)
}

func TestCardServiceStreamBatchSinkFailure(t *testing.T) {
	svc := newCardService(t, seedProfessors(8), nil, CardServiceConfig{})

	summary, err := svc.StreamBatch(context.Background(), adminClaims(), failingWriter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPackagerFatal.Code, appErrors.FromError(err).Code)
	assert.False(t, summary.Streamed)
}

func TestCardServiceStreamBatchRequiresAdmin(t *testing.T) {
	svc := newCardService(t, seedProfessors(1), nil, CardServiceConfig{})

	_, err := svc.StreamBatch(context.Background(), professorClaims(1), &bytes.Buffer{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCardServiceStreamBatchListFailure(t *testing.T) {
	svc := newCardService(t, nil, nil, CardServiceConfig{})
	svc.repo = &cardRepoStub{listErr: errors.New("db down")}

	_, err := svc.StreamBatch(context.Background(), adminClaims(), &bytes.Buffer{})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
