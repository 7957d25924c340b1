package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/staff-card-api/internal/models"
	"github.com/noah-isme/staff-card-api/pkg/cardpdf"
	"github.com/noah-isme/staff-card-api/pkg/config"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
	"github.com/noah-isme/staff-card-api/pkg/ziparchive"
)

// ManifestEntryName is the archive entry holding the batch summary.
const ManifestEntryName = "manifest.json"

type cardProfessorRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Professor, error)
	ListAll(ctx context.Context) ([]models.Professor, error)
}

// CardServiceConfig selects how bulk exports treat per-card failures.
type CardServiceConfig struct {
	BatchMode string
	Manifest  bool
}

// BatchSummary reports the outcome of a bulk export.
type BatchSummary struct {
	Mode      string    `json:"mode"`
	Requested int       `json:"requested"`
	Rendered  int       `json:"rendered"`
	Failed    int       `json:"failed"`
	FailedIDs []int64   `json:"failed_ids"`
	Entries   []string  `json:"entries"`
	CreatedAt time.Time `json:"created_at"`
	// Archived counts zip entries written, manifest included.
	Archived int `json:"-"`
	// Streamed is set once any archive byte reached the sink.
	Streamed bool `json:"-"`
}

// CardService renders single cards and streams bulk card archives.
type CardService struct {
	repo         cardProfessorRepository
	renderer     CardRenderer
	orchestrator *BatchOrchestrator
	metrics      *MetricsService
	logger       *zap.Logger
	cfg          CardServiceConfig
	now          func() time.Time
}

// NewCardService constructs a CardService.
func NewCardService(repo cardProfessorRepository, renderer CardRenderer, orchestrator *BatchOrchestrator, metrics *MetricsService, logger *zap.Logger, cfg CardServiceConfig) *CardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchMode == "" {
		cfg.BatchMode = config.BatchModeBestEffort
	}
	return &CardService{
		repo:         repo,
		renderer:     renderer,
		orchestrator: orchestrator,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// RenderOne renders the card of professor id. Professors may only render their own card.
func (s *CardService) RenderOne(ctx context.Context, id int64, actor *models.JWTClaims) (*cardpdf.RenderedCard, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access to this card is not allowed")
	}

	professor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}

	start := time.Now()
	card, err := s.renderer.Render(ctx, CardRecord(*professor))
	s.metrics.ObserveRender(err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("card render failed", zap.Int64("record_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrRenderFailed.Code, appErrors.ErrRenderFailed.Status, appErrors.ErrRenderFailed.Message)
	}
	return card, nil
}

// StreamBatch renders every professor's card into a zip archive written to sink.
// Only administrators may call it. In best-effort mode failed cards are left out of the archive;
// in strict mode any failure aborts the export before a byte is written.
func (s *CardService) StreamBatch(ctx context.Context, actor *models.JWTClaims, sink io.Writer) (*BatchSummary, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can export all cards")
	}

	professors, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list professors")
	}
	records := make([]cardpdf.Record, len(professors))
	for i, professor := range professors {
		records[i] = CardRecord(professor)
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	summary := &BatchSummary{Mode: s.cfg.BatchMode, Requested: len(records), FailedIDs: []int64{}, Entries: []string{}, CreatedAt: s.now().UTC()}
	packager := ziparchive.New(sink)
	results := s.orchestrator.Run(ctx, records)

	if s.cfg.BatchMode == config.BatchModeStrict {
		err = s.packStrict(results, packager, summary)
	} else {
		err = s.packBestEffort(results, packager, summary)
	}
	if err != nil {
		cancel()
		for range results {
		}
		packager.Abort()
		return summary, s.abortBatch(packager, summary, err)
	}

	if s.cfg.Manifest {
		if err := s.appendManifest(packager, summary); err != nil {
			return summary, s.abortBatch(packager, summary, err)
		}
	}
	if err := packager.Finalize(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrPackagerFatal.Code, appErrors.ErrPackagerFatal.Status, appErrors.ErrPackagerFatal.Message)
		return summary, s.abortBatch(packager, summary, err)
	}
	summary.Archived = packager.Entries()
	summary.Streamed = packager.Written()

	s.metrics.ObserveBatch(s.cfg.BatchMode, time.Since(start))
	s.logger.Info("card batch exported",
		zap.String("mode", summary.Mode),
		zap.Int("requested", summary.Requested),
		zap.Int("rendered", summary.Rendered),
		zap.Int("failed", summary.Failed),
		zap.Int("archived", summary.Archived),
	)
	return summary, nil
}

func (s *CardService) abortBatch(packager *ziparchive.Packager, summary *BatchSummary, err error) error {
	summary.Archived = packager.Entries()
	summary.Streamed = packager.Written()
	s.logger.Warn("card batch aborted",
		zap.String("mode", summary.Mode),
		zap.Int("archived", summary.Archived),
		zap.Bool("partial_archive", summary.Streamed),
		zap.Error(err),
	)
	return err
}

func (s *CardService) packBestEffort(results <-chan BatchResult, packager *ziparchive.Packager, summary *BatchSummary) error {
	for res := range results {
		if !res.OK() {
			summary.recordFailure(res.RecordID)
			continue
		}
		if err := s.appendCard(packager, res.Card, summary); err != nil {
			return err
		}
	}
	summary.sortFailures()
	return nil
}

func (s *CardService) packStrict(results <-chan BatchResult, packager *ziparchive.Packager, summary *BatchSummary) error {
	cards := make([]*cardpdf.RenderedCard, 0, summary.Requested)
	for res := range results {
		if !res.OK() {
			summary.recordFailure(res.RecordID)
			continue
		}
		cards = append(cards, res.Card)
	}
	summary.sortFailures()
	if summary.Failed > 0 {
		return appErrors.Clone(appErrors.ErrRenderFailed, fmt.Sprintf("%d of %d cards failed to render", summary.Failed, summary.Requested))
	}

	sort.Slice(cards, func(i, j int) bool { return cards[i].RecordID < cards[j].RecordID })
	for _, card := range cards {
		if err := s.appendCard(packager, card, summary); err != nil {
			return err
		}
	}
	return nil
}

func (s *CardService) appendCard(packager *ziparchive.Packager, card *cardpdf.RenderedCard, summary *BatchSummary) error {
	name, err := packager.Append(card.Name, card.Data)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPackagerFatal.Code, appErrors.ErrPackagerFatal.Status, appErrors.ErrPackagerFatal.Message)
	}
	summary.Rendered++
	summary.Entries = append(summary.Entries, name)
	return nil
}

func (s *CardService) appendManifest(packager *ziparchive.Packager, summary *BatchSummary) error {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode batch manifest")
	}
	if _, err := packager.Append(ManifestEntryName, payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPackagerFatal.Code, appErrors.ErrPackagerFatal.Status, appErrors.ErrPackagerFatal.Message)
	}
	return nil
}

func (b *BatchSummary) recordFailure(id int64) {
	b.Failed++
	b.FailedIDs = append(b.FailedIDs, id)
}

func (b *BatchSummary) sortFailures() {
	sort.Slice(b.FailedIDs, func(i, j int) bool { return b.FailedIDs[i] < b.FailedIDs[j] })
}

// CardRecord projects a professor onto the fields printed on a card.
func CardRecord(p models.Professor) cardpdf.Record {
	return cardpdf.Record{
		ID:       p.ID,
		Nom:      p.Nom,
		Prenom:   p.Prenom,
		Email:    p.Email,
		Statut:   string(p.Statut),
		Matieres: p.Matieres,
		Photo:    p.Photo,
	}
}
