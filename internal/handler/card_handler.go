package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/staff-card-api/internal/models"
	"github.com/noah-isme/staff-card-api/internal/service"
	"github.com/noah-isme/staff-card-api/pkg/cardpdf"
	"github.com/noah-isme/staff-card-api/pkg/response"
)

// ArchiveFilename is the download name of the bulk card export.
const ArchiveFilename = "cartes_professeurs.zip"

type cardService interface {
	RenderOne(ctx context.Context, id int64, actor *models.JWTClaims) (*cardpdf.RenderedCard, error)
	StreamBatch(ctx context.Context, actor *models.JWTClaims, sink io.Writer) (*service.BatchSummary, error)
}

// CardHandler serves single card PDFs and the streamed card archive.
type CardHandler struct {
	cards  cardService
	logger *zap.Logger
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(cards cardService, logger *zap.Logger) *CardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardHandler{cards: cards, logger: logger}
}

// GenerateCard godoc
// @Summary Download one professor card
// @Tags Cards
// @Produce application/pdf
// @Param id path int true "Professor ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /generate-card/{id} [get]
func (h *CardHandler) GenerateCard(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.cards.RenderOne(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "application/pdf", card.Filename, card.Data)
}

// GenerateCards godoc
// @Summary Download every professor card as a zip archive
// @Description The archive is streamed. Failures before the first byte return JSON; later failures truncate the download.
// @Tags Cards
// @Produce application/zip
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /generate-cards [get]
func (h *CardHandler) GenerateCards(c *gin.Context) {
	sink := &attachmentWriter{c: c, contentType: "application/zip", filename: ArchiveFilename}

	summary, err := h.cards.StreamBatch(c.Request.Context(), claimsFromContext(c), sink)
	if err != nil {
		if !sink.committed {
			response.Error(c, err)
			return
		}
		h.logger.Error("card archive aborted after streaming started",
			zap.Int64("bytes_sent", sink.written),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.Abort()
		return
	}
	if !sink.committed {
		sink.commit()
	}

	h.logger.Info("card archive sent",
		zap.Int("rendered", summary.Rendered),
		zap.Int("failed", summary.Failed),
		zap.Int("entries", summary.Archived),
		zap.Int64("bytes_sent", sink.written),
	)
}

// attachmentWriter commits the download headers on the first write so earlier failures can still return JSON.
type attachmentWriter struct {
	c           *gin.Context
	contentType string
	filename    string
	committed   bool
	written     int64
}

func (w *attachmentWriter) commit() {
	w.committed = true
	header := w.c.Writer.Header()
	header.Set("Content-Type", w.contentType)
	header.Set("Content-Disposition", response.ContentDisposition(w.filename))
	header.Set("Cache-Control", "no-store")
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	if !w.committed {
		w.commit()
	}
	n, err := w.c.Writer.Write(p)
	w.written += int64(n)
	if err == nil {
		w.c.Writer.Flush()
	}
	return n, err
}
