// Package cardpdf lays out printable staff ID cards as single-page PDF documents.
package cardpdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for photo sniffing
	_ "image/jpeg" // register decoder for photo sniffing
	_ "image/png"  // register decoder for photo sniffing
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/noah-isme/staff-card-api/pkg/qr"
)

// Record is the read-only view of a staff member needed to draw a card.
type Record struct {
	ID       int64
	Nom      string
	Prenom   string
	Email    string
	Statut   string
	Matieres *string
	Photo    *string
}

// RenderedCard is one finished card document.
type RenderedCard struct {
	RecordID int64
	Name     string
	Filename string
	Data     []byte
}

// RenderError scopes a failure to a single record.
type RenderError struct {
	RecordID int64
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render card %d: %v", e.RecordID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Config carries the institution-specific values printed on every card.
type Config struct {
	PublicBaseURL     string
	InstitutionName   string
	InstitutionDomain string
	QRPixelSize       int
	Compress          bool
}

// Validate ensures the required fields are present.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		missing = append(missing, "PublicBaseURL")
	}
	if strings.TrimSpace(c.InstitutionName) == "" {
		missing = append(missing, "InstitutionName")
	}
	if strings.TrimSpace(c.InstitutionDomain) == "" {
		missing = append(missing, "InstitutionDomain")
	}
	if len(missing) > 0 {
		return fmt.Errorf("card config missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// QREncoder turns a URL into an image payload.
type QREncoder interface {
	Encode(ctx context.Context, content string, opts qr.Options) ([]byte, error)
}

// PhotoResolver opens a stored photo by reference.
type PhotoResolver interface {
	Resolve(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Clock returns the current time; injected so the validity year can be pinned.
type Clock func() time.Time

// Renderer draws cards. It keeps no drawing state between calls and is safe for concurrent use.
type Renderer struct {
	cfg    Config
	qr     QREncoder
	photos PhotoResolver
	clock  Clock
	logger *zap.Logger
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(r *Renderer) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger attaches a logger for degraded-photo diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRenderer validates cfg and constructs a Renderer.
func NewRenderer(cfg Config, encoder QREncoder, photos PhotoResolver, opts ...Option) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if encoder == nil {
		return nil, errors.New("card renderer requires a qr encoder")
	}
	if cfg.QRPixelSize <= 0 {
		cfg.QRPixelSize = qr.DefaultPixelSize
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	r := &Renderer{
		cfg:    cfg,
		qr:     encoder,
		photos: photos,
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ProfileURL is the deep link encoded in a record's QR code.
func (r *Renderer) ProfileURL(id int64) string {
	return fmt.Sprintf("%s/professeurs/%d", r.cfg.PublicBaseURL, id)
}

// Render lays out the card for rec. A missing or unreadable photo degrades to a placeholder;
// QR and drawing failures are returned as *RenderError.
func (r *Renderer) Render(ctx context.Context, rec Record) (card *RenderedCard, err error) {
	defer func() {
		if p := recover(); p != nil {
			card = nil
			err = &RenderError{RecordID: rec.ID, Err: fmt.Errorf("drawing panic: %v", p)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, &RenderError{RecordID: rec.ID, Err: err}
	}

	qrPayload, err := r.qr.Encode(ctx, r.ProfileURL(rec.ID), qr.Options{ErrorCorrection: qr.LevelHigh, PixelSize: r.cfg.QRPixelSize})
	if err != nil {
		return nil, &RenderError{RecordID: rec.ID, Err: fmt.Errorf("resolve qr payload: %w", err)}
	}
	photo := r.loadPhoto(ctx, rec)

	now := r.clock()
	pdf := r.newDocument(now, rec)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	drawBackground(pdf)
	drawHeader(pdf, tr, r.cfg.InstitutionName)
	drawQR(pdf, qrPayload)
	if !pdf.Ok() {
		return nil, &RenderError{RecordID: rec.ID, Err: fmt.Errorf("embed qr image: %w", pdf.Error())}
	}
	drawPhoto(pdf, photo)
	drawIdentity(pdf, tr, rec)
	drawSubjects(pdf, tr, SubjectsLine(rec.Matieres))
	drawFooter(pdf, tr, now.Year()+1, r.cfg.InstitutionDomain)

	if !pdf.Ok() {
		return nil, &RenderError{RecordID: rec.ID, Err: pdf.Error()}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, &RenderError{RecordID: rec.ID, Err: fmt.Errorf("write pdf: %w", err)}
	}

	return &RenderedCard{
		RecordID: rec.ID,
		Name:     EntryName(rec),
		Filename: DownloadName(rec),
		Data:     buf.Bytes(),
	}, nil
}

// SubjectsLine decodes the stored subject list and joins it with ", ".
// Data that is not a JSON string array is returned verbatim.
func SubjectsLine(raw *string) string {
	if raw == nil {
		return ""
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var items []any
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return *raw
	}
	subjects := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			subjects = append(subjects, "")
			continue
		}
		subjects = append(subjects, fmt.Sprint(item))
	}
	return strings.Join(subjects, ", ")
}

// EntryName names a card inside a bulk archive; the id keeps same-named staff apart.
func EntryName(rec Record) string {
	return fmt.Sprintf("carte_%s_%s_%d.pdf", sanitizeName(rec.Nom), sanitizeName(rec.Prenom), rec.ID)
}

// DownloadName names a single-card download.
func DownloadName(rec Record) string {
	return fmt.Sprintf("carte_%s_%s.pdf", sanitizeName(rec.Nom), sanitizeName(rec.Prenom))
}

func sanitizeName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "na"
	}
	var b strings.Builder
	for _, ch := range raw {
		switch {
		case ch == '/' || ch == '\\' || ch == '"' || ch == ':' || ch == ';':
			b.WriteRune('-')
		case ch == ' ' || ch < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

type photoImage struct {
	data      []byte
	imageType string
}

func (r *Renderer) loadPhoto(ctx context.Context, rec Record) *photoImage {
	if rec.Photo == nil || strings.TrimSpace(*rec.Photo) == "" || r.photos == nil {
		return nil
	}
	rc, err := r.photos.Resolve(ctx, *rec.Photo)
	if err != nil {
		r.logger.Debug("photo unavailable, using placeholder", zap.Int64("record_id", rec.ID), zap.Error(err))
		return nil
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		r.logger.Debug("photo unreadable, using placeholder", zap.Int64("record_id", rec.ID), zap.Error(err))
		return nil
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		r.logger.Debug("photo undecodable, using placeholder", zap.Int64("record_id", rec.ID), zap.Error(err))
		return nil
	}
	imageType := ""
	switch format {
	case "jpeg":
		imageType = "JPG"
	case "png":
		imageType = "PNG"
	case "gif":
		imageType = "GIF"
	default:
		return nil
	}
	return &photoImage{data: data, imageType: imageType}
}

func (r *Renderer) newDocument(now time.Time, rec Record) *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(r.cfg.Compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetCreator(r.cfg.InstitutionName, true)
	pdf.SetTitle(fmt.Sprintf("%s %s", rec.Prenom, rec.Nom), true)
	pdf.AddPage()
	return pdf
}

func setFill(pdf *gofpdf.Fpdf, c rgb) { pdf.SetFillColor(c.r, c.g, c.b) }
func setText(pdf *gofpdf.Fpdf, c rgb) { pdf.SetTextColor(c.r, c.g, c.b) }

func drawBackground(pdf *gofpdf.Fpdf) {
	pdf.ClipRoundedRect(cardInset, cardInset, cardWidth, cardHeight, cardRadius, false)
	// gradient vector runs in the rect's unit square with (0,0) at its lower-left corner
	pdf.LinearGradient(cardInset, cardInset, cardWidth, cardHeight,
		gradientTop.r, gradientTop.g, gradientTop.b,
		gradientBottom.r, gradientBottom.g, gradientBottom.b,
		0, 1, 0, 0)
	pdf.ClipEnd()

	pdf.SetLineWidth(borderLine)
	pdf.SetDrawColor(borderColor.r, borderColor.g, borderColor.b)
	pdf.RoundedRect(cardInset, cardInset, cardWidth, cardHeight, cardRadius, "1234", "D")
}

func drawHeader(pdf *gofpdf.Fpdf, tr func(string) string, institution string) {
	pdf.SetFont("Helvetica", "B", headerTitlePt)
	setText(pdf, titleColor)
	pdf.SetXY(0, headerTitleY)
	pdf.CellFormat(PageWidth, headerTitlePt, tr(institution), "", 0, "CT", false, 0, "")

	pdf.SetFont("Helvetica", "", headerSubPt)
	setText(pdf, subtitleColor)
	pdf.SetXY(0, headerSubY)
	pdf.CellFormat(PageWidth, headerSubPt, headerSubtitle, "", 0, "CT", false, 0, "")
}

func drawQR(pdf *gofpdf.Fpdf, payload []byte) {
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(payload))
	pdf.ImageOptions("qr", qrX, qrY, qrSide, qrSide, false, opts, 0, "")
}

func drawPhoto(pdf *gofpdf.Fpdf, photo *photoImage) {
	setFill(pdf, photoFill)
	pdf.Circle(photoCenterX, photoCenterY, photoRadius, "F")

	pdf.ClipCircle(photoCenterX, photoCenterY, photoRadius, false)
	defer pdf.ClipEnd()

	if photo != nil {
		opts := gofpdf.ImageOptions{ImageType: photo.imageType, ReadDpi: false}
		pdf.RegisterImageOptionsReader("photo", opts, bytes.NewReader(photo.data))
		if pdf.Ok() {
			side := photoRadius * 2
			pdf.ImageOptions("photo", photoCenterX-photoRadius, photoCenterY-photoRadius, side, side, false, opts, 0, "")
			return
		}
		// the decoder accepted the header but gofpdf could not embed it
		pdf.ClearError()
	}

	pdf.SetFont("Helvetica", "", placeholdPt)
	setText(pdf, placeholdColor)
	pdf.SetXY(photoCenterX-photoRadius, photoCenterY-placeholdPt/2)
	pdf.CellFormat(photoRadius*2, placeholdPt, placeholder, "", 0, "CM", false, 0, "")
}

func drawIdentity(pdf *gofpdf.Fpdf, tr func(string) string, rec Record) {
	y := infoY

	pdf.SetFont("Helvetica", "B", namePt)
	setText(pdf, nameColor)
	pdf.SetXY(infoX, y)
	pdf.CellFormat(0, namePt, tr(strings.TrimSpace(rec.Prenom+" "+rec.Nom)), "", 0, "LT", false, 0, "")
	y += nameGap

	pdf.SetFont("Helvetica", "", statusPt)
	setText(pdf, accentColor)
	pdf.SetXY(infoX, y)
	pdf.CellFormat(0, statusPt, tr(rec.Statut), "", 0, "LT", false, 0, "")
	y += statusGap

	pdf.SetFont("Helvetica", "", emailPt)
	setText(pdf, mutedColor)
	pdf.SetXY(infoX, y)
	pdf.CellFormat(0, emailPt, tr(rec.Email), "", 0, "LT", false, 0, "")
}

func drawSubjects(pdf *gofpdf.Fpdf, tr func(string) string, line string) {
	pdf.SetFont("Helvetica", "", subjectsPt)
	setText(pdf, subtitleColor)
	pdf.SetXY(infoX, infoY+nameGap+statusGap+emailGap)
	pdf.CellFormat(0, subjectsPt, tr(subjectsLabel+line), "", 0, "LT", false, 0, "")
}

func drawFooter(pdf *gofpdf.Fpdf, tr func(string) string, validUntil int, domain string) {
	pdf.SetFont("Helvetica", "", footerPt)
	setText(pdf, footerColor)

	pdf.SetXY(footerLeftX, footerY)
	pdf.CellFormat(0, footerPt, fmt.Sprintf(validityLabel, validUntil), "", 0, "LT", false, 0, "")

	pdf.SetXY(0, footerY)
	pdf.CellFormat(footerRightW, footerPt, tr(domain), "", 0, "RT", false, 0, "")
}
