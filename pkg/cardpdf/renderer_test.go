package cardpdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/staff-card-api/pkg/qr"
)

var mediaBoxPattern = regexp.MustCompile(`/MediaBox \[0 0 340\.00 216\.00\]`)

func TestMain(m *testing.M) {
	api.DisableConfigDir()
	os.Exit(m.Run())
}

type failingEncoder struct{}

func (failingEncoder) Encode(context.Context, string, qr.Options) ([]byte, error) {
	return nil, errors.New("encoder offline")
}

type recordingEncoder struct {
	mu       sync.Mutex
	contents []string
	opts     []qr.Options
	inner    *qr.Encoder
}

func (e *recordingEncoder) Encode(ctx context.Context, content string, opts qr.Options) ([]byte, error) {
	e.mu.Lock()
	e.contents = append(e.contents, content)
	e.opts = append(e.opts, opts)
	e.mu.Unlock()
	return e.inner.Encode(ctx, content, opts)
}

type mapResolver map[string][]byte

func (m mapResolver) Resolve(_ context.Context, ref string) (io.ReadCloser, error) {
	data, ok := m[ref]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func testConfig() Config {
	return Config{
		PublicBaseURL:     "https://staff.example.edu/",
		InstitutionName:   "Example University",
		InstitutionDomain: "www.example.edu",
		QRPixelSize:       80,
	}
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
}

func newTestRenderer(t *testing.T, encoder QREncoder, photos PhotoResolver) *Renderer {
	t.Helper()
	if encoder == nil {
		encoder = qr.NewEncoder()
	}
	r, err := NewRenderer(testConfig(), encoder, photos, WithClock(fixedClock))
	require.NoError(t, err)
	return r
}

func strPtr(s string) *string { return &s }

// assertShows checks for a text-showing operator drawing exactly text.
func assertShows(t *testing.T, body, text string) {
	t.Helper()
	assert.Regexp(t, showPattern(text), body)
}

func assertNotShows(t *testing.T, body, text string) {
	t.Helper()
	assert.NotRegexp(t, showPattern(text), body)
}

func showPattern(text string) *regexp.Regexp {
	return regexp.MustCompile(`\(` + regexp.QuoteMeta(text) + `\)\s*Tj`)
}

func sampleRecord() Record {
	return Record{
		ID:       7,
		Nom:      "Alaoui",
		Prenom:   "Sara",
		Email:    "sara.alaoui@example.edu",
		Statut:   "permanent",
		Matieres: strPtr(`["Analyse","Algebre"]`),
	}
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 10), B: uint8(y * 10), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestConfigValidate(t *testing.T) {
	err := Config{InstitutionName: "x"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PublicBaseURL")
	assert.Contains(t, err.Error(), "InstitutionDomain")
	assert.NotContains(t, err.Error(), "InstitutionName")

	_, err = NewRenderer(Config{}, qr.NewEncoder(), nil)
	require.Error(t, err)

	_, err = NewRenderer(testConfig(), nil, nil)
	require.Error(t, err)
}

func TestRenderProducesSinglePageCard(t *testing.T) {
	encoder := &recordingEncoder{inner: qr.NewEncoder()}
	r := newTestRenderer(t, encoder, nil)

	card, err := r.Render(context.Background(), sampleRecord())
	require.NoError(t, err)
	require.NotEmpty(t, card.Data)
	require.True(t, bytes.HasPrefix(card.Data, []byte("%PDF-")))
	require.Regexp(t, mediaBoxPattern, string(card.Data))

	pages, err := api.PageCount(bytes.NewReader(card.Data), nil)
	require.NoError(t, err)
	require.Equal(t, 1, pages)

	require.Equal(t, int64(7), card.RecordID)
	require.Equal(t, "carte_Alaoui_Sara_7.pdf", card.Name)
	require.Equal(t, "carte_Alaoui_Sara.pdf", card.Filename)

	require.Equal(t, []string{"https://staff.example.edu/professeurs/7"}, encoder.contents)
	require.Equal(t, qr.LevelHigh, encoder.opts[0].ErrorCorrection)
	require.Equal(t, 80, encoder.opts[0].PixelSize)
}

func TestRenderTextContent(t *testing.T) {
	r := newTestRenderer(t, nil, nil)

	card, err := r.Render(context.Background(), sampleRecord())
	require.NoError(t, err)

	body := string(card.Data)
	assertShows(t, body, "Example University")
	assertShows(t, body, "Teacher Card")
	assertShows(t, body, "Sara Alaoui")
	assertShows(t, body, "permanent")
	assertShows(t, body, "sara.alaoui@example.edu")
	assertShows(t, body, "Subjects: Analyse, Algebre")
	assertShows(t, body, "Valid until 2025")
	assertShows(t, body, "www.example.edu")
}

func TestRenderPlaceholderWithoutPhoto(t *testing.T) {
	r := newTestRenderer(t, nil, mapResolver{})

	rec := sampleRecord()
	card, err := r.Render(context.Background(), rec)
	require.NoError(t, err)
	assertShows(t, string(card.Data), "?")

	rec.Photo = strPtr("missing.jpg")
	card, err = r.Render(context.Background(), rec)
	require.NoError(t, err)
	assertShows(t, string(card.Data), "?")
}

func TestRenderPlaceholderForUndecodablePhoto(t *testing.T) {
	r := newTestRenderer(t, nil, mapResolver{"broken.png": []byte("not an image")})

	rec := sampleRecord()
	rec.Photo = strPtr("broken.png")
	card, err := r.Render(context.Background(), rec)
	require.NoError(t, err)
	assertShows(t, string(card.Data), "?")
}

func TestRenderEmbedsResolvedPhoto(t *testing.T) {
	r := newTestRenderer(t, nil, mapResolver{"sara.png": samplePNG(t)})

	rec := sampleRecord()
	rec.Photo = strPtr("sara.png")
	card, err := r.Render(context.Background(), rec)
	require.NoError(t, err)

	body := string(card.Data)
	assertNotShows(t, body, "?")
	assert.Equal(t, 2, strings.Count(body, "/Subtype /Image"))
}

func TestRenderFallsBackToRawSubjects(t *testing.T) {
	r := newTestRenderer(t, nil, nil)

	rec := sampleRecord()
	rec.Matieres = strPtr("Analyse; Geometrie")
	card, err := r.Render(context.Background(), rec)
	require.NoError(t, err)
	assertShows(t, string(card.Data), "Subjects: Analyse; Geometrie")
}

func TestRenderQRFailureIsScopedToRecord(t *testing.T) {
	r := newTestRenderer(t, failingEncoder{}, nil)

	card, err := r.Render(context.Background(), sampleRecord())
	require.Nil(t, card)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	require.Equal(t, int64(7), renderErr.RecordID)
	require.Contains(t, err.Error(), "encoder offline")
}

func TestRenderCancelledContext(t *testing.T) {
	r := newTestRenderer(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, sampleRecord())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRenderConcurrentIsolation(t *testing.T) {
	r := newTestRenderer(t, nil, nil)

	first := sampleRecord()
	second := sampleRecord()
	second.ID = 8
	second.Nom = "Bennani"
	second.Statut = "vacataire"

	const rounds = 4
	results := make([][]byte, rounds*2)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		for j, rec := range []Record{first, second} {
			wg.Add(1)
			go func(slot int, rec Record) {
				defer wg.Done()
				card, err := r.Render(context.Background(), rec)
				if err == nil {
					results[slot] = card.Data
				}
			}(i*2+j, rec)
		}
	}
	wg.Wait()

	for i := 0; i < rounds; i++ {
		require.NotEmpty(t, results[i*2])
		require.NotEmpty(t, results[i*2+1])
		require.Equal(t, results[0], results[i*2])
		require.Equal(t, results[1], results[i*2+1])
	}
	require.NotEqual(t, results[0], results[1])
}

func TestRenderIsStableAcrossWallClock(t *testing.T) {
	r := newTestRenderer(t, nil, nil)

	first, err := r.Render(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Contains(t, string(first.Data), "/CreationDate (D:20240304100000)")
	assert.Contains(t, string(first.Data), "/ModDate (D:20240304100000)")

	time.Sleep(1100 * time.Millisecond)

	second, err := r.Render(context.Background(), sampleRecord())
	require.NoError(t, err)
	require.Equal(t, first.Data, second.Data)
}

func TestSubjectsLine(t *testing.T) {
	cases := []struct {
		name string
		raw  *string
		want string
	}{
		{name: "nil", raw: nil, want: ""},
		{name: "empty", raw: strPtr("  "), want: ""},
		{name: "json null", raw: strPtr("null"), want: ""},
		{name: "empty list", raw: strPtr("[]"), want: ""},
		{name: "list", raw: strPtr(`["A","B","C"]`), want: "A, B, C"},
		{name: "numbers", raw: strPtr("[1,2]"), want: "1, 2"},
		{name: "mixed", raw: strPtr(`["A",3,true]`), want: "A, 3, true"},
		{name: "not json", raw: strPtr("A,B"), want: "A,B"},
		{name: "wrong shape", raw: strPtr(`{"a":1}`), want: `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SubjectsLine(tc.raw))
		})
	}
}

func TestEntryNames(t *testing.T) {
	rec := Record{ID: 12, Nom: "El Idrissi", Prenom: "A/B"}
	require.Equal(t, "carte_El_Idrissi_A-B_12.pdf", EntryName(rec))
	require.Equal(t, "carte_El_Idrissi_A-B.pdf", DownloadName(rec))
	require.Equal(t, "carte_na_na_3.pdf", EntryName(Record{ID: 3}))
}
