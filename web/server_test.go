package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"Dreamy/core"
	"Dreamy/gallery"
	"Dreamy/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	calls    int
	payloads []string
	err      error
}

func (g *stubGenerator) Generate(ctx context.Context, req core.GenerationRequest) ([]string, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.payloads, nil
}

func testPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: shade, A: 255})
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newTestClient(t *testing.T, gen *stubGenerator) *testClient {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := gallery.NewManager(gen, storage.NewMemoryStorage(), time.Hour, log)
	srv, err := NewServer("127.0.0.1:0", manager, log)
	require.NoError(t, err)
	return &testClient{t: t, handler: srv.Handler()}
}

func (c *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == sessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func (c *testClient) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *testClient) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// pageText unescapes the page so base64 payloads can be matched literally
func pageText(rec *httptest.ResponseRecorder) string {
	return html.UnescapeString(rec.Body.String())
}

func generateForm(prompt, size string, count int) url.Values {
	return url.Values{
		"prompt": {prompt},
		"size":   {size},
		"count":  {fmt.Sprint(count)},
	}
}

func TestServer_Index(t *testing.T) {
	c := newTestClient(t, &stubGenerator{})

	rec := c.get("/")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, c.cookie, "first visit issues a session cookie")
	body := pageText(rec)
	assert.Contains(t, body, `name="prompt"`)
	assert.Contains(t, body, `maxlength="200"`)
	assert.Contains(t, body, `<option value="256x256" selected>`)
	assert.Contains(t, body, `<option value="1024x1024">`)
	assert.Contains(t, body, `min="1" max="5"`)
	assert.NotContains(t, body, `class="download-button"`)
}

func TestServer_GenerateRendersImages(t *testing.T) {
	images := [][]byte{testPNG(t, 1), testPNG(t, 2), testPNG(t, 3)}
	gen := &stubGenerator{}
	for _, img := range images {
		gen.payloads = append(gen.payloads, base64.StdEncoding.EncodeToString(img))
	}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("a red fox in snow", "512x512", 3))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gen.calls)
	body := pageText(rec)
	assert.Equal(t, 3, strings.Count(body, `class="download-button"`))
	assert.Equal(t, 3, strings.Count(body, "<img "))
	for i, img := range images {
		assert.Contains(t, body, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(img))
		assert.Contains(t, body, fmt.Sprintf(`download="generated_image_%d.png"`, i+1))
	}
	assert.Contains(t, body, `<option value="512x512" selected>`)
	assert.Contains(t, body, `value="3"`)
	assert.Contains(t, body, "a red fox in snow</textarea>")
}

func TestServer_GenerateEmptyPrompt(t *testing.T) {
	gen := &stubGenerator{}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("   ", "256x256", 1))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, gen.calls)
	assert.Contains(t, pageText(rec), `<div class="notice warning" role="status">Please enter a prompt.</div>`)
}

func TestServer_GenerateBadCount(t *testing.T) {
	gen := &stubGenerator{}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("fox", "256x256", 9))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, gen.calls)
	assert.Contains(t, pageText(rec), "Number of images must be between 1 and 5.")
}

func TestServer_GenerateNoImages(t *testing.T) {
	gen := &stubGenerator{payloads: []string{}}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("fox", "256x256", 1))

	assert.Contains(t, pageText(rec), `<div class="notice warning" role="status">No images generated.</div>`)
}

func TestServer_GenerateAuthenticationError(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("%w: Incorrect API key provided", core.ErrAuthentication)}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("fox", "256x256", 1))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := pageText(rec)
	assert.Contains(t, body, `class="notice error"`)
	assert.Contains(t, body, "Authentication error: Please check your OpenAI API key.")
	assert.NotContains(t, body, `class="download-button"`)
}

func TestServer_GenerateServiceError(t *testing.T) {
	gen := &stubGenerator{err: &core.ServiceError{Status: 500, Message: "The server had an error while processing your request."}}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("fox", "256x256", 1))

	assert.Contains(t, pageText(rec), "An error occurred: The server had an error while processing your request.")
}

func TestServer_TwoSubmissionsAccumulate(t *testing.T) {
	a, b, third := testPNG(t, 10), testPNG(t, 20), testPNG(t, 30)
	enc := base64.StdEncoding.EncodeToString
	gen := &stubGenerator{payloads: []string{enc(a), enc(b)}}
	c := newTestClient(t, gen)

	rec := c.post("/generate", generateForm("first", "256x256", 2))
	assert.Equal(t, 2, strings.Count(pageText(rec), `class="download-button"`))

	gen.payloads = []string{enc(third)}
	rec = c.post("/generate", generateForm("second", "256x256", 1))
	body := pageText(rec)
	assert.Equal(t, 3, strings.Count(body, `class="download-button"`))

	first := strings.Index(body, enc(a))
	second := strings.Index(body, enc(b))
	last := strings.Index(body, enc(third))
	assert.True(t, first < second && second < last, "images render in submission order")
}

func TestServer_Clear(t *testing.T) {
	gen := &stubGenerator{payloads: []string{base64.StdEncoding.EncodeToString(testPNG(t, 1))}}
	c := newTestClient(t, gen)
	c.post("/generate", generateForm("fox", "256x256", 1))

	rec := c.post("/clear", url.Values{})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := pageText(rec)
	assert.Contains(t, body, "Images cleared.")
	assert.NotContains(t, body, `class="download-button"`)

	rec = c.post("/clear", url.Values{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ImageDownload(t *testing.T) {
	img := testPNG(t, 99)
	gen := &stubGenerator{payloads: []string{base64.StdEncoding.EncodeToString(img)}}
	c := newTestClient(t, gen)
	c.post("/generate", generateForm("fox", "256x256", 1))

	rec := c.get("/images/1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="generated_image_1.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, img, rec.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, c.get("/images/2").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/images/0").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/images/x").Code)
}

func TestServer_SessionsAreSeparate(t *testing.T) {
	gen := &stubGenerator{payloads: []string{base64.StdEncoding.EncodeToString(testPNG(t, 1))}}
	c := newTestClient(t, gen)
	c.post("/generate", generateForm("fox", "256x256", 1))

	other := &testClient{t: t, handler: c.handler}
	rec := other.get("/")
	assert.NotContains(t, pageText(rec), `class="download-button"`)
	require.NotNil(t, other.cookie)
	assert.NotEqual(t, c.cookie.Value, other.cookie.Value)
}

func TestServer_InvalidCookieIsReplaced(t *testing.T) {
	c := newTestClient(t, &stubGenerator{})
	c.cookie = &http.Cookie{Name: sessionCookie, Value: "not-a-uuid"}

	c.get("/")

	assert.NotEqual(t, "not-a-uuid", c.cookie.Value)
}

func TestServer_Ready(t *testing.T) {
	c := newTestClient(t, &stubGenerator{})
	rec := c.get("/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", pageText(rec))
}
