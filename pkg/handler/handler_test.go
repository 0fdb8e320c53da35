package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/checkpoint"
	"github.com/2024aa05820/mlops-assignment2/pkg/device"
	"github.com/2024aa05820/mlops-assignment2/pkg/handler"
	"github.com/2024aa05820/mlops-assignment2/pkg/metrics"
	"github.com/2024aa05820/mlops-assignment2/pkg/nn"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
	"github.com/2024aa05820/mlops-assignment2/pkg/service"
)

func setupConfig(t *testing.T) {
	t.Helper()
	config.Config.Server.MaxDataSize = 12
	config.Config.Server.Debug = false
	config.Config.Server.CORSOrigins = nil
}

func loadedPredictor(t *testing.T) *predictor.Predictor {
	t.Helper()
	model := nn.New(2, 0.5, rand.New(rand.NewSource(42)))
	path := filepath.Join(t.TempDir(), "best_model.ckpt")
	require.NoError(t, checkpoint.Save(path, &checkpoint.Checkpoint{
		StateDict: model.StateDict(),
		Config:    checkpoint.Config{NumClasses: 2, Dropout: 0.5, ImageSize: 32},
	}))

	p := predictor.New()
	require.NoError(t, p.Load(path, device.Default()))
	return p
}

func newRouter(t *testing.T, ready bool) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	setupConfig(t)
	gin.SetMode(gin.TestMode)

	p := predictor.New()
	if ready {
		p = loadedPredictor(t)
	}
	m := metrics.New()
	return handler.SetupRouter(service.NewService(p, nil, nil, m)), m
}

func jpegBytes(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func postPredict(t *testing.T, r *gin.Engine, field, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, bodyType := multipartBody(t, field, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", bodyType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRootEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w := get(r, "/")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Cats vs Dogs Classifier API", resp.Name)
	assert.Equal(t, handler.Version, resp.Version)
	assert.Contains(t, resp.Endpoints, "POST /predict")
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w := get(r, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.ModelLoaded)
	assert.Equal(t, handler.Version, resp.Version)

	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}

func TestHealthEndpointWithoutModel(t *testing.T) {
	r, _ := newRouter(t, false)

	w := get(r, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.False(t, resp.ModelLoaded)
}

func TestReadyEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w := get(r, "/ready")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ready)
	assert.NotEmpty(t, resp.ModelPath)
	assert.NotEmpty(t, resp.Device)
}

func TestReadyEndpointWithoutModel(t *testing.T) {
	r, _ := newRouter(t, false)

	w := get(r, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "model not ready")
}

func TestPredictEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w := postPredict(t, r, "file", "red.jpg", "image/jpeg", jpegBytes(t, color.NRGBA{R: 255, A: 255}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp handler.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Contains(t, []string{"cat", "dog"}, resp.Prediction)
	assert.Greater(t, resp.Probability, 0.0)
	assert.LessOrEqual(t, resp.Probability, 1.0)
	assert.Equal(t, resp.Probability, resp.Confidence)
	assert.GreaterOrEqual(t, resp.InferenceTimeMS, 0.0)
	assert.False(t, resp.CacheHit)

	require.Len(t, resp.Probabilities, 2)
	assert.InDelta(t, 1.0, resp.Probabilities["cat"]+resp.Probabilities["dog"], 1e-6)

	// Latency is reported rounded to two decimal places.
	scaled := resp.InferenceTimeMS * 100
	assert.InDelta(t, math.Round(scaled), scaled, 1e-9)
}

func TestPredictMissingFile(t *testing.T) {
	r, _ := newRouter(t, true)

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no file uploaded")
}

func TestPredictWrongFieldName(t *testing.T) {
	r, _ := newRouter(t, true)

	w := postPredict(t, r, "image", "red.jpg", "image/jpeg", jpegBytes(t, color.NRGBA{R: 255, A: 255}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no file uploaded")
}

func TestPredictDeclaredNonImage(t *testing.T) {
	r, _ := newRouter(t, true)

	w := postPredict(t, r, "file", "notes.txt", "text/plain", jpegBytes(t, color.NRGBA{R: 255, A: 255}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file must be an image")
}

func TestPredictSniffedNonImage(t *testing.T) {
	r, _ := newRouter(t, true)

	w := postPredict(t, r, "file", "fake.jpg", "image/jpeg", []byte("plain text pretending to be a picture"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file must be an image")
}

func TestPredictUndecodableImage(t *testing.T) {
	r, _ := newRouter(t, true)

	// A JPEG magic number followed by garbage passes the MIME sniff but
	// fails to decode.
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x42}, 64)...)
	w := postPredict(t, r, "file", "broken.jpg", "image/jpeg", data)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cannot decode image")
}

func TestPredictModelNotReady(t *testing.T) {
	r, _ := newRouter(t, false)

	w := postPredict(t, r, "file", "red.jpg", "image/jpeg", jpegBytes(t, color.NRGBA{R: 255, A: 255}))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "model not ready")
}

func TestPredictOversizedUpload(t *testing.T) {
	r, _ := newRouter(t, true)
	config.Config.Server.MaxDataSize = 1

	w := postPredict(t, r, "file", "huge.jpg", "image/jpeg", bytes.Repeat([]byte{0xAB}, 1536*1024))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "upload limit")
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newRouter(t, true)

	w := postPredict(t, r, "file", "red.jpg", "image/jpeg", jpegBytes(t, color.NRGBA{R: 255, A: 255}))
	require.Equal(t, http.StatusOK, w.Code)

	scrape := get(r, "/metrics")
	require.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), "predictions_total")
	assert.Contains(t, scrape.Body.String(), "prediction_latency_seconds")
	assert.Contains(t, scrape.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newRouter(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	r, _ := newRouter(t, true)

	w := get(r, "/health")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-me", w.Header().Get("X-Request-ID"))
}
