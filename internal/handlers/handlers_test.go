package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
	"github.com/Brownie44l1/resnet-classifier/internal/model"
	"github.com/Brownie44l1/resnet-classifier/internal/transform"
)

type stubClassifier struct {
	labels model.LabelTable
	scores []float32
	err    error
	seen   []imaging.Tensor
}

func (s *stubClassifier) Classify(_ context.Context, img imaging.Tensor) (*model.Prediction, error) {
	s.seen = append(s.seen, img)
	if s.err != nil {
		return nil, s.err
	}
	idx := model.Argmax(s.scores)
	probs := model.Softmax(s.scores)
	return &model.Prediction{Index: idx, Label: s.labels[idx], Confidence: probs[idx], Scores: s.scores, Probabilities: probs}, nil
}

func (s *stubClassifier) Labels() model.LabelTable { return s.labels }

func newTestRouter(t *testing.T, c Classifier) (*gin.Engine, *Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	return NewRouter(NewHandler(c, metrics), reg), metrics
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "mushroom.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict/image", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, &stubClassifier{labels: model.LabelTable{"a", "b"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","classes":2}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPredictFromImage(t *testing.T) {
	stub := &stubClassifier{labels: model.LabelTable{"Agaricus", "Amanita", "Boletus"}, scores: []float32{0.1, 0.7, 0.2}}
	r, metrics := newTestRouter(t, stub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "image", samplePNG(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Amanita", resp.Class)
	assert.Equal(t, 1, resp.Index)
	assert.NotEmpty(t, resp.ID)
	assert.Len(t, resp.Predictions, 3)

	require.Len(t, stub.seen, 1)
	assert.Equal(t, []int{3, transform.ImageSize, transform.ImageSize}, stub.seen[0].Shape)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.requests.WithLabelValues("predict_image", "200")), 0)
}

func TestPredictFromImageErrors(t *testing.T) {
	stub := &stubClassifier{labels: model.LabelTable{"a"}, scores: []float32{1}}
	r, metrics := newTestRouter(t, stub)

	t.Run("MissingField", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, uploadRequest(t, "photo", samplePNG(t)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NotAnImage", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, uploadRequest(t, "image", []byte("plain text")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid image format")
	})

	t.Run("TooLarge", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, uploadRequest(t, "image", make([]byte, MaxUploadBytes+1)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "Upload too large")
		assert.NotContains(t, w.Body.String(), "No image file provided")
	})

	assert.Empty(t, stub.seen)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.requests.WithLabelValues("predict_image", "400")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.requests.WithLabelValues("predict_image", "413")), 0)
}

func TestPredictRawArray(t *testing.T) {
	stub := &stubClassifier{labels: model.LabelTable{"x", "y"}, scores: []float32{2, 1}}
	r, _ := newTestRouter(t, stub)

	t.Run("Valid", func(t *testing.T) {
		body, err := json.Marshal(PredictionRequest{Image: make([]float32, 3*transform.ImageSize*transform.ImageSize)})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"class":"x"`)
	})

	t.Run("WrongLength", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"image":[1,2,3]}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Expected 150528 values, got 3")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPredictModelFailure(t *testing.T) {
	stub := &stubClassifier{labels: model.LabelTable{"a"}, err: fmt.Errorf("%w: index 4", model.ErrIndexOutOfRange)}
	r, _ := newTestRouter(t, stub)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "image", samplePNG(t)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, &stubClassifier{labels: model.LabelTable{"a"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/predict/image", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POST, GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, metrics := newTestRouter(t, &stubClassifier{labels: model.LabelTable{"a"}})
	metrics.observeRequest("predict", http.StatusOK)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "resnet_prediction_requests_total")
}
