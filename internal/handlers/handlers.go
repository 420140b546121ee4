package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
	"github.com/Brownie44l1/resnet-classifier/internal/model"
	"github.com/Brownie44l1/resnet-classifier/internal/transform"
)

// MaxUploadBytes bounds the multipart form accepted by PredictFromImage.
const MaxUploadBytes = 10 << 20

// Classifier is the part of model.Classifier the handlers use.
type Classifier interface {
	Classify(ctx context.Context, img imaging.Tensor) (*model.Prediction, error)
	Labels() model.LabelTable
}

// PredictionRequest carries a preprocessed CHW image.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// PredictionResponse is returned by both prediction endpoints.
type PredictionResponse struct {
	ID          string             `json:"id"`
	Class       string             `json:"class"`
	Index       int                `json:"index"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

type Handler struct {
	classifier Classifier
	metrics    *Metrics
}

func NewHandler(classifier Classifier, metrics *Metrics) *Handler {
	return &Handler{
		classifier: classifier,
		metrics:    metrics,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"classes": len(h.classifier.Labels()),
	})
}

// Predict classifies a raw [3, 224, 224] float array.
func (h *Handler) Predict(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "predict", http.StatusBadRequest, "Invalid JSON")
		return
	}

	expected := 3 * transform.ImageSize * transform.ImageSize
	if len(req.Image) != expected {
		h.fail(c, "predict", http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image)))
		return
	}

	tensor := imaging.Tensor{Shape: []int{3, transform.ImageSize, transform.ImageSize}, Data: req.Image}
	h.classify(c, "predict", tensor)
}

// PredictFromImage classifies an uploaded JPEG, PNG, BMP or WebP file sent as
// the multipart field "image".
func (h *Handler) PredictFromImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || c.Request.ContentLength > MaxUploadBytes {
			h.fail(c, "predict_image", http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload too large. Limit is %d bytes", MaxUploadBytes))
			return
		}
		h.fail(c, "predict_image", http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, "predict_image", http.StatusBadRequest, "Failed to read upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(c, "predict_image", http.StatusBadRequest, "Failed to read upload")
		return
	}
	klog.V(2).InfoS("Received file", "name", header.Filename, "size", header.Size)

	tensor, err := transform.Preprocess(data)
	if err != nil {
		if errors.Is(err, imaging.ErrDecode) {
			h.fail(c, "predict_image", http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, BMP, WebP")
			return
		}
		klog.ErrorS(err, "Preprocessing failed", "file", header.Filename)
		h.fail(c, "predict_image", http.StatusInternalServerError, "Failed to preprocess image")
		return
	}
	h.classify(c, "predict_image", tensor)
}

func (h *Handler) classify(c *gin.Context, endpoint string, tensor imaging.Tensor) {
	start := time.Now()
	pred, err := h.classifier.Classify(c.Request.Context(), tensor)
	h.metrics.observeInference(time.Since(start))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrInputShape) {
			status = http.StatusBadRequest
		}
		klog.ErrorS(err, "Prediction failed", "endpoint", endpoint)
		h.fail(c, endpoint, status, "Prediction failed")
		return
	}

	labels := h.classifier.Labels()
	predictions := make(map[string]float32, len(pred.Probabilities))
	for i, p := range pred.Probabilities {
		if i < len(labels) {
			predictions[labels[i]] = p
		}
	}

	resp := PredictionResponse{
		ID:          uuid.NewString(),
		Class:       pred.Label,
		Index:       pred.Index,
		Confidence:  pred.Confidence,
		Predictions: predictions,
	}
	klog.V(1).InfoS("Prediction", "id", resp.ID, "endpoint", endpoint, "class", resp.Class, "confidence", resp.Confidence)
	h.metrics.observeRequest(endpoint, http.StatusOK)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) fail(c *gin.Context, endpoint string, status int, msg string) {
	h.metrics.observeRequest(endpoint, status)
	c.JSON(status, gin.H{"error": msg})
}
