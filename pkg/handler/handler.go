package handler

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
	"github.com/2024aa05820/mlops-assignment2/pkg/service"
	"github.com/2024aa05820/mlops-assignment2/pkg/vision"

	custom_logger "github.com/2024aa05820/mlops-assignment2/pkg/logger"
)

// Version is reported by the health and root endpoints.
const Version = "1.0.0"

// PredictionHandler serves the classifier over HTTP.
type PredictionHandler struct {
	service service.Service
}

// NewPredictionHandler initializes a handler backed by the given service.
func NewPredictionHandler(s service.Service) *PredictionHandler {
	return &PredictionHandler{service: s}
}

// Root reports the API name and the routes it serves.
func (h *PredictionHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, RootResponse{
		Name:    "Cats vs Dogs Classifier API",
		Version: Version,
		Endpoints: []string{
			"GET /",
			"GET /health",
			"GET /ready",
			"GET /metrics",
			"POST /predict",
		},
	})
}

// Health reports liveness. It returns 200 even when the model failed to
// load so orchestrators can tell a crashed process from a degraded one.
func (h *PredictionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: h.service.GetPredictor().IsReady(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     Version,
	})
}

// Ready reports whether the model is loaded and able to serve predictions.
func (h *PredictionHandler) Ready(c *gin.Context) {
	p := h.service.GetPredictor()
	if !p.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model not ready"})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:     true,
		ModelPath: p.Path(),
		Device:    p.Device().String(),
	})
}

// Predict classifies one uploaded image. The image arrives as the
// multipart form field "file".
func (h *PredictionHandler) Predict(c *gin.Context) {
	logger, _ := custom_logger.GetZapLogger(c.Request.Context())

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if maxBytes := int64(config.Config.Server.MaxDataSize) << 20; fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %dMB upload limit", config.Config.Server.MaxDataSize),
		})
		return
	}
	if ct := fileHeader.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be an image"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		logger.Error("open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot read uploaded file"})
		return
	}

	// The declared Content-Type is client-controlled; sniff the bytes too.
	if mtype := mimetype.Detect(data); !strings.HasPrefix(mtype.String(), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be an image"})
		return
	}

	pred, err := h.service.Predict(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, predictor.ErrNotReady):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model not ready"})
		case errors.Is(err, vision.ErrDecode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot decode image"})
		default:
			logger.Error("predict", zap.String("filename", fileHeader.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
		}
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Prediction:      pred.Prediction,
		Probability:     pred.Probability,
		Confidence:      pred.Confidence,
		Probabilities:   pred.Probabilities,
		InferenceTimeMS: math.Round(pred.LatencyMS*100) / 100,
		CacheHit:        pred.CacheHit,
	})
}
