package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	custom_logger "github.com/2024aa05820/mlops-assignment2/pkg/logger"

	"github.com/2024aa05820/mlops-assignment2/pkg/cache"
	"github.com/2024aa05820/mlops-assignment2/pkg/datamodel"
	"github.com/2024aa05820/mlops-assignment2/pkg/metrics"
	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
	"github.com/2024aa05820/mlops-assignment2/pkg/repository"
)

// Prediction is a served classification: the model result plus the
// serving metadata the API reports.
type Prediction struct {
	predictor.Result

	LatencyMS float64
	CacheHit  bool
}

// Service is the interface for the service layer
type Service interface {
	Predict(ctx context.Context, filename string, data []byte) (*Prediction, error)
	GetPredictor() *predictor.Predictor
	GetRepository() repository.Repository
	GetMetrics() *metrics.Metrics
}

type service struct {
	predictor  *predictor.Predictor
	cache      *cache.Cache
	repository repository.Repository
	metrics    *metrics.Metrics
}

// NewService composes the prediction path. The cache and repository
// may be nil when the deployment runs without Redis or Postgres.
func NewService(
	p *predictor.Predictor,
	c *cache.Cache,
	r repository.Repository,
	m *metrics.Metrics) Service {
	return &service{
		predictor:  p,
		cache:      c,
		repository: r,
		metrics:    m,
	}
}

func (s *service) GetPredictor() *predictor.Predictor { return s.predictor }

func (s *service) GetRepository() repository.Repository { return s.repository }

func (s *service) GetMetrics() *metrics.Metrics { return s.metrics }

// Predict classifies one upload. Cache lookups and audit-log writes
// are best effort; only the model path can fail the request.
func (s *service) Predict(ctx context.Context, filename string, data []byte) (*Prediction, error) {
	logger, _ := custom_logger.GetZapLogger(ctx)
	start := time.Now()

	var hash string
	if s.cache != nil {
		hash = cache.HashContent(data)
		if cached, err := s.cache.Get(ctx, hash); err == nil {
			pred := &Prediction{
				Result:    *cached,
				LatencyMS: elapsedMS(start),
				CacheHit:  true,
			}
			s.observe(ctx, pred, filename, hash)
			return pred, nil
		} else if err != redis.Nil {
			logger.Warn("prediction cache lookup failed", zap.Error(err))
		}
	}

	result, err := s.predictor.Predict(data)
	if err != nil {
		s.metrics.IncError()
		return nil, err
	}

	pred := &Prediction{
		Result:    *result,
		LatencyMS: elapsedMS(start),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, result); err != nil {
			logger.Warn("prediction cache fill failed", zap.Error(err))
		}
	}

	s.observe(ctx, pred, filename, hash)
	return pred, nil
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// observe updates metrics and, when a repository is wired, appends to
// the audit log. Failures are logged and swallowed.
func (s *service) observe(ctx context.Context, pred *Prediction, filename, hash string) {
	s.metrics.ObservePrediction(pred.Prediction, pred.LatencyMS/1000)

	if s.repository == nil {
		return
	}
	logger, _ := custom_logger.GetZapLogger(ctx)

	record := &datamodel.PredictionRecord{
		Filename:    filename,
		ContentHash: hash,
		Prediction:  pred.Prediction,
		Probability: pred.Probability,
		Confidence:  pred.Confidence,
		LatencyMS:   pred.LatencyMS,
		ModelPath:   s.predictor.Path(),
		CacheHit:    pred.CacheHit,
	}
	if err := record.SetProbabilities(pred.Probabilities); err != nil {
		logger.Warn("cannot encode probabilities for audit log", zap.Error(err))
		return
	}
	if err := s.repository.CreatePrediction(ctx, record); err != nil {
		logger.Warn("cannot append to prediction audit log", zap.Error(err))
	}
}
