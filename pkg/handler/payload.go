package handler

// PredictResponse is the JSON body returned by POST /predict.
type PredictResponse struct {
	Prediction      string             `json:"prediction"`
	Probability     float64            `json:"probability"`
	Confidence      float64            `json:"confidence"`
	Probabilities   map[string]float64 `json:"probabilities"`
	InferenceTimeMS float64            `json:"inference_time_ms"`
	CacheHit        bool               `json:"cache_hit"`
}

// HealthResponse is the JSON body returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
}

// ReadyResponse is the JSON body returned by GET /ready when the model is loaded.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	ModelPath string `json:"model_path"`
	Device    string `json:"device"`
}

// RootResponse describes the API on GET /.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}
