package datamodel

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionRecord is one row of the prediction audit log. The full
// probability distribution is kept as a JSON column so the schema
// does not change with the number of classes.
type PredictionRecord struct {
	UID           uuid.UUID `gorm:"primary_key"`
	Filename      string
	ContentHash   string `gorm:"index"`
	Prediction    string
	Probability   float64
	Confidence    float64
	Probabilities datatypes.JSON
	LatencyMS     float64
	ModelPath     string
	CacheHit      bool
	CreateTime    time.Time `gorm:"autoCreateTime:nano"`
	UpdateTime    time.Time `gorm:"autoUpdateTime:nano"`
}

func (*PredictionRecord) TableName() string {
	return "prediction"
}

func (r *PredictionRecord) BeforeCreate(db *gorm.DB) error {
	recordUUID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	r.UID = recordUUID
	return nil
}

// SetProbabilities stores the class distribution in the JSON column.
func (r *PredictionRecord) SetProbabilities(probs map[string]float64) error {
	data, err := json.Marshal(probs)
	if err != nil {
		return err
	}
	r.Probabilities = datatypes.JSON(data)
	return nil
}

// ProbabilityMap decodes the stored class distribution. An unset
// column decodes to an empty map.
func (r *PredictionRecord) ProbabilityMap() (map[string]float64, error) {
	if len(r.Probabilities) == 0 {
		return map[string]float64{}, nil
	}
	var probs map[string]float64
	if err := json.Unmarshal(r.Probabilities, &probs); err != nil {
		return nil, err
	}
	return probs, nil
}
