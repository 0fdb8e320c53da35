//go:build dbtest
// +build dbtest

package repository_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	qt "github.com/frankban/quicktest"

	"github.com/2024aa05820/mlops-assignment2/config"
	"github.com/2024aa05820/mlops-assignment2/pkg/datamodel"
	"github.com/2024aa05820/mlops-assignment2/pkg/repository"

	database "github.com/2024aa05820/mlops-assignment2/pkg/db"
)

var db *gorm.DB

func TestMain(m *testing.M) {
	if err := config.Init("../../config/config.yaml"); err != nil {
		panic(err)
	}

	db = database.GetSharedConnection()
	db.Logger = logger.Default.LogMode(logger.Info)
	exitCode := m.Run()
	database.Close(db)

	os.Exit(exitCode)
}

func probabilitiesJSON(t *testing.T, probs map[string]float64) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(probs)
	require.NoError(t, err)
	return datatypes.JSON(raw)
}

func TestRepository_Predictions(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	require.NoError(t, repository.Migrate(db))
	tx := db.Begin()
	defer tx.Rollback()

	repo := repository.NewRepository(tx)

	record := &datamodel.PredictionRecord{
		Filename:    "tabby.jpg",
		ContentHash: "f0e1d2c3b4a59687",
		Prediction:  "cat",
		Probability: 0.93,
		Confidence:  0.93,
		Probabilities: probabilitiesJSON(t, map[string]float64{
			"cat": 0.93,
			"dog": 0.07,
		}),
		LatencyMS: 41.27,
		ModelPath: "models/best_model.ckpt",
	}

	err := repo.CreatePrediction(ctx, record)
	c.Assert(err, qt.IsNil)
	c.Assert(record.UID, qt.Not(qt.Equals), uuid.Nil)

	got, err := repo.GetPredictionByUID(ctx, record.UID)
	c.Assert(err, qt.IsNil)
	c.Check(got.Prediction, qt.Equals, "cat")
	c.Check(got.ContentHash, qt.Equals, "f0e1d2c3b4a59687")
	c.Check(got.Probability, qt.Equals, 0.93)

	var stored map[string]float64
	c.Assert(json.Unmarshal(got.Probabilities, &stored), qt.IsNil)
	c.Check(stored["dog"], qt.Equals, 0.07)

	_, err = repo.GetPredictionByUID(ctx, uuid.Must(uuid.NewV4()))
	c.Check(err, qt.Equals, repository.ErrPredictionNotFound)

	second := &datamodel.PredictionRecord{
		Filename:    "rex.png",
		ContentHash: "0011223344556677",
		Prediction:  "dog",
		Probability: 0.71,
		Confidence:  0.71,
		Probabilities: probabilitiesJSON(t, map[string]float64{
			"cat": 0.29,
			"dog": 0.71,
		}),
		LatencyMS: 38.02,
		ModelPath: "models/best_model.ckpt",
	}
	c.Assert(repo.CreatePrediction(ctx, second), qt.IsNil)

	records, total, err := repo.ListPredictions(ctx, 10, 0)
	c.Assert(err, qt.IsNil)
	c.Check(total, qt.Equals, int64(2))
	c.Assert(records, qt.HasLen, 2)
	// Newest first.
	c.Check(records[0].Prediction, qt.Equals, "dog")

	cats, err := repo.CountPredictionsByClass(ctx, "cat")
	c.Assert(err, qt.IsNil)
	c.Check(cats, qt.Equals, int64(1))
}

func TestRepository_ListPageSizeClamped(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	require.NoError(t, repository.Migrate(db))
	tx := db.Begin()
	defer tx.Rollback()

	repo := repository.NewRepository(tx)

	for i := 0; i < 3; i++ {
		c.Assert(repo.CreatePrediction(ctx, &datamodel.PredictionRecord{
			Filename:      "img.jpg",
			Prediction:    "cat",
			Probabilities: probabilitiesJSON(t, map[string]float64{"cat": 1}),
		}), qt.IsNil)
	}

	records, total, err := repo.ListPredictions(ctx, -5, 0)
	c.Assert(err, qt.IsNil)
	c.Check(total, qt.Equals, int64(3))
	c.Assert(records, qt.HasLen, 3)

	records, _, err = repo.ListPredictions(ctx, 2, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)
}
