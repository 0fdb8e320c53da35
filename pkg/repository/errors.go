package repository

import "github.com/pkg/errors"

var ErrPredictionNotFound = errors.New("prediction record not found")
