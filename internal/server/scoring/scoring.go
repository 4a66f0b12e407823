// Package scoring is the boundary to the lead scoring model.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnavailable indicates that the scoring backend could not produce a prediction.
	ErrUnavailable = errors.New("scoring backend unavailable")
	// ErrInvalidProbability indicates that the backend answered with a value outside [0, 1].
	ErrInvalidProbability = errors.New("probability out of range")
)

// Label thresholds. A probability strictly above the threshold gets the label.
const (
	HotThreshold  = 0.75
	WarmThreshold = 0.45
)

const (
	LabelHot  = "Hot Lead"
	LabelWarm = "Warm Lead"
	LabelCold = "Cold Lead"
)

// Lead holds the features of a single sales lead.
type Lead struct {
	Job          string  `json:"Pekerjaan"`
	PersonalLoan string  `json:"Personal Loan"`
	HousingLoan  string  `json:"Housing Loan"`
	Marital      string  `json:"Marital"`
	Balance      float64 `json:"Saldo"`
	Campaign     int     `json:"Campaign"`
	Duration     int     `json:"duration"`
}

// Predictor returns the probability that the lead converts.
type Predictor interface {
	Predict(ctx context.Context, lead Lead) (float64, error)
}

// Result is a classified prediction.
type Result struct {
	Label          string
	Percentage     string
	Recommendation string
	Score          float64
}

// Classify turns a probability into a label and a recommended action.
func Classify(probability float64) Result {
	r := Result{
		Score:      math.Round(probability*10000) / 10000,
		Percentage: fmt.Sprintf("%.2f%%", probability*100),
	}

	switch {
	case probability > HotThreshold:
		r.Label = LabelHot
		r.Recommendation = "🔥 Call Now - Prioritas tertinggi! Hubungi segera dengan penawaran khusus."
	case probability > WarmThreshold:
		r.Label = LabelWarm
		r.Recommendation = "📞 Follow Up Soon - Pendekatan dengan informasi produk yang menarik dalam 1-2 hari."
	default:
		r.Label = LabelCold
		r.Recommendation = "📧 Nurture Campaign - Masukkan ke email campaign untuk warming up."
	}

	return r
}
