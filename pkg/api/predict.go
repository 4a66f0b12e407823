package api

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

// PredictRequest содержит признаки лида.
// Числовые поля - указатели, чтобы отличить отсутствие поля от нуля.
type PredictRequest struct {
	Job          string   `json:"Pekerjaan"`
	PersonalLoan string   `json:"Personal Loan"`
	HousingLoan  string   `json:"Housing Loan"`
	Marital      string   `json:"Marital"`
	Balance      *float64 `json:"Saldo"`
	Campaign     *int     `json:"Campaign"`
	Duration     *int     `json:"duration"`
}

// Validate checks that every feature is present.
func (r PredictRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Job, validation.Required),
		validation.Field(&r.PersonalLoan, validation.Required),
		validation.Field(&r.HousingLoan, validation.Required),
		validation.Field(&r.Marital, validation.Required),
		validation.Field(&r.Balance, validation.NotNil),
		validation.Field(&r.Campaign, validation.NotNil),
		validation.Field(&r.Duration, validation.NotNil),
	)
}

// PredictResponse представляет результат скоринга лида
type PredictResponse struct {
	Label                 string  `json:"label"`
	ProbabilityPercentage string  `json:"probability_percentage"`
	Recommendation        string  `json:"recommendation"`
	PredictionScore       float64 `json:"prediction_score"`
}
