package dto

// UpdateMatchingConfigRequest overrides part of a school's matching settings. Omitted fields keep their stored value.
type UpdateMatchingConfigRequest struct {
	BatchSize       *int               `json:"batch_size" validate:"omitempty,min=1,max=50"`
	WaitTimeMinutes *int               `json:"wait_time_minutes" validate:"omitempty,min=1,max=60"`
	Weights         map[string]float64 `json:"weights" validate:"omitempty,dive,keys,oneof=experience rating qualification_bonus,endkeys,gte=0.1,lte=10"`
}
