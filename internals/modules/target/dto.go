package target

type CreateTargetRequest struct {
	URL         string   `json:"url" validate:"required,url"`
	IntervalSec int32    `json:"interval_sec" validate:"required,gt=0"`
	Regions     []string `json:"regions" validate:"required,min=1,dive,required"`
}

type TargetResponse struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	IntervalSec int32    `json:"interval_sec"`
	Regions     []string `json:"regions"`
	Enabled     bool     `json:"enabled"`
	PublicToken string   `json:"public_token"`
}

type ListTargetsResponse struct {
	OwnerID string           `json:"owner_id"`
	Limit   int32            `json:"limit"`
	Offset  int32            `json:"offset"`
	Targets []TargetResponse `json:"targets"`
}

type SetEnabledRequest struct {
	Enable *bool `json:"enable" validate:"required"`
}
