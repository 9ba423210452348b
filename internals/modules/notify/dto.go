package notify

type CreateChannelRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=email sms"`
	Address string `json:"address" validate:"required,min=3,max=255"`
}

type ChannelResponse struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
	State   string `json:"state"`
}

type ListChannelsResponse struct {
	OwnerID  string            `json:"owner_id"`
	Channels []ChannelResponse `json:"channels"`
}

type ConfirmVerificationRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}
