package handlers

import "github.com/google/uuid"

// WebhookResponse is returned to the Bot API for every accepted update
type WebhookResponse struct {
	OK        bool `json:"ok" example:"true"`
	Duplicate bool `json:"duplicate,omitempty" example:"false"`
}

// ClaimantResponse describes who holds a stock request
// @Description Operator profile currently holding the request
type ClaimantResponse struct {
	RequestID uuid.UUID `json:"request_id" example:"0b5d8f3e-3c1a-4d9e-9a55-6f1f0c7e2a10"`
	ProfileID uuid.UUID `json:"profile_id" example:"7c1e2b9a-5d44-4f0e-8e61-2a3b4c5d6e7f"`
	Username  string    `json:"username" example:"ivanov"`
}

// ReleaseResponse confirms a released claim
type ReleaseResponse struct {
	RequestID uuid.UUID `json:"request_id" example:"0b5d8f3e-3c1a-4d9e-9a55-6f1f0c7e2a10"`
	Released  bool      `json:"released" example:"true"`
}

// HealthResponse is the health check body
type HealthResponse struct {
	Status  string `json:"status" example:"healthy"`
	Service string `json:"service" example:"products-stocks-telegram"`
}
