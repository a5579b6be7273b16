package api

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/linkpage/internal/models"
	"github.com/starford/linkpage/internal/twofactor"
)

// LinkRequest is the request body for creating or updating a link.
type LinkRequest struct {
	Attributes json.RawMessage `json:"attributes" swaggertype:"object" validate:"required"`
}

// Validate implements validation.Validatable.
func (r LinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Attributes, validation.Required),
	)
}

// SortItem names one link in a sort request.
type SortItem struct {
	ID string `json:"id" example:"0192f1c4-7d3e-7b1a-9c1e-2f6a8d4b5e01" validate:"required"`
}

// Validate implements validation.Validatable.
func (i SortItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ID, validation.Required),
	)
}

// SortRequest lists every link of the actor in the desired order.
type SortRequest struct {
	Links []SortItem `json:"links" validate:"required"`
}

// Validate implements validation.Validatable.
func (r SortRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Links, validation.Required),
	)
}

// IDs returns the requested ids in order.
func (r SortRequest) IDs() []string {
	ids := make([]string, len(r.Links))
	for i, l := range r.Links {
		ids[i] = l.ID
	}
	return ids
}

// VerifyRequest submits a two-factor code for a pending session.
type VerifyRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Code      string `json:"code" example:"123456" validate:"required"`
}

// Validate implements validation.Validatable.
func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Length(twofactor.CodeDigits, twofactor.CodeDigits), is.Digit),
	)
}

// Link is the link response type (aliased from the domain layer).
type Link = models.Link

// LinkListResponse wraps the actor's ordered links.
type LinkListResponse struct {
	Links []Link `json:"links" validate:"required"`
}

// SessionResponse is returned when a two-factor session is opened.
type SessionResponse struct {
	SessionID string `json:"session_id" validate:"required"`
}
