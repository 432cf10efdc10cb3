package domain

import (
	"fmt"
	"time"
)

// Status enumerates the generation request lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus converts free-form input into a known status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
}

// Terminal reports whether no further stage transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultLocale is the typography language used when none was detected.
const DefaultLocale = "en"

// GenerationRequest is one wizard run: the user's prompt and preferences plus
// the outputs of the refine and generate stages.
type GenerationRequest struct {
	ID                 string         `json:"id"`
	OriginalPrompt     string         `json:"originalPrompt"`
	Customizations     Customizations `json:"customizations"`
	UploadedImagePath  *string        `json:"uploadedImagePath"`
	RefinedPrompt      *string        `json:"refinedPrompt"`
	GeneratedImagePath *string        `json:"generatedImagePath"`
	Status             Status         `json:"status"`
	Locale             string         `json:"locale"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (r GenerationRequest) Clone() GenerationRequest {
	out := r
	out.UploadedImagePath = cloneString(r.UploadedImagePath)
	out.RefinedPrompt = cloneString(r.RefinedPrompt)
	out.GeneratedImagePath = cloneString(r.GeneratedImagePath)
	out.Customizations.CustomText = cloneString(r.Customizations.CustomText)
	return out
}

// Validate checks the cross-field invariants of a stored record.
func (r GenerationRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Status == StatusCompleted && (r.RefinedPrompt == nil || r.GeneratedImagePath == nil) {
		return fmt.Errorf("%w: completed request must carry refined prompt and generated image", ErrValidation)
	}
	return nil
}

// RequestUpdate lists the fields the orchestrator may change. Nil fields are
// left untouched by RequestStore.Update.
type RequestUpdate struct {
	Status             *Status
	RefinedPrompt      *string
	GeneratedImagePath *string
}

// Apply merges the update into r.
func (u RequestUpdate) Apply(r *GenerationRequest) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.RefinedPrompt != nil {
		r.RefinedPrompt = cloneString(u.RefinedPrompt)
	}
	if u.GeneratedImagePath != nil {
		r.GeneratedImagePath = cloneString(u.GeneratedImagePath)
	}
}

// GeneratedImageName is the stable artifact name for a request's result.
func GeneratedImageName(id string) string {
	return fmt.Sprintf("generated_%s.png", id)
}

// StatusPtr and StringPtr build RequestUpdate fields inline.
func StatusPtr(s Status) *Status { return &s }

func StringPtr(s string) *string { return &s }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
