package poll

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Structural limits. Title/description bounds mirror the column widths in
// the schema; MaxDuration caps how far in the future a poll may close.
const (
	TitleMaxLen       = 500
	DescriptionMaxLen = 2000
	OptionMaxLen      = 500
	MinOptions        = 2
	MaxOptions        = 10
	MaxDuration       = 2 * time.Hour
)

type Poll struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Options     []string   `json:"options"`
	Visibility  Visibility `json:"visibility"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	IsActive    bool       `json:"isActive"`
	CreatedByID string     `json:"createdById"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

var (
	ErrNotFound       = errors.New("poll not found")
	ErrForbidden      = errors.New("not the poll creator")
	ErrClosed         = errors.New("poll is closed")
	ErrInvalidExpiry  = errors.New("expiry must be in the future and at most 2 hours away")
	ErrInvalidOptions = errors.New("invalid poll options")
	ErrInvalidField   = errors.New("invalid field")
	ErrUnknownUser    = errors.New("allowed user does not exist")
)

type CreatePollRequest struct {
	Title          string     `json:"title" binding:"required,min=1,max=500"`
	Description    string     `json:"description" binding:"required,min=1,max=2000"`
	Options        []string   `json:"options" binding:"required,min=2,max=10,dive,min=1,max=500"`
	Visibility     Visibility `json:"visibility" binding:"required,oneof=public private"`
	ExpiresAt      time.Time  `json:"expiresAt" binding:"required"`
	AllowedUserIDs []string   `json:"allowedUserIds" binding:"omitempty,dive,uuid"`
}

// All fields optional; absent fields are left untouched. ID and owner are
// never patchable, so they simply have no slot here.
type UpdatePollRequest struct {
	Title       *string     `json:"title" binding:"omitempty,min=1,max=500"`
	Description *string     `json:"description" binding:"omitempty,min=1,max=2000"`
	Options     *[]string   `json:"options" binding:"omitempty,min=2,max=10,dive,min=1,max=500"`
	Visibility  *Visibility `json:"visibility" binding:"omitempty,oneof=public private"`
	ExpiresAt   *time.Time  `json:"expiresAt"`
	IsActive    *bool       `json:"isActive"`
}

// NewFromCreateRequest validates the request against the structural and
// temporal invariants and builds the Poll. The allow-list is not part of the
// Poll itself; callers persist it alongside.
func NewFromCreateRequest(req CreatePollRequest, creatorID string, now time.Time) (Poll, error) {
	if err := validateTitle(req.Title); err != nil {
		return Poll{}, err
	}

	if err := validateDescription(req.Description); err != nil {
		return Poll{}, err
	}

	if err := ValidateOptions(req.Options); err != nil {
		return Poll{}, err
	}

	if err := ValidateExpiry(req.ExpiresAt, now); err != nil {
		return Poll{}, err
	}

	return Poll{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Options:     req.Options,
		Visibility:  req.Visibility,
		ExpiresAt:   req.ExpiresAt,
		IsActive:    true,
		CreatedByID: creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyPatch returns a copy of the poll with the patch applied, re-running
// the same validation as creation for every field present. A time-expired
// poll rejects every patch: time closure is irreversible.
func (p Poll) ApplyPatch(req UpdatePollRequest, now time.Time) (Poll, error) {
	if p.IsExpired(now) {
		return Poll{}, ErrClosed
	}

	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return Poll{}, err
		}
		p.Title = *req.Title
	}

	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return Poll{}, err
		}
		p.Description = *req.Description
	}

	if req.Options != nil {
		if err := ValidateOptions(*req.Options); err != nil {
			return Poll{}, err
		}
		p.Options = *req.Options
	}

	if req.Visibility != nil {
		if *req.Visibility != VisibilityPublic && *req.Visibility != VisibilityPrivate {
			return Poll{}, fmt.Errorf("%w: visibility must be public or private", ErrInvalidField)
		}
		p.Visibility = *req.Visibility
	}

	if req.ExpiresAt != nil {
		if err := ValidateExpiry(*req.ExpiresAt, now); err != nil {
			return Poll{}, err
		}
		p.ExpiresAt = *req.ExpiresAt
	}

	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	p.UpdatedAt = now

	return p, nil
}

func validateTitle(title string) error {
	if len(title) == 0 || len(title) > TitleMaxLen {
		return fmt.Errorf("%w: title must be between 1 and %d characters", ErrInvalidField, TitleMaxLen)
	}
	return nil
}

func validateDescription(desc string) error {
	if len(desc) == 0 || len(desc) > DescriptionMaxLen {
		return fmt.Errorf("%w: description must be between 1 and %d characters", ErrInvalidField, DescriptionMaxLen)
	}
	return nil
}

// ValidateOptions enforces count bounds, non-emptiness and pairwise
// distinctness. Distinctness is a case-sensitive exact match.
func ValidateOptions(options []string) error {
	if len(options) < MinOptions || len(options) > MaxOptions {
		return fmt.Errorf("%w: between %d and %d options required", ErrInvalidOptions, MinOptions, MaxOptions)
	}

	seen := make(map[string]struct{}, len(options))

	for _, opt := range options {
		if len(opt) == 0 || len(opt) > OptionMaxLen {
			return fmt.Errorf("%w: options must be between 1 and %d characters", ErrInvalidOptions, OptionMaxLen)
		}

		if _, dup := seen[opt]; dup {
			return fmt.Errorf("%w: options must be distinct", ErrInvalidOptions)
		}

		seen[opt] = struct{}{}
	}

	return nil
}

// ValidateExpiry rejects an expiry at or before now, or further than
// MaxDuration from now.
func ValidateExpiry(expiresAt, now time.Time) error {
	if !expiresAt.After(now) {
		return ErrInvalidExpiry
	}

	if expiresAt.After(now.Add(MaxDuration)) {
		return ErrInvalidExpiry
	}

	return nil
}

// IsExpired reports whether the poll is time-closed: now >= expiresAt.
func (p Poll) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// AcceptsVotes reports whether the poll is open at all: active and not yet
// expired. Caller eligibility is a separate question, see Aggregate.CanVote.
func (p Poll) AcceptsVotes(now time.Time) bool {
	return p.IsActive && !p.IsExpired(now)
}

// HasOption reports whether option is exactly one of the poll's options.
func (p Poll) HasOption(option string) bool {
	for _, opt := range p.Options {
		if opt == option {
			return true
		}
	}
	return false
}
