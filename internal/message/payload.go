// ABOUTME: Payload variants for the four reservation kinds (closed union)
// ABOUTME: Per-variant schema validation collecting field-by-field violations

package message

import (
	"time"
)

// Event kinds. 32101 is the handler kind merchants advertise via NIP-89;
// the replies occupy the three slots after it.
const (
	KindRequest              = 32101
	KindResponse             = 32102
	KindModificationRequest  = 32103
	KindModificationResponse = 32104
)

// Response status values.
const (
	StatusConfirmed = "confirmed"
	StatusDeclined  = "declined"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"

	// StatusAccepted appears only in modification responses; some
	// counterparties send "confirmed" there instead and both are accepted.
	StatusAccepted = "accepted"
)

const (
	maxPartySize = 20
	maxNotesLen  = 2000
)

// Payload is the closed union over the four reservation payload shapes.
// The marker method keeps external types out so switches stay exhaustive.
type Payload interface {
	Kind() int
	validate() ValidationErrors
	payload()
}

// Contact identifies the person the reservation is for.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Constraints narrow what the merchant may offer.
type Constraints struct {
	EarliestTime string `json:"earliest_time,omitempty"`
	LatestTime   string `json:"latest_time,omitempty"`
	OutdoorOK    *bool  `json:"outdoor_ok,omitempty"`
	Accessible   *bool  `json:"accessibility,omitempty"`
}

// Request opens a negotiation and roots a thread.
type Request struct {
	PartySize   int          `json:"party_size"`
	ISOTime     string       `json:"iso_time"`
	Notes       string       `json:"notes,omitempty"`
	Contact     *Contact     `json:"contact,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`

	// Restaurant identity travels with the request so the thread can be
	// rendered without a separate directory lookup.
	RestaurantName string `json:"restaurant_name,omitempty"`
	RestaurantID   string `json:"restaurant_id,omitempty"`
}

func (Request) Kind() int { return KindRequest }
func (Request) payload()  {}

func (p Request) validate() ValidationErrors {
	var errs ValidationErrors
	if p.PartySize < 1 || p.PartySize > maxPartySize {
		errs.add("party_size", "must be between 1 and %d, got %d", maxPartySize, p.PartySize)
	}
	validateISOTime(&errs, "iso_time", p.ISOTime, true)
	if len(p.Notes) > maxNotesLen {
		errs.add("notes", "must be at most %d characters, got %d", maxNotesLen, len(p.Notes))
	}
	if p.Constraints != nil {
		validateISOTime(&errs, "constraints.earliest_time", p.Constraints.EarliestTime, false)
		validateISOTime(&errs, "constraints.latest_time", p.Constraints.LatestTime, false)
	}
	return errs
}

// Response settles (or rejects) a request.
type Response struct {
	Status  string `json:"status"`
	ISOTime string `json:"iso_time,omitempty"`
	Message string `json:"message,omitempty"`
	Table   string `json:"table,omitempty"`
}

func (Response) Kind() int { return KindResponse }
func (Response) payload()  {}

func (p Response) validate() ValidationErrors {
	var errs ValidationErrors
	switch p.Status {
	case StatusConfirmed:
		validateISOTime(&errs, "iso_time", p.ISOTime, true)
	case StatusDeclined, StatusExpired, StatusCancelled:
		validateISOTime(&errs, "iso_time", p.ISOTime, false)
	default:
		errs.add("status", "must be one of confirmed, declined, expired, cancelled; got %q", p.Status)
	}
	return errs
}

// ModificationRequest proposes a different time for an existing thread.
type ModificationRequest struct {
	ISOTime         string   `json:"iso_time"`
	Message         string   `json:"message,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	OriginalISOTime string   `json:"original_iso_time,omitempty"`
	Contact         *Contact `json:"contact,omitempty"`
}

func (ModificationRequest) Kind() int { return KindModificationRequest }
func (ModificationRequest) payload()  {}

func (p ModificationRequest) validate() ValidationErrors {
	var errs ValidationErrors
	validateISOTime(&errs, "iso_time", p.ISOTime, true)
	if p.Message == "" && p.Notes == "" {
		errs.add("message", "either message or notes is required")
	}
	if len(p.Notes) > maxNotesLen {
		errs.add("notes", "must be at most %d characters, got %d", maxNotesLen, len(p.Notes))
	}
	validateISOTime(&errs, "original_iso_time", p.OriginalISOTime, false)
	return errs
}

// ModificationResponse accepts or declines a proposed time. ISOTime is a
// pointer because counterparties legitimately send an explicit null when
// declining.
type ModificationResponse struct {
	Status  string  `json:"status"`
	ISOTime *string `json:"iso_time"`
	Message string  `json:"message,omitempty"`
}

func (ModificationResponse) Kind() int { return KindModificationResponse }
func (ModificationResponse) payload()  {}

func (p ModificationResponse) validate() ValidationErrors {
	var errs ValidationErrors
	switch p.Status {
	case StatusConfirmed, StatusAccepted:
		if p.ISOTime == nil {
			errs.add("iso_time", "required when status is %q", p.Status)
		} else {
			validateISOTime(&errs, "iso_time", *p.ISOTime, true)
		}
	case StatusDeclined:
		if p.ISOTime != nil && *p.ISOTime != "" {
			validateISOTime(&errs, "iso_time", *p.ISOTime, false)
		}
	default:
		errs.add("status", "must be one of confirmed, accepted, declined; got %q", p.Status)
	}
	return errs
}

// Accepted reports whether this modification response approves the
// pending proposal.
func (p ModificationResponse) Accepted() bool {
	return p.Status == StatusConfirmed || p.Status == StatusAccepted
}

// validateISOTime checks that s is an RFC 3339 timestamp carrying an
// explicit timezone. RFC 3339 always qualifies the zone (Z or offset), so
// a bare local time fails to parse.
func validateISOTime(errs *ValidationErrors, field, s string, required bool) {
	if s == "" {
		if required {
			errs.add(field, "is required")
		}
		return
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		errs.add(field, "must be an RFC 3339 timestamp with timezone, got %q", s)
	}
}
