// ABOUTME: Thread status enum and legacy persisted-label normalization
// ABOUTME: Normalization happens once at load time, never inside transitions

package thread

// Status is the negotiation state of a thread.
type Status string

const (
	// StatusSent is the initial state: a request exists, no answer yet.
	StatusSent Status = "sent"

	// Terminal outcomes set by a Response.
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"

	// StatusModificationRequested means a time change has been proposed
	// and awaits an answer.
	StatusModificationRequested Status = "modification_requested"

	// StatusModificationAccepted is the intermediate state after a
	// proposal is accepted; the final confirmation still arrives as a
	// Response.
	StatusModificationAccepted Status = "modification_accepted"
)

// legacyStatus maps labels used by earlier snapshot formats to the current
// set. Applied by NormalizeStatus when restoring persisted data.
var legacyStatus = map[string]Status{
	"pending":                StatusSent,
	"requested":              StatusSent,
	"modification-requested": StatusModificationRequested,
	"accepted":               StatusModificationAccepted,
	"canceled":               StatusCancelled,
}

// NormalizeStatus converts a persisted status label, current or legacy, to
// the current enum. Unknown labels fall back to StatusSent rather than
// failing the load.
func NormalizeStatus(raw string) Status {
	switch Status(raw) {
	case StatusSent, StatusConfirmed, StatusDeclined, StatusExpired,
		StatusCancelled, StatusModificationRequested, StatusModificationAccepted:
		return Status(raw)
	}
	if s, ok := legacyStatus[raw]; ok {
		return s
	}
	return StatusSent
}

// Terminal reports whether no further transitions are expected. A
// cancelled or declined thread can still receive messages; they merge but
// rarely change anything.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusDeclined, StatusExpired, StatusCancelled:
		return true
	}
	return false
}
