package domain

// Snapshot is the combined persisted unit for one attendee at one event:
// their own card plus their full contact list. It is written as a whole on
// every mutation and reconciled against the mirror only at session start.
type Snapshot struct {
	MyCard Card        `json:"my_card"`
	Cards  ContactList `json:"cards"`
}

// Scope identifies one attendee's exchange context at one event.
// It is created once at session start and threaded explicitly through all
// exchange operations rather than held as ambient state.
type Scope struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

// String renders the scope for logging.
func (s Scope) String() string {
	return s.EventID + "/" + s.UserID
}

// Valid reports whether both identifiers are set.
func (s Scope) Valid() bool {
	return s.EventID != "" && s.UserID != ""
}
