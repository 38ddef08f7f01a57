package models

// State is the position of one identity inside a conversation flow.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingName     State = "awaiting_name"
	StateAwaitingPhone    State = "awaiting_phone"
	StateAwaitingLocation State = "awaiting_location"

	StateAdminMenu          State = "admin_menu"
	StateAddingRestName     State = "adding_rest_name"
	StateAddingRestLocation State = "adding_rest_location"
	StateRestSelected       State = "rest_selected"
	StateSettingQuantity    State = "setting_quantity"
	StateConfirmingDelete   State = "confirming_delete"
)

// IsAdmin reports whether s belongs to the admin flow.
func (s State) IsAdmin() bool {
	switch s {
	case StateAdminMenu, StateAddingRestName, StateAddingRestLocation,
		StateRestSelected, StateSettingQuantity, StateConfirmingDelete:
		return true
	}
	return false
}

// UserScratch holds registration fields collected so far.
type UserScratch struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AdminScratch holds the restaurant the admin is working on.
type AdminScratch struct {
	SelectedID   int64  `json:"selected_id,omitempty"`
	SelectedName string `json:"selected_name,omitempty"`
	PendingName  string `json:"pending_name,omitempty"`
}

// Session is the ephemeral conversation state of one identity.
// Only the scratch struct of the flow that owns State is meaningful.
type Session struct {
	State State        `json:"state"`
	User  UserScratch  `json:"user"`
	Admin AdminScratch `json:"admin"`
}

// Reset drops scratch data and moves to st.
func (s *Session) Reset(st State) {
	*s = Session{State: st}
}
