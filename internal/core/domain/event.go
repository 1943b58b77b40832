package domain

// SessionEventType classifies credential store notifications.
type SessionEventType string

const (
	SessionSignedIn       SessionEventType = "signed_in"
	SessionSignedOut      SessionEventType = "signed_out"
	SessionUserUpdated    SessionEventType = "user_updated"
	SessionTokenRefreshed SessionEventType = "token_refreshed"
)

// SessionEvent is emitted by the credential store on every session change.
// Identity is nil for SessionSignedOut.
type SessionEvent struct {
	Type     SessionEventType
	Identity *Identity
}

// Tables observed through the change feed.
const (
	TableProfiles = "profiles"
	TableVendors  = "vendors"
	TableAdmins   = "admins"
)

// ChangeOp is the kind of row mutation reported by the change feed.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent reports a row mutation. Columns carries the filterable
// values of the row (for example "id", "user_id", "role").
type ChangeEvent struct {
	Table   string
	Op      ChangeOp
	Columns map[string]string
}

// Key returns the value events are ordered by: the owning user id.
func (e ChangeEvent) Key() string {
	if v := e.Columns["user_id"]; v != "" {
		return v
	}
	return e.Columns["id"]
}
