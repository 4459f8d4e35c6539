package models

// SessionState is the lifecycle phase of a session.
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticating  SessionState = "authenticating"
	SessionAuthenticated   SessionState = "authenticated"
)

// Session is the authenticated identity together with its cached role.
type Session struct {
	State       SessionState `json:"state"`
	IdentityID  string       `json:"id,omitempty"`
	Email       string       `json:"email,omitempty"`
	Token       string       `json:"-"`
	Role        UserRole     `json:"role,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
}

// Authenticated reports whether the session carries a usable identity.
func (s Session) Authenticated() bool {
	return s.State == SessionAuthenticated && s.IdentityID != ""
}

// IsEditor reports whether the session belongs to an editor.
func (s Session) IsEditor() bool {
	return s.Authenticated() && s.Role == RoleEditor
}

// IsReporter reports whether the session belongs to a reporter.
func (s Session) IsReporter() bool {
	return s.Authenticated() && s.Role == RoleReporter
}

// Info converts the session to its response shape.
func (s Session) Info() UserInfo {
	return UserInfo{ID: s.IdentityID, Email: s.Email, DisplayName: s.DisplayName, Role: s.Role}
}
