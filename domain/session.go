package domain

// Session identifies the user on whose behalf operations run. It is handed to
// the sync coordinator explicitly instead of being looked up globally. The
// zero Session is anonymous: it may read but never write.
type Session struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// Anonymous reports whether no user is signed in.
func (s Session) Anonymous() bool {
	return s.UserID == ""
}

// Name returns the display name, falling back to "Anonymous".
func (s Session) Name() string {
	if s.DisplayName == "" {
		return "Anonymous"
	}
	return s.DisplayName
}
