package session

const userIDKey = "_auth_user_id"

// Login records userID in s and rotates the session key.
func Login(s *Session, userID string) {
	values := s.Values
	s.Flush()
	for k, v := range values {
		if k != userIDKey {
			s.Values[k] = v
		}
	}
	s.Set(userIDKey, userID)
}

// Logout clears every value in s.
func Logout(s *Session) {
	s.Flush()
}

// UserID returns the authenticated user recorded in s.
func UserID(s *Session) (string, bool) {
	id, ok := s.Get(userIDKey)
	return id, ok && id != ""
}
