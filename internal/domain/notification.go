package domain

import "time"

// Notification is a best-effort, user-facing side record. It is addressed to
// a specific user id, a role, or both, and carries no financial state.
// Eventual consistency is acceptable; creation failures may be dropped.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"` // info | success | warning | error
	UserID    string    `json:"userId,omitempty"`
	Role      string    `json:"role,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a credential record. Students log in with their student number.
// Password hashes are bcrypt; the auth flow itself lives outside this service.
type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	Role         string      `json:"role"` // admin | bursar | student
	Profile      UserProfile `json:"profile"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// UserProfile mirrors the identity fields shown in the frontend.
type UserProfile struct {
	Name          string `json:"name"`
	Surname       string `json:"surname"`
	StudentNumber string `json:"studentNumber,omitempty"`
}
