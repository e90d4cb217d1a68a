package api

import "time"

const (
	HealthPath = "/api/v1/health"
	UsersPath  = "/api/v1/users"
)

// User is a record owned by the remote service. The dashboard never mutates it.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Country   string `json:"country"`
	CreatedAt string `json:"created_at"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// Joined parses CreatedAt. The remote service sends RFC 3339 timestamps, but
// bare dates are accepted too. ok is false when nothing matches.
func (u User) Joined() (t time.Time, ok bool) {
	for _, layout := range createdAtLayouts {
		if parsed, err := time.Parse(layout, u.CreatedAt); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Health is the advisory status reported by the remote service.
type Health struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type usersResponse struct {
	Users []User `json:"users"`
}
