package users

import (
	"time"
)

// User is the owner of filter configurations and the receiver of notifications.
type User struct {
	ID             string                 `json:"id" mapstructure:"id"`
	Name           string                 `json:"name,omitempty" mapstructure:"name"`
	APIKey         string                 `json:"api_key,omitempty" mapstructure:"api-key"`
	WebhookURL     string                 `json:"webhook_url,omitempty" mapstructure:"webhook-url" validate:"omitempty,url"`
	Configurations map[int]*Configuration `json:"configurations,omitempty" mapstructure:"configurations"`
	Notifications  map[int]Notification   `json:"notifications,omitempty" mapstructure:"-"`
}

// Notification records when a funding request was last sent to a user.
type Notification struct {
	FundingRequestID int       `json:"funding_request_id"`
	Date             time.Time `json:"date"`
}

// NotifiedSince reports whether the funding request was notified after the given instant.
func (u *User) NotifiedSince(id int, since time.Time) bool {
	n, ok := u.Notifications[id]
	if !ok {
		return false
	}
	return n.Date.After(since)
}

// SecureAPIKey returns the last characters of the api key for logging.
func SecureAPIKey(key string) string {
	const visible = 10
	if len(key) <= visible {
		return "..."
	}
	return "..." + key[len(key)-visible:]
}
