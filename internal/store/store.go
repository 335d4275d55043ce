package store

import (
	"errors"
	"maps"

	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// ErrUserNotFound is returned when no user matches the given id or api key.
var ErrUserNotFound = errors.New("user not found")

const (
	DriverRedis  = "redis"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config selects and configures the user store.
type Config struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
	Mongo  MongoConfig `mapstructure:"mongo"`
}

// profile is the part of a user stored apart from its configurations and notifications.
type profile struct {
	ID         string `json:"id" bson:"_id"`
	Name       string `json:"name,omitempty" bson:"name,omitempty"`
	APIKey     string `json:"api_key,omitempty" bson:"api_key,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty" bson:"webhook_url,omitempty"`
}

func profileOf(u *users.User) profile {
	return profile{ID: u.ID, Name: u.Name, APIKey: u.APIKey, WebhookURL: u.WebhookURL}
}

func (p profile) user() *users.User {
	return &users.User{
		ID:             p.ID,
		Name:           p.Name,
		APIKey:         p.APIKey,
		WebhookURL:     p.WebhookURL,
		Configurations: make(map[int]*users.Configuration),
		Notifications:  make(map[int]users.Notification),
	}
}

func cloneUser(u *users.User) *users.User {
	c := profileOf(u).user()
	for id, cfg := range u.Configurations {
		if cfg == nil {
			continue
		}
		copied := *cfg
		c.Configurations[id] = &copied
	}
	maps.Copy(c.Notifications, u.Notifications)
	return c
}
