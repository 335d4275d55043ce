package users

import (
	"fmt"

	"github.com/cumplo-spotter/cumplo-spotter/internal/utils"
)

// Definition is the file representation of a user and its configurations.
type Definition struct {
	ID             string           `mapstructure:"id"`
	Name           string           `mapstructure:"name"`
	APIKey         string           `mapstructure:"api-key"`
	WebhookURL     string           `mapstructure:"webhook-url"`
	Configurations []*Configuration `mapstructure:"configurations"`
}

// User converts the definition into a User keyed by configuration id.
func (d *Definition) User() *User {
	u := &User{
		ID:             d.ID,
		Name:           d.Name,
		APIKey:         d.APIKey,
		WebhookURL:     d.WebhookURL,
		Configurations: make(map[int]*Configuration, len(d.Configurations)),
	}
	for _, c := range d.Configurations {
		if c != nil {
			u.Configurations[c.ID] = c
		}
	}
	return u
}

// DecodeDefinition decodes a generic document (parsed yaml or json) into a Definition.
func DecodeDefinition(input map[string]any) (*Definition, error) {
	var def Definition
	if err := utils.Decode(input, &def, "mapstructure", true); err != nil {
		return nil, fmt.Errorf("decode user definition: %w", err)
	}
	return &def, nil
}
