// Package tenancy resolves which business a webhook delivery belongs to and
// carries that identity through request handling.
package tenancy

import (
	"time"
)

// Tenant is one business served by the booking bot.
type Tenant struct {
	ID                string
	Name              string
	Address           string
	Timezone          string
	BotEnabled        bool
	GatewayInstanceID string
	GatewayAPIKey     string
	NotifyEmail       string
	Templates         map[string]string
}

// Location resolves the tenant timezone, falling back to São Paulo when the
// stored zone is empty or unknown.
func (t *Tenant) Location() *time.Location {
	if t != nil && t.Timezone != "" {
		if loc, err := time.LoadLocation(t.Timezone); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Template returns the tenant override for a reply template, or empty when
// the default copy should be used.
func (t *Tenant) Template(name string) string {
	if t == nil || t.Templates == nil {
		return ""
	}
	return t.Templates[name]
}
