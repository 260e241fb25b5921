package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTenantNotFound means no enabled tenant matches the lookup.
	ErrTenantNotFound = errors.New("tenancy: tenant not found")
	// ErrAmbiguousTenant means a fallback lookup matched more than one
	// enabled tenant, so the delivery cannot be attributed safely.
	ErrAmbiguousTenant = errors.New("tenancy: more than one enabled tenant")
)

type tenantDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resolver looks tenants up by their gateway instance binding.
type Resolver struct {
	db tenantDB
}

func NewResolver(pool *pgxpool.Pool) *Resolver {
	if pool == nil {
		panic("tenancy: pgx pool required")
	}
	return &Resolver{db: pool}
}

func NewResolverWithDB(db tenantDB) *Resolver {
	return &Resolver{db: db}
}

const tenantColumns = `id, name, address, timezone, bot_enabled, gateway_instance_id, gateway_api_key, notify_email, templates`

// ResolveByInstance finds the tenant bound to a gateway instance id.
func (r *Resolver) ResolveByInstance(ctx context.Context, instanceID string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE gateway_instance_id = $1`
	tenant, err := scanTenant(r.db.QueryRow(ctx, query, instanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("tenancy: resolve by instance: %w", err)
	}
	return tenant, nil
}

// ResolveSoleEnabled returns the single enabled tenant, for deployments where
// the webhook payload carries no instance id. Two or more enabled tenants
// make the fallback unsafe.
func (r *Resolver) ResolveSoleEnabled(ctx context.Context) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE bot_enabled LIMIT 2`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("tenancy: resolve sole enabled: %w", err)
	}
	defer rows.Close()

	var found []*Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("tenancy: resolve sole enabled: %w", err)
		}
		found = append(found, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenancy: resolve sole enabled: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, ErrTenantNotFound
	case 1:
		return found[0], nil
	default:
		return nil, ErrAmbiguousTenant
	}
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	var templates []byte
	err := row.Scan(&t.ID, &t.Name, &t.Address, &t.Timezone, &t.BotEnabled,
		&t.GatewayInstanceID, &t.GatewayAPIKey, &t.NotifyEmail, &templates)
	if err != nil {
		return nil, err
	}
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &t.Templates); err != nil {
			return nil, fmt.Errorf("decode templates: %w", err)
		}
	}
	return &t, nil
}
