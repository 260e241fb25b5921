package tenancy

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tenantCols = []string{"id", "name", "address", "timezone", "bot_enabled", "gateway_instance_id", "gateway_api_key", "notify_email", "templates"}

func TestResolveByInstance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE gateway_instance_id").
		WithArgs("clinic-1").
		WillReturnRows(pgxmock.NewRows(tenantCols).AddRow(
			"t1", "Barbearia Alfa", "Rua A, 10", "America/Sao_Paulo", true,
			"clinic-1", "gw-key", "dono@alfa.com", []byte(`{"greeting":"Oi!"}`),
		))

	resolver := NewResolverWithDB(mock)
	tenant, err := resolver.ResolveByInstance(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "Barbearia Alfa", tenant.Name)
	assert.True(t, tenant.BotEnabled)
	assert.Equal(t, "Oi!", tenant.Template("greeting"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveByInstanceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE gateway_instance_id").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	resolver := NewResolverWithDB(mock)
	_, err = resolver.ResolveByInstance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveSoleEnabled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE bot_enabled").
		WillReturnRows(pgxmock.NewRows(tenantCols).AddRow(
			"t1", "Barbearia Alfa", "", "", true, "clinic-1", "", "", []byte(nil),
		))

	resolver := NewResolverWithDB(mock)
	tenant, err := resolver.ResolveSoleEnabled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", tenant.ID)
}

func TestResolveSoleEnabledAmbiguous(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE bot_enabled").
		WillReturnRows(pgxmock.NewRows(tenantCols).
			AddRow("t1", "Alfa", "", "", true, "i1", "", "", []byte(nil)).
			AddRow("t2", "Beta", "", "", true, "i2", "", "", []byte(nil)))

	resolver := NewResolverWithDB(mock)
	_, err = resolver.ResolveSoleEnabled(context.Background())
	assert.ErrorIs(t, err, ErrAmbiguousTenant)
}

func TestTenantLocationFallback(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	var nilTenant *Tenant
	assert.Equal(t, saoPaulo.String(), nilTenant.Location().String())
	assert.Equal(t, saoPaulo.String(), (&Tenant{Timezone: "Mars/Olympus"}).Location().String())
	assert.Equal(t, "America/Recife", (&Tenant{Timezone: "America/Recife"}).Location().String())
}

func TestTenantContext(t *testing.T) {
	ctx := WithTenantID(context.Background(), "t1")
	got, ok := TenantIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "t1", got)

	_, ok = TenantIDFromContext(context.Background())
	assert.False(t, ok)
}
