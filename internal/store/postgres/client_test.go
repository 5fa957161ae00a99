package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u:p@db:6543/x", Host: "ignored"},
			want: "postgres://u:p@db:6543/x",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "localhost", Database: "polysniper", User: "postgres", Password: "pw"},
			want: "postgres://postgres:pw@localhost:5432/polysniper?sslmode=disable",
		},
		{
			name: "custom sslmode",
			cfg:  ClientConfig{Host: "db", Port: 5433, Database: "d", User: "u", SSLMode: "require"},
			want: "postgres://u:@db:5433/d?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_runs.sql", names[0])
}
