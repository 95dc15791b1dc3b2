package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/pkg/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.WarningWindow)
	assert.Equal(t, 3, cfg.Workflow.MaxEscalations)
	assert.Equal(t, 8, cfg.Workflow.MaxLineageDepth)
	assert.False(t, cfg.Redis.Enabled)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TAKEDOWN_SERVER_PORT", "9999")
	t.Setenv("TAKEDOWN_DATABASE_HOST", "db.internal")
	t.Setenv("TAKEDOWN_WORKFLOW_SLA_URGENT_HOURS", "6")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6*time.Hour, cfg.Workflow.SLABudgets()[models.PriorityUrgent])
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432,
		Username: "takedown", Password: "secret",
		Database: "takedown", SSLMode: "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=takedown password=secret dbname=takedown sslmode=disable",
		cfg.DSN())
}

func TestSLABudgets(t *testing.T) {
	cfg := WorkflowConfig{SLALowHours: 72, SLAMediumHours: 48, SLAHighHours: 24, SLAUrgentHours: 12}

	budgets := cfg.SLABudgets()

	assert.Equal(t, 72*time.Hour, budgets[models.PriorityLow])
	assert.Equal(t, 12*time.Hour, budgets[models.PriorityUrgent])
}
