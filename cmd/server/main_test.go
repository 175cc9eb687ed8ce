package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gonotify/internal/config"
)

func TestAppCommands(t *testing.T) {
	app := newApp()

	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")

	err := newApp().Run([]string{"gonotify", "migrate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestBuildAppInMemory(t *testing.T) {
	cfg := config.NewConfig()

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.close()

	assert.NotNil(t, a.server)
	assert.Empty(t, a.closers)
}
