package bootstrap

import (
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golfproxy/proxy/config"
)

func withTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "development")
	t.Setenv("UPSTREAM_BASE_URL", "https://example.invalid")
	t.Setenv("UPSTREAM_API_KEY", "test-key")
	t.Setenv("CACHE_L3_REDIS_URL", "")
}

func TestNewServerBuildsAppAndServesHealth(t *testing.T) {
	withTestEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	app, cleanup, err := NewServer(cfg)
	require.NoError(t, err)
	defer cleanup()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNewServerReadyWithNoDependenciesIsHealthy(t *testing.T) {
	withTestEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	app, cleanup, err := NewServer(cfg)
	require.NoError(t, err)
	defer cleanup()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
