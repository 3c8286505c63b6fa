package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("local defaults", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "marketplace",
			Password: "marketplace",
			DBName:   "marketplace_test",
		}, cfg)
	})

	t.Run("CI overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_PASSWORD", "p@ss word")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss word", DBName: "market"}
	assert.Equal(t, "postgres://app:p%40ss%20word@db:5432/market?sslmode=disable", cfg.DSN())
}

func TestEnvBool(t *testing.T) {
	for _, tc := range []struct {
		val  string
		want bool
	}{
		{"1", true}, {"TRUE", true}, {"yes", true}, {"y", true}, {"0", false}, {"", false}, {"nope", false},
	} {
		t.Setenv("TESTUTIL_FLAG", tc.val)
		assert.Equal(t, tc.want, envBool("TESTUTIL_FLAG"), tc.val)
	}
}
