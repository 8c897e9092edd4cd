package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saylorsolutions/rest/registry"
	"github.com/saylorsolutions/rest/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFile = `
listen           = "127.0.0.1:9000"
log_level        = "debug"
log_format       = "json"
jwt_secret       = "s3cret"
install_route    = true
install_attempts = 5
shutdown_timeout = "10s"
cache_url        = "redis://cache:6379"
cors_origins     = ["https://app.example.com"]

ephemeral {
  db_url = "sqlite://file::memory:"
}

db "main" {
  url     = "postgres://db/app"
  options = { sslmode = "disable" }
  schema  = ["CREATE TABLE users (id INT)"]
}

db "audit" {
  url    = "mysql://audit/log"
  driver = "mysql"
}
`

func writeFile(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restd.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, conf.Listen)
	assert.Equal(t, slog.LevelInfo, conf.LogLevel)
	assert.Equal(t, DefaultShutdownTimeout, conf.ShutdownTimeout)
	assert.Equal(t, DefaultInstallAttempts, conf.InstallAttempts)
	assert.Nil(t, conf.CacheURL)
	assert.Nil(t, conf.Ephemeral)
	assert.Nil(t, conf.DB)
}

func TestLoad_File(t *testing.T) {
	conf, err := Load(writeFile(t, testFile))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", conf.Listen)
	assert.Equal(t, slog.LevelDebug, conf.LogLevel)
	assert.Equal(t, slogx.FormatJSON, conf.LogFormat)
	assert.True(t, conf.InstallRoute)
	assert.Equal(t, 5, conf.InstallAttempts)
	assert.Equal(t, 10*time.Second, conf.ShutdownTimeout)
	require.NotNil(t, conf.CacheURL)
	assert.Equal(t, "redis://cache:6379", *conf.CacheURL)
	assert.Equal(t, []string{"https://app.example.com"}, conf.CORSOrigins)
	require.NotNil(t, conf.Ephemeral)
	assert.Equal(t, "sqlite://file::memory:", conf.Ephemeral.DBURL)
	assert.Empty(t, conf.Ephemeral.CacheURL)

	require.Len(t, conf.DB, 2)
	mainDB := conf.DB["main"]
	assert.Equal(t, "postgres", mainDB.DriverName())
	assert.Equal(t, "db/app", mainDB.DSN())
	assert.Equal(t, map[string]string{"sslmode": "disable"}, mainDB.Options)
	assert.Equal(t, "mysql", conf.DB["audit"].DriverName())
	assert.Equal(t, map[string][]string{"main": {"CREATE TABLE users (id INT)"}}, conf.Schema())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("REST_LISTEN", ":7000")
	t.Setenv("rest_log_level", "warn")
	t.Setenv("REST_INSTALL_ROUTE", "off")
	t.Setenv("REST_CACHE_URL", "array://env")
	t.Setenv("REST_SHUTDOWN_TIMEOUT", "not a duration")
	t.Setenv("REST_CORS_ORIGINS", "http://a.test, http://b.test,")
	conf, err := Load(writeFile(t, testFile))
	require.NoError(t, err)
	assert.Equal(t, ":7000", conf.Listen)
	assert.Equal(t, slog.LevelWarn, conf.LogLevel)
	assert.False(t, conf.InstallRoute)
	assert.Equal(t, "array://env", *conf.CacheURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, conf.CORSOrigins)
	assert.Equal(t, 10*time.Second, conf.ShutdownTimeout, "An invalid duration should keep the file value")
}

func TestLoad_EphemeralFromEnv(t *testing.T) {
	t.Setenv("REST_EPHEMERAL", "yes")
	conf, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, conf.Ephemeral)
	assert.Empty(t, conf.Ephemeral.DBURL)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]struct {
		src string
		env map[string]string
	}{
		"Syntax error": {
			src: `listen = `,
		},
		"Unknown attribute": {
			src: `port = 80`,
		},
		"Duplicate db": {
			src: `
db "a" { url = "x://1" }
db "a" { url = "x://2" }
`,
		},
		"Bad log level": {
			src: `log_level = "loud"`,
		},
		"Bad env log level": {
			env: map[string]string{"REST_LOG_LEVEL": "loud"},
		},
		"Install route without secret": {
			src: `install_route = true`,
		},
		"Unknown log format": {
			src: `log_format = "xml"`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tc.src))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestValidate_JoinsProblems(t *testing.T) {
	conf := Default()
	conf.Listen = ""
	conf.InstallAttempts = 0
	conf.DB = map[string]Database{"main": {}}
	err := conf.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "listen address is required")
	assert.ErrorContains(t, err, "install attempts must be at least 1")
	assert.ErrorContains(t, err, "db 'main' has no url")
}

func TestConfig_Dispatch(t *testing.T) {
	conf, err := Load(writeFile(t, testFile))
	require.NoError(t, err)
	dc := conf.Dispatch("token")
	assert.True(t, dc.InstallRoute)
	assert.Equal(t, "token", dc.SystemToken)
	assert.Equal(t, registry.DBOption{URL: "postgres://db/app", Options: map[string]string{"sslmode": "disable"}}, dc.DBOptions["main"])
	assert.Same(t, conf.Ephemeral, dc.Ephemeral)

	conf.InstallRoute = false
	assert.Empty(t, conf.Dispatch("token").SystemToken)
	assert.Nil(t, Default().Dispatch("").DBOptions, "No db blocks should leave the section absent")
}

func TestEnv(t *testing.T) {
	env := Env{Prefix: "TEST_ENV_"}
	t.Setenv("TEST_ENV_STR", "  value ")
	t.Setenv("TEST_ENV_BLANK", "   ")
	t.Setenv("TEST_ENV_BOOL", "YES")
	t.Setenv("TEST_ENV_INT", "42")
	t.Setenv("TEST_ENV_BADINT", "4x2")
	t.Setenv("TEST_ENV_DUR", "3s")

	assert.Equal(t, "value", env.Val("str", "default"))
	assert.Equal(t, "default", env.Val("blank", "default"))
	assert.Equal(t, "default", env.Val("unset", "default"))
	assert.False(t, env.Set("blank"))
	assert.True(t, env.Bool("bool", false))
	assert.True(t, env.Bool("str", true), "Unrecognized values should return the default")
	assert.Equal(t, 42, env.Int("int", 0))
	assert.Equal(t, 7, env.Int("badint", 7))
	assert.Equal(t, 3*time.Second, env.Duration("dur", 0))
	assert.Equal(t, time.Minute, env.Duration("str", time.Minute))
}
