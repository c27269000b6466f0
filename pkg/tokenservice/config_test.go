package tokenservice

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openchami/tokengate/middleware"
	"github.com/openchami/tokengate/pkg/keys"
	"github.com/openchami/tokengate/pkg/token"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, keys.PlaceholderSecret, config.Token.Secret)
	assert.Equal(t, token.DefaultExpirationMillis, config.Token.ExpirationMillis)
	assert.Equal(t, ":8080", config.ListenAddr)
	assert.Equal(t, middleware.DefaultPublicPaths(), config.PublicPaths)
	assert.Equal(t, middleware.DefaultIssueLimit, config.IssueRateLimit)
	assert.True(t, config.MetricsEnabled)
	assert.False(t, config.TrustProxyHeaders)
	assert.Nil(t, config.PolicyEngine)
	assert.NoError(t, config.Validate())
}

func TestFileConfig_SaveLoadApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	fc := DefaultFileConfig()
	fc.JWT.Secret = "file-secret-file-secret-file-secret"
	fc.JWT.Expiration = 60000
	fc.Server.ListenAddr = ":9090"
	fc.Server.PublicPaths = []string{"/actuator/"}
	fc.Server.RateLimit = &RateLimitFileEntry{Requests: 5, WindowSeconds: 10, Burst: 2}
	require.NoError(t, SaveFileConfig(fc, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, fc, loaded)

	config := DefaultConfig()
	require.NoError(t, loaded.Apply(config))
	assert.Equal(t, "file-secret-file-secret-file-secret", config.Token.Secret)
	assert.Equal(t, time.Minute, config.Token.TTL())
	assert.Equal(t, ":9090", config.ListenAddr)
	assert.Equal(t, []string{"/actuator/"}, config.PublicPaths)
	assert.Equal(t, middleware.RateLimitConfig{RequestsPerWindow: 5, Window: 10 * time.Second, Burst: 2}, config.IssueRateLimit)
	require.NotNil(t, config.PolicyEngine)
	assert.Equal(t, PolicyEngineTypeStatic, config.PolicyEngine.Type)
}

func TestLoadFileConfig_Errors(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))
	_, err = LoadFileConfig(bad)
	assert.Error(t, err)

	fc, err := LoadFileConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFileConfig(), fc)
}

func TestFileConfig_ApplyPolicy(t *testing.T) {
	tests := []struct {
		name     string
		policy   PolicyFileConfig
		wantType PolicyEngineType
		wantErr  bool
	}{
		{"static", PolicyFileConfig{Engine: "static"}, PolicyEngineTypeStatic, false},
		{"profiles file implies file-based", PolicyFileConfig{ProfilesFile: "/tmp/profiles.json"}, PolicyEngineTypeFileBased, false},
		{"file-based with reload", PolicyFileConfig{Engine: "file-based", ProfilesFile: "/tmp/p.json", ReloadInterval: "30s"}, PolicyEngineTypeFileBased, false},
		{"file-based without file", PolicyFileConfig{Engine: "file-based"}, "", true},
		{"bad reload interval", PolicyFileConfig{ProfilesFile: "/tmp/p.json", ReloadInterval: "soon"}, "", true},
		{"unknown engine", PolicyFileConfig{Engine: "opa"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			err := (&FileConfig{Policy: tt.policy}).Apply(config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, config.PolicyEngine.Type)
			if tt.policy.ReloadInterval != "" {
				require.NotNil(t, config.PolicyEngine.FileBased.ReloadInterval)
				assert.Equal(t, 30*time.Second, *config.PolicyEngine.FileBased.ReloadInterval)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret-env-secret-env-secret-env")
	t.Setenv("JWT_EXPIRATION", "3600000")
	t.Setenv("JWT_ALGORITHM", "HS512")
	t.Setenv("JWT_CACHE_SIZE", "0")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:8181")
	t.Setenv("PUBLIC_PATHS", "/actuator/, /health ,")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("ROUTE_POLICY_FILE", "/etc/tokengate/routes.csv")
	t.Setenv("RATELIMIT_ISSUE_REQUESTS", "100")
	t.Setenv("RATELIMIT_ISSUE_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_ISSUE_BURST", "nope")

	config := DefaultConfig()
	require.NoError(t, ApplyEnv(config))

	assert.Equal(t, "env-secret-env-secret-env-secret-env", config.Token.Secret)
	assert.Equal(t, time.Hour, config.Token.TTL())
	assert.Equal(t, "HS512", config.Token.Algorithm)
	assert.Equal(t, 0, config.Token.CacheSize)
	assert.Equal(t, "127.0.0.1:8181", config.ListenAddr)
	assert.Equal(t, []string{"/actuator/", "/health"}, config.PublicPaths)
	assert.False(t, config.MetricsEnabled)
	assert.True(t, config.TrustProxyHeaders)
	assert.Equal(t, "/etc/tokengate/routes.csv", config.RoutePolicyFile)
	assert.Equal(t, 100, config.IssueRateLimit.RequestsPerWindow)
	assert.Equal(t, 30*time.Second, config.IssueRateLimit.Window)
	// unparsable values keep the previous setting
	assert.Equal(t, middleware.DefaultIssueLimit.Burst, config.IssueRateLimit.Burst)
}

func TestApplyEnv_InvalidExpiration(t *testing.T) {
	t.Setenv("JWT_EXPIRATION", "24h")
	assert.Error(t, ApplyEnv(DefaultConfig()))
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.json")
	fc := &FileConfig{
		JWT:    JWTFileConfig{Secret: "from-file-from-file-from-file-from-file", Expiration: 1000},
		Server: ServerFileConfig{ListenAddr: ":7000"},
	}
	require.NoError(t, SaveFileConfig(fc, configPath))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("JWT_EXPIRATION=2000\nLISTEN_ADDR=:7001\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("JWT_EXPIRATION") })

	// the process environment wins over the dotenv file
	t.Setenv("JWT_SECRET", "from-env-from-env-from-env-from-env-env")
	t.Setenv("LISTEN_ADDR", ":7002")

	config, err := LoadConfig(configPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env-from-env-from-env-from-env-env", config.Token.Secret)
	assert.Equal(t, int64(2000), config.Token.ExpirationMillis)
	assert.Equal(t, ":7002", config.ListenAddr)
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	config, err := LoadConfig("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().ListenAddr, config.ListenAddr)
}

func TestNewPolicyEngine(t *testing.T) {
	engine, err := NewPolicyEngine(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "cache-admin", "cache-reader", "cache-writer", "user"}, engine.Profiles())

	_, err = NewPolicyEngine(&PolicyEngineConfig{Type: "rego"})
	assert.Error(t, err)
}
