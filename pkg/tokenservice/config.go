package tokenservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/openchami/tokengate/middleware"
	"github.com/openchami/tokengate/pkg/policy"
	"github.com/openchami/tokengate/pkg/token"
)

// PolicyEngineType represents the type of policy engine
type PolicyEngineType string

const (
	PolicyEngineTypeStatic    PolicyEngineType = "static"
	PolicyEngineTypeFileBased PolicyEngineType = "file-based"
)

// PolicyEngineConfig holds the configuration for the profile engine
type PolicyEngineConfig struct {
	Type PolicyEngineType `json:"type"`

	// Static engine configuration
	Static *policy.StaticEngineConfig `json:"static,omitempty"`

	// File-based engine configuration
	FileBased *policy.FileBasedEngineConfig `json:"file_based,omitempty"`
}

// Config holds the runtime configuration of the service
type Config struct {
	// Token holds the jwt.* settings
	Token token.Config
	// ListenAddr is the HTTP listen address
	ListenAddr string
	// PublicPaths bypass the authentication interceptor
	PublicPaths []string
	// IssueRateLimit applies per client to the token issuance endpoints
	IssueRateLimit middleware.RateLimitConfig
	// MetricsEnabled serves /actuator/prometheus
	MetricsEnabled bool
	// TrustProxyHeaders takes the client address from X-Forwarded-For and X-Real-IP.
	// Enable it only behind a proxy that sets those headers.
	TrustProxyHeaders bool
	// PolicyEngine selects the profile engine; nil serves the built-in profiles
	PolicyEngine *PolicyEngineConfig
	// RoutePolicyFile enables casbin route authorization on the cache endpoints
	RoutePolicyFile string
	// RoutePolicyModel overrides the built-in casbin model
	RoutePolicyModel string
}

// DefaultConfig returns the defaults every other source overlays
func DefaultConfig() *Config {
	return &Config{
		Token:          *token.DefaultConfig(),
		ListenAddr:     ":8080",
		PublicPaths:    middleware.DefaultPublicPaths(),
		IssueRateLimit: middleware.DefaultIssueLimit,
		MetricsEnabled: true,
	}
}

// FileConfig represents the configuration stored in a file
type FileConfig struct {
	JWT    JWTFileConfig    `json:"jwt"`
	Server ServerFileConfig `json:"server"`
	Policy PolicyFileConfig `json:"policy"`
}

// JWTFileConfig is the jwt section of the configuration file
type JWTFileConfig struct {
	Secret     string `json:"secret,omitempty"`
	SecretFile string `json:"secret_file,omitempty"`
	// Expiration is the token lifetime in milliseconds
	Expiration int64  `json:"expiration,omitempty"`
	Algorithm  string `json:"algorithm,omitempty"`
	CacheSize  *int   `json:"cache_size,omitempty"`
}

// ServerFileConfig is the server section of the configuration file
type ServerFileConfig struct {
	ListenAddr     string              `json:"listen_addr,omitempty"`
	PublicPaths    []string            `json:"public_paths,omitempty"`
	MetricsEnabled *bool               `json:"metrics_enabled,omitempty"`
	TrustProxy     *bool               `json:"trust_proxy_headers,omitempty"`
	RateLimit      *RateLimitFileEntry `json:"issue_rate_limit,omitempty"`
}

// RateLimitFileEntry is a rate limit with the window in seconds
type RateLimitFileEntry struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"window_seconds"`
	Burst         int `json:"burst"`
}

// PolicyFileConfig is the policy section of the configuration file
type PolicyFileConfig struct {
	// Engine is "static" or "file-based"
	Engine string `json:"engine,omitempty"`
	// ProfilesFile is the catalog for the file-based engine
	ProfilesFile string `json:"profiles_file,omitempty"`
	// ReloadInterval is a Go duration string
	ReloadInterval string `json:"reload_interval,omitempty"`
	RouteModel     string `json:"route_model,omitempty"`
	RoutePolicy    string `json:"route_policy,omitempty"`
}

// DefaultFileConfig returns a default file configuration
func DefaultFileConfig() *FileConfig {
	defaults := DefaultConfig()
	cacheSize := defaults.Token.CacheSize
	metricsEnabled := defaults.MetricsEnabled
	return &FileConfig{
		JWT: JWTFileConfig{
			Secret:     defaults.Token.Secret,
			Expiration: defaults.Token.ExpirationMillis,
			Algorithm:  defaults.Token.Algorithm,
			CacheSize:  &cacheSize,
		},
		Server: ServerFileConfig{
			ListenAddr:     defaults.ListenAddr,
			PublicPaths:    defaults.PublicPaths,
			MetricsEnabled: &metricsEnabled,
			RateLimit: &RateLimitFileEntry{
				Requests:      defaults.IssueRateLimit.RequestsPerWindow,
				WindowSeconds: int(defaults.IssueRateLimit.Window / time.Second),
				Burst:         defaults.IssueRateLimit.Burst,
			},
		},
		Policy: PolicyFileConfig{
			Engine: string(PolicyEngineTypeStatic),
		},
	}
}

// LoadFileConfig loads configuration from a file
func LoadFileConfig(configPath string) (*FileConfig, error) {
	if configPath == "" {
		return DefaultFileConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveFileConfig saves configuration to a file
func SaveFileConfig(config *FileConfig, configPath string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Apply overlays the non-zero settings of the file onto c.
func (fc *FileConfig) Apply(c *Config) error {
	if fc.JWT.Secret != "" {
		c.Token.Secret = fc.JWT.Secret
	}
	if fc.JWT.SecretFile != "" {
		c.Token.SecretFile = fc.JWT.SecretFile
	}
	if fc.JWT.Expiration != 0 {
		c.Token.ExpirationMillis = fc.JWT.Expiration
	}
	if fc.JWT.Algorithm != "" {
		c.Token.Algorithm = fc.JWT.Algorithm
	}
	if fc.JWT.CacheSize != nil {
		c.Token.CacheSize = *fc.JWT.CacheSize
	}

	if fc.Server.ListenAddr != "" {
		c.ListenAddr = fc.Server.ListenAddr
	}
	if fc.Server.PublicPaths != nil {
		c.PublicPaths = fc.Server.PublicPaths
	}
	if fc.Server.MetricsEnabled != nil {
		c.MetricsEnabled = *fc.Server.MetricsEnabled
	}
	if fc.Server.TrustProxy != nil {
		c.TrustProxyHeaders = *fc.Server.TrustProxy
	}
	if rl := fc.Server.RateLimit; rl != nil {
		c.IssueRateLimit = middleware.RateLimitConfig{
			RequestsPerWindow: rl.Requests,
			Window:            time.Duration(rl.WindowSeconds) * time.Second,
			Burst:             rl.Burst,
		}
	}

	if fc.Policy.RouteModel != "" {
		c.RoutePolicyModel = fc.Policy.RouteModel
	}
	if fc.Policy.RoutePolicy != "" {
		c.RoutePolicyFile = fc.Policy.RoutePolicy
	}

	if fc.Policy.Engine != "" || fc.Policy.ProfilesFile != "" {
		engine, err := policyEngineConfig(fc.Policy.Engine, fc.Policy.ProfilesFile, fc.Policy.ReloadInterval)
		if err != nil {
			return err
		}
		c.PolicyEngine = engine
	}

	return nil
}

// LoadConfig builds the configuration from defaults, the JSON file at configPath, the dotenv file
// at envFile and finally the process environment. Empty paths skip that source; a missing dotenv
// file is not an error.
func LoadConfig(configPath, envFile string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		fc, err := LoadFileConfig(configPath)
		if err != nil {
			return nil, err
		}
		if err := fc.Apply(config); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the environment
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overlays JWT_SECRET, JWT_SECRET_FILE, JWT_EXPIRATION, JWT_ALGORITHM, JWT_CACHE_SIZE,
// LISTEN_ADDR, PUBLIC_PATHS, METRICS_ENABLED, POLICY_ENGINE, PROFILES_FILE, ROUTE_POLICY_FILE,
// ROUTE_POLICY_MODEL and RATELIMIT_ISSUE_{REQUESTS,WINDOW_SEC,BURST}.
func ApplyEnv(c *Config) error {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Token.Secret = v
	}
	if v := os.Getenv("JWT_SECRET_FILE"); v != "" {
		c.Token.SecretFile = v
	}
	if v := os.Getenv("JWT_EXPIRATION"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("JWT_EXPIRATION must be milliseconds: %w", err)
		}
		c.Token.ExpirationMillis = ms
	}
	if v := os.Getenv("JWT_ALGORITHM"); v != "" {
		c.Token.Algorithm = v
	}
	if v := os.Getenv("JWT_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JWT_CACHE_SIZE: %w", err)
		}
		c.Token.CacheSize = n
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("PUBLIC_PATHS"); v != "" {
		c.PublicPaths = splitList(v)
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		c.MetricsEnabled = v == "true"
	}
	if v := os.Getenv("TRUST_PROXY_HEADERS"); v != "" {
		c.TrustProxyHeaders = v == "true"
	}
	if v := os.Getenv("ROUTE_POLICY_FILE"); v != "" {
		c.RoutePolicyFile = v
	}
	if v := os.Getenv("ROUTE_POLICY_MODEL"); v != "" {
		c.RoutePolicyModel = v
	}

	engineType, profilesFile := os.Getenv("POLICY_ENGINE"), os.Getenv("PROFILES_FILE")
	if engineType != "" || profilesFile != "" {
		engine, err := policyEngineConfig(engineType, profilesFile, "")
		if err != nil {
			return err
		}
		c.PolicyEngine = engine
	}

	c.IssueRateLimit = parseRateLimitFromEnv("ISSUE", c.IssueRateLimit)
	return nil
}

// parseRateLimitFromEnv reads RATELIMIT_{prefix}_REQUESTS, _WINDOW_SEC and _BURST.
func parseRateLimitFromEnv(prefix string, config middleware.RateLimitConfig) middleware.RateLimitConfig {
	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests >= 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst >= 0 {
			config.Burst = burst
		}
	}

	return config
}

// policyEngineConfig builds an engine selection. A profiles file without an engine type implies file-based.
func policyEngineConfig(engineType, profilesFile, reloadInterval string) (*PolicyEngineConfig, error) {
	if engineType == "" {
		engineType = string(PolicyEngineTypeFileBased)
	}

	switch PolicyEngineType(engineType) {
	case PolicyEngineTypeStatic:
		return &PolicyEngineConfig{Type: PolicyEngineTypeStatic, Static: policy.DefaultStaticConfig()}, nil
	case PolicyEngineTypeFileBased:
		if profilesFile == "" {
			return nil, fmt.Errorf("a profiles file is required for the file-based policy engine")
		}
		fb := &policy.FileBasedEngineConfig{
			Name:       "tokengate-file-engine",
			Version:    "1.0.0",
			ConfigPath: profilesFile,
		}
		if reloadInterval != "" {
			d, err := time.ParseDuration(reloadInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid reload_interval: %w", err)
			}
			fb.ReloadInterval = &d
		}
		return &PolicyEngineConfig{Type: PolicyEngineTypeFileBased, FileBased: fb}, nil
	default:
		return nil, fmt.Errorf("unsupported policy engine type: %s", engineType)
	}
}

// NewPolicyEngine creates a new policy engine based on the configuration
func NewPolicyEngine(config *PolicyEngineConfig) (policy.Engine, error) {
	if config == nil {
		return policy.NewStaticEngine(nil)
	}

	switch config.Type {
	case PolicyEngineTypeStatic:
		return policy.NewStaticEngine(config.Static)
	case PolicyEngineTypeFileBased:
		return policy.NewFileBasedEngine(config.FileBased)
	default:
		return nil, fmt.Errorf("unsupported policy engine type: %s", config.Type)
	}
}

// Validate checks the configuration before the service starts
func (c *Config) Validate() error {
	if err := c.Token.Validate(); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.RoutePolicyModel != "" && c.RoutePolicyFile == "" {
		return fmt.Errorf("a route policy model requires a route policy file")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
