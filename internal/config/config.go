package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aescanero/dago-task-gateway/internal/domain"
	"github.com/aescanero/dago-task-gateway/internal/pool"
	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// GatewayConfig holds all configuration for the gateway
type GatewayConfig struct {
	// HTTP configuration
	HTTPPort int `env:"HTTP_PORT" envDefault:"9000"`

	// Worker pool configuration
	WorkerEndpoints  []string `env:"WORKER_ENDPOINTS" envSeparator:"," envDefault:"localhost:7002"`
	WorkerCredential string   `env:"WORKER_CREDENTIAL"`
	WorkerPoolFile   string   `env:"WORKER_POOL_FILE"`

	// Request configuration
	MaxPromptWords     int      `env:"MAX_PROMPT_WORDS" envDefault:"100"`
	DefaultMaxTokens   int      `env:"DEFAULT_MAX_TOKENS" envDefault:"150"`
	DefaultTemperature float64  `env:"DEFAULT_TEMPERATURE" envDefault:"0.1"`
	DefaultTopP        float64  `env:"DEFAULT_TOP_P" envDefault:"0.8"`
	DefaultStop        []string `env:"DEFAULT_STOP" envSeparator:"," envDefault:"\n\n,Question:"`

	// Dispatch configuration
	RequestTimeout         time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ConnectTimeout         time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	SerializeCalls         bool          `env:"SERIALIZE_CALLS" envDefault:"true"`
	WorkerFailureThreshold int           `env:"WORKER_FAILURE_THRESHOLD" envDefault:"1"`
	SelectionPolicy        string        `env:"SELECTION_POLICY" envDefault:"random"`
	DispatchAttempts       int           `env:"DISPATCH_ATTEMPTS" envDefault:"1"`

	// Health check configuration
	HealthInterval time.Duration `env:"HEALTH_INTERVAL" envDefault:"10s"`
	ProbeTimeout   time.Duration `env:"PROBE_TIMEOUT" envDefault:"3s"`

	// Output configuration
	DecisionExpr        string `env:"DECISION_EXPR"`
	ResponseDiagnostics bool   `env:"RESPONSE_DIAGNOSTICS" envDefault:"false"`

	// Redis configuration (decision events, optional)
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	EventStream   string `env:"EVENT_STREAM" envDefault:"gateway.decided"`
	EventBuffer   int    `env:"EVENT_BUFFER" envDefault:"256"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadGateway loads gateway configuration from environment variables
func LoadGateway() (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.DefaultStop = unescapeAll(cfg.DefaultStop)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *GatewayConfig) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}

	if c.WorkerPoolFile == "" {
		if len(c.WorkerEndpoints) == 0 {
			return fmt.Errorf("WORKER_ENDPOINTS or WORKER_POOL_FILE is required")
		}
		if c.WorkerCredential == "" {
			return fmt.Errorf("WORKER_CREDENTIAL is required")
		}
	}

	if c.MaxPromptWords <= 0 {
		return fmt.Errorf("MAX_PROMPT_WORDS must be positive")
	}

	if err := c.DefaultRequest("-").Validate(); err != nil {
		return fmt.Errorf("invalid default sampling parameters: %w", err)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be positive")
	}

	if c.WorkerFailureThreshold < 1 {
		return fmt.Errorf("WORKER_FAILURE_THRESHOLD must be at least 1")
	}

	if _, err := pool.PolicyByName(c.SelectionPolicy); err != nil {
		return fmt.Errorf("SELECTION_POLICY: %w", err)
	}

	if c.DispatchAttempts < 1 {
		return fmt.Errorf("DISPATCH_ATTEMPTS must be at least 1")
	}

	if c.HealthInterval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be positive")
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive")
	}

	if c.RedisAddr != "" {
		if c.EventStream == "" {
			return fmt.Errorf("EVENT_STREAM is required when REDIS_ADDR is set")
		}
		if c.EventBuffer <= 0 {
			return fmt.Errorf("EVENT_BUFFER must be positive")
		}
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// DefaultRequest returns an inference request for prompt with the configured
// sampling defaults.
func (c *GatewayConfig) DefaultRequest(prompt string) domain.InferenceRequest {
	stop := make([]string, len(c.DefaultStop))
	copy(stop, c.DefaultStop)
	return domain.InferenceRequest{
		Prompt:      prompt,
		MaxTokens:   c.DefaultMaxTokens,
		Temperature: c.DefaultTemperature,
		TopP:        c.DefaultTopP,
		Stop:        stop,
	}
}

// EventsEnabled reports whether decision events should be published.
func (c *GatewayConfig) EventsEnabled() bool {
	return c.RedisAddr != ""
}

// PoolSpecs returns the configured worker endpoints. Endpoints without their
// own credential use WORKER_CREDENTIAL.
func (c *GatewayConfig) PoolSpecs() ([]pool.Spec, error) {
	if c.WorkerPoolFile != "" {
		specs, err := LoadPoolFile(c.WorkerPoolFile, c.WorkerCredential)
		if err != nil {
			return nil, err
		}
		return specs, nil
	}

	specs := make([]pool.Spec, 0, len(c.WorkerEndpoints))
	for _, addr := range c.WorkerEndpoints {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		specs = append(specs, pool.Spec{Address: addr, Credential: c.WorkerCredential})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no worker endpoints configured")
	}
	return specs, nil
}

type poolFile struct {
	Credential string      `yaml:"credential"`
	Workers    []pool.Spec `yaml:"workers"`
}

// LoadPoolFile reads worker endpoints from a YAML file. fallback is used for
// endpoints that name neither their own nor a file-wide credential.
func LoadPoolFile(path, fallback string) ([]pool.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool file: %w", err)
	}

	var f poolFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse pool file %s: %w", path, err)
	}

	shared := f.Credential
	if shared == "" {
		shared = fallback
	}

	specs := make([]pool.Spec, 0, len(f.Workers))
	for i, w := range f.Workers {
		if w.Address == "" {
			return nil, fmt.Errorf("pool file %s: worker %d has no address", path, i)
		}
		if w.Credential == "" {
			w.Credential = shared
		}
		if w.Credential == "" {
			return nil, fmt.Errorf("pool file %s: worker %s has no credential", path, w.Address)
		}
		specs = append(specs, w)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("pool file %s lists no workers", path)
	}
	return specs, nil
}

// String returns a string representation of the config (without sensitive data)
func (c *GatewayConfig) String() string {
	return fmt.Sprintf(
		"GatewayConfig{HTTPPort=%d, WorkerEndpoints=%v, WorkerPoolFile=%s, MaxPromptWords=%d, "+
			"RequestTimeout=%s, SelectionPolicy=%s, WorkerFailureThreshold=%d, DispatchAttempts=%d, "+
			"HealthInterval=%s, RedisAddr=%s, EventStream=%s, LogLevel=%s}",
		c.HTTPPort,
		c.WorkerEndpoints,
		c.WorkerPoolFile,
		c.MaxPromptWords,
		c.RequestTimeout,
		c.SelectionPolicy,
		c.WorkerFailureThreshold,
		c.DispatchAttempts,
		c.HealthInterval,
		c.RedisAddr,
		c.EventStream,
		c.LogLevel,
	)
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// unescapeAll turns the two-character sequences \n and \t into the control
// characters, so stop sequences can be given in a single-line variable.
func unescapeAll(in []string) []string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t")
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, r.Replace(s))
	}
	return out
}
