package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, read once at startup.
type Config struct {
	Logger        LoggerConfig        `yaml:"logger"`
	Tracer        TracerConfig        `yaml:"tracer"`
	LLM           LLMConfig           `yaml:"llm"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Affinity      AffinityConfig      `yaml:"affinity"`
	Keyword       KeywordConfig       `yaml:"keyword"`
	Static        StaticConfig        `yaml:"static"`
	Selector      SelectorConfig      `yaml:"selector"`
	Store         StoreConfig         `yaml:"store"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// LLMConfig holds model backend settings shared by Tier 1 and Tier 2.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "ollama", "bedrock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig holds outbound request rate limiting for LLM providers.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// OrchestrationConfig holds Tier 1 settings: the specialists, the handoff
// graph, and the turn loop limits.
type OrchestrationConfig struct {
	Enabled        bool               `yaml:"enabled"` // feature flag: attempt Tier 1 at all
	MaxIterations  int                `yaml:"max_iterations"`
	TurnTimeout    time.Duration      `yaml:"turn_timeout"`
	FollowUpMarker string             `yaml:"follow_up_marker"`
	TokenBudget    int                `yaml:"token_budget"`
	KeepRecent     int                `yaml:"keep_recent"`
	Specialists    []SpecialistConfig `yaml:"specialists"`
	Handoffs       []HandoffConfig    `yaml:"handoffs"`
}

// SpecialistConfig declares a single specialist role.
type SpecialistConfig struct {
	Name         string   `yaml:"name"`
	Capability   string   `yaml:"capability"`
	Instructions string   `yaml:"instructions"`
	Tools        []string `yaml:"tools,omitempty"`
	Orchestrator bool     `yaml:"orchestrator,omitempty"`
}

// HandoffConfig declares a directed handoff edge between two specialists.
type HandoffConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Label  string `yaml:"label"`
}

// AffinityConfig holds conversation affinity cache settings.
type AffinityConfig struct {
	Capacity      int           `yaml:"capacity"`
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec, e.g. "@every 1m"
}

// KeywordConfig holds Tier 2 keyword routing rules.
type KeywordConfig struct {
	DefaultRole string              `yaml:"default_role"`
	Rules       []KeywordRuleConfig `yaml:"rules"`
}

// KeywordRuleConfig maps a keyword set to a specialist role.
type KeywordRuleConfig struct {
	Keywords []string `yaml:"keywords"`
	Role     string   `yaml:"role"`
}

// StaticConfig holds Tier 3 canned reply rules.
type StaticConfig struct {
	Fallback string             `yaml:"fallback"`
	Rules    []StaticRuleConfig `yaml:"rules"`
}

// StaticRuleConfig maps a keyword set to a canned reply.
type StaticRuleConfig struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// SelectorConfig holds degradation cascade settings.
type SelectorConfig struct {
	Apology string `yaml:"apology"`
}

// StoreConfig holds the catalog collaborator settings.
type StoreConfig struct {
	Path string `yaml:"path"`
	Seed bool   `yaml:"seed"`
}

// Defaults returns a Config with sensible defaults for the support shop.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		LLM: LLMConfig{
			CircuitBreaker: CircuitBreakerConfig{Enabled: true},
			RateLimit:      RateLimitConfig{Enabled: false},
		},
		Orchestration: OrchestrationConfig{
			Enabled:        true,
			MaxIterations:  8,
			TurnTimeout:    60 * time.Second,
			FollowUpMarker: "[follow-up] ",
			TokenBudget:    6000,
			KeepRecent:     6,
			Specialists:    defaultSpecialists(),
			Handoffs:       defaultHandoffs(),
		},
		Affinity: AffinityConfig{
			Capacity:      512,
			TTL:           30 * time.Minute,
			SweepSchedule: "@every 1m",
		},
		Keyword: KeywordConfig{
			DefaultRole: "knowledge",
			Rules:       defaultKeywordRules(),
		},
		Static: StaticConfig{
			Fallback: "How can I help you today? I can look up products, check order status, or answer questions about shipping and returns.",
			Rules:    defaultStaticRules(),
		},
		Selector: SelectorConfig{
			Apology: "Sorry, I'm having trouble answering right now. Please try again in a moment.",
		},
		Store: StoreConfig{
			Path: "./data/shop.db",
			Seed: true,
		},
	}
}

func defaultSpecialists() []SpecialistConfig {
	return []SpecialistConfig{
		{
			Name:         "triage",
			Capability:   "Greets the customer and routes the conversation to the right specialist.",
			Instructions: "You are the front desk of an online paint and decor shop. Read the customer's message, answer small talk briefly, and hand off to the specialist that owns the request: product questions go to the product specialist, order questions to the order specialist, and policy or how-to questions to the knowledge specialist. Never invent product or order details yourself.",
			Orchestrator: true,
		},
		{
			Name:         "product",
			Capability:   "Finds products in the catalog and answers questions about them.",
			Instructions: "You are the product specialist of an online paint and decor shop. Use the search_products tool to find items matching the customer's request and describe the best matches with name and price. If nothing matches, say so and suggest a broader search. Hand back to triage when the customer changes topic.",
			Tools:        []string{"search_products"},
		},
		{
			Name:         "order",
			Capability:   "Looks up order status, shipment, and delivery estimates.",
			Instructions: "You are the order specialist of an online paint and decor shop. Use the order_status tool with the customer's order number to report status and delivery estimates. Ask for the order number if it is missing. Hand back to triage when the customer changes topic.",
			Tools:        []string{"order_status"},
		},
		{
			Name:         "knowledge",
			Capability:   "Answers policy and how-to questions from the knowledge base.",
			Instructions: "You are the knowledge specialist of an online paint and decor shop. Use the search_knowledge tool to find policy articles about shipping, returns, warranties, and painting advice, and answer from what you find. If the knowledge base has nothing, say so honestly. Hand back to triage when the customer changes topic.",
			Tools:        []string{"search_knowledge"},
		},
	}
}

func defaultHandoffs() []HandoffConfig {
	return []HandoffConfig{
		{Source: "triage", Target: "product", Label: "customer is asking about products or the catalog"},
		{Source: "triage", Target: "order", Label: "customer is asking about an order or a delivery"},
		{Source: "triage", Target: "knowledge", Label: "customer is asking about policies or how-to advice"},
		{Source: "product", Target: "triage", Label: "topic changed away from products"},
		{Source: "order", Target: "triage", Label: "topic changed away from orders"},
		{Source: "knowledge", Target: "triage", Label: "topic changed away from policies"},
	}
}

func defaultKeywordRules() []KeywordRuleConfig {
	return []KeywordRuleConfig{
		{Keywords: []string{"order", "delivery", "shipped", "tracking", "package"}, Role: "order"},
		{Keywords: []string{"paint", "color", "colour", "brush", "primer", "wallpaper", "price", "stock"}, Role: "product"},
		{Keywords: []string{"return", "refund", "warranty", "policy", "shipping"}, Role: "knowledge"},
	}
}

func defaultStaticRules() []StaticRuleConfig {
	return []StaticRuleConfig{
		{Keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon"},
			Reply: "Hello! Welcome to the shop. I can help with products, orders, shipping, and returns."},
		{Keywords: []string{"price", "cost", "how much"},
			Reply: "Prices are listed on each product page. If you tell me the product name I can point you to it once our product service is back."},
		{Keywords: []string{"shipping", "deliver", "delivery"},
			Reply: "Standard shipping takes 3-5 business days; orders over $50 ship free. Express options are shown at checkout."},
		{Keywords: []string{"return", "refund"},
			Reply: "Unopened items can be returned within 30 days for a full refund. Start a return from your order history page."},
		{Keywords: []string{"warranty"},
			Reply: "Our house-brand paints carry a 2-year satisfaction warranty. Manufacturer warranties vary per product."},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("SHOPCHAT_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies SHOPCHAT_* environment variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPCHAT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SHOPCHAT_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SHOPCHAT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SHOPCHAT_TIER1_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Orchestration.Enabled = b
		}
	}
	if v := os.Getenv("SHOPCHAT_LLM_API_KEY"); v != "" {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].APIKey == "" {
				cfg.LLM.Providers[i].APIKey = v
			}
		}
	}
}

func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
