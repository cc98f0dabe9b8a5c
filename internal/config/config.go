package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultAgentName       = "Bonfire"
	DefaultMentionTag      = "@bonfire"
	DefaultModel           = "gemini-2.5-flash"
	DefaultClassifierModel = "gemini-2.0-flash"
	DefaultMaxTokens       = 2048
	DefaultTemperature     = 0.9
	DefaultMaxToolSteps    = 3
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18820
	DefaultBufSize         = 100

	DefaultHistoryLimit   = 20
	DefaultStaleAfter     = "24h"
	DefaultRecallLimit    = 3
	DefaultSimThreshold   = 0.1
	DefaultEmbeddingDim   = 768
	DefaultEmbeddingModel = "gemini-embedding-001"

	// Memory trigger policies. Strict stores on intensity > 7 AND intent in
	// {flex, memorize}; loose settles for either condition alone.
	MemoryTriggerStrict = "strict"
	MemoryTriggerLoose  = "loose"
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Memory   MemoryConfig   `json:"memory"`
	Gate     GateConfig     `json:"gate"`
	Tools    ToolsConfig    `json:"tools"`
	Gateway  GatewayConfig  `json:"gateway"`
	Channels ChannelsConfig `json:"channels"`
	Jobs     JobsConfig     `json:"jobs"`
	DBPath   string         `json:"dbPath,omitempty"`
}

type AgentConfig struct {
	Name            string  `json:"name"`
	MentionTag      string  `json:"mentionTag"`
	Model           string  `json:"model"`
	ClassifierModel string  `json:"classifierModel"`
	MaxTokens       int     `json:"maxTokens"`
	Temperature     float64 `json:"temperature"`
	MaxToolSteps    int     `json:"maxToolSteps"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type MemoryConfig struct {
	Enabled        bool            `json:"enabled"`
	Trigger        string          `json:"trigger,omitempty"` // "strict" or "loose"
	Threshold      float64         `json:"threshold,omitempty"`
	RecallLimit    int             `json:"recallLimit,omitempty"`
	SanitizerModel string          `json:"sanitizerModel,omitempty"`
	Embedding      EmbeddingConfig `json:"embedding"`
}

// EmbeddingConfig may point at a different endpoint than the chat
// provider: BaseURL overrides Provider.BaseURL for embedding calls only.
type EmbeddingConfig struct {
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// GateConfig holds the soft-trigger probabilities. They are tunable so the
// agent can be made more or less chatty without a rebuild.
type GateConfig struct {
	FlexProb       float64 `json:"flexProb"`
	SadnessProb    float64 `json:"sadnessProb"`
	RoastProb      float64 `json:"roastProb"`
	HighEnergyProb float64 `json:"highEnergyProb"`
	HistoryLimit   int     `json:"historyLimit"`
	StaleAfter     string  `json:"staleAfter"`
}

type ToolsConfig struct {
	TavilyAPIKey    string `json:"tavilyApiKey,omitempty"`
	SearchTimeoutMs int    `json:"searchTimeoutMs,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	RoomID    string   `json:"roomId"` // chat room mirrored to the Telegram group
	ChatID    string   `json:"chatId"` // telegram group chat id; learned from traffic when empty
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type JobsConfig struct {
	ReviveSweep  JobConfig `json:"reviveSweep"`
	MemoryReport JobConfig `json:"memoryReport"`
}

type JobConfig struct {
	Enabled bool   `json:"enabled"`
	Expr    string `json:"expr,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:            DefaultAgentName,
			MentionTag:      DefaultMentionTag,
			Model:           DefaultModel,
			ClassifierModel: DefaultClassifierModel,
			MaxTokens:       DefaultMaxTokens,
			Temperature:     DefaultTemperature,
			MaxToolSteps:    DefaultMaxToolSteps,
		},
		Provider: ProviderConfig{},
		Memory: MemoryConfig{
			Enabled:     true,
			Trigger:     MemoryTriggerStrict,
			Threshold:   DefaultSimThreshold,
			RecallLimit: DefaultRecallLimit,
			Embedding: EmbeddingConfig{
				Model:     DefaultEmbeddingModel,
				Dimension: DefaultEmbeddingDim,
			},
		},
		Gate: GateConfig{
			FlexProb:       0.70,
			SadnessProb:    0.40,
			RoastProb:      0.50,
			HighEnergyProb: 0.60,
			HistoryLimit:   DefaultHistoryLimit,
			StaleAfter:     DefaultStaleAfter,
		},
		Tools: ToolsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Channels: ChannelsConfig{},
		Jobs: JobsConfig{
			ReviveSweep:  JobConfig{Enabled: false, Expr: "0 0 18 * * *"},
			MemoryReport: JobConfig{Enabled: false, Expr: "0 0 3 * * *"},
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".bonfire")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("BONFIRE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("BONFIRE_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("BONFIRE_EMBEDDING_BASE_URL"); url != "" {
		cfg.Memory.Embedding.BaseURL = url
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		cfg.Tools.TavilyAPIKey = key
	}
	if token := os.Getenv("BONFIRE_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("BONFIRE_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if enabled := os.Getenv("BONFIRE_MEMORY_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Memory.Enabled = parsed
		}
	}
	if trigger := os.Getenv("BONFIRE_MEMORY_TRIGGER"); trigger != "" {
		cfg.Memory.Trigger = trigger
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = DefaultAgentName
	}
	if cfg.Agent.MentionTag == "" {
		cfg.Agent.MentionTag = DefaultMentionTag
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if cfg.Agent.ClassifierModel == "" {
		cfg.Agent.ClassifierModel = DefaultClassifierModel
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if cfg.Agent.MaxToolSteps <= 0 {
		cfg.Agent.MaxToolSteps = DefaultMaxToolSteps
	}
	if cfg.Memory.Trigger != MemoryTriggerLoose {
		cfg.Memory.Trigger = MemoryTriggerStrict
	}
	if cfg.Memory.Threshold <= 0 {
		cfg.Memory.Threshold = DefaultSimThreshold
	}
	if cfg.Memory.RecallLimit <= 0 {
		cfg.Memory.RecallLimit = DefaultRecallLimit
	}
	if cfg.Memory.Embedding.Dimension <= 0 {
		cfg.Memory.Embedding.Dimension = DefaultEmbeddingDim
	}
	if cfg.Memory.Embedding.Model == "" {
		cfg.Memory.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Gate.FlexProb <= 0 {
		cfg.Gate.FlexProb = 0.70
	}
	if cfg.Gate.SadnessProb <= 0 {
		cfg.Gate.SadnessProb = 0.40
	}
	if cfg.Gate.RoastProb <= 0 {
		cfg.Gate.RoastProb = 0.50
	}
	if cfg.Gate.HighEnergyProb <= 0 {
		cfg.Gate.HighEnergyProb = 0.60
	}
	if cfg.Gate.HistoryLimit <= 0 {
		cfg.Gate.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Gate.StaleAfter == "" {
		cfg.Gate.StaleAfter = DefaultStaleAfter
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(ConfigDir(), "data", "bonfire.db")
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
