package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	// Application settings
	AppName   string `mapstructure:"app_name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Store configuration (JSONL files or ArangoDB, per spec.md §6)
	Store StoreConfig `mapstructure:"store"`

	// Scheduler configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// ToolManager configuration
	ToolManager ToolManagerConfig `mapstructure:"tool_manager"`

	// EventBus configuration
	EventBus EventBusConfig `mapstructure:"event_bus"`

	// Agent configuration
	Agent AgentConfig `mapstructure:"agent"`

	// AI configures the model-provider fallback chain (spec §4.7, §9).
	AI AIConfig `mapstructure:"ai"`
}

// AIConfig selects and configures the registered LLMClient chain.
type AIConfig struct {
	// Mode reported by GET /api/models ("creative" or "deterministic").
	Mode string `mapstructure:"mode"`

	// ClaudeAPIKey, if set, registers the Claude provider. Empty skips it.
	ClaudeAPIKey string `mapstructure:"claude_api_key"`
	ClaudeModel  string `mapstructure:"claude_model"`

	// ReplayCapacity bounds the Replay Store's per-task ring buffer.
	ReplayCapacity int `mapstructure:"replay_capacity"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	TLSCertFile  string `mapstructure:"tls_cert_file"`
	TLSKeyFile   string `mapstructure:"tls_key_file"`
}

// StoreConfig selects and configures the Task Store's persistence
// backend (spec §6, "Persisted state layout").
type StoreConfig struct {
	// Backend is "jsonl" (append-only files, the default) or "arangodb".
	Backend string `mapstructure:"backend"`

	// Dir holds tasks.jsonl/audit.jsonl/replay.jsonl when Backend is "jsonl".
	Dir string `mapstructure:"dir"`

	// ArangoDB connection settings. They are loaded but not read: a Backend
	// of "arangodb" falls back to the jsonl store.
	ArangoEndpoint string `mapstructure:"arango_endpoint"`
	ArangoDatabase string `mapstructure:"arango_database"`
	ArangoUsername string `mapstructure:"arango_username"`
	ArangoPassword string `mapstructure:"arango_password"`
}

// SchedulerConfig carries the Scheduler's admission tunables (spec §4.7).
type SchedulerConfig struct {
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
}

// ToolManagerConfig carries rate-limit and timeout tunables for the Tool
// Manager (spec §4.4). The Tool Manager does not read them: it applies each
// tool's own RateLimitPerMinute over a fixed 60-second window and each
// tool's own Timeout.
type ToolManagerConfig struct {
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds"`
	RateLimitMaxCalls      int `mapstructure:"rate_limit_max_calls"`
	DefaultTimeoutSeconds  int `mapstructure:"default_timeout_seconds"`
}

// EventBusConfig carries a per-task replay buffer size for the Event Bus
// (spec §4.2). events.New does not read it; the bus keeps
// events.ReplayBufferSize events per task.
type EventBusConfig struct {
	ReplayBufferSize int `mapstructure:"replay_buffer_size"`
}

// AgentConfig holds agent-specific configuration: the plugin directory
// scanned by the Plugin Loader (spec §4.10) and built-in defaults.
type AgentConfig struct {
	PluginDir       string `mapstructure:"plugin_dir"`
	DefaultTimeoutS int    `mapstructure:"default_timeout_seconds"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		AppName:   "taskmesh-orchestrator",
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			TLSEnabled:   false,
		},
		Store: StoreConfig{
			Backend: "jsonl",
			Dir:     "./data",
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentTasks: 10,
		},
		ToolManager: ToolManagerConfig{
			RateLimitWindowSeconds: 60,
			RateLimitMaxCalls:      100,
			DefaultTimeoutSeconds:  30,
		},
		EventBus: EventBusConfig{
			ReplayBufferSize: 200,
		},
		Agent: AgentConfig{
			PluginDir:       "./plugins",
			DefaultTimeoutS: 60,
		},
		AI: AIConfig{
			Mode:           "creative",
			ReplayCapacity: 500,
		},
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Add config paths
	if configPath != "" {
		if filepath.IsAbs(configPath) {
			viper.SetConfigFile(configPath)
		} else {
			viper.AddConfigPath(filepath.Dir(configPath))
			viper.SetConfigName(filepath.Base(configPath[:len(configPath)-len(filepath.Ext(configPath))]))
		}
	}

	// Add common config paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/taskmesh")

	// Environment variable support
	viper.SetEnvPrefix("TASKMESH")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found is acceptable, we'll use defaults and env vars
	}

	// Unmarshal into struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	// Override with environment variables not covered by viper's automatic
	// binding (nested struct fields need an explicit key).
	if password := os.Getenv("TASKMESH_STORE_ARANGO_PASSWORD"); password != "" {
		config.Store.ArangoPassword = password
	}
	if port := os.Getenv("TASKMESH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if maxConcurrent := os.Getenv("TASKMESH_SCHEDULER_MAX_CONCURRENT_TASKS"); maxConcurrent != "" {
		if n, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Scheduler.MaxConcurrentTasks = n
		}
	}
	if apiKey := os.Getenv("TASKMESH_AI_CLAUDE_API_KEY"); apiKey != "" {
		config.AI.ClaudeAPIKey = apiKey
	}

	return config, nil
}
