package model

import "time"

// ================ Config ================
type AssistantConfig struct {
	Name        string        `envconfig:"ASSISTANT_NAME" default:"Jarvis"`
	Timezone    string        `envconfig:"ASSISTANT_TIMEZONE" default:"Local"`
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"90s"`
	ToolTimeout time.Duration `envconfig:"TOOL_TIMEOUT" default:"20s"`
	History     struct {
		MaxMessages int `envconfig:"HISTORY_MAX_MESSAGES" default:"20"`
	}
	Tools struct {
		MaxCalls int `envconfig:"TOOL_MAX_CALLS" default:"6"`
	}
}

// Location resolves Timezone, falling back to the host zone.
func (c AssistantConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type CheckpointConfig struct {
	Backend    string        `envconfig:"CHECKPOINT_BACKEND" default:"memory"`
	SQLitePath string        `envconfig:"CHECKPOINT_SQLITE_PATH" default:"assistant.db"`
	MemorySize int           `envconfig:"CHECKPOINT_MEMORY_SIZE" default:"256"`
	TTL        time.Duration `envconfig:"SESSION_TTL" default:"24h"`
}

type LLMConfig struct {
	Provider          string        `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL     string        `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	Timeout           time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	RequestsPerSecond float64       `envconfig:"LLM_REQUESTS_PER_SECOND" default:"5"`
	Router            RouterModelConfig
	Worker            WorkerModelConfig
}

// RouterModelConfig configures the model used by classifier edges.
type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"256"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
}

// WorkerModelConfig configures the model used by processing nodes.
type WorkerModelConfig struct {
	Model       string  `envconfig:"WORKER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"WORKER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"WORKER_TEMPERATURE" default:"0.7"`
}

type SearchConfig struct {
	SerperAPIKey      string `envconfig:"SERPER_API_KEY"`
	NewsAPIKey        string `envconfig:"NEWS_API_KEY"`
	OpenWeatherAPIKey string `envconfig:"OPENWEATHER_API_KEY"`
}

type BrowserConfig struct {
	Bin      string `envconfig:"BROWSER_BIN"`
	Headless bool   `envconfig:"BROWSER_HEADLESS" default:"false"`
}

type FilesConfig struct {
	// AllowedRoots defaults to the user's common folders when empty.
	AllowedRoots []string `envconfig:"FILES_ALLOWED_ROOTS"`
	MaxReadBytes int64    `envconfig:"FILES_MAX_READ_BYTES" default:"65536"`
}

type KeyboardConfig struct {
	TypeDelay time.Duration `envconfig:"KEYBOARD_TYPE_DELAY" default:"50ms"`
}
