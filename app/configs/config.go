package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Chat     ChatConfig     `json:"chat"`
}

type AgentConfig struct {
	Name string `json:"name"`
}

// ProviderConfig holds the LLM provider settings. It is read once at process
// start and immutable afterwards; an empty APIKey degrades the agent to the
// heuristic path. The key itself is normally supplied via GROQ_API_KEY and
// never written back to the config file.
type ProviderConfig struct {
	APIKey      string  `json:"-"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	TimeoutSec  int     `json:"timeout_sec"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type ChatConfig struct {
	HistoryLimit    int    `json:"history_limit"`
	MaxMessageChars int    `json:"max_message_chars"`
	CLIUserID       string `json:"cli_user_id"`
	HTTPPort        int    `json:"http_port"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Name: "TaskChat",
		},
		Provider: ProviderConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.1-8b-instant",
			TimeoutSec:  10,
			MaxTokens:   200,
			Temperature: 0.1,
		},
		Chat: ChatConfig{
			HistoryLimit:    40,
			MaxMessageChars: 10000,
			CLIUserID:       "local_user",
			HTTPPort:        8080,
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "TaskChat"
	}
	if strings.TrimSpace(cfg.Provider.BaseURL) == "" {
		cfg.Provider.BaseURL = "https://api.groq.com/openai/v1"
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = "llama-3.1-8b-instant"
	}
	if cfg.Provider.TimeoutSec <= 0 {
		cfg.Provider.TimeoutSec = 10
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = 200
	}
	if cfg.Provider.Temperature <= 0 || cfg.Provider.Temperature > 2 {
		cfg.Provider.Temperature = 0.1
	}
	if cfg.Chat.HistoryLimit <= 0 {
		cfg.Chat.HistoryLimit = 40
	}
	if cfg.Chat.MaxMessageChars <= 0 {
		cfg.Chat.MaxMessageChars = 10000
	}
	if strings.TrimSpace(cfg.Chat.CLIUserID) == "" {
		cfg.Chat.CLIUserID = "local_user"
	}
	if cfg.Chat.HTTPPort <= 0 {
		cfg.Chat.HTTPPort = 8080
	}
}
