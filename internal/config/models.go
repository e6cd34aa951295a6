package config

import "time"

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	ListenAddress string
	UserAgent     string
}

// ClassifierConfig represents the remote classifier gateway configuration
type ClassifierConfig struct {
	Provider   string
	Endpoint   string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// OpenAIConfig represents the configuration for the OpenAI provider
type OpenAIConfig struct {
	APIKey    string
	ModelName string
	MaxTokens int
}

// CacheConfig represents the tiered cache configuration
type CacheConfig struct {
	Type           string
	SQLitePath     string
	MySQLDSN       string
	FastTTL        time.Duration
	EntryTTL       time.Duration
	SweepFrequency time.Duration
}

// WhitelistConfig represents the whitelist index configuration
type WhitelistConfig struct {
	RankedPath    string
	CutoffRank    int
	ManualDomains []string
}

// GetServer returns the server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		UserAgent:     c.GetString("server.user_agent"),
	}
}

// GetClassifier returns the classifier gateway configuration
func (c *Config) GetClassifier() ClassifierConfig {
	timeout, err := c.GetDuration("classifier.timeout")
	if err != nil {
		timeout = 120 * time.Second
	}
	retryDelay, err := c.GetDuration("classifier.retry_delay")
	if err != nil {
		retryDelay = 2 * time.Second
	}
	return ClassifierConfig{
		Provider:   c.GetString("classifier.provider"),
		Endpoint:   c.GetString("classifier.endpoint"),
		Timeout:    timeout,
		Attempts:   c.GetInt("classifier.attempts"),
		RetryDelay: retryDelay,
	}
}

// GetOpenAI returns the OpenAI provider configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:    c.GetString("openai.api_key"),
		ModelName: c.GetString("openai.model_name"),
		MaxTokens: c.GetInt("openai.max_tokens"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	fastTTL, err := c.GetDuration("cache.fast_ttl")
	if err != nil {
		fastTTL = 10 * time.Minute
	}
	entryTTL, err := c.GetDuration("cache.entry_ttl")
	if err != nil {
		entryTTL = 7 * 24 * time.Hour
	}
	sweepFreq, err := c.GetDuration("cache.sweep_frequency")
	if err != nil {
		sweepFreq = time.Hour
	}
	return CacheConfig{
		Type:           c.GetString("cache.type"),
		SQLitePath:     c.GetString("cache.sqlite_path"),
		MySQLDSN:       c.GetString("cache.mysql_dsn"),
		FastTTL:        fastTTL,
		EntryTTL:       entryTTL,
		SweepFrequency: sweepFreq,
	}
}

// GetWhitelist returns the whitelist configuration
func (c *Config) GetWhitelist() WhitelistConfig {
	return WhitelistConfig{
		RankedPath:    c.GetString("whitelist.ranked_path"),
		CutoffRank:    c.GetInt("whitelist.cutoff_rank"),
		ManualDomains: c.GetStringSlice("whitelist.manual_domains"),
	}
}
