package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/usr/local/var/omoide/data/memory"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/omoide/data/sessions.db"
	}
	if cfg.Memory.TopN == 0 {
		cfg.Memory.TopN = 3
	}
	if cfg.Memory.MinScore == 0 {
		cfg.Memory.MinScore = 0.1
	}
	if cfg.Memory.Dimensions == 0 {
		cfg.Memory.Dimensions = 384
	}
	if cfg.Memory.CacheSize == 0 {
		cfg.Memory.CacheSize = 1024
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gemini-1.5-flash"
	}
}
