package config

import "time"

type Config struct {
	Sources        []string      `yaml:"sources"`
	BackupDir      string        `yaml:"backupDir"`
	Mode           string        `yaml:"mode"` // "full", "incremental"
	MaxBackups     int           `yaml:"maxBackups"`
	Exclude        []string      `yaml:"exclude"`
	Schedule       string        `yaml:"schedule"` // HH:MM, 24h
	FollowSymlinks *bool         `yaml:"followSymlinks"`
	LockFile       string        `yaml:"lockFile"`
	ProgressEvery  int           `yaml:"progressEvery"`
	Compression    int           `yaml:"compressionLevel"` // 1 fastest .. 9 best, 0 = default
	Logging        LoggingConfig `yaml:"logging"`
	Notify         NotifyConfig  `yaml:"notify"`
	Metrics        MetricsConfig `yaml:"metrics"`
	ConfigReload   ReloadConfig  `yaml:"configReload"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json", "text"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

type NotifyConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Email   EmailConfig   `yaml:"email"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Timezone string `yaml:"timezone"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile path, empty = off
}

type ReloadConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Method         string        `yaml:"method"` // "auto", "poll", "fsnotify"
	PollInterval   time.Duration `yaml:"pollInterval"`
	DebounceWindow time.Duration `yaml:"debounceWindow"`
}

// Defaults returns the settings used when a key is absent from the file.
func Defaults() Config {
	follow := true
	return Config{
		BackupDir:      "./backups",
		Mode:           "incremental",
		MaxBackups:     5,
		Exclude:        []string{"*.tmp", "*.log", "*.cache", "thumbs.db", ".DS_Store"},
		Schedule:       "02:00",
		FollowSymlinks: &follow,
		LockFile:       "backup.lock",
		ProgressEvery:  100,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "logs/backup.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
			Email: EmailConfig{
				Server:   "smtp.gmail.com",
				Port:     587,
				Timezone: "UTC",
			},
		},
		ConfigReload: ReloadConfig{
			Enabled:        true,
			Method:         "auto",
			PollInterval:   5 * time.Second,
			DebounceWindow: 500 * time.Millisecond,
		},
	}
}

// Follow reports whether symlinks are followed during scans.
func (c *Config) Follow() bool {
	return c.FollowSymlinks == nil || *c.FollowSymlinks
}
