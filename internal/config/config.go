package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	// Provider selects the recognition backend: "aws" or "google".
	Provider string `yaml:"provider"`

	AWS struct {
		Region          string `yaml:"region"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		Bucket          string `yaml:"bucket"`
	} `yaml:"aws"`

	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		ProjectID       string `yaml:"project_id"`
		Bucket          string `yaml:"bucket"`
		BucketLocation  string `yaml:"bucket_location"`
		Model           string `yaml:"model"`
	} `yaml:"google"`

	Transcription struct {
		Languages          []string      `yaml:"languages"`
		MinSpeakers        int           `yaml:"min_speakers"`
		MaxSpeakers        int           `yaml:"max_speakers"`
		Timeout            time.Duration `yaml:"timeout"`
		PollInterval       time.Duration `yaml:"poll_interval"`
		MaxTransientErrors int           `yaml:"max_transient_errors"`
		CleanupTimeout     time.Duration `yaml:"cleanup_timeout"`
		FFmpegPath         string        `yaml:"ffmpeg_path"`
	} `yaml:"transcription"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Debug bool `yaml:"debug"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path (a missing file is not an error), loads .env files when
// present and applies environment overrides and defaults.
func Load(path string, envFiles ...string) (*Config, error) {
	loadEnvFiles(envFiles...)

	config := &Config{}
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(file, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Provider {
	case "aws", "google":
	default:
		return fmt.Errorf("unknown provider %q (want aws or google)", c.Provider)
	}
	if c.Transcription.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

func loadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// existing environment wins over the file
		_ = godotenv.Load(f)
	}
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Provider, "STT_PROVIDER")
	setFromEnv(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setFromEnv(&c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setFromEnv(&c.AWS.Region, "AWS_DEFAULT_REGION")
	setFromEnv(&c.AWS.Bucket, "STT_CLI_S3_BUCKET")
	setFromEnv(&c.Google.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setFromEnv(&c.Google.ProjectID, "GOOGLE_CLOUD_PROJECT")
	setFromEnv(&c.Google.Bucket, "STT_GCS_BUCKET")
	if v := os.Getenv("STT_LANGUAGES"); v != "" {
		c.Transcription.Languages = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Provider == "" {
		c.Provider = "aws"
	}
	c.Provider = strings.ToLower(c.Provider)
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if len(c.Transcription.Languages) == 0 {
		c.Transcription.Languages = []string{"he-IL", "en-US"}
	}
	if c.Transcription.MinSpeakers == 0 {
		c.Transcription.MinSpeakers = 1
	}
	if c.Transcription.MaxSpeakers == 0 {
		c.Transcription.MaxSpeakers = 6
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 600 * time.Second
	}
	if c.Transcription.PollInterval == 0 {
		c.Transcription.PollInterval = 5 * time.Second
	}
	if c.Transcription.MaxTransientErrors == 0 {
		c.Transcription.MaxTransientErrors = 3
	}
	if c.Transcription.CleanupTimeout == 0 {
		c.Transcription.CleanupTimeout = 30 * time.Second
	}
	if c.Transcription.FFmpegPath == "" {
		c.Transcription.FFmpegPath = "ffmpeg"
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 2
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "outputs"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "transcripts.db"
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 24
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Transcripts"
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 500
	}
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
