package core

import (
	"embed"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"assetsync/internal/downloader/transfer"
	"assetsync/internal/downloader/transport"
)

// DownloadConfig describes how assets are verified and fetched.
type DownloadConfig struct {
	// BaseURL is the download root before the manifest's source suffix is applied.
	BaseURL string `yaml:"base_url"`
	// ManifestURL is where the manifest document is published.
	ManifestURL      string        `yaml:"manifest_url"`
	ManifestCacheTTL time.Duration `yaml:"manifest_cache_ttl"`

	// UserAgent replaces the HTTP transport's default User-Agent when set.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds the wait for response headers.
	Timeout     time.Duration `yaml:"timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// MaxRetries is a pointer so that an explicit 0 disables retries.
	MaxRetries *int          `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	ChunkSize  int           `yaml:"chunk_size"`
	// Concurrency caps parallel assets; 0 means one per CPU.
	Concurrency int `yaml:"concurrency"`

	VerifyAfterDownload *bool `yaml:"verify_after_download"`
	CheckFreeSpace      *bool `yaml:"check_free_space"`

	S3 transport.S3Config `yaml:"s3"`
}

// Workers returns the effective concurrency.
func (c *DownloadConfig) Workers() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return runtime.NumCPU()
}

// VerifyEnabled reports whether downloaded files are re-hashed. Defaults to true.
func (c *DownloadConfig) VerifyEnabled() bool {
	return c.VerifyAfterDownload == nil || *c.VerifyAfterDownload
}

// FreeSpaceEnabled reports whether the free-space pre-flight runs. Defaults to true.
func (c *DownloadConfig) FreeSpaceEnabled() bool {
	return c.CheckFreeSpace == nil || *c.CheckFreeSpace
}

// Retries returns the effective retry budget. Defaults to 5.
func (c *DownloadConfig) Retries() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return transfer.DefaultOptions().MaxRetries
	}
	return *c.MaxRetries
}

// TransferOptions maps the config onto the copier's knobs.
func (c *DownloadConfig) TransferOptions() transfer.Options {
	return transfer.Options{
		MaxChunk:    c.ChunkSize,
		MaxRetries:  c.Retries(),
		ReadTimeout: c.ReadTimeout,
		RetryDelay:  c.RetryDelay,
	}
}

//go:embed base-config.yaml
var embeddedBaseConfig embed.FS

// BaseConfig returns the embedded base download configuration.
func BaseConfig() (*DownloadConfig, error) {
	data, err := embeddedBaseConfig.ReadFile("base-config.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedded base config")
	}
	return decodeConfig(data)
}

// LoadConfig loads a configuration file from disk.
func LoadConfig(path string) (*DownloadConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}
	return decodeConfig(data)
}

// ParseConfig decodes configuration data from bytes.
func ParseConfig(data []byte) (*DownloadConfig, error) {
	if len(data) == 0 {
		return &DownloadConfig{}, nil
	}
	return decodeConfig(data)
}

// MergeConfigs merges configurations in order; set fields of later entries
// override earlier ones. Unset fields fall back to built-in defaults.
func MergeConfigs(cfgs ...*DownloadConfig) (*DownloadConfig, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no configurations provided")
	}

	var result DownloadConfig
	for _, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		if trimmed := strings.TrimSpace(cfg.BaseURL); trimmed != "" {
			result.BaseURL = trimmed
		}
		if trimmed := strings.TrimSpace(cfg.ManifestURL); trimmed != "" {
			result.ManifestURL = trimmed
		}
		if trimmed := strings.TrimSpace(cfg.UserAgent); trimmed != "" {
			result.UserAgent = trimmed
		}
		if cfg.ManifestCacheTTL > 0 {
			result.ManifestCacheTTL = cfg.ManifestCacheTTL
		}
		if cfg.Timeout > 0 {
			result.Timeout = cfg.Timeout
		}
		if cfg.ReadTimeout > 0 {
			result.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.MaxRetries != nil {
			v := *cfg.MaxRetries
			result.MaxRetries = &v
		}
		if cfg.RetryDelay > 0 {
			result.RetryDelay = cfg.RetryDelay
		}
		if cfg.ChunkSize > 0 {
			result.ChunkSize = cfg.ChunkSize
		}
		if cfg.Concurrency > 0 {
			result.Concurrency = cfg.Concurrency
		}
		if cfg.VerifyAfterDownload != nil {
			v := *cfg.VerifyAfterDownload
			result.VerifyAfterDownload = &v
		}
		if cfg.CheckFreeSpace != nil {
			v := *cfg.CheckFreeSpace
			result.CheckFreeSpace = &v
		}
		mergeS3(&result.S3, cfg.S3)
	}

	applyDefaults(&result)
	return &result, nil
}

func mergeS3(dst *transport.S3Config, src transport.S3Config) {
	if src.Region != "" {
		dst.Region = src.Region
	}
	if src.Endpoint != "" {
		dst.Endpoint = src.Endpoint
	}
	if src.AccessKey != "" {
		dst.AccessKey = src.AccessKey
		dst.SecretKey = src.SecretKey
	}
	if src.UsePathStyle {
		dst.UsePathStyle = true
	}
}

func applyDefaults(cfg *DownloadConfig) {
	defaults := transfer.DefaultOptions()
	if cfg.ManifestCacheTTL == 0 {
		cfg.ManifestCacheTTL = 10 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.MaxRetries == nil || *cfg.MaxRetries < 0 {
		v := defaults.MaxRetries
		cfg.MaxRetries = &v
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.MaxChunk
	}
}

func decodeConfig(data []byte) (*DownloadConfig, error) {
	var cfg DownloadConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse download configuration")
	}
	return &cfg, nil
}
