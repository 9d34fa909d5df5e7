package odata

import (
	"errors"
	"strings"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/env"
)

const DefaultBaseURL = "https://knesset.gov.il/Odata/ParliamentInfo.svc"

type Config struct {
	BaseURL          string        `env:"KNESSET_ODATA_BASE_URL" envDefault:"https://knesset.gov.il/Odata/ParliamentInfo.svc"`
	MetadataURL      string        `env:"KNESSET_METADATA_URL"`
	PageSize         int           `env:"KNESSET_PAGE_SIZE" envDefault:"100"`
	PageDelay        time.Duration `env:"KNESSET_PAGE_DELAY" envDefault:"300ms"`
	MetadataCacheTTL time.Duration `env:"KNESSET_METADATA_CACHE_TTL" envDefault:"6h"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("KNESSET_ODATA_BASE_URL is required")
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		return errors.New("KNESSET_PAGE_SIZE must be between 1 and 1000")
	}
	if c.PageDelay < 0 {
		return errors.New("KNESSET_PAGE_DELAY must be >= 0")
	}
	if c.MetadataCacheTTL < 0 {
		return errors.New("KNESSET_METADATA_CACHE_TTL must be >= 0")
	}
	return nil
}

// ResolvedMetadataURL returns the metadata override or "<base>/$metadata".
func (c Config) ResolvedMetadataURL() string {
	if u := strings.TrimSpace(c.MetadataURL); u != "" {
		return u
	}
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/$metadata"
}
