// Package config loads the settings shared by every fandomvis command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/index"
	"fandom-vis/pkg/configutil"

	"dario.cat/mergo"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FILENAME is the config file looked up from the working directory upwards.
const FILENAME = "fandomvis.json5"

// Backends.
const (
	BACKEND_ELASTICSEARCH = "elasticsearch"
	BACKEND_SQLITE        = "sqlite"
)

type FetchConfig struct {
	// Endpoint is the base url of the archive.
	Endpoint string `json:"endpoint"`
	Workers  int    `json:"workers"`
	// Interval is a duration string, ex. "500ms", slept after every request.
	Interval          string  `json:"interval"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func (c FetchConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

func (c FetchConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Endpoint, validation.By(isUrl)),
		validation.Field(&c.Workers, validation.Min(1)),
		validation.Field(&c.Interval, validation.By(isDuration)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

type Config struct {
	Backend string `json:"backend"`
	// Elasticsearch is the url of the cluster used by the elasticsearch backend.
	Elasticsearch string `json:"elasticsearch"`
	// Db is the sqlite file (or libsql url) used by the sqlite backend.
	Db        string      `json:"db"`
	IndexName string      `json:"index_name"`
	ChunkSize int         `json:"chunk_size"`
	Fetch     FetchConfig `json:"fetch"`
}

func Default() Config {
	return Config{
		Backend:       BACKEND_ELASTICSEARCH,
		Elasticsearch: "http://localhost:9200",
		Db:            "fandomvis.db",
		IndexName:     index.DEFAULT_NAME,
		ChunkSize:     1024,
		Fetch: FetchConfig{
			Endpoint: archive.DEFAULT_ENDPOINT,
			Workers:  4,
			Interval: "1s",
		},
	}
}

// Validate checks the values that are set, a partial config (like a local
// override file) is valid as long as what it sets is.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.In(BACKEND_ELASTICSEARCH, BACKEND_SQLITE)),
		validation.Field(&c.Elasticsearch, validation.By(isUrl)),
		validation.Field(&c.ChunkSize, validation.Min(1)),
		validation.Field(&c.Fetch),
	)
}

// ValidateBackend checks that the settings the selected backend needs are present.
func (c Config) ValidateBackend() error {
	err := c.Validate()
	if err != nil {
		return err
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required),
		validation.Field(&c.Elasticsearch, validation.When(c.Backend == BACKEND_ELASTICSEARCH, validation.Required)),
		validation.Field(&c.Db, validation.When(c.Backend == BACKEND_SQLITE, validation.Required)),
		validation.Field(&c.IndexName, validation.Required),
	)
}

func isUrl(value any) error {
	text, _ := value.(string)
	if text == "" {
		return nil
	}
	parsed, err := url.Parse(text)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must be an absolute url")
	}
	return nil
}

func isDuration(value any) error {
	text, _ := value.(string)
	if text == "" {
		return nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return errors.New("must be a duration like 500ms or 2s")
	}
	if d < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// environment variables that override the config file.
const (
	ENV_BACKEND       = "FANDOMVIS_BACKEND"
	ENV_ELASTICSEARCH = "FANDOMVIS_ELASTICSEARCH"
	ENV_DB            = "FANDOMVIS_DB"
	ENV_INDEX_NAME    = "FANDOMVIS_INDEX_NAME"
	ENV_ENDPOINT      = "FANDOMVIS_ENDPOINT"
)

// Load builds the config from (lowest to highest priority): the defaults, the
// config file, the .env file and the FANDOMVIS_* environment variables.
//
// When path is empty FILENAME is searched for from the working directory
// upwards and a missing file is not an error.
func Load(path string) (Config, error) {
	err := configutil.LoadDotenv(".env")
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if path != "" {
		cfg, err = configutil.ReadConfig[Config](path)
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
	} else {
		cfg, err = configutil.ReadRecursively[Config](FILENAME)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		return Config{}, err
	}

	err = mergo.Merge(&cfg, Default())
	if err != nil {
		return Config{}, err
	}

	configutil.OverrideFromEnv(&cfg.Backend, ENV_BACKEND)
	configutil.OverrideFromEnv(&cfg.Elasticsearch, ENV_ELASTICSEARCH)
	configutil.OverrideFromEnv(&cfg.Db, ENV_DB)
	configutil.OverrideFromEnv(&cfg.IndexName, ENV_INDEX_NAME)
	configutil.OverrideFromEnv(&cfg.Fetch.Endpoint, ENV_ENDPOINT)

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
