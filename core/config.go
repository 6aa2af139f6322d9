package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env    string `yaml:"env" env:"ENV" env-default:"local"`
	OpenAI struct {
		ApiKey  string        `yaml:"api_key" env:"OPENAI_API_KEY" env-default:""`
		BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
		Model   string        `yaml:"model" env:"OPENAI_MODEL" env-default:"dall-e-2"`
		Timeout time.Duration `yaml:"timeout" env:"OPENAI_TIMEOUT" env-default:"120s"`
	} `yaml:"openai"`
	Listen struct {
		Enabled bool   `yaml:"enabled" env:"LISTEN_ENABLED" env-default:"true"`
		Bind    string `yaml:"bind" env:"LISTEN_BIND" env-default:"127.0.0.1"`
		Port    string `yaml:"port" env:"LISTEN_PORT" env-default:"8501"`
	} `yaml:"listen"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
		ApiKey   string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		Username string `yaml:"username" env:"TELEGRAM_USERNAME" env-default:""`
	} `yaml:"telegram"`
	Storage struct {
		Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	} `yaml:"storage"`
	Mongo struct {
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:"dreamy"`
	} `yaml:"mongo"`
	Postgres struct {
		URL string `yaml:"url" env:"DATABASE_URL" env-default:""`
	} `yaml:"postgres"`
	Session struct {
		IdleTTL time.Duration `yaml:"idle_ttl" env:"SESSION_IDLE_TTL" env-default:"30m"`
		Sweep   string        `yaml:"sweep" env:"SESSION_SWEEP" env-default:"@every 5m"`
	} `yaml:"session"`
}

var instance *Config
var once sync.Once

// GetConfig reads the yaml file at path with environment overrides. A missing
// file is not an error: the configuration then comes from the environment only.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		// .env is optional, variables already set in the environment win
		if e := godotenv.Load(); e != nil && !errors.Is(e, fs.ErrNotExist) {
			err = fmt.Errorf("config: loading .env: %w", e)
			return
		}
		instance = &Config{}
		if _, statErr := os.Stat(path); statErr == nil {
			err = cleanenv.ReadConfig(path, instance)
		} else {
			err = cleanenv.ReadEnv(instance)
		}
		if err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			return
		}
		if err = instance.validate(); err != nil {
			instance = nil
		}
	})
	return instance, err
}

// validate rejects an idle ttl that could end a session while its
// generation request is still running
func (c *Config) validate() error {
	if c.Session.IdleTTL > 0 && c.Session.IdleTTL < c.OpenAI.Timeout {
		return fmt.Errorf("config: session.idle_ttl %s is shorter than openai.timeout %s",
			c.Session.IdleTTL, c.OpenAI.Timeout)
	}
	return nil
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return conf
}

func (c *Config) ListenAddr() string {
	return c.Listen.Bind + ":" + c.Listen.Port
}

func (c *Config) MongoURI() string {
	return fmt.Sprintf("mongodb://%s:%s@%s:%s",
		c.Mongo.User, c.Mongo.Password,
		c.Mongo.Host, c.Mongo.Port)
}
