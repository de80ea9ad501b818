package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port              int           `yaml:"port" env:"PORT" env-default:"8080"`
	AudioDir          string        `yaml:"audio_dir" env:"AUDIO_DIR" env-default:"./uploads"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"26214400"`
	PublicAudioPrefix string        `yaml:"public_audio_prefix" env:"PUBLIC_AUDIO_PREFIX" env-default:"/api/v1/audio/"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"60s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"15m"`
	CORSOrigins       []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	Log               LogConfig     `yaml:"log"`
	Storage           StorageConfig `yaml:"storage"`
	Engine            EngineConfig  `yaml:"engine"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	JSON  bool   `yaml:"json" env:"LOG_JSON" env-default:"false"`
}

type StorageConfig struct {
	Kind      string         `yaml:"kind" env:"STORAGE_KIND" env-default:"memory" env-description:"memory, postgres or badger"`
	BadgerDir string         `yaml:"badger_dir" env:"BADGER_DIR" env-default:"./data/meetings"`
	Database  DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Name     string `yaml:"name" env:"DB_NAME"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
}

type EngineConfig struct {
	Kind    string        `yaml:"kind" env:"ENGINE_KIND" env-default:"stub" env-description:"stub, command, http or grpc"`
	Url     string        `yaml:"url" env:"ENGINE_URL"`
	Port    int           `yaml:"port" env:"ENGINE_PORT"`
	Command string        `yaml:"command" env:"ENGINE_COMMAND"`
	Timeout time.Duration `yaml:"timeout" env:"ENGINE_TIMEOUT" env-default:"10m"`
	Workers int           `yaml:"workers" env:"ENGINE_WORKERS" env-default:"4"`
}

// MustLoad reads the YAML file named by CONFIG_PATH when set, then the environment.
func MustLoad() *Config {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic("failed to read configuration: " + err.Error())
	}
	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
