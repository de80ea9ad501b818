package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port          int    `yaml:"port" env:"PORT" env-default:"50051"`
	EngineKind    string `yaml:"engine_kind" env:"ENGINE_KIND" env-default:"stub" env-description:"stub or command"`
	EngineCommand string `yaml:"engine_command" env:"ENGINE_COMMAND"`
	ScratchDir    string `yaml:"scratch_dir" env:"SCRATCH_DIR"`
	MaxAudioBytes int64  `yaml:"max_audio_bytes" env:"MAX_AUDIO_BYTES" env-default:"26214400"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogJSON       bool   `yaml:"log_json" env:"LOG_JSON" env-default:"false"`
}

func MustLoad() *Config {
	var cfg Config
	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		panic("failed to read configuration: " + err.Error())
	}

	return &cfg
}
