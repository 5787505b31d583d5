// Package config assembles run configuration from defaults, an optional
// TOML file, and environment variables. Flags are layered on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LLM configures the review collaborator. The API key is env/flag only by
// default but may be set in the file for single-user setups.
type LLM struct {
	Model        string   `toml:"model"`
	BaseURL      string   `toml:"base_url"`
	AllowedHosts []string `toml:"allowed_hosts"`
	APIKey       string   `toml:"api_key"`
	BatchSize    int      `toml:"batch_size"`
	TimeoutS     int      `toml:"timeout_s"`
	AppName      string   `toml:"app_name"`
	SiteURL      string   `toml:"site_url"`
}

// Logging configures the zerolog output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// Config is the full pipeline configuration.
type Config struct {
	OutDir         string  `toml:"out_dir"`
	CacheDir       string  `toml:"cache_dir"`
	GapMergeMS     int     `toml:"gap_merge_ms"`
	PadBeforeMS    int     `toml:"pad_before_ms"`
	PadAfterMS     int     `toml:"pad_after_ms"`
	Limit          int     `toml:"limit"`
	KeepSFX        bool    `toml:"keep_sfx"`
	MediaWorkers   int     `toml:"media_workers"`
	AudioTrack     int     `toml:"audio_track"`
	VideoTrack     int     `toml:"video_track"`
	SourceEncoding string  `toml:"source_encoding"`
	TargetEncoding string  `toml:"target_encoding"`
	Level          string  `toml:"level"`
	RulesFile      string  `toml:"rules_file"`
	FFmpegPath     string  `toml:"ffmpeg_path"`
	FFprobePath    string  `toml:"ffprobe_path"`
	KakasiPath     string  `toml:"kakasi_path"`
	LLM            LLM     `toml:"llm"`
	Logging        Logging `toml:"logging"`
}

// Default returns the configuration used when no file and no flags are given.
func Default() Config {
	return Config{
		OutDir:       "output",
		CacheDir:     ".cache",
		GapMergeMS:   400,
		PadBeforeMS:  100,
		PadAfterMS:   200,
		MediaWorkers: 4,
		Level:        "intermediate",
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		KakasiPath:   "kakasi",
		LLM: LLM{
			BatchSize: 30,
			TimeoutS:  60,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load layers a TOML file over the defaults. A missing file is fine when the
// path was not explicitly requested.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables. godotenv has already folded .env
// into the environment by the time this runs.
func (c *Config) ApplyEnv() {
	setIfEnv(&c.LLM.APIKey, "LLM_API_KEY", "OPENROUTER_API_KEY")
	setIfEnv(&c.LLM.Model, "LLM_MODEL", "OPENROUTER_MODEL")
	setIfEnv(&c.LLM.BaseURL, "LLM_API_BASE", "OPENROUTER_BASE_URL")
	setIfEnv(&c.LLM.AppName, "LLM_APP_NAME", "OPENROUTER_APP_NAME")
	setIfEnv(&c.LLM.SiteURL, "LLM_SITE_URL", "OPENROUTER_SITE_URL")
	setIfEnv(&c.Logging.Level, "SUBCARDS_LOG_LEVEL")
}

func setIfEnv(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

// NormalizeLevel folds learner-level aliases onto the canonical set.
func NormalizeLevel(level string) string {
	if level == "middle" {
		return "intermediate"
	}
	return level
}
