package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/cv-screener/internal/posting"
)

const (
	app       = "cv-screener"
	envPrefix = "CV_SCREENER"
)

type Config struct {
	Uploads         string                `mapstructure:"uploads"`
	JobFile         string                `mapstructure:"job-file"`
	Job             posting.Job           `mapstructure:"job"`
	Applicants      []ApplicantConfig     `mapstructure:"applicants"`
	Output          OutputConfig          `mapstructure:"output"`
	Batch           BatchConfig           `mapstructure:"batch"`
	Filtering       FilteringConfig       `mapstructure:"filtering"`
	Extraction      ExtractionConfig      `mapstructure:"extraction"`
	Analysis        AnalysisConfig        `mapstructure:"analysis"`
	Personalization PersonalizationConfig `mapstructure:"personalization"`
	Scores          ScoresConfig          `mapstructure:"scores"`
	AI              *AIConfig             `mapstructure:"ai"`
	Server          ServerConfig          `mapstructure:"server"`
}

// ApplicantConfig attaches applicant metadata to an uploaded file. It is a
// list rather than a map because viper splits keys on dots.
type ApplicantConfig struct {
	File              string `mapstructure:"file"`
	posting.Applicant `mapstructure:",squash"`
}

type OutputConfig struct {
	CSV  string `mapstructure:"csv"`
	XLSX string `mapstructure:"xlsx"`
}

type BatchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxFiles    int           `mapstructure:"max-files"`
}

// FilteringConfig selects documents before analysis. History is a results CSV
// of an earlier run whose successful rows are skipped.
type FilteringConfig struct {
	ExcludeFile     string   `mapstructure:"exclude-file"`
	ExcludePatterns []string `mapstructure:"exclude-patterns"`
	History         string   `mapstructure:"history"`
}

// ExtractionConfig tunes text recovery. A unioffice license key enables the
// full DOCX model reader ahead of the archive fallbacks.
type ExtractionConfig struct {
	StrictPDF           bool   `mapstructure:"strict-pdf"`
	MinTextLength       int    `mapstructure:"min-text-length"`
	UniofficeLicenseKey string `mapstructure:"unioffice-license-key"`
}

type AnalysisConfig struct {
	SummaryMinLength  int    `mapstructure:"summary-min-length"`
	RejectRoundScores bool   `mapstructure:"reject-round-scores"`
	Seed              uint64 `mapstructure:"seed"`
}

type PersonalizationConfig struct {
	Phrases         []string `mapstructure:"phrases"`
	MinSignalLength int      `mapstructure:"min-signal-length"`
}

type ScoresConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Provider     string        `mapstructure:"provider"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max-retries"`
	Attempts     int           `mapstructure:"attempts"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	Gemini       *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey      string  `mapstructure:"api-key"`
	APIKeyFile  string  `mapstructure:"api-key-file"`
	Model       string  `mapstructure:"model"`
	Backend     string  `mapstructure:"backend"`
	Project     string  `mapstructure:"project"`
	Location    string  `mapstructure:"location"`
	Temperature float32 `mapstructure:"temperature"`
}

type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	MaxBodyBytes int64  `mapstructure:"max-body-bytes"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-screener recovers text from CV uploads and scores them against a job posting",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY", envPrefix+"_AI_GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("uploads", "uploads")
	v.SetDefault("job-file", "")
	v.SetDefault("output.csv", "cv_analysis_results.csv")
	v.SetDefault("output.xlsx", "")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.delay", time.Second)
	v.SetDefault("batch.max-files", 200)
	v.SetDefault("filtering.exclude-file", "")
	v.SetDefault("filtering.exclude-patterns", []string{})
	v.SetDefault("filtering.history", "")
	v.SetDefault("extraction.strict-pdf", false)
	v.SetDefault("extraction.min-text-length", 100)
	v.SetDefault("extraction.unioffice-license-key", "")
	v.SetDefault("analysis.summary-min-length", 400)
	v.SetDefault("analysis.reject-round-scores", true)
	v.SetDefault("analysis.seed", 0)
	v.SetDefault("personalization.phrases", []string{})
	v.SetDefault("personalization.min-signal-length", 0)
	v.SetDefault("scores.backend", "memory")
	v.SetDefault("scores.redis.addr", "localhost:6379")
	v.SetDefault("scores.redis.password", "")
	v.SetDefault("scores.redis.db", 0)
	v.SetDefault("scores.redis.prefix", "cv-screener:scores:")
	v.SetDefault("scores.redis.ttl", 24*time.Hour)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max-retries", 2)
	v.SetDefault("ai.attempts", 2)
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.backend", "gemini-api")
	v.SetDefault("ai.gemini.project", "")
	v.SetDefault("ai.gemini.location", "")
	v.SetDefault("ai.gemini.temperature", 0.3)
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.max-body-bytes", 20<<20)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// Every setting has a default, so only an explicit config file is mandatory.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}
	return config, nil
}

// applicantFor looks up per-file metadata. File names compare case-insensitively.
func (c *Config) applicantFor(filename string) posting.Applicant {
	for _, a := range c.Applicants {
		if strings.EqualFold(strings.TrimSpace(a.File), filename) {
			return a.Applicant
		}
	}
	return posting.Applicant{}
}
