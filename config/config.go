package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	Database Database
	Scoring  Scoring
	Queue    Queue
	Poller   Poller
}

type Server struct {
	Port string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Scoring configures the client talking to the external AI scoring service.
type Scoring struct {
	BaseURL             string
	WritingTimeout      time.Duration
	SpeakingTimeout     time.Duration
	RetryMax            int
	RetryDelay          time.Duration
	MinWritingLength    int
	MinTranscriptLength int
	FallbackBand        float64
	CEFRBands           map[string]float64
	AudioMaxBytes       int64
	AudioMaxDuration    time.Duration
	AudioFormats        []string
}

// Queue configures the scoring job retry policy and the background worker.
type Queue struct {
	MaxRetries      int
	RetryDelay      time.Duration
	DefaultPriority int
	OrphanAge       time.Duration
	WorkerInterval  time.Duration
	SweepInterval   time.Duration
}

// Poller configures the client-side attempt progress poller.
type Poller struct {
	StatusInterval   time.Duration
	ProgressInterval time.Duration
	ProgressStep     int
	ProgressCap      int
	HandoffDelay     time.Duration
}

// defaultCEFRBands maps CEFR levels onto approximate IELTS bands.
var defaultCEFRBands = map[string]float64{
	"A1": 2.5,
	"A2": 3.5,
	"B1": 5.0,
	"B2": 6.0,
	"C1": 7.5,
	"C2": 8.5,
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	viper.SetDefault("SERVER_PORT", "8080")

	viper.SetDefault("SCORING_API_URL", "http://localhost:8000")
	viper.SetDefault("SCORING_WRITING_TIMEOUT", "60s")
	viper.SetDefault("SCORING_SPEAKING_TIMEOUT", "30s")
	viper.SetDefault("SCORING_RETRY_MAX", 2)
	viper.SetDefault("SCORING_RETRY_DELAY", "2s")
	viper.SetDefault("SCORING_MIN_WRITING_LENGTH", 50)
	viper.SetDefault("SCORING_MIN_TRANSCRIPT_LENGTH", 10)
	viper.SetDefault("SCORING_FALLBACK_BAND", 5.0)
	viper.SetDefault("SCORING_AUDIO_MAX_BYTES", 25*1024*1024)
	viper.SetDefault("SCORING_AUDIO_MAX_DURATION", "5m")
	viper.SetDefault("SCORING_AUDIO_FORMATS", []string{"mp3", "wav", "m4a", "flac", "ogg", "webm", "mp4"})

	viper.SetDefault("QUEUE_MAX_RETRIES", 3)
	viper.SetDefault("QUEUE_RETRY_DELAY", "30s")
	viper.SetDefault("QUEUE_DEFAULT_PRIORITY", 0)
	viper.SetDefault("QUEUE_ORPHAN_AGE", "10m")
	viper.SetDefault("QUEUE_WORKER_INTERVAL", "15s")
	viper.SetDefault("QUEUE_SWEEP_INTERVAL", "5m")

	viper.SetDefault("POLLER_STATUS_INTERVAL", "3s")
	viper.SetDefault("POLLER_PROGRESS_INTERVAL", "1s")
	viper.SetDefault("POLLER_PROGRESS_STEP", 5)
	viper.SetDefault("POLLER_PROGRESS_CAP", 90)
	viper.SetDefault("POLLER_HANDOFF_DELAY", "2s")

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")

	config.Scoring.BaseURL = viper.GetString("SCORING_API_URL")
	config.Scoring.WritingTimeout = viper.GetDuration("SCORING_WRITING_TIMEOUT")
	config.Scoring.SpeakingTimeout = viper.GetDuration("SCORING_SPEAKING_TIMEOUT")
	config.Scoring.RetryMax = viper.GetInt("SCORING_RETRY_MAX")
	config.Scoring.RetryDelay = viper.GetDuration("SCORING_RETRY_DELAY")
	config.Scoring.MinWritingLength = viper.GetInt("SCORING_MIN_WRITING_LENGTH")
	config.Scoring.MinTranscriptLength = viper.GetInt("SCORING_MIN_TRANSCRIPT_LENGTH")
	config.Scoring.FallbackBand = viper.GetFloat64("SCORING_FALLBACK_BAND")
	config.Scoring.CEFRBands = cefrBandsFromEnv()
	config.Scoring.AudioMaxBytes = viper.GetInt64("SCORING_AUDIO_MAX_BYTES")
	config.Scoring.AudioMaxDuration = viper.GetDuration("SCORING_AUDIO_MAX_DURATION")
	config.Scoring.AudioFormats = viper.GetStringSlice("SCORING_AUDIO_FORMATS")

	config.Queue.MaxRetries = viper.GetInt("QUEUE_MAX_RETRIES")
	config.Queue.RetryDelay = viper.GetDuration("QUEUE_RETRY_DELAY")
	config.Queue.DefaultPriority = viper.GetInt("QUEUE_DEFAULT_PRIORITY")
	config.Queue.OrphanAge = viper.GetDuration("QUEUE_ORPHAN_AGE")
	config.Queue.WorkerInterval = viper.GetDuration("QUEUE_WORKER_INTERVAL")
	config.Queue.SweepInterval = viper.GetDuration("QUEUE_SWEEP_INTERVAL")

	config.Poller.StatusInterval = viper.GetDuration("POLLER_STATUS_INTERVAL")
	config.Poller.ProgressInterval = viper.GetDuration("POLLER_PROGRESS_INTERVAL")
	config.Poller.ProgressStep = viper.GetInt("POLLER_PROGRESS_STEP")
	config.Poller.ProgressCap = viper.GetInt("POLLER_PROGRESS_CAP")
	config.Poller.HandoffDelay = viper.GetDuration("POLLER_HANDOFF_DELAY")

	log.Info().Str("port", config.Server.Port).Str("scoring_api", config.Scoring.BaseURL).Msg("Config loaded")
	return &config, nil
}

// cefrBandsFromEnv allows overriding individual CEFR->band entries via
// CEFR_BAND_<LEVEL> variables, e.g. CEFR_BAND_B2=6.5.
func cefrBandsFromEnv() map[string]float64 {
	bands := make(map[string]float64, len(defaultCEFRBands))
	for level, band := range defaultCEFRBands {
		key := "CEFR_BAND_" + level
		viper.SetDefault(key, band)
		bands[level] = viper.GetFloat64(key)
	}
	return bands
}
