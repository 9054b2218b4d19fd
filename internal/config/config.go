package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	LogLevel string
	Timezone string

	// Job storage roots
	JobRoot      string
	AnalysisRoot string

	// Database (shared cost store + schema-compatibility cache)
	DatabaseURL string

	// Kafka
	KafkaBrokers       []string
	KafkaConsumerGroup string
	KafkaTopicJobs     string
	KafkaTopicProgress string

	// S3/Storage (archival of finished videos)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PublicURL string

	// LLM Gateway
	GeminiAPIKey       string
	GeminiAPIEndpoint  string
	GeminiModelPro     string
	GeminiModelFlash   string
	GeminiModelImage   string
	GeminiModelTTS     string
	GeminiTTSVoice     string
	LLMMaxRetries      int
	LLMTimeout         time.Duration
	LLMMaxIterations   int
	LLMTemperatureStep float64

	// Script pipeline (Stage C overview-mode constraints)
	OverviewMinDurationSeconds int
	OverviewMaxDurationSeconds int
	OverviewMinSections        int
	OverviewMaxSections        int
	OverviewSectionMinWords    int
	OverviewSectionMaxWords    int
	OverviewConstraintRetries  int
	CharsPerSecond             float64
	SegmentTargetSeconds       float64
	SegmentMinSeconds          float64
	MaxOutlineAttempts         int
	EnableSectionPDFSlices     bool
	PDFPageThreshold           int

	// Animation Agent
	MaxRefinementAttempts  int
	MaxCorrectionAttempts  int
	RefinerExcerptRadius   int
	RefinerMaxExcerptLines int
	ScaffoldIndent         int
	SectionRetryBudget     int

	// Section Processor / rendering
	RenderTimeout        time.Duration
	FFmpegConcatTimeout  time.Duration
	ProbeTimeout         time.Duration
	QualityFlag          string
	RendererModule       string
	RendererPythonBinary string

	// Orchestrator
	MaxConcurrentSections     int
	MaxConcurrentSectionsMain int

	// Cleanup
	OutputCleanupEnabled          bool
	OutputKeepOnlyFinal           bool
	OutputRetentionHours          int
	FailedOutputRetentionHours    int
	OrphanOutputRetentionHours    int
	JobMetadataRetentionHours     int
	OutputCleanupMaxDeletions     int
	OutputCleanupIntervalMinutes  int
	UploadCleanupEnabled          bool
	UploadRetentionHours          int
	UploadCleanupMaxDeletions     int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("TZ", "UTC"),

		JobRoot:      getEnv("JOB_ROOT", "./data/jobs"),
		AnalysisRoot: getEnv("ANALYSIS_ROOT", "./data/analysis"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		KafkaBrokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "eduviz-worker"),
		KafkaTopicJobs:     getEnv("KAFKA_TOPIC_JOBS", "eduviz.jobs.v1"),
		KafkaTopicProgress: getEnv("KAFKA_TOPIC_PROGRESS", "eduviz.progress.v1"),

		S3Endpoint:  getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", "eduviz-videos"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint:  getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelPro:     getEnv("GEMINI_MODEL_PRO", "gemini-3-pro-preview"),
		GeminiModelFlash:   getEnv("GEMINI_MODEL_FLASH", "gemini-2.5-flash-lite"),
		GeminiModelImage:   getEnv("GEMINI_MODEL_IMAGE", "gemini-3-pro-image-preview"),
		GeminiModelTTS:     getEnv("GEMINI_MODEL_TTS", "gemini-2.5-pro-preview-tts"),
		GeminiTTSVoice:     getEnv("GEMINI_TTS_VOICE", "Zephyr"),
		LLMMaxRetries:      getEnvInt("LLM_MAX_RETRIES", 3),
		LLMTimeout:         getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		LLMMaxIterations:   getEnvInt("LLM_MAX_TOOL_ITERATIONS", 8),
		LLMTemperatureStep: 0.15,

		OverviewMinDurationSeconds: getEnvInt("OVERVIEW_MIN_DURATION_SECONDS", 180),
		OverviewMaxDurationSeconds: getEnvInt("OVERVIEW_MAX_DURATION_SECONDS", 420),
		OverviewMinSections:        getEnvInt("OVERVIEW_MIN_SECTIONS", 5),
		OverviewMaxSections:        getEnvInt("OVERVIEW_MAX_SECTIONS", 8),
		OverviewSectionMinWords:    getEnvInt("OVERVIEW_SECTION_MIN_WORDS", 80),
		OverviewSectionMaxWords:    getEnvInt("OVERVIEW_SECTION_MAX_WORDS", 170),
		OverviewConstraintRetries:  getEnvInt("OVERVIEW_CONSTRAINT_RETRY_COUNT", 1),
		CharsPerSecond:             12.5,
		SegmentTargetSeconds:       12.0,
		SegmentMinSeconds:          3.0,
		MaxOutlineAttempts:         getEnvInt("MAX_OUTLINE_ATTEMPTS", 3),
		EnableSectionPDFSlices:     getEnvBool("ENABLE_SECTION_PDF_SLICES", true),
		PDFPageThreshold:           getEnvInt("PDF_PAGE_THRESHOLD", 15),

		MaxRefinementAttempts:  getEnvInt("MAX_REFINEMENT_ATTEMPTS", 5),
		MaxCorrectionAttempts:  getEnvInt("MAX_CORRECTION_ATTEMPTS", 3),
		RefinerExcerptRadius:   getEnvInt("REFINER_EXCERPT_RADIUS", 6),
		RefinerMaxExcerptLines: getEnvInt("REFINER_MAX_EXCERPT_LINES", 140),
		ScaffoldIndent:         getEnvInt("SCAFFOLD_INDENT", 8),
		SectionRetryBudget:     getEnvInt("SECTION_RETRY_BUDGET", 2),

		RenderTimeout:        getEnvDuration("RENDER_TIMEOUT", 180*time.Second),
		FFmpegConcatTimeout:  getEnvDuration("FFMPEG_CONCAT_TIMEOUT", 300*time.Second),
		ProbeTimeout:         getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		QualityFlag:          getEnv("RENDER_QUALITY", "low"),
		RendererModule:       getEnv("RENDERER_MODULE", "manim"),
		RendererPythonBinary: getEnv("RENDERER_PYTHON_BINARY", "python3"),

		MaxConcurrentSections:     clampMin(getEnvInt("MAX_CONCURRENT_SECTIONS", 8), 1),
		MaxConcurrentSectionsMain: clampMin(getEnvInt("MAX_CONCURRENT_SECTIONS_MAIN", 3), 1),

		OutputCleanupEnabled:         getEnvBool("OUTPUT_CLEANUP_ENABLED", true),
		OutputKeepOnlyFinal:          getEnvBool("OUTPUT_KEEP_ONLY_FINAL", true),
		OutputRetentionHours:         getEnvInt("OUTPUT_RETENTION_HOURS", 168),
		FailedOutputRetentionHours:   getEnvInt("FAILED_OUTPUT_RETENTION_HOURS", 24),
		OrphanOutputRetentionHours:   getEnvInt("ORPHAN_OUTPUT_RETENTION_HOURS", 6),
		JobMetadataRetentionHours:    getEnvInt("JOB_METADATA_RETENTION_HOURS", 720),
		OutputCleanupMaxDeletions:    getEnvInt("OUTPUT_CLEANUP_MAX_DELETIONS", 100),
		OutputCleanupIntervalMinutes: getEnvInt("OUTPUT_CLEANUP_INTERVAL_MINUTES", 30),
		UploadCleanupEnabled:         getEnvBool("UPLOAD_CLEANUP_ENABLED", true),
		UploadRetentionHours:         getEnvInt("UPLOAD_RETENTION_HOURS", 24),
		UploadCleanupMaxDeletions:    getEnvInt("UPLOAD_CLEANUP_MAX_DELETIONS", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// clampMin returns v if v >= min, otherwise min.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
