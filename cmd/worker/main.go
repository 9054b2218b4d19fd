// Command worker is the Kafka-driven entry point that wires the engine's
// seven components together and runs jobs to completion. It is the one
// binary this module ships: everything upstream of a dispatched job id
// (document upload, HTTP/CLI surfaces, auth) is out of scope (spec §1)
// and is assumed to already exist by the time a JobDispatchMessage lands
// on the jobs topic.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	genai "google.golang.org/genai"

	"github.com/bareyan/EduViz-sub001/internal/animation"
	"github.com/bareyan/EduViz-sub001/internal/config"
	"github.com/bareyan/EduViz-sub001/internal/costs"
	"github.com/bareyan/EduViz-sub001/internal/database"
	"github.com/bareyan/EduViz-sub001/internal/jobstore"
	"github.com/bareyan/EduViz-sub001/internal/kafka"
	"github.com/bareyan/EduViz-sub001/internal/llmgateway"
	"github.com/bareyan/EduViz-sub001/internal/media"
	"github.com/bareyan/EduViz-sub001/internal/orchestrator"
	"github.com/bareyan/EduViz-sub001/internal/progress"
	"github.com/bareyan/EduViz-sub001/internal/script"
	"github.com/bareyan/EduViz-sub001/internal/storage"
	"github.com/bareyan/EduViz-sub001/internal/tts"
	"github.com/bareyan/EduViz-sub001/migrations"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("worker: no .env file found, relying on the environment")
	}

	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("starting EduViz worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := buildJobHandler(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: failed to wire dependencies")
	}
	defer cleanup()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopicJobs, cfg.KafkaConsumerGroup, handler)
	defer consumer.Close()

	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("worker: consumer stopped unexpectedly")
	}

	log.Info().Msg("EduViz worker shut down")
}

// jobHandler adapts the orchestrator to kafka.MessageHandler: each
// dispatched job's source file has already been written under the job
// store by an out-of-scope upstream caller (per JobDispatchMessage's own
// doc comment); this just reads it and drives GenerateVideo.
type jobHandler struct {
	orch       *orchestrator.Orchestrator
	publisher  progress.Publisher
	analyses   *jobstore.AnalysisStore
	pageThresh int
	voice      string
	maxConc    int
}

func (h *jobHandler) HandleJob(ctx context.Context, msg kafka.JobDispatchMessage) error {
	traceID := msg.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	log.Info().Str("job_id", msg.JobID).Str("mode", msg.Mode).Str("trace_id", traceID).Msg("worker: processing dispatched job")

	mode := script.ModeOverview
	if msg.Mode == string(script.ModeComprehensive) {
		mode = script.ModeComprehensive
	}

	analyzer := script.AnalyzerFor(msg.SourcePath, h.pageThresh, script.UnipdfInspector{}, script.UnipdfSlicer{})
	material, err := analyzer.Analyze(ctx, msg.SourcePath, msg.JobID)
	if err != nil {
		return err
	}

	if h.analyses != nil {
		rec := jobstore.AnalysisRecord{
			AnalysisID: msg.JobID,
			JobID:      msg.JobID,
			SourcePath: msg.SourcePath,
			PageCount:  material.PageCount,
			Language:   msg.Language,
			Mode:       string(mode),
		}
		if err := h.analyses.Save(rec); err != nil {
			log.Warn().Err(err).Str("job_id", msg.JobID).Msg("worker: persist analysis record failed")
		}
	}

	result := h.orch.GenerateVideo(ctx, orchestrator.GenerateVideoParams{
		JobID:         msg.JobID,
		Material:      material,
		SourceText:    material.Text,
		Voice:         h.voice,
		Language:      msg.Language,
		Mode:          mode,
		TopicHint:     msg.TopicHint,
		Resume:        true,
		Publisher:     h.publisher,
		MaxConcurrent: h.maxConc,
	})

	if result.Status != "completed" {
		log.Error().Str("job_id", msg.JobID).Str("error", result.Error).Msg("worker: job failed")
		return &jobError{msg: result.Error}
	}

	log.Info().
		Str("job_id", msg.JobID).
		Str("video_path", result.VideoPath).
		Float64("total_duration", result.TotalDuration).
		Msg("worker: job completed")
	return nil
}

// jobError wraps the VideoResult's failure string as an error so
// kafka.Consumer's retry/backoff loop treats a failed job like any other
// handler error.
type jobError struct{ msg string }

func (e *jobError) Error() string { return e.msg }

// buildJobHandler constructs every one of the seven components and wires
// them into a single jobHandler, returning a cleanup func that closes the
// owned connections (database, kafka producer).
func buildJobHandler(ctx context.Context, cfg *config.Config) (*jobHandler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// C1: Job Store + periodic cleanup scheduler (§5, §6 env vars).
	jobStore, err := jobstore.New(cfg.JobRoot)
	if err != nil {
		return nil, cleanup, err
	}
	if cfg.OutputCleanupEnabled {
		scheduler := &jobstore.CleanupScheduler{
			Store: jobStore,
			Policy: jobstore.RetentionPolicy{
				CompletedHours:   cfg.OutputRetentionHours,
				FailedHours:      cfg.FailedOutputRetentionHours,
				OrphanHours:      cfg.OrphanOutputRetentionHours,
				MaxDeletionsPass: cfg.OutputCleanupMaxDeletions,
				Interval:         time.Duration(cfg.OutputCleanupIntervalMinutes) * time.Minute,
			},
		}
		go scheduler.Run(ctx)
	}

	// Cost Record store + durable schema-compatibility cache (shared DB,
	// §3 Ownership). A worker with no DATABASE_URL configured still runs
	// the pipeline; it only loses cost accounting and cross-restart
	// schema-compat memory, both best-effort by design.
	var costStore *costs.Store
	var compatCache *costs.SchemaCompatCache
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		if err := migrations.Run(db.DB); err != nil {
			return nil, cleanup, err
		}
		costStore = costs.NewStore(db)
		compatCache = costs.NewSchemaCompatCache(db)
	}

	// C3: LLM Gateway.
	provider, err := llmgateway.NewGenaiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModelPro, cfg.GeminiModelFlash, cfg.GeminiAPIEndpoint)
	if err != nil {
		return nil, cleanup, err
	}
	prices := costs.NewStaticPriceTable(0, 0)
	prices.SetRate(cfg.GeminiModelPro, 1.25, 10.0)
	prices.SetRate(cfg.GeminiModelFlash, 0.075, 0.30)
	gateway := llmgateway.New(provider, costSink(costStore), prices)
	if compatCache != nil {
		gateway = gateway.WithSchemaCompatStore(compatCache)
	}

	// C4: Script Pipeline.
	pipeline := &script.Pipeline{
		Gateway: gateway,
		Constraints: script.OverviewConstraints{
			MinSections:        cfg.OverviewMinSections,
			MaxSections:        cfg.OverviewMaxSections,
			SectionMinWords:    cfg.OverviewSectionMinWords,
			SectionMaxWords:    cfg.OverviewSectionMaxWords,
			MinDurationSeconds: float64(cfg.OverviewMinDurationSeconds),
			MaxDurationSeconds: float64(cfg.OverviewMaxDurationSeconds),
			CharsPerSecond:     cfg.CharsPerSecond,
			RetryCount:         cfg.OverviewConstraintRetries,
		},
		SegmentConfig: script.SegmentConfig{
			TargetSeconds:  cfg.SegmentTargetSeconds,
			HardCapFactor:  1.5,
			MinSeconds:     cfg.SegmentMinSeconds,
			CharsPerSecond: cfg.CharsPerSecond,
		},
		MaxOutlineAttempts: cfg.MaxOutlineAttempts,
	}
	if cfg.EnableSectionPDFSlices {
		pipeline.PDFSlicer = script.UnipdfSlicer{}
	}

	// C5: Animation Agent collaborators (Choreographer/Implementer/
	// Scaffolder are shared across sections; the Refiner's Validator is
	// built per section by the Section Processor since it needs the
	// section's own scene class name).
	choreographer := &animation.Choreographer{Gateway: gateway, Cache: animation.NewPlanCache()}
	implementer := &animation.Implementer{Gateway: gateway, UseTools: true}
	scaffolder := &animation.Scaffolder{ModulePackage: cfg.RendererModule}
	qcWhitelist := animation.NewQCWhitelist()

	// TTS: the unified genai SDK's streaming audio modality.
	unifiedClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		return nil, cleanup, err
	}
	synthesizer := tts.NewGenaiSynthesizer(unifiedClient, cfg.GeminiModelTTS)

	// Media (ffmpeg/ffprobe + the Manim-compatible renderer subprocess).
	mediaRunner := media.NewRunner("", "")
	renderer := media.NewRenderer(cfg.RendererModule, cfg.RenderTimeout)

	// C6: Section Processor.
	sectionProcessor := &orchestrator.SectionProcessor{
		Media:    mediaRunner,
		Renderer: renderer,
		TTS:      synthesizer,
		Gateway: orchestrator.ChoreographerGateway{
			Choreographer: choreographer,
			Implementer:   implementer,
			Scaffolder:    scaffolder,
		},
		Quality:                cfg.QualityFlag,
		MaxRenderAttempts:      cfg.MaxCorrectionAttempts,
		RefinerMaxAttempts:     cfg.MaxRefinementAttempts,
		RefinerExcerptRadius:   cfg.RefinerExcerptRadius,
		RefinerMaxExcerptLines: cfg.RefinerMaxExcerptLines,
		MaxSectionRetries:      cfg.SectionRetryBudget,
		Voice:                  cfg.GeminiTTSVoice,
		QCWhitelist:            qcWhitelist,
	}

	// Archival storage (best-effort; nil disables it entirely, per
	// ArchiveFinalVideo's own doc comment).
	var archiveStore orchestrator.ArchiveStore
	if cfg.S3AccessKey != "" {
		s3Client, err := storage.NewClient(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.S3PublicURL)
		if err != nil {
			return nil, cleanup, err
		}
		archiveStore = s3Client
	}

	// C7: Section Orchestrator.
	orch := &orchestrator.Orchestrator{
		Store:     jobStore,
		Script:    pipeline,
		Processor: sectionProcessor,
		Media:     mediaRunner,
		Costs:     costStore,
		Storage:   archiveStore,
	}

	var publisher progress.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicProgress)
		closers = append(closers, func() { producer.Close() })
		publisher = producer
	}

	analysisStore, err := jobstore.NewAnalysisStore(cfg.AnalysisRoot)
	if err != nil {
		return nil, cleanup, err
	}

	return &jobHandler{
		orch:       orch,
		publisher:  publisher,
		analyses:   analysisStore,
		pageThresh: cfg.PDFPageThreshold,
		voice:      cfg.GeminiTTSVoice,
		maxConc:    cfg.MaxConcurrentSectionsMain,
	}, cleanup, nil
}

// costSink adapts a possibly-nil *costs.Store into an llmgateway.CostSink
// so a worker with no DATABASE_URL passes a true nil interface (not a
// non-nil interface wrapping a nil pointer) into Gateway.New.
func costSink(s *costs.Store) llmgateway.CostSink {
	if s == nil {
		return nil
	}
	return s
}
