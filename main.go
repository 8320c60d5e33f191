package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/VanceGC/BlogMagic-sub000/api"
	"github.com/VanceGC/BlogMagic-sub000/config"
	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/scheduler"
	"github.com/VanceGC/BlogMagic-sub000/services"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: Error loading .env file: %v\n", err)
	}

	env := config.New()
	if path := env["SSM_PARAMETER_PATH"]; path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		params, err := config.LoadSSMParameters(ctx, config.GetString(env, "AWS_REGION", "us-east-1"), path)
		cancel()
		if err != nil {
			fmt.Printf("Error loading SSM parameters: %v\n", err)
			os.Exit(1)
		}
		env = config.Merge(env, params)
	}
	settings := config.Load(env)

	setupLogging(settings)
	log.Info().Msg("Initializing app...")

	db, err := openDatabase(settings, env)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}

	if settings.DatabaseReplicaDSN != "" {
		if err := database.UseReplicas(db, strings.Split(settings.DatabaseReplicaDSN, ",")...); err != nil {
			log.Fatal().Err(err).Msg("Error registering read replicas")
		}
	}

	// If generating models, run generation and exit
	if strings.ToLower(env["GENERATE_MODELS"]) == "true" {
		log.Info().Msg("Generating models and query helpers...")
		if err := models.GenerateModels(db); err != nil {
			log.Fatal().Err(err).Msg("Error generating models")
		}
		return
	}

	// If generating column mismatch report, run report and exit
	if strings.ToLower(env["GENERATE_COLUMN_REPORT"]) == "true" {
		log.Info().Msg("Generating column mismatch report...")
		report, err := models.GenerateColumnMismatchReport(db)
		if err != nil {
			log.Fatal().Err(err).Msg("Error generating column report")
		}
		for table, columns := range report {
			log.Info().Str("table", table).Strs("missingColumns", columns).Msg("Column mismatch")
		}
		return
	}

	currentDB := database.New(db)
	if err := currentDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Error migrating database")
	}

	svc, err := services.New(context.Background(), settings)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing services")
	}

	configs, posts := currentDB.BlogConfigRepo(), currentDB.PostRepo()
	engine := scheduler.NewEngine(configs, posts, svc.Topics, svc.Content, svc.Images)
	runner := scheduler.NewRunner(configs, posts, svc.Publisher, svc.Notifier)
	sweeper := scheduler.NewSweeper(scheduler.SweepConfig{
		Interval:     settings.SweepInterval,
		TargetCount:  settings.ScheduleTargetCount,
		Concurrency:  settings.PublishConcurrency,
		RetryBackoff: settings.FillRetryBackoff,
	}, posts, configs, runner, engine, svc.Notifier)

	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("Error starting sweeper")
	}

	server, err := api.NewServer(settings, api.Dependencies{
		Database: currentDB,
		Engine:   engine,
		Runner:   runner,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing server")
	}

	errChannel := make(chan error)
	defer close(errChannel)

	go server.Start(errChannel)

	// Listen for interrupt signals to gracefully shutdown the server
	go listenToInterrupt(errChannel)

	fatalErr := <-errChannel
	log.Info().Err(fatalErr).Msg("Closing server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sweeper.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Sweeper did not stop in time")
	}
	server.ShutdownGracefully(30 * time.Second)
}

func setupLogging(settings config.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if settings.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openDatabase(settings config.Settings, env map[string]string) (*gorm.DB, error) {
	connStr := settings.DatabaseDSN
	if connStr == "" {
		switch dbType := env["DB_TYPE"]; dbType {
		case "supa":
			connStr = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=require",
				config.GetString(env, "SUPABASE_DB_HOST", ""),
				config.GetString(env, "SUPABASE_DB_USER", ""),
				config.GetString(env, "SUPABASE_DB_PASSWORD", ""),
				config.GetString(env, "SUPABASE_DB_NAME", ""),
				config.GetString(env, "SUPABASE_DB_PORT", "5432"),
			)
			log.Info().Msg("Connecting to Supabase database...")
		default:
			return nil, fmt.Errorf("DATABASE_URL is empty and DB_TYPE %q is not supported", dbType)
		}
	}

	gormLogger := logger.New(
		gormLogWriter{log.With().Str("component", "gorm").Logger()},
		logger.Config{
			SlowThreshold:             10 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  settings.LogPretty,
		},
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  connStr,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		PrepareStmt: false,
		Logger:      gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// Enable required PostgreSQL extensions
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	// Test database connection
	var result int
	if err := db.Raw("SELECT 1").Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("test database connection: %w", err)
	}
	return db, nil
}

// gormLogWriter forwards gorm's printf-style output to zerolog.
type gormLogWriter struct {
	logger zerolog.Logger
}

func (w gormLogWriter) Printf(format string, args ...any) {
	w.logger.Warn().Msgf(format, args...)
}

// listenToInterrupt waits for SIGINT or SIGTERM and then sends an error to the error channel.
func listenToInterrupt(errChannel chan<- error) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	errChannel <- fmt.Errorf("%s", <-c)
}
