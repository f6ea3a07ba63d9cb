package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"churnserve/artifact"
	"churnserve/dataset"
	"churnserve/db"
	qhttp "churnserve/http"
	"churnserve/inference"
	"churnserve/logging"
	"churnserve/monitoring"
)

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`
	Dataset struct {
		Path string `yaml:"path"`
	} `yaml:"dataset"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Model struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"model"`
	Log logging.Config `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Init(config.Log); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()

	// 2. Experiment tracking / audit store
	var store *db.Store
	if config.Database.Path != "" {
		store, err = db.Open(config.Database.Path)
		if err != nil {
			logging.L().Fatalw("failed to open tracking database", "error", err)
		}
		defer store.Close()
	}

	// 3. Reference dataset (optional; row_index requests need it)
	var ref *dataset.Reference
	if config.Dataset.Path != "" {
		ref, err = dataset.Open(config.Dataset.Path)
		if err != nil {
			logging.L().Warnw("reference dataset unavailable, row_index requests will fail",
				"path", config.Dataset.Path, "error", err)
			ref = nil
		}
	}

	// 4. Monitoring
	collector := monitoring.NewCollector(10 * time.Second)
	defer collector.Stop()
	hub := monitoring.NewHub()
	go hub.Run()
	defer hub.Stop()

	// 5. Inference service: one artifact load per process lifetime. A failed
	// load leaves the service not-ready; /health reports it and every
	// predict call is rejected until a redeploy.
	sinks := []inference.AuditSink{hub}
	var predictionLog *db.PredictionLogger
	if store != nil {
		predictionLog = db.NewPredictionLogger(store, 256)
		defer predictionLog.Close()
		sinks = append(sinks, predictionLog)
	}
	service := inference.New(config.Model.Threshold, sinks...)

	artifacts := artifact.NewStore(config.Artifacts.Dir)
	if err := service.Initialize(artifacts, ref); err != nil {
		logging.L().Errorw("artifact load failed, serving in not-ready state until restart",
			"artifact_dir", config.Artifacts.Dir, "error", err)
	} else {
		watcher, err := monitoring.NewArtifactWatcher(artifacts, service.RunID(), collector)
		if err != nil {
			logging.L().Warnw("artifact watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	// 6. HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}
	server := qhttp.NewServer(serverConfig, qhttp.Deps{
		Service: service,
		Metrics: collector,
		Hub:     hub,
		DB:      store,
	})
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logging.L().Fatalw("http server failed", "error", err)
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.L().Info("shutting down")

	if err := server.Stop(); err != nil {
		logging.L().Warnw("server forced to shutdown", "error", err)
	}
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
