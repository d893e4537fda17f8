package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/oceanwatch/plastic-detection-service/detections"
	"github.com/oceanwatch/plastic-detection-service/pipeline"
)

// initLogger configures the package-level logrus logger.
func initLogger(debug bool, out io.Writer) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(out)
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		initLogger(false, os.Stderr)
		log.Fatalf("Invalid configuration: %v", err)
	}
	initLogger(cfg.Debug, os.Stdout)

	modelPath, err := findModel(cfg.ModelDir, cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to locate model: %v", err)
	}

	libPath, err := sharedLibPath(cfg.LibPath)
	if err != nil {
		log.Fatalf("Failed to locate onnxruntime: %v", err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("Failed to initialize ONNX environment: %v", err)
	}
	defer ort.DestroyEnvironment()

	detector, err := detections.NewONNXDetector(detections.ONNXConfig{
		ModelPath:    modelPath,
		LabelsPath:   cfg.LabelsPath,
		PoolSize:     cfg.PoolSize,
		IouThreshold: cfg.IouThreshold,
	})
	if err != nil {
		log.Fatalf("Failed to load model %s: %v", modelPath, err)
	}
	defer detector.Close()

	spec := detector.Spec()
	log.WithFields(log.Fields{
		"model":        modelPath,
		"input":        spec.InputShape,
		"output":       spec.OutputShape,
		"classes":      len(detector.Labels()),
		"pool_size":    cfg.PoolSize,
		"target_class": cfg.TargetClass,
		"cpu_features": detections.CPUFeatures(),
	}).Info("Model loaded")

	if !hasLabel(detector.Labels(), cfg.TargetClass) {
		log.WithField("target_class", cfg.TargetClass).Warn("Target class is not in the model label set, responses will be empty")
	}

	state := &AppState{
		Pipeline:       pipeline.New(detector, cfg.PipelineConfig()),
		Pool:           detector.Pool(),
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Graceful shutdown failed: %v", err)
	}
}

func hasLabel(labels map[int]string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}
