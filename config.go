package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/oceanwatch/plastic-detection-service/detections"
	"github.com/oceanwatch/plastic-detection-service/imagecodec"
	"github.com/oceanwatch/plastic-detection-service/pipeline"
)

// Config holds server configuration
type Config struct {
	Addr          string
	ModelDir      string
	ModelPath     string
	LabelsPath    string
	LibPath       string
	TargetClass   string
	ConfThreshold float32
	IouThreshold  float32
	PoolSize      int
	JPEGQuality   int
	MaxUploadMB   int64
	DetectTimeout time.Duration
	Debug         bool
}

// LoadConfig reads environment variables and returns a Config
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Addr:        getEnv("ADDR", ":8000"),
		ModelDir:    getEnv("MODEL_DIR", "."),
		ModelPath:   getEnv("MODEL_PATH", ""),
		LabelsPath:  getEnv("LABELS_PATH", ""),
		LibPath:     getEnv("ORT_LIB_PATH", ""),
		TargetClass: getEnv("TARGET_CLASS", pipeline.DefaultTargetClass),
		Debug:       getEnv("DEBUG", "false") == "true",
	}

	var err error
	if cfg.ConfThreshold, err = getEnvFloat("CONF_THRESHOLD", detections.DefaultConfThreshold); err != nil {
		return nil, err
	}
	if cfg.IouThreshold, err = getEnvFloat("IOU_THRESHOLD", detections.DefaultIouThreshold); err != nil {
		return nil, err
	}
	if cfg.PoolSize, err = getEnvInt("POOL_SIZE", detections.DefaultPoolSize); err != nil {
		return nil, err
	}
	if cfg.JPEGQuality, err = getEnvInt("JPEG_QUALITY", imagecodec.DefaultJPEGQuality); err != nil {
		return nil, err
	}
	maxUpload, err := getEnvInt("MAX_UPLOAD_MB", 32)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadMB = int64(maxUpload)
	if cfg.DetectTimeout, err = getEnvDuration("DETECT_TIMEOUT", 0); err != nil {
		return nil, err
	}

	if cfg.ConfThreshold < 0 || cfg.ConfThreshold > 1 {
		return nil, fmt.Errorf("CONF_THRESHOLD must be within [0,1], got %v", cfg.ConfThreshold)
	}
	if cfg.IouThreshold <= 0 || cfg.IouThreshold > 1 {
		return nil, fmt.Errorf("IOU_THRESHOLD must be within (0,1], got %v", cfg.IouThreshold)
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("JPEG_QUALITY must be within [1,100], got %d", cfg.JPEGQuality)
	}
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("POOL_SIZE must be positive, got %d", cfg.PoolSize)
	}
	if cfg.MaxUploadMB < 1 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}

	return cfg, nil
}

func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		TargetClass:   c.TargetClass,
		ConfThreshold: c.ConfThreshold,
		JPEGQuality:   c.JPEGQuality,
		DetectTimeout: c.DetectTimeout,
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getEnvFloat(k string, def float32) (float32, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return float32(f), nil
}

func getEnvDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
