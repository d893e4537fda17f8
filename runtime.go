package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

var ErrModelNotFound = errors.New("model file not found")

const (
	modelPattern  = "best*.onnx"
	fallbackModel = "best.onnx"
)

// findModel returns the model to serve. An explicit path must exist;
// otherwise the first best*.onnx in dir by name is used.
func findModel(dir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, explicit)
		}
		return filepath.Abs(explicit)
	}

	candidates, err := filepath.Glob(filepath.Join(dir, modelPattern))
	if err != nil {
		return "", err
	}
	sort.Strings(candidates)
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return filepath.Abs(candidate)
		}
	}

	fallback := filepath.Join(dir, fallbackModel)
	if _, err := os.Stat(fallback); err == nil {
		return filepath.Abs(fallback)
	}

	return "", fmt.Errorf("%w: place trained weights (e.g. %q) in %s or set MODEL_PATH", ErrModelNotFound, fallbackModel, dir)
}

// sharedLibPath locates the onnxruntime shared library for this platform.
func sharedLibPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	var libName string
	switch runtime.GOOS {
	case "windows":
		libName = "onnxruntime.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			libName = "onnxruntime_arm64.dylib"
		} else {
			libName = "onnxruntime.dylib"
		}
	case "linux":
		if runtime.GOARCH == "arm64" {
			libName = "onnxruntime_arm64.so"
		} else {
			libName = "onnxruntime.so"
		}
	default:
		return "", fmt.Errorf("no onnxruntime library known for %s/%s, set ORT_LIB_PATH", runtime.GOOS, runtime.GOARCH)
	}

	return filepath.Join("third_party", libName), nil
}
