package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/specsynth/pkg/pipeline/describe/gemini"
	"github.com/shpitdev/specsynth/pkg/pipeline/worker"
)

func loadGeminiConfigFromEnv() (gemini.Config, error) {
	maxFields, err := envInt("GEMINI_MAX_FIELDS", 0)
	if err != nil {
		return gemini.Config{}, err
	}
	return gemini.Config{
		APIKey:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:     strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		BaseURL:   strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		MaxFields: maxFields,
	}, nil
}

func loadWorkerOptionsFromEnv() (worker.Options, error) {
	workers, err := envInt("WORKERS", 4)
	if err != nil {
		return worker.Options{}, err
	}
	maxRetries, err := envInt("MAX_RETRIES", 0)
	if err != nil {
		return worker.Options{}, err
	}
	itemTimeout, err := envDuration("ITEM_TIMEOUT", 60*time.Second)
	if err != nil {
		return worker.Options{}, err
	}
	failFast, err := envBool("FAIL_FAST")
	if err != nil {
		return worker.Options{}, err
	}
	rateLimitRPS, err := envFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		return worker.Options{}, err
	}

	policy := worker.FailurePolicyContinue
	if failFast {
		policy = worker.FailurePolicyFailFast
	}
	return worker.Options{
		Workers:       workers,
		MaxRetries:    maxRetries,
		ItemTimeout:   itemTimeout,
		RateLimitRPS:  rateLimitRPS,
		FailurePolicy: policy,
	}, nil
}

func logLevelFromEnv() (slog.Level, error) {
	v := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if v == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL=%q: %w", v, err)
	}
	return lvl, nil
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return false, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
