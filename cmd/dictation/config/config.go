package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	LanguageDefault   = "en"
	VADBackendDefault = VADBackendEnergy

	MaxSegmentsDefault           = 1000
	MinSegmentDurationMsDefault  = 500
	MaxSegmentDurationMsDefault  = 10000
	SilenceTimeoutMsDefault      = 800
	FastLatencyBudgetMsDefault   = 150
	ContextConfidenceBoostDefval = 0.10

	// Each worker holds its own loaded model, so the pool is capped
	// regardless of core count.
	MaxNumWorkersDefault = 4
)

type VADBackend string

const (
	VADBackendEnergy VADBackend = "energy"
	VADBackendSilero VADBackend = "silero"
)

func (b VADBackend) IsValid() bool {
	switch b {
	case VADBackendEnergy, VADBackendSilero:
		return true
	default:
		return false
	}
}

type SessionConfig struct {
	// engine config
	Language   string `yaml:"language"`
	ModelFile  string `yaml:"model_file"`
	NumThreads int    `yaml:"num_threads"`
	NumWorkers int    `yaml:"num_workers"`

	// pipeline config
	VADBackend           VADBackend `yaml:"vad_backend"`
	SileroModelFile      string     `yaml:"silero_model_file"`
	MinSegmentDurationMs int        `yaml:"min_segment_duration_ms"`
	MaxSegmentDurationMs int        `yaml:"max_segment_duration_ms"`
	SilenceTimeoutMs     int        `yaml:"silence_timeout_ms"`

	// result handling
	MaxSegments         int  `yaml:"max_segments"`
	FastLatencyBudgetMs int  `yaml:"fast_latency_budget_ms"`
	EnableDiarization   bool `yaml:"enable_diarization"`
	EnableContext       bool `yaml:"enable_context"`

	// ContextConfidenceBoost is the fractional confidence bump applied to
	// low-confidence results after contextual correction. This is a heuristic,
	// not a statistical recalibration.
	ContextConfidenceBoost float64 `yaml:"context_confidence_boost"`

	// event surface
	ListenAddr string `yaml:"listen_addr"`
}

func (cfg SessionConfig) IsValid() error {
	if cfg == (SessionConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	if cfg.Language == "" {
		return fmt.Errorf("Language cannot be empty")
	}

	if cfg.ModelFile == "" {
		return fmt.Errorf("ModelFile cannot be empty")
	}

	if numCPU := runtime.NumCPU(); cfg.NumThreads < 1 || cfg.NumThreads > numCPU {
		return fmt.Errorf("NumThreads should be in the range [1, %d]", numCPU)
	}

	if cfg.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers should be a positive number")
	}

	if !cfg.VADBackend.IsValid() {
		return fmt.Errorf("VADBackend value is not valid")
	}

	if cfg.VADBackend == VADBackendSilero && cfg.SileroModelFile == "" {
		return fmt.Errorf("SileroModelFile cannot be empty when VADBackend is %q", VADBackendSilero)
	}

	if cfg.MinSegmentDurationMs <= 0 {
		return fmt.Errorf("MinSegmentDurationMs should be a positive number")
	}

	if cfg.MaxSegmentDurationMs <= cfg.MinSegmentDurationMs {
		return fmt.Errorf("MaxSegmentDurationMs should be greater than MinSegmentDurationMs")
	}

	if cfg.SilenceTimeoutMs <= 0 {
		return fmt.Errorf("SilenceTimeoutMs should be a positive number")
	}

	if cfg.MaxSegments <= 0 {
		return fmt.Errorf("MaxSegments should be a positive number")
	}

	if cfg.FastLatencyBudgetMs <= 0 {
		return fmt.Errorf("FastLatencyBudgetMs should be a positive number")
	}

	if cfg.ContextConfidenceBoost < 0 || cfg.ContextConfidenceBoost > 1 {
		return fmt.Errorf("ContextConfidenceBoost should be in the range [0, 1]")
	}

	return nil
}

func (cfg *SessionConfig) SetDefaults() {
	if cfg.Language == "" {
		cfg.Language = LanguageDefault
	}

	if cfg.NumThreads == 0 {
		cfg.NumThreads = max(1, runtime.NumCPU()/2)
	}

	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = min(MaxNumWorkersDefault, max(1, runtime.NumCPU()-1))
	}

	if cfg.VADBackend == "" {
		cfg.VADBackend = VADBackendDefault
	}

	if cfg.MinSegmentDurationMs == 0 {
		cfg.MinSegmentDurationMs = MinSegmentDurationMsDefault
	}

	if cfg.MaxSegmentDurationMs == 0 {
		cfg.MaxSegmentDurationMs = MaxSegmentDurationMsDefault
	}

	if cfg.SilenceTimeoutMs == 0 {
		cfg.SilenceTimeoutMs = SilenceTimeoutMsDefault
	}

	if cfg.MaxSegments == 0 {
		cfg.MaxSegments = MaxSegmentsDefault
	}

	if cfg.FastLatencyBudgetMs == 0 {
		cfg.FastLatencyBudgetMs = FastLatencyBudgetMsDefault
	}

	if cfg.ContextConfidenceBoost == 0 {
		cfg.ContextConfidenceBoost = ContextConfidenceBoostDefval
	}
}

func (cfg SessionConfig) ToEnv() []string {
	if cfg == (SessionConfig{}) {
		return nil
	}

	return []string{
		fmt.Sprintf("LANGUAGE=%s", cfg.Language),
		fmt.Sprintf("MODEL_FILE=%s", cfg.ModelFile),
		fmt.Sprintf("NUM_THREADS=%d", cfg.NumThreads),
		fmt.Sprintf("NUM_WORKERS=%d", cfg.NumWorkers),
		fmt.Sprintf("VAD_BACKEND=%s", cfg.VADBackend),
		fmt.Sprintf("SILERO_MODEL_FILE=%s", cfg.SileroModelFile),
		fmt.Sprintf("MIN_SEGMENT_DURATION_MS=%d", cfg.MinSegmentDurationMs),
		fmt.Sprintf("MAX_SEGMENT_DURATION_MS=%d", cfg.MaxSegmentDurationMs),
		fmt.Sprintf("SILENCE_TIMEOUT_MS=%d", cfg.SilenceTimeoutMs),
		fmt.Sprintf("MAX_SEGMENTS=%d", cfg.MaxSegments),
		fmt.Sprintf("FAST_LATENCY_BUDGET_MS=%d", cfg.FastLatencyBudgetMs),
		fmt.Sprintf("ENABLE_DIARIZATION=%t", cfg.EnableDiarization),
		fmt.Sprintf("ENABLE_CONTEXT=%t", cfg.EnableContext),
		fmt.Sprintf("CONTEXT_CONFIDENCE_BOOST=%f", cfg.ContextConfidenceBoost),
		fmt.Sprintf("LISTEN_ADDR=%s", cfg.ListenAddr),
	}
}

func FromEnv() (SessionConfig, error) {
	var cfg SessionConfig
	cfg.Language = os.Getenv("LANGUAGE")
	cfg.ModelFile = os.Getenv("MODEL_FILE")
	cfg.NumThreads, _ = strconv.Atoi(os.Getenv("NUM_THREADS"))
	cfg.NumWorkers, _ = strconv.Atoi(os.Getenv("NUM_WORKERS"))
	cfg.SileroModelFile = os.Getenv("SILERO_MODEL_FILE")
	cfg.MinSegmentDurationMs, _ = strconv.Atoi(os.Getenv("MIN_SEGMENT_DURATION_MS"))
	cfg.MaxSegmentDurationMs, _ = strconv.Atoi(os.Getenv("MAX_SEGMENT_DURATION_MS"))
	cfg.SilenceTimeoutMs, _ = strconv.Atoi(os.Getenv("SILENCE_TIMEOUT_MS"))
	cfg.MaxSegments, _ = strconv.Atoi(os.Getenv("MAX_SEGMENTS"))
	cfg.FastLatencyBudgetMs, _ = strconv.Atoi(os.Getenv("FAST_LATENCY_BUDGET_MS"))
	cfg.EnableDiarization, _ = strconv.ParseBool(os.Getenv("ENABLE_DIARIZATION"))
	cfg.EnableContext, _ = strconv.ParseBool(os.Getenv("ENABLE_CONTEXT"))
	cfg.ContextConfidenceBoost, _ = strconv.ParseFloat(os.Getenv("CONTEXT_CONFIDENCE_BOOST"), 64)
	cfg.ListenAddr = os.Getenv("LISTEN_ADDR")

	if val := os.Getenv("VAD_BACKEND"); val != "" {
		cfg.VADBackend = VADBackend(val)
	}

	return cfg, nil
}

// FromFile loads a YAML config file. Values set in the environment take
// precedence over file values so a launcher can override single fields.
func FromFile(path string) (SessionConfig, error) {
	var cfg SessionConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	envCfg, err := FromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.merge(envCfg)

	return cfg, nil
}

func (cfg *SessionConfig) merge(other SessionConfig) {
	if other.Language != "" {
		cfg.Language = other.Language
	}
	if other.ModelFile != "" {
		cfg.ModelFile = other.ModelFile
	}
	if other.NumThreads != 0 {
		cfg.NumThreads = other.NumThreads
	}
	if other.NumWorkers != 0 {
		cfg.NumWorkers = other.NumWorkers
	}
	if other.VADBackend != "" {
		cfg.VADBackend = other.VADBackend
	}
	if other.SileroModelFile != "" {
		cfg.SileroModelFile = other.SileroModelFile
	}
	if other.MinSegmentDurationMs != 0 {
		cfg.MinSegmentDurationMs = other.MinSegmentDurationMs
	}
	if other.MaxSegmentDurationMs != 0 {
		cfg.MaxSegmentDurationMs = other.MaxSegmentDurationMs
	}
	if other.SilenceTimeoutMs != 0 {
		cfg.SilenceTimeoutMs = other.SilenceTimeoutMs
	}
	if other.MaxSegments != 0 {
		cfg.MaxSegments = other.MaxSegments
	}
	if other.FastLatencyBudgetMs != 0 {
		cfg.FastLatencyBudgetMs = other.FastLatencyBudgetMs
	}
	if other.EnableDiarization {
		cfg.EnableDiarization = true
	}
	if other.EnableContext {
		cfg.EnableContext = true
	}
	if other.ContextConfidenceBoost != 0 {
		cfg.ContextConfidenceBoost = other.ContextConfidenceBoost
	}
	if other.ListenAddr != "" {
		cfg.ListenAddr = other.ListenAddr
	}
}
