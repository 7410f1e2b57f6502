package whisper

// #cgo linux LDFLAGS: -l:libwhisper.a -lm -lstdc++
// #cgo darwin LDFLAGS: -lwhisper -lstdc++ -framework Accelerate
// #include <whisper.h>
// #include <stdlib.h>
import "C"

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
)

type Config struct {
	// The path to the GGML model file to use.
	ModelFile string
	// The number of system threads to use to perform the transcription.
	NumThreads int
	// 512 = a bit more than 10s. Use multiples of 64. Results in a speedup of 3x at 512, b/c whisper was tuned for 30s chunks. See: https://github.com/ggerganov/whisper.cpp/pull/141
	AudioContext int
	// Whether or not to print progress to stdout (default false).
	PrintProgress bool
}

func (c Config) IsValid() error {
	if c == (Config{}) {
		return fmt.Errorf("invalid empty config")
	}

	if c.ModelFile == "" {
		return fmt.Errorf("invalid ModelFile: should not be empty")
	}

	if _, err := os.Stat(c.ModelFile); err != nil {
		return fmt.Errorf("invalid ModelFile: failed to stat model file: %w", err)
	}

	if numCPU := runtime.NumCPU(); c.NumThreads == 0 || c.NumThreads > numCPU {
		return fmt.Errorf("invalid NumThreads: should be in the range [1, %d]", numCPU)
	}

	return nil
}

// Context wraps a loaded whisper model. Decoding parameters are supplied
// per call, so one loaded model serves both recognition tiers. Calls are
// serialized internally as whisper_full is not reentrant.
type Context struct {
	cfg     Config
	ctx     *C.struct_whisper_context
	cparams C.struct_whisper_context_params

	mut sync.Mutex
}

func NewContext(cfg Config) (*Context, error) {
	var c Context

	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	c.cfg = cfg

	slog.Debug("creating recognition context", slog.Any("cfg", cfg))

	path := C.CString(cfg.ModelFile)
	defer C.free(unsafe.Pointer(path))

	c.cparams = C.whisper_context_default_params()
	c.ctx = C.whisper_init_from_file_with_params(path, c.cparams)
	if c.ctx == nil {
		return nil, fmt.Errorf("failed to load model file")
	}

	return &c, nil
}

func (c *Context) Destroy() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.ctx == nil {
		return fmt.Errorf("context is not initialized")
	}
	C.whisper_free(c.ctx)
	c.ctx = nil
	return nil
}

func (c *Context) Recognize(samples []float32, opts recognize.Options) (recognize.Result, error) {
	if len(samples) == 0 {
		return recognize.Result{}, fmt.Errorf("samples should not be empty")
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.ctx == nil {
		return recognize.Result{}, fmt.Errorf("context is not initialized")
	}

	strategy := C.enum_whisper_sampling_strategy(C.WHISPER_SAMPLING_GREEDY)
	if opts.BeamWidth > 1 {
		strategy = C.WHISPER_SAMPLING_BEAM_SEARCH
	}
	params := C.whisper_full_default_params(strategy)

	params.n_threads = C.int(c.cfg.NumThreads)
	params.audio_ctx = C.int(c.cfg.AudioContext)
	params.print_progress = C.bool(c.cfg.PrintProgress)
	params.no_context = C.bool(true)
	params.temperature = C.float(opts.Temperature)
	if opts.MaxTokens > 0 {
		params.max_tokens = C.int(opts.MaxTokens)
	}
	if opts.BeamWidth > 1 {
		params.beam_search.beam_size = C.int(opts.BeamWidth)
	}

	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))
	params.language = cLang

	var cPrompt *C.char
	if opts.InitialPrompt != "" {
		cPrompt = C.CString(opts.InitialPrompt)
		defer C.free(unsafe.Pointer(cPrompt))
		params.initial_prompt = cPrompt
	}

	ret := C.whisper_full(c.ctx, params, (*C.float)(&samples[0]), C.int(len(samples)))
	if ret != 0 {
		return recognize.Result{}, fmt.Errorf("whisper_full failed with code %d", ret)
	}

	n := int(C.whisper_full_n_segments(c.ctx))
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text := strings.TrimSpace(C.GoString(C.whisper_full_get_segment_text(c.ctx, C.int(i))))
		if text != "" {
			parts = append(parts, text)
		}
	}

	return recognize.Result{
		Text:         strings.Join(parts, " "),
		SegmentCount: n,
	}, nil
}
