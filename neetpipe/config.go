package neetpipe

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/neetextract/neetpipe/ocr"
)

// RasterizerFactory opens a rasterizer over the PDF at path.
type RasterizerFactory func(path string) (ocr.Rasterizer, error)

// Config configures a Pipeline. Start from DefaultConfig; the zero value
// disables OCR, page skipping and answer keys.
type Config struct {
	// UseOCR runs OCR on pages where the text layer yields no question.
	UseOCR bool `json:"useOCR" yaml:"use_ocr"`
	// PreprocessImages applies greyscale, contrast stretch and sharpening
	// before OCR.
	PreprocessImages bool `json:"preprocessImages" yaml:"preprocess_images"`
	// ConfidenceThreshold (0..1) discards OCR pages whose engine confidence,
	// as a fraction, is lower.
	ConfidenceThreshold float64 `json:"confidenceThreshold" yaml:"confidence_threshold"`
	// Subjects lists the subjects in scope. Informational; output is not
	// filtered by it.
	Subjects []string `json:"subjects" yaml:"subjects"`
	// MaxPages caps the pages parsed (0: all).
	MaxPages int `json:"maxPages" yaml:"max_pages"`
	// SkipInstructionPages blanks page 1 and pages that read like exam
	// instructions.
	SkipInstructionPages bool `json:"skipInstructionPages" yaml:"skip_instruction_pages"`
	// EnableMathFormulaParsing is reserved.
	EnableMathFormulaParsing bool `json:"enableMathFormulaParsing" yaml:"enable_math_formula_parsing"`
	// StrictNEETFormat fails documents the analyzer does not recognise.
	StrictNEETFormat bool `json:"strictNEETFormat" yaml:"strict_neet_format"`
	// ParseAnswerKey fills CorrectAnswer from an answer-key section when the
	// document has one.
	ParseAnswerKey bool `json:"parseAnswerKey" yaml:"parse_answer_key"`

	// OCRDPI is the rasterization resolution (default 300).
	OCRDPI int `json:"ocrDPI" yaml:"ocr_dpi"`
	// OCRWorkers is the number of pages recognised in parallel, each worker
	// with its own engine (default 1).
	OCRWorkers int `json:"ocrWorkers" yaml:"ocr_workers"`
	// Timeout bounds a whole ProcessFile call (0: none).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// PageTimeout bounds the OCR of one page (0: none).
	PageTimeout time.Duration `json:"pageTimeout" yaml:"page_timeout"`
	// MaxFileSize rejects larger PDFs (default 100 MB).
	MaxFileSize int64 `json:"maxFileSize" yaml:"max_file_size"`

	// NewRasterizer and NewRecognizer wire the OCR engine. OCR is skipped
	// with a warning when UseOCR is set and either is nil.
	NewRasterizer RasterizerFactory     `json:"-" yaml:"-"`
	NewRecognizer ocr.RecognizerFactory `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns the recommended settings for NEET papers.
func DefaultConfig() Config {
	return Config{
		UseOCR:               true,
		PreprocessImages:     true,
		ConfidenceThreshold:  0.6,
		Subjects:             []string{"Physics", "Chemistry", "Biology"},
		SkipInstructionPages: true,
		OCRDPI:               ocr.DefaultDPI,
		OCRWorkers:           1,
		PageTimeout:          2 * time.Minute,
		MaxFileSize:          100 << 20,
	}
}

func (c *Config) defaults() {
	if c.OCRDPI <= 0 {
		c.OCRDPI = ocr.DefaultDPI
	}
	if c.OCRWorkers <= 0 {
		c.OCRWorkers = 1
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate reports configuration values out of range.
func (c *Config) Validate() error {
	var errs []error
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold %v not in [0,1]", c.ConfidenceThreshold))
	}
	if c.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("max_pages %d is negative", c.MaxPages))
	}
	if c.OCRWorkers < 0 {
		errs = append(errs, fmt.Errorf("ocr_workers %d is negative", c.OCRWorkers))
	}
	if c.OCRDPI < 0 || c.OCRDPI > 1200 {
		errs = append(errs, fmt.Errorf("ocr_dpi %d not in [0,1200]", c.OCRDPI))
	}
	if c.Timeout < 0 || c.PageTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	for _, s := range c.Subjects {
		switch Subject(s) {
		case SubjectPhysics, SubjectChemistry, SubjectBiology:
		default:
			errs = append(errs, fmt.Errorf("unknown subject %q", s))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("neetpipe: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// FileConfig is the YAML file layout of the CLI and daemon: pipeline
// settings plus the daemon's own.
type FileConfig struct {
	Pipeline Config       `yaml:"pipeline"`
	Daemon   DaemonConfig `yaml:"daemon"`
	// Languages are the tessdata languages for OCR (default eng).
	Languages []string `yaml:"languages"`
}

// DaemonConfig holds the settings of the long-running HTTP + worker mode.
type DaemonConfig struct {
	DBPath          string        `yaml:"db_path"`
	Listen          string        `yaml:"listen"`
	JobVisibility   time.Duration `yaml:"job_visibility"`
	JobPollInterval time.Duration `yaml:"job_poll_interval"`
	JobMaxAttempts  int           `yaml:"job_max_attempts"`
	// Root, when set, is the directory API clients' paths are resolved
	// against; paths escaping it are rejected.
	Root string `yaml:"root"`
	// Reprocess runs files again even when a run with the same content hash
	// is stored.
	Reprocess bool `yaml:"reprocess"`
}

func (d *DaemonConfig) defaults() {
	if d.DBPath == "" {
		d.DBPath = "neetextract.db"
	}
	if d.Listen == "" {
		d.Listen = ":8080"
	}
	if d.JobVisibility <= 0 {
		d.JobVisibility = 10 * time.Minute
	}
	if d.JobPollInterval <= 0 {
		d.JobPollInterval = 2 * time.Second
	}
	if d.JobMaxAttempts <= 0 {
		d.JobMaxAttempts = 3
	}
}

// DefaultFileConfig returns DefaultConfig plus daemon defaults.
func DefaultFileConfig() *FileConfig {
	fc := &FileConfig{Pipeline: DefaultConfig()}
	fc.Daemon.defaults()
	return fc
}

// LoadConfigFile reads a YAML config file over the defaults: keys absent
// from the file keep their default value.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultFileConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("neetpipe: parse %s: %w", path, err)
	}
	cfg.Daemon.defaults()
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
