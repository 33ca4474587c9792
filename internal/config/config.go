package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Lllllllleong/ocrworker/internal/gcp"
	"gopkg.in/yaml.v3"
)

const (
	StoreFirestore = "firestore"
	StoreBolt      = "bolt"
	StorePostgres  = "postgres"

	EngineOCRmyPDF  = "ocrmypdf"
	EngineVertex    = "vertex"
	EngineTesseract = "tesseract"
)

// Config holds the settings shared by every stage function and the CLI.
type Config struct {
	ProjectID string `yaml:"project_id"`

	// MediaRoot is the local tier. Every worker reads and writes artifacts here.
	MediaRoot string `yaml:"media_root"`
	// Prefix namespaces remote object keys, workflow ids and event types.
	Prefix string `yaml:"prefix"`
	// Bucket enables the remote tier when set.
	Bucket string `yaml:"bucket"`

	Store       string `yaml:"store"`
	BoltPath    string `yaml:"bolt_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	// FirestoreDatabase names a non-default Firestore database.
	FirestoreDatabase string `yaml:"firestore_database"`

	Engine         string `yaml:"engine"`
	OCRmyPDFPath   string `yaml:"ocrmypdf_path"`
	VertexAIRegion string `yaml:"vertex_ai_region"`
	VertexModel    string `yaml:"vertex_model"`

	IndexURL    string `yaml:"index_url"`
	EventSource string `yaml:"event_source"`

	WorkflowID       string `yaml:"workflow_id"`
	WorkflowLocation string `yaml:"workflow_location"`

	MaxRetries  int `yaml:"max_retries"`
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		MediaRoot:        "/tmp/ocrworker/media",
		Store:            StoreFirestore,
		BoltPath:         "ocrworker.db",
		Engine:           EngineOCRmyPDF,
		OCRmyPDFPath:     "ocrmypdf",
		VertexAIRegion:   "us-central1",
		VertexModel:      "gemini-1.5-pro",
		EventSource:      "ocrworker",
		WorkflowID:       "ocr-pipeline",
		WorkflowLocation: "us-central1",
		MaxRetries:       3,
		Concurrency:      10,
		QueueSize:        100,
	}
}

// Load builds the configuration from defaults, then environment variables,
// then the YAML file at path (if any). Values in the file win.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.ProjectID = gcp.GetEnv("PROJECT_ID", c.ProjectID)
	c.MediaRoot = gcp.GetEnv("OCR_MEDIA_ROOT", c.MediaRoot)
	c.Prefix = gcp.GetEnv("OCR_PREFIX", c.Prefix)
	c.Bucket = gcp.GetEnv("OCR_BUCKET", c.Bucket)
	c.Store = gcp.GetEnv("OCR_STORE", c.Store)
	c.BoltPath = gcp.GetEnv("OCR_BOLT_PATH", c.BoltPath)
	c.PostgresDSN = gcp.GetEnv("OCR_POSTGRES_DSN", c.PostgresDSN)
	c.FirestoreDatabase = gcp.GetEnv("FIRESTORE_DATABASE", c.FirestoreDatabase)
	c.Engine = gcp.GetEnv("OCR_ENGINE", c.Engine)
	c.OCRmyPDFPath = gcp.GetEnv("OCRMYPDF_PATH", c.OCRmyPDFPath)
	c.VertexAIRegion = gcp.GetEnv("VERTEX_AI_REGION", c.VertexAIRegion)
	c.VertexModel = gcp.GetEnv("VERTEX_MODEL", c.VertexModel)
	c.IndexURL = gcp.GetEnv("OCR_INDEX_URL", c.IndexURL)
	c.EventSource = gcp.GetEnv("OCR_EVENT_SOURCE", c.EventSource)
	c.WorkflowID = gcp.GetEnv("WORKFLOW_ID", c.WorkflowID)
	c.WorkflowLocation = gcp.GetEnv("WORKFLOW_LOCATION", c.WorkflowLocation)

	ints := []struct {
		key string
		dst *int
	}{
		{"OCR_MAX_RETRIES", &c.MaxRetries},
		{"OCR_CONCURRENCY", &c.Concurrency},
		{"OCR_QUEUE_SIZE", &c.QueueSize},
	}
	for _, v := range ints {
		raw := gcp.GetEnv(v.key, "")
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", v.key, err)
		}
		*v.dst = n
	}
	return nil
}

// Validate checks the settings every entrypoint needs.
func (c *Config) Validate() error {
	if c.MediaRoot == "" {
		return fmt.Errorf("OCR_MEDIA_ROOT environment variable must be set")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}

	switch c.Store {
	case StoreFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set")
		}
	case StoreBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("OCR_BOLT_PATH environment variable must be set")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("OCR_POSTGRES_DSN environment variable must be set")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.Engine {
	case EngineOCRmyPDF, EngineTesseract:
	case EngineVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set")
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	return nil
}

// RequireWorkflow checks the settings needed to start workflow executions.
func (c *Config) RequireWorkflow() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.WorkflowID == "" || c.WorkflowLocation == "" {
		return fmt.Errorf("WORKFLOW_ID and WORKFLOW_LOCATION must be set")
	}
	return nil
}

// Prefixed namespaces name with the configured prefix.
func (c *Config) Prefixed(name string) string {
	if c.Prefix == "" {
		return name
	}
	return c.Prefix + "_" + name
}
