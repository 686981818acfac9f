package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.yaml.in/yaml/v3"
)

const (
	// DefaultMainPythonFileURI is the PySpark program the backfill submits.
	DefaultMainPythonFileURI = "gs://airflow-projects-de/airflow-project-02/spark_code/orders_data_process.py"
	DefaultRetries           = 1
	DefaultRetryDelay        = 5 * time.Minute
)

// ErrInvalidClusterDetails is returned when the cluster_details variable
// cannot be decoded or lacks a required key.
var ErrInvalidClusterDetails = errors.New("invalid cluster_details")

type Config struct {
	Port         string
	Environment  string
	LogLevel     string
	MetricsAddr  string
	Runner       string
	UseInfisical bool
	SparkImage   string
	Store        StoreConfig
	Infisical    InfisicalConfig
	Workflow     WorkflowConfig `yaml:"workflow"`
}

type StoreConfig struct {
	Driver string
	Path   string
}

type InfisicalConfig struct {
	SiteURL      string
	ClientID     string
	ClientSecret string
	ProjectID    string
	Environment  string
}

// WorkflowConfig holds the overridable parts of the workflow definition.
type WorkflowConfig struct {
	MainPythonFileURI string        `yaml:"main_python_file_uri"`
	Retries           int           `yaml:"retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	Schedule          string        `yaml:"schedule"`
}

// ClusterDetails is the decoded cluster_details variable.
type ClusterDetails struct {
	ClusterName string `json:"CLUSTER_NAME" validate:"required"`
	ProjectID   string `json:"PROJECT_ID" validate:"required"`
	Region      string `json:"REGION" validate:"required"`
}

func Load() (*Config, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "6910"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),
		Runner:       getEnv("RUNNER", "dataproc"),
		UseInfisical: getEnv("USE_INFISICAL", "false") == "true",
		SparkImage:   getEnv("SPARK_IMAGE", "apache/spark-py:latest"),
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", ""),
			Path:   getEnv("STORE_PATH", ""),
		},
		Infisical: InfisicalConfig{
			SiteURL:      getEnv("INFISICAL_API_URL", ""),
			ClientID:     getEnv("INFISICAL_CLIENT_ID", ""),
			ClientSecret: getEnv("INFISICAL_CLIENT_SECRET", ""),
			ProjectID:    getEnv("INFISICAL_PROJECT_ID", ""),
			Environment:  getEnv("INFISICAL_ENV", "dev"),
		},
		Workflow: DefaultWorkflowConfig(),
	}

	if path := getEnv("BACKFILL_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MainPythonFileURI: DefaultMainPythonFileURI,
		Retries:           DefaultRetries,
		RetryDelay:        DefaultRetryDelay,
	}
}

// loadFile overlays the workflow section of a YAML file on the defaults.
func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return c.decodeYAML(raw)
}

func (c *Config) decodeYAML(raw []byte) error {
	file := struct {
		Workflow WorkflowConfig `yaml:"workflow"`
	}{Workflow: c.Workflow}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	c.Workflow = file.Workflow
	if c.Workflow.Retries < 0 {
		return fmt.Errorf("decode config: retries must not be negative, got %d", c.Workflow.Retries)
	}
	if c.Workflow.RetryDelay < 0 {
		return fmt.Errorf("decode config: retry_delay must not be negative, got %s", c.Workflow.RetryDelay)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields under their variable key names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ParseClusterDetails decodes a cluster_details JSON document and checks
// that every required key is present.
func ParseClusterDetails(raw []byte) (ClusterDetails, error) {
	var cd ClusterDetails
	if err := json.Unmarshal(raw, &cd); err != nil {
		return ClusterDetails{}, fmt.Errorf("%w: %v", ErrInvalidClusterDetails, err)
	}
	if err := cd.Validate(); err != nil {
		return ClusterDetails{}, err
	}
	return cd, nil
}

func (cd ClusterDetails) Validate() error {
	err := validate.Struct(cd)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidClusterDetails, err)
	}
	var errs error
	for _, fe := range vErrs {
		errs = multierr.Append(errs, fmt.Errorf("missing key %s", fe.Field()))
	}
	return fmt.Errorf("%w: %w", ErrInvalidClusterDetails, errs)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
