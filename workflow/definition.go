package workflow

import (
	"fmt"
	"time"

	config "github.com/SyneHQ/backfill"
)

const (
	DagID        = "orders_backfilling_dag"
	ResolverTask = "get_execution_date"
	SubmitTask   = "submit_pyspark_job"
)

// DefaultArgs apply to every step of the workflow.
type DefaultArgs struct {
	Owner          string
	DependsOnPast  bool
	EmailOnFailure bool
	EmailOnRetry   bool
	Retries        int
	RetryDelay     time.Duration
}

// Param declares a trigger parameter.
type Param struct {
	Default     string
	Type        string
	Description string
}

// Definition is the static description of the backfill workflow. It is
// built once from validated cluster details and shared by every run.
type Definition struct {
	DagID             string
	Description       string
	StartDate         time.Time
	Schedule          string
	Catchup           bool
	Tags              []string
	Params            map[string]Param
	DefaultArgs       DefaultArgs
	Cluster           config.ClusterDetails
	MainPythonFileURI string
}

type Option func(*Definition)

func WithRetries(retries int) Option {
	return func(d *Definition) {
		d.DefaultArgs.Retries = retries
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(d *Definition) {
		d.DefaultArgs.RetryDelay = delay
	}
}

func WithSchedule(spec string) Option {
	return func(d *Definition) {
		d.Schedule = spec
	}
}

func WithMainPythonFileURI(uri string) Option {
	return func(d *Definition) {
		d.MainPythonFileURI = uri
	}
}

// FromConfig maps the workflow section of the service config to options.
func FromConfig(c config.WorkflowConfig) []Option {
	opts := []Option{
		WithRetries(c.Retries),
		WithRetryDelay(c.RetryDelay),
		WithSchedule(c.Schedule),
	}
	if c.MainPythonFileURI != "" {
		opts = append(opts, WithMainPythonFileURI(c.MainPythonFileURI))
	}
	return opts
}

// New returns the backfill definition bound to cluster. Invalid cluster
// details fail here, before any run can be triggered.
func New(cluster config.ClusterDetails, opts ...Option) (*Definition, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	d := &Definition{
		DagID:       DagID,
		Description: "Run Spark backfilling job on existing Dataproc cluster",
		StartDate:   time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC),
		Catchup:     false,
		Tags:        []string{"dev"},
		Params: map[string]Param{
			ParamExecutionDate: {
				Default:     Sentinel,
				Type:        "string",
				Description: "Execution date in yyyymmdd format",
			},
		},
		DefaultArgs: DefaultArgs{
			Owner:      "airflow",
			Retries:    config.DefaultRetries,
			RetryDelay: config.DefaultRetryDelay,
		},
		Cluster:           cluster,
		MainPythonFileURI: config.DefaultMainPythonFileURI,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.DefaultArgs.Retries < 0 {
		return nil, fmt.Errorf("retries must not be negative, got %d", d.DefaultArgs.Retries)
	}
	if d.MainPythonFileURI == "" {
		return nil, fmt.Errorf("main python file uri is empty")
	}
	return d, nil
}
