package runner

import (
	"context"
	"fmt"

	dataproc "cloud.google.com/go/dataproc/v2/apiv1"
	"cloud.google.com/go/dataproc/v2/apiv1/dataprocpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/SyneHQ/backfill/logger"
)

type DataprocRunner struct {
	// Optional additional client options (e.g., custom credentials)
	ClientOptions []option.ClientOption
}

func NewDataprocRunner(opts ...option.ClientOption) *DataprocRunner {
	return &DataprocRunner{ClientOptions: opts}
}

// Endpoint is the regional job controller endpoint. Dataproc rejects job
// requests for a region sent to the global endpoint.
func Endpoint(region string) string {
	return fmt.Sprintf("%s-dataproc.googleapis.com:443", region)
}

// clientOptions targets the cluster's region; ClientOptions come last so a
// caller-supplied endpoint or connection takes precedence.
func (d *DataprocRunner) clientOptions(region string) []option.ClientOption {
	return append([]option.ClientOption{option.WithEndpoint(Endpoint(region))}, d.ClientOptions...)
}

func (d *DataprocRunner) SubmitJob(ctx context.Context, req JobRequest) (JobResult, error) {
	client, err := dataproc.NewJobControllerClient(ctx, d.clientOptions(req.Cluster.Region)...)
	if err != nil {
		return JobResult{}, fmt.Errorf("dataproc client: %w", err)
	}
	defer client.Close()

	submit := BuildSubmitRequest(req)
	op, err := client.SubmitJobAsOperation(ctx, submit)
	if err != nil {
		return JobResult{}, fmt.Errorf("submit job to %s: %w", req.Cluster.ClusterName, err)
	}

	logger.From(ctx).Info("job submitted",
		zap.String("cluster", req.Cluster.ClusterName),
		zap.String("operation", op.Name()),
		zap.String("request_id", submit.GetRequestId()))

	job, err := op.Wait(ctx)
	if err != nil {
		return JobResult{}, fmt.Errorf("wait for job: %w", err)
	}
	return jobResult(job)
}

func jobResult(job *dataprocpb.Job) (JobResult, error) {
	res := JobResult{
		JobID:           job.GetReference().GetJobId(),
		State:           job.GetStatus().GetState().String(),
		DriverOutputURI: job.GetDriverOutputResourceUri(),
	}
	if job.GetStatus().GetState() != dataprocpb.JobStatus_DONE {
		return res, fmt.Errorf("%w: job %s is %s: %s", ErrJobFailed, res.JobID, res.State, job.GetStatus().GetDetails())
	}
	return res, nil
}
