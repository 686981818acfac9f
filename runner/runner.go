package runner

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/dataproc/v2/apiv1/dataprocpb"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	config "github.com/SyneHQ/backfill"
)

// ErrJobFailed reports a job that reached a terminal state other than DONE.
var ErrJobFailed = errors.New("job did not finish successfully")

// requestNamespace seeds deterministic submission request ids.
var requestNamespace = uuid.MustParse("6f1c7a52-5d3e-4b8a-9a57-0f6c2d9e4b11")

type JobRequest struct {
	DagID             string
	RunID             string
	TaskID            string
	Try               int
	Cluster           config.ClusterDetails
	MainPythonFileURI string
	Args              []string
	Labels            map[string]string
}

type JobResult struct {
	JobID           string
	State           string
	DriverOutputURI string
}

// Runner submits a job and blocks until the cluster reports a terminal state.
// Cancelling ctx stops the wait; it does not cancel the job on the cluster.
type Runner interface {
	SubmitJob(ctx context.Context, req JobRequest) (JobResult, error)
}

// DateArg renders the single argument handed to the batch program.
func DateArg(resolvedDate string) string {
	return "--date=" + resolvedDate
}

// RequestID is stable for a given run, task and try so a resubmitted
// request is deduplicated by the job service.
func (r JobRequest) RequestID() string {
	return uuid.NewSHA1(requestNamespace, []byte(fmt.Sprintf("%s/%s/%s/%d", r.DagID, r.RunID, r.TaskID, r.Try))).String()
}

// BuildSubmitRequest builds the job description addressed to the cluster
// named by req.Cluster.
func BuildSubmitRequest(req JobRequest) *dataprocpb.SubmitJobRequest {
	args := make([]string, len(req.Args))
	copy(args, req.Args)

	labels := make(map[string]string, len(req.Labels))
	for k, v := range req.Labels {
		labels[k] = v
	}

	return &dataprocpb.SubmitJobRequest{
		ProjectId: req.Cluster.ProjectID,
		Region:    req.Cluster.Region,
		RequestId: req.RequestID(),
		Job: &dataprocpb.Job{
			Placement: &dataprocpb.JobPlacement{
				ClusterName: req.Cluster.ClusterName,
			},
			TypeJob: &dataprocpb.Job_PysparkJob{
				PysparkJob: &dataprocpb.PySparkJob{
					MainPythonFileUri: req.MainPythonFileURI,
					Args:              args,
				},
			},
			Labels: labels,
		},
	}
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.FailedPrecondition, codes.Unauthenticated, codes.Unimplemented:
		return true
	}
	return false
}
