package runner

import (
	"context"
	"fmt"
	"maps"
	"os/exec"
	"slices"

	"go.uber.org/zap"

	"github.com/SyneHQ/backfill/logger"
)

// LocalRunner runs the batch program with spark-submit inside a container.
// The cluster details only end up as environment for the program.
type LocalRunner struct {
	Image  string
	Binary string
}

func NewLocalRunner(image string) *LocalRunner {
	return &LocalRunner{Image: image, Binary: "docker"}
}

func (l *LocalRunner) SubmitJob(ctx context.Context, req JobRequest) (JobResult, error) {
	args := l.command(req)
	logger.From(ctx).Info("running job locally", zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, l.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return JobResult{JobID: req.RequestID(), State: "ERROR"}, fmt.Errorf("local run failed: %w: %s", err, string(out))
	}
	return JobResult{JobID: req.RequestID(), State: "DONE", DriverOutputURI: "stdout"}, nil
}

func (l *LocalRunner) command(req JobRequest) []string {
	args := []string{"run", "--rm"}
	args = append(args,
		"-e", "CLUSTER_NAME="+req.Cluster.ClusterName,
		"-e", "PROJECT_ID="+req.Cluster.ProjectID,
		"-e", "REGION="+req.Cluster.Region,
	)
	for _, k := range slices.Sorted(maps.Keys(req.Labels)) {
		args = append(args, "--label", k+"="+req.Labels[k])
	}
	args = append(args, l.Image, "spark-submit", req.MainPythonFileURI)
	return append(args, req.Args...)
}
