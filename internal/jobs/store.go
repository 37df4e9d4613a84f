package jobs

import "context"

// Store persists job states for queue restart recovery.
type Store interface {
	LoadJobs(ctx context.Context) ([]*NarrationJob, error)
	UpsertJob(ctx context.Context, job *NarrationJob) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteJobData removes everything stored alongside a job, such as its
	// caption timeline.
	DeleteJobData(ctx context.Context, jobID string) error
}
