package reconcile

import (
	"context"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// Result carries a job's sweep counters.
type Result struct {
	Processed int
	Fixed     int
}

// Job is one drift-correction sweep. Jobs are stateless and idempotent;
// re-running a sweep is always safe.
type Job interface {
	Name() string
	Type() enums.SyncRunType
	Run(ctx context.Context) (Result, error)
}

// Registry maps trigger names to jobs. Built once at startup and passed by
// reference; it is never mutated after construction.
type Registry struct {
	jobs  map[string]Job
	order []string
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{jobs: map[string]Job{}}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if _, exists := registry.jobs[job.Name()]; exists {
			continue
		}
		registry.jobs[job.Name()] = job
		registry.order = append(registry.order, job.Name())
	}
	return registry
}

// Get resolves a job by its trigger name.
func (r *Registry) Get(name string) (Job, bool) {
	job, ok := r.jobs[name]
	return job, ok
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		jobs = append(jobs, r.jobs[name])
	}
	return jobs
}
