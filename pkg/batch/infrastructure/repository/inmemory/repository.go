// Package inmemory provides an in-memory JobRepository.
// Nothing survives the process, so it suits tests and dry runs; restart across
// processes needs the sql repository.
package inmemory

import (
	"sync"

	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository keeps executions in maps guarded by a mutex.
// It stores copies, so callers never share state with the repository.
type InMemoryJobRepository struct {
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	// seq orders rows by insertion; timestamps can collide within a test.
	seq     map[string]int64
	nextSeq int64
	mu      sync.RWMutex
}

// Verify that InMemoryJobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// NewInMemoryJobRepository creates an empty repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		seq:            make(map[string]int64),
	}
}

// Close implements repository.JobRepository. It holds no external resources.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func (r *InMemoryJobRepository) track(id string) {
	r.nextSeq++
	r.seq[id] = r.nextSeq
}
