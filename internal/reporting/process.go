package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/storage"
)

var ErrUnknownReportType = errors.New("unknown report type")

// Process generates one report type and searches jobs of that type.
type Process interface {
	Name() string
	// Run executes the job. Failures are absorbed into the job's persisted state; the
	// returned error only reports what happened.
	Run(ctx context.Context, job models.ReportJob) error
	Search(ctx context.Context, ownerID int64, reportName string, params url.Values, page, pageSize int) ([]models.ReportJob, int64, error)
}

// Scheduler hands a persisted job to an asynchronous executor.
type Scheduler interface {
	Schedule(ctx context.Context, job models.ReportJob) error
}

// Renderer turns a written data artifact into the final output document and owns every
// progress update past the data-written checkpoint.
type Renderer interface {
	RenderReport(ctx context.Context, job models.ReportJob) error
}

// NopRenderer leaves jobs at the data-written checkpoint.
type NopRenderer struct{}

func (NopRenderer) RenderReport(context.Context, models.ReportJob) error { return nil }

// ArtifactStore allocates and removes report artifacts.
type ArtifactStore interface {
	CreateDataOutputFile(ext string) (storage.DataFile, error)
	Remove(name string) error
}

// Registry maps report type names to processes. It is filled at startup and sealed.
type Registry struct {
	mu        sync.RWMutex
	sealed    bool
	processes map[string]Process
}

func NewRegistry(processes ...Process) *Registry {
	r := &Registry{processes: make(map[string]Process)}
	for _, p := range processes {
		r.Register(p)
	}
	return r
}

// Register adds a process under its name. It panics on a sealed registry or a duplicate name.
func (r *Registry) Register(p Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("reporting: register %q on sealed registry", p.Name()))
	}
	if _, dup := r.processes[p.Name()]; dup {
		panic(fmt.Sprintf("reporting: report type %q registered twice", p.Name()))
	}
	r.processes[p.Name()] = p
}

func (r *Registry) Resolve(reportType string) (Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processes[reportType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportType, reportType)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processes))
	for name := range r.processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
