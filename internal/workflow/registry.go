package workflow

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/shelfline/flightrec/model"
)

// snapshot is an immutable collection of templates indexed by ID and by
// trigger endpoint.
type snapshot struct {
	byID      map[string]model.WorkflowTemplate
	byTrigger map[string]model.WorkflowTemplate
	checksum  string
}

// Registry is a read-optimized, thread-safe store of loaded templates. It
// uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given templates.
func NewRegistry(templates []model.WorkflowTemplate) *Registry {
	r := &Registry{}
	r.Replace(templates)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given templates.
func (r *Registry) Replace(templates []model.WorkflowTemplate) {
	s := &snapshot{
		byID:      make(map[string]model.WorkflowTemplate, len(templates)),
		byTrigger: make(map[string]model.WorkflowTemplate, len(templates)),
	}

	var checksumParts []string
	for _, tpl := range templates {
		s.byID[tpl.ID] = tpl
		if tpl.Trigger != "" {
			s.byTrigger[tpl.Trigger] = tpl
		}
		checksumParts = append(checksumParts, tpl.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the template with the given ID.
func (r *Registry) Get(templateID string) (model.WorkflowTemplate, bool) {
	t, ok := r.current().byID[templateID]
	return t, ok
}

// ByTrigger returns the template whose trigger matches the given endpoint.
func (r *Registry) ByTrigger(endpoint string) (model.WorkflowTemplate, bool) {
	t, ok := r.current().byTrigger[endpoint]
	return t, ok
}

// All returns all loaded templates sorted by ID.
func (r *Registry) All() []model.WorkflowTemplate {
	s := r.current()
	templates := make([]model.WorkflowTemplate, 0, len(s.byID))
	for _, t := range s.byID {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates
}

// Len returns the number of loaded templates.
func (r *Registry) Len() int {
	return len(r.current().byID)
}

// Checksum returns the combined checksum of all loaded templates.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
