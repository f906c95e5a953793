// Package standards provides the catalogue of reference datasets used for
// absolute-intensity calibration. The registry is populated once at process
// start and is read-shared thereafter; entries are immutable after
// registration.
//
// Built-in standards:
//
//	SRM3600: NIST glassy carbon primary standard (fixed 15-point table).
//	Water:   flat 0.01632 1/cm at 20 degC, with a compressibility-based
//	         temperature model valid over 4..40 degC.
package standards

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownStandard indicates a lookup of a name that was never registered.
var ErrUnknownStandard = errors.New("unknown calibration standard")

// ErrStandardExists indicates an attempt to re-register an existing name.
// Registration is additive only; built-in entries cannot be shadowed.
var ErrStandardExists = errors.New("calibration standard already registered")

// Reference is a concrete, resolved reference dataset: a grid of x values
// in ascending order with the certified intensity at each point. Errs may
// be nil when the certificate carries no per-point uncertainty.
type Reference struct {
	Name     string
	Grid     []float64
	Values   []float64
	Errs     []float64
	Citation string
}

// ResolveOptions parametrize provider resolution. Fields are ignored by
// providers they do not apply to.
type ResolveOptions struct {
	// TemperatureC selects the evaluation temperature for parametric
	// models such as water. Nil means the provider's reference condition.
	TemperatureC *float64
	// GridMin/GridMax/GridPoints control grid synthesis for flat
	// (x-independent) standards. Zero values select provider defaults.
	GridMin    float64
	GridMax    float64
	GridPoints int
}

// Provider resolves a named standard into a concrete reference grid. The
// two built-in kinds are FixedTable (certified q-I curves) and parametric
// models (evaluated at resolve time, e.g. water at a given temperature).
type Provider interface {
	Resolve(opts ResolveOptions) (Reference, error)
}

// FixedTable is a Provider backed by a static certified table.
type FixedTable struct {
	Name     string
	Grid     []float64
	Values   []float64
	Errs     []float64
	Citation string
}

// Resolve returns a copy of the table; callers cannot mutate registry state
// through the result.
func (t FixedTable) Resolve(ResolveOptions) (Reference, error) {
	if len(t.Grid) != len(t.Values) || len(t.Grid) == 0 {
		return Reference{}, fmt.Errorf("standard %q: malformed reference table", t.Name)
	}
	ref := Reference{
		Name:     t.Name,
		Grid:     append([]float64(nil), t.Grid...),
		Values:   append([]float64(nil), t.Values...),
		Citation: t.Citation,
	}
	if t.Errs != nil {
		ref.Errs = append([]float64(nil), t.Errs...)
	}
	return ref, nil
}

// Registry is a name-keyed catalogue of reference providers. Registration
// is serialized; lookups of existing entries are safe for unlimited
// concurrent use since entries are immutable once registered.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns a registry pre-populated with the built-in standards.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.providers["SRM3600"] = srm3600Table()
	r.providers["Water"] = WaterModel{}
	return r
}

// Register adds a named provider. Names are write-once: registering over an
// existing name (built-in or custom) fails with ErrStandardExists.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return fmt.Errorf("standard registration requires a name and a provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %q", ErrStandardExists, name)
	}
	r.providers[name] = p
	return nil
}

// Names returns the registered standard names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// Resolve looks up a standard by name and resolves it to a concrete
// reference grid. Fails with ErrUnknownStandard for unregistered names.
func (r *Registry) Resolve(name string, opts ResolveOptions) (Reference, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnknownStandard, name)
	}
	return p.Resolve(opts)
}
