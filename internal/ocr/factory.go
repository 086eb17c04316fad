/**
 * OCR Provider Factory
 *
 * Resolves providers by name, memoizes instances, and tracks per-provider
 * failure counts. A provider that keeps failing within the rolling window is
 * bypassed in favor of the fallback provider: a routing decision, not an
 * error. The circuit-breaker state is observable because every provider
 * handed out is wrapped in a decorator that records call outcomes.
 */

package ocr

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// failureThreshold trips the breaker for a provider name.
	failureThreshold = 3
	// failureWindow is how long recorded failures stay relevant.
	failureWindow = 10 * time.Minute
)

// providerHealth is the per-name failure counter. Owned exclusively by the
// factory: created on first failure, cleared on success or DisposeAll.
type providerHealth struct {
	failureCount int
	lastFailure  time.Time
}

// Builder constructs a provider instance on first resolution.
type Builder func() Provider

// Factory resolves, caches and health-tracks OCR providers.
type Factory struct {
	mu        sync.Mutex
	builders  map[string]Builder
	instances map[string]Provider
	health    map[string]*providerHealth
	fallback  string
}

// NewFactory creates a factory with the given fallback provider name. The
// fallback must be registered before the first resolution.
func NewFactory(fallback string) *Factory {
	return &Factory{
		builders:  make(map[string]Builder),
		instances: make(map[string]Provider),
		health:    make(map[string]*providerHealth),
		fallback:  normalizeName(fallback),
	}
}

// Register adds a provider builder under a name. Registration replaces any
// existing builder but leaves an already-built instance in place.
func (f *Factory) Register(name string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[normalizeName(name)] = builder
}

// GetProvider resolves a provider by name. Unhealthy providers are silently
// substituted with the fallback, trading fidelity for availability.
func (f *Factory) GetProvider(name string) (Provider, error) {
	normalized := normalizeName(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	if normalized != f.fallback && f.isUnhealthyLocked(normalized) {
		log.Printf("provider %q unhealthy (%d recent failures), substituting fallback %q",
			normalized, f.health[normalized].failureCount, f.fallback)
		normalized = f.fallback
	}

	return f.instanceLocked(normalized)
}

// instanceLocked returns the memoized wrapped instance, building it on
// first use. Callers hold f.mu.
func (f *Factory) instanceLocked(name string) (Provider, error) {
	if instance, ok := f.instances[name]; ok {
		return instance, nil
	}

	builder, ok := f.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown OCR provider: %q", name)
	}

	wrapped := &trackedProvider{
		inner:   builder(),
		factory: f,
		name:    name,
	}
	f.instances[name] = wrapped
	return wrapped, nil
}

// isUnhealthyLocked reports whether the breaker is tripped for a name.
func (f *Factory) isUnhealthyLocked(name string) bool {
	h, ok := f.health[name]
	if !ok {
		return false
	}
	if time.Since(h.lastFailure) > failureWindow {
		return false
	}
	return h.failureCount >= failureThreshold
}

// recordFailure increments the failure counter for a name.
func (f *Factory) recordFailure(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.health[name]
	if !ok {
		h = &providerHealth{}
		f.health[name] = h
	}
	h.failureCount++
	h.lastFailure = time.Now()

	log.Printf("provider %q failure recorded (count=%d)", name, h.failureCount)
}

// recordSuccess resets the failure counter for a name.
func (f *Factory) recordSuccess(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.health, name)
}

// DisposeAll disposes every cached provider instance and clears both the
// instance cache and the health map. Used at teardown, not per-document.
func (f *Factory) DisposeAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for name, instance := range f.instances {
		if err := instance.Dispose(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to dispose provider %q: %w", name, err)
		}
	}

	f.instances = make(map[string]Provider)
	f.health = make(map[string]*providerHealth)

	return firstErr
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// trackedProvider decorates a provider so that ExtractText outcomes feed the
// factory's health map. It implements the same interface and delegates
// everything else untouched.
type trackedProvider struct {
	inner   Provider
	factory *Factory
	name    string
}

func (t *trackedProvider) ExtractText(ctx context.Context, data []byte, mimeType string, language string, onProgress ProgressFunc) (*Result, error) {
	result, err := t.inner.ExtractText(ctx, data, mimeType, language, onProgress)
	if err != nil {
		t.factory.recordFailure(t.name)
		return nil, err
	}

	t.factory.recordSuccess(t.name)
	return result, nil
}

func (t *trackedProvider) SupportsFileType(mimeType string) bool { return t.inner.SupportsFileType(mimeType) }
func (t *trackedProvider) SupportedFileTypes() []string          { return t.inner.SupportedFileTypes() }
func (t *trackedProvider) Name() string                          { return t.inner.Name() }
func (t *trackedProvider) Dispose() error                        { return t.inner.Dispose() }
