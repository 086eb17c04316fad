package ocr

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name     string
	err      error
	calls    int
	disposed int
}

func (p *fakeProvider) ExtractText(ctx context.Context, data []byte, mimeType string, language string, onProgress ProgressFunc) (*Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Result{Text: "ok", Confidence: 0.9, Language: language}, nil
}

func (p *fakeProvider) SupportsFileType(mimeType string) bool { return true }
func (p *fakeProvider) SupportedFileTypes() []string          { return []string{"image/png"} }
func (p *fakeProvider) Name() string                          { return p.name }
func (p *fakeProvider) Dispose() error                        { p.disposed++; return nil }

func newTestFactory(t *testing.T) (*Factory, *fakeProvider, *fakeProvider) {
	t.Helper()
	flaky := &fakeProvider{name: "flaky", err: errors.New("engine crashed")}
	solid := &fakeProvider{name: "solid"}

	f := NewFactory("solid")
	f.Register("flaky", func() Provider { return flaky })
	f.Register("solid", func() Provider { return solid })
	return f, flaky, solid
}

func TestGetProviderUnknownName(t *testing.T) {
	f, _, _ := newTestFactory(t)
	if _, err := f.GetProvider("nonexistent"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestGetProviderMemoizesInstances(t *testing.T) {
	f, _, _ := newTestFactory(t)

	first, err := f.GetProvider("solid")
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	second, err := f.GetProvider("solid")
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	if first != second {
		t.Errorf("expected the same memoized instance")
	}
}

func TestBreakerSubstitutesFallbackAfterThreshold(t *testing.T) {
	f, flaky, _ := newTestFactory(t)

	provider, err := f.GetProvider("flaky")
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}

	for i := 0; i < failureThreshold; i++ {
		if _, err := provider.ExtractText(context.Background(), []byte("img"), "image/png", "en", nil); err == nil {
			t.Fatalf("expected extraction failure")
		}
	}
	if flaky.calls != failureThreshold {
		t.Fatalf("flaky calls = %d, want %d", flaky.calls, failureThreshold)
	}

	substituted, err := f.GetProvider("flaky")
	if err != nil {
		t.Fatalf("GetProvider after trips: %v", err)
	}
	if substituted.Name() != "solid" {
		t.Errorf("provider = %q, want fallback %q", substituted.Name(), "solid")
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	f, _, _ := newTestFactory(t)

	provider, _ := f.GetProvider("flaky")
	for i := 0; i < failureThreshold-1; i++ {
		provider.ExtractText(context.Background(), []byte("img"), "image/png", "en", nil)
	}

	got, _ := f.GetProvider("flaky")
	if got.Name() != "flaky" {
		t.Errorf("provider = %q, should not substitute below threshold", got.Name())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	f, flaky, _ := newTestFactory(t)

	provider, _ := f.GetProvider("flaky")
	ctx := context.Background()
	provider.ExtractText(ctx, []byte("img"), "image/png", "en", nil)
	provider.ExtractText(ctx, []byte("img"), "image/png", "en", nil)

	flaky.err = nil
	if _, err := provider.ExtractText(ctx, []byte("img"), "image/png", "en", nil); err != nil {
		t.Fatalf("recovered extraction failed: %v", err)
	}

	flaky.err = errors.New("engine crashed again")
	provider.ExtractText(ctx, []byte("img"), "image/png", "en", nil)
	provider.ExtractText(ctx, []byte("img"), "image/png", "en", nil)

	got, _ := f.GetProvider("flaky")
	if got.Name() != "flaky" {
		t.Errorf("counter should have reset on success; got fallback substitution")
	}
}

func TestBreakerFailuresExpireWithWindow(t *testing.T) {
	f, _, _ := newTestFactory(t)

	provider, _ := f.GetProvider("flaky")
	for i := 0; i < failureThreshold; i++ {
		provider.ExtractText(context.Background(), []byte("img"), "image/png", "en", nil)
	}

	f.mu.Lock()
	f.health["flaky"].lastFailure = time.Now().Add(-failureWindow - time.Minute)
	f.mu.Unlock()

	got, _ := f.GetProvider("flaky")
	if got.Name() != "flaky" {
		t.Errorf("stale failures should not trip the breaker")
	}
}

func TestFallbackNeverSubstituted(t *testing.T) {
	flaky := &fakeProvider{name: "solid", err: errors.New("down")}
	f := NewFactory("solid")
	f.Register("solid", func() Provider { return flaky })

	provider, _ := f.GetProvider("solid")
	for i := 0; i < failureThreshold+2; i++ {
		provider.ExtractText(context.Background(), []byte("img"), "image/png", "en", nil)
	}

	got, err := f.GetProvider("solid")
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	if got.Name() != "solid" {
		t.Errorf("fallback must keep resolving to itself")
	}
}

func TestDisposeAllClearsInstancesAndHealth(t *testing.T) {
	f, flaky, solid := newTestFactory(t)

	f.GetProvider("flaky")
	provider, _ := f.GetProvider("solid")
	provider.ExtractText(context.Background(), []byte("img"), "image/png", "en", nil)

	if err := f.DisposeAll(); err != nil {
		t.Fatalf("DisposeAll: %v", err)
	}
	if flaky.disposed != 1 || solid.disposed != 1 {
		t.Errorf("dispose counts = %d/%d, want 1/1", flaky.disposed, solid.disposed)
	}

	f.mu.Lock()
	instances, health := len(f.instances), len(f.health)
	f.mu.Unlock()
	if instances != 0 || health != 0 {
		t.Errorf("instances=%d health=%d after DisposeAll, want 0/0", instances, health)
	}
}
