package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// fakeEngine stands in for the native client: SetImageFromBytes stores the
// current image, GetBoundingBoxes echoes it back after an optional delay, so
// interleaved cycles would visibly return the wrong page.
type fakeEngine struct {
	mu        sync.Mutex
	image     []byte
	text      string
	boxDelay  time.Duration
	closed    int32
	started   chan struct{}
	startOnce sync.Once
}

func newFakeEngine(text string) *fakeEngine {
	return &fakeEngine{text: text, started: make(chan struct{})}
}

func (f *fakeEngine) SetImageFromBytes(data []byte) error {
	f.startOnce.Do(func() { close(f.started) })
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = data
	return nil
}

func (f *fakeEngine) Text() (string, error) {
	return f.text, nil
}

func (f *fakeEngine) GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	time.Sleep(f.boxDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	return []gosseract.BoundingBox{{
		Word:       string(f.image),
		Confidence: 90,
		Box:        image.Rect(0, 0, 100, 20),
	}}, nil
}

func (f *fakeEngine) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func newFakeManager(load func() (engineClient, error)) *EngineManager {
	m := NewEngineManager([]string{"en"}, "")
	m.load = load
	m.backoff = time.Millisecond
	m.timeout = time.Second
	return m
}

func TestEngineSingleFlightInit(t *testing.T) {
	var loads int32
	m := newFakeManager(func() (engineClient, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(20 * time.Millisecond)
		return newFakeEngine(selfTestText), nil
	})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Engine()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Errorf("loads = %d, want one shared initialization", got)
	}
}

func TestEngineInitFailureSticky(t *testing.T) {
	var loads int32
	m := newFakeManager(func() (engineClient, error) {
		atomic.AddInt32(&loads, 1)
		return nil, errors.New("no traineddata")
	})

	_, err := m.Engine()
	if err == nil {
		t.Fatalf("expected initialization failure")
	}
	if got := atomic.LoadInt32(&loads); got != initAttempts {
		t.Errorf("loads = %d, want %d attempts", got, initAttempts)
	}

	_, err2 := m.Engine()
	if err2 == nil {
		t.Fatalf("failure must be sticky")
	}
	if err2 != err {
		t.Errorf("sticky failure should return the stored error")
	}
	if got := atomic.LoadInt32(&loads); got != initAttempts {
		t.Errorf("loads = %d after second call, sticky failure must not retry", got)
	}
}

func TestEngineSelfTestRejection(t *testing.T) {
	engines := make([]*fakeEngine, 0, initAttempts)
	m := newFakeManager(func() (engineClient, error) {
		e := newFakeEngine("garbage output")
		engines = append(engines, e)
		return e, nil
	})

	_, err := m.Engine()
	if err == nil {
		t.Fatalf("an engine that misreads the sample must not become ready")
	}
	if !strings.Contains(err.Error(), "self-test") {
		t.Errorf("error should surface the self-test: %v", err)
	}
	if len(engines) != initAttempts {
		t.Fatalf("attempts = %d, want %d", len(engines), initAttempts)
	}
	for i, e := range engines {
		if atomic.LoadInt32(&e.closed) != 1 {
			t.Errorf("rejected engine %d was not closed", i)
		}
	}
}

func TestEngineDisposeResetsStickyFailure(t *testing.T) {
	healthy := false
	m := newFakeManager(func() (engineClient, error) {
		if !healthy {
			return nil, errors.New("tesseract missing")
		}
		return newFakeEngine(selfTestText), nil
	})

	if _, err := m.Engine(); err == nil {
		t.Fatalf("expected initial failure")
	}

	if err := m.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	healthy = true
	if _, err := m.Engine(); err != nil {
		t.Errorf("Dispose should clear the sticky failure: %v", err)
	}
}

func TestEngineInitTimeoutFailsAllWaiters(t *testing.T) {
	release := make(chan struct{})
	var late *fakeEngine
	m := newFakeManager(func() (engineClient, error) {
		<-release
		late = newFakeEngine(selfTestText)
		return late, nil
	})
	m.timeout = 30 * time.Millisecond

	const waiters = 3
	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Engine()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil || !strings.Contains(err.Error(), "exceeded") {
			t.Errorf("waiter %d: err = %v, want timeout failure", i, err)
		}
	}

	// The loader finishing late must not resurrect the failed state, and
	// its engine must not leak.
	close(release)
	deadline := time.Now().Add(time.Second)
	for late == nil || atomic.LoadInt32(&late.closed) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("late engine was not closed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Engine(); err == nil {
		t.Errorf("timeout failure must be sticky")
	}
}

func TestRecognizeSerializesEngineCycles(t *testing.T) {
	engine := newFakeEngine(selfTestText)
	engine.boxDelay = 5 * time.Millisecond
	m := newFakeManager(func() (engineClient, error) { return engine, nil })

	const pages = 8
	var wg sync.WaitGroup
	got := make([]string, pages)
	errs := make([]error, pages)
	for i := 0; i < pages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("page-%d", i))
			boxes, err := m.Recognize(payload)
			if err != nil {
				errs[i] = err
				return
			}
			if len(boxes) == 1 {
				got[i] = boxes[0].Word
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < pages; i++ {
		if errs[i] != nil {
			t.Fatalf("page %d: %v", i, errs[i])
		}
		if want := fmt.Sprintf("page-%d", i); got[i] != want {
			t.Errorf("page %d received %q: concurrent cycles interleaved", i, got[i])
		}
	}
}

func TestDisposeWaitsForInFlightRecognition(t *testing.T) {
	engine := newFakeEngine(selfTestText)
	engine.boxDelay = 50 * time.Millisecond
	m := newFakeManager(func() (engineClient, error) { return engine, nil })

	// Warm up so Recognize below doesn't race initialization.
	if _, err := m.Engine(); err != nil {
		t.Fatalf("Engine: %v", err)
	}
	engine.started = make(chan struct{})
	engine.startOnce = sync.Once{}

	type outcome struct {
		word string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		boxes, err := m.Recognize([]byte("page-under-dispose"))
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{word: boxes[0].Word}
	}()

	<-engine.started
	if err := m.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("recognition interrupted by dispose: %v", res.err)
	}
	if res.word != "page-under-dispose" {
		t.Errorf("word = %q, recognition must complete before the engine closes", res.word)
	}
	if atomic.LoadInt32(&engine.closed) == 0 {
		t.Errorf("dispose should close the engine once recognition finished")
	}
}
