/**
 * OCR Engine Manager for DocIntake Worker
 *
 * Owns the lifecycle of the Tesseract engine handle (via gosseract). The
 * engine is heavyweight and lazily initialized: concurrent callers share one
 * in-flight initialization, initialization self-tests the engine against a
 * rendered sample before marking it ready, and a failed initialization is
 * sticky until Dispose.
 */

package ocr

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	liberrors "github.com/adverant/nexus/docintake-worker/internal/errors"
	libimaging "github.com/adverant/nexus/docintake-worker/internal/imaging"
)

type engineState int

const (
	stateUninitialized engineState = iota
	stateInitializing
	stateReady
	stateFailed
)

const (
	initAttempts    = 3
	initBackoff     = 2 * time.Second
	initTimeout     = 60 * time.Second
	selfTestText    = "DOCINTAKE"
	selfTestScale   = 6
	selfTestPadding = 24
)

// engineClient is the slice of the gosseract client the manager drives. The
// concrete *gosseract.Client satisfies it.
type engineClient interface {
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// EngineManager manages a single shared Tesseract engine handle.
//
// State machine: Uninitialized -> Initializing -> Ready, or
// Initializing -> Failed. Failed is sticky: every request returns the stored
// error until Dispose resets the manager.
//
// The handle itself carries per-call image state in native memory, so all
// recognition goes through Recognize, which serializes set-image/get-boxes
// cycles; Dispose takes the same lock and cannot close the engine while a
// recognition is in flight.
type EngineManager struct {
	mu             sync.Mutex
	recMu          sync.Mutex
	state          engineState
	client         engineClient
	initErr        error
	inflight       chan struct{}
	languages      []string
	tessdataPrefix string

	load    func() (engineClient, error)
	backoff time.Duration
	timeout time.Duration
}

// NewEngineManager creates a manager configured for the given recognition
// languages (our tags, not Tesseract names). The engine is not loaded until
// the first Engine call.
func NewEngineManager(languages []string, tessdataPrefix string) *EngineManager {
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	m := &EngineManager{
		state:          stateUninitialized,
		languages:      languages,
		tessdataPrefix: tessdataPrefix,
		backoff:        initBackoff,
		timeout:        initTimeout,
	}
	m.load = m.loadEngine
	return m
}

// Engine returns the ready engine handle, initializing it on first use.
// Concurrent callers during initialization all wait on the same attempt.
func (m *EngineManager) Engine() (engineClient, error) {
	m.mu.Lock()

	switch m.state {
	case stateReady:
		client := m.client
		m.mu.Unlock()
		return client, nil

	case stateFailed:
		err := m.initErr
		m.mu.Unlock()
		return nil, err

	case stateUninitialized:
		m.state = stateInitializing
		m.inflight = make(chan struct{})
		wait := m.inflight
		m.mu.Unlock()
		go m.initialize()
		return m.await(wait)

	default: // stateInitializing
		wait := m.inflight
		m.mu.Unlock()
		return m.await(wait)
	}
}

// await blocks until the shared initialization finishes or the wall-clock
// timeout elapses. A timeout is recorded as the canonical failure so every
// waiter observes the same outcome.
func (m *EngineManager) await(wait chan struct{}) (engineClient, error) {
	select {
	case <-wait:
	case <-time.After(m.timeout):
		m.failInit(fmt.Errorf("engine initialization exceeded %v", m.timeout))
		<-wait
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateReady {
		return m.client, nil
	}
	return nil, m.initErr
}

// initialize runs the attempt loop in a single goroutine. Each attempt loads
// the engine and self-tests it; an engine that loads but misrecognizes a
// clean synthetic sample is treated as failed, not ready.
func (m *EngineManager) initialize() {
	var lastErr error

	for attempt := 1; attempt <= initAttempts; attempt++ {
		if m.aborted() {
			return
		}

		log.Printf("OCR engine initialization attempt %d/%d (languages=%s)",
			attempt, initAttempts, strings.Join(m.languages, ","))

		client, err := m.load()
		if err == nil {
			if err = m.selfTest(client); err == nil {
				m.completeInit(client)
				log.Printf("OCR engine ready (self-test passed)")
				return
			}
			client.Close()
		}

		lastErr = err
		log.Printf("OCR engine initialization attempt %d failed: %v", attempt, err)

		if attempt < initAttempts {
			time.Sleep(m.backoff)
		}
	}

	m.failInit(liberrors.NewEngineInitFailedError(initAttempts, lastErr))
}

// loadEngine constructs and configures a gosseract client.
func (m *EngineManager) loadEngine() (engineClient, error) {
	client := gosseract.NewClient()

	if m.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(m.tessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	tessLangs := make([]string, 0, len(m.languages))
	for _, lang := range m.languages {
		tessLangs = append(tessLangs, tesseractLanguage(lang))
	}
	if err := client.SetLanguage(tessLangs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set languages %v: %w", tessLangs, err)
	}

	return client, nil
}

// selfTest renders a known string, recognizes it, and requires the engine's
// output to contain the string case-insensitively.
func (m *EngineManager) selfTest(client engineClient) error {
	sample, err := renderSelfTestImage(selfTestText)
	if err != nil {
		return fmt.Errorf("failed to render self-test sample: %w", err)
	}

	if err := client.SetImageFromBytes(sample); err != nil {
		return fmt.Errorf("self-test: failed to set image: %w", err)
	}

	recognized, err := client.Text()
	if err != nil {
		return fmt.Errorf("self-test recognition failed: %w", err)
	}

	if !strings.Contains(strings.ToLower(recognized), strings.ToLower(selfTestText)) {
		return fmt.Errorf("self-test mismatch: expected %q in output, got %q", selfTestText, recognized)
	}

	return nil
}

func (m *EngineManager) completeInit(client engineClient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateInitializing {
		// A waiter timed out and already failed the initialization;
		// the late engine must not leak.
		client.Close()
		return
	}

	m.client = client
	m.initErr = nil
	m.state = stateReady
	close(m.inflight)
}

func (m *EngineManager) failInit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateInitializing {
		return
	}

	m.initErr = err
	m.state = stateFailed
	close(m.inflight)
}

func (m *EngineManager) aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != stateInitializing
}

// Recognize runs one set-image/get-boxes cycle on the shared engine,
// initializing it on first use. The native handle keeps the current image as
/// mutable state, so cycles are serialized: interleaved calls from concurrent
// pages would read each other's results.
func (m *EngineManager) Recognize(png []byte) ([]gosseract.BoundingBox, error) {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	engine, err := m.Engine()
	if err != nil {
		return nil, err
	}

	if err := engine.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := engine.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	return boxes, nil
}

// Dispose releases the engine handle and resets to Uninitialized, clearing
// any sticky failure. It waits for an in-flight recognition rather than
// closing the engine underneath it.
func (m *EngineManager) Dispose() error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.client != nil {
		err = m.client.Close()
		m.client = nil
	}

	m.state = stateUninitialized
	m.initErr = nil
	m.inflight = nil

	return err
}

// renderSelfTestImage draws the sample string with the basic bitmap font and
// upscales it so Tesseract sees comfortably large glyphs.
func renderSelfTestImage(text string) ([]byte, error) {
	face := basicfont.Face7x13
	width := len(text)*face.Advance + 2*selfTestPadding
	height := face.Height + 2*selfTestPadding

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(selfTestPadding, selfTestPadding+face.Ascent),
	}
	drawer.DrawString(text)

	scaled := imaging.Resize(canvas, width*selfTestScale, 0, imaging.NearestNeighbor)

	return libimaging.EncodePNG(scaled)
}
