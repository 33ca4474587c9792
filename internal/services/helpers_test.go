package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil/pdftest"
	"github.com/Lllllllleong/ocrworker/internal/recognizer"
	"github.com/Lllllllleong/ocrworker/internal/storage"
	"github.com/Lllllllleong/ocrworker/internal/store"
)

// fakeEngine copies its input page, or converts an image input, and writes a
// sidecar. Pages are told apart by their MediaBox width: page n is 100+n
// points wide.
type fakeEngine struct {
	mu       sync.Mutex
	calls    map[int]int
	failures map[int]int
	noText   map[int]bool
	images   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: map[int]int{}, failures: map[int]int{}, noText: map[int]bool{}}
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(_ context.Context, req recognizer.Request) (recognizer.Result, error) {
	page := 1
	if !req.Image {
		var err error
		if page, err = pageOf(req.InputPath); err != nil {
			return recognizer.Result{}, err
		}
	}
	e.mu.Lock()
	if req.Image {
		e.images++
	}
	e.calls[page]++
	attempt := e.calls[page]
	failures := e.failures[page]
	noText := e.noText[page]
	e.mu.Unlock()

	if attempt <= failures {
		return recognizer.Result{}, errors.New("engine unavailable")
	}
	convert := pdfutil.CopyFile
	if req.Image {
		convert = pdfutil.ImageToPDF
	}
	if err := convert(req.InputPath, req.OutputPDF); err != nil {
		return recognizer.Result{}, err
	}
	res := recognizer.Result{OutputPDF: req.OutputPDF}
	if noText {
		return res, nil
	}
	if err := os.WriteFile(req.SidecarPath, []byte(pageText(page, req.Language)), 0o644); err != nil {
		return recognizer.Result{}, err
	}
	res.SidecarPath = req.SidecarPath
	return res, nil
}

func (e *fakeEngine) callCount(page int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[page]
}

func (e *fakeEngine) imageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images
}

func pageText(page int, lang string) string {
	return fmt.Sprintf("text of page %d (%s)", page, lang)
}

func pageOf(path string) (int, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return 0, err
	}
	if len(dims) != 1 {
		return 0, fmt.Errorf("engine input has %d pages", len(dims))
	}
	// Pages not built by pdftest, such as converted images, count as page 1.
	if w := int(dims[0].Width); w > 100 && w < 200 {
		return w - 100, nil
	}
	return 1, nil
}

func pageWidths(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = float64(101 + i)
	}
	return w
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (n *recordingNotifier) NotifyIndex(_ context.Context, documentIDs []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, documentIDs)
	return n.err
}

// memRemote is an in-memory object tier.
type memRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemRemote() *memRemote { return &memRemote{objects: map[string][]byte{}} }

func (m *memRemote) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memRemote) Download(_ context.Context, key string, w io.Writer) error {
	m.mu.Lock()
	b, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return errors.New("object not found")
	}
	_, err := io.Copy(w, bytes.NewReader(b))
	return err
}

func (m *memRemote) UploadFile(_ context.Context, localPath, key string, ifAbsent bool) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok && ifAbsent {
		return nil
	}
	m.objects[key] = b
	return nil
}

func (m *memRemote) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memRemote) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type harness struct {
	orch     *Orchestrator
	deps     *Deps
	engine   *fakeEngine
	notifier *recordingNotifier
}

func newHarness(t *testing.T, remote storage.Remote) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Store = config.StoreBolt
	cfg.MediaRoot = t.TempDir()
	cfg.Concurrency = 4
	cfg.MaxRetries = 2

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "ocr.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := &harness{engine: newFakeEngine(), notifier: &recordingNotifier{}}
	h.deps = &Deps{
		Config:   cfg,
		Store:    st,
		Tier:     storage.New(cfg.MediaRoot, remote, ""),
		Engine:   h.engine,
		Notifier: h.notifier,
	}
	h.orch = NewOrchestrator(h.deps)
	h.orch.retry.InitialBackoff = time.Millisecond
	h.orch.retry.MaxBackoff = 2 * time.Millisecond
	return h
}

// seed stores a document whose first version is fileName with pageCount
// pages, and writes the source PDF into the media root.
func (h *harness) seed(t *testing.T, fileName string, pageCount int) models.DocumentVersion {
	t.Helper()
	v := h.seedMetadata(t, fileName, pageCount)
	pdftest.Write(t, h.deps.Tier.Abs(storage.DocVersionPath(v.ID, fileName)), pageWidths(pageCount)...)
	return v
}

func (h *harness) seedMetadata(t *testing.T, fileName string, pageCount int) models.DocumentVersion {
	t.Helper()
	doc := models.Document{ID: uuid.NewString(), Title: fileName, CreatedAt: time.Now().UTC()}
	v := models.DocumentVersion{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Number:     1,
		FileName:   fileName,
		PageCount:  pageCount,
		CreatedAt:  time.Now().UTC(),
	}
	pages := make([]models.Page, pageCount)
	for i := range pages {
		pages[i] = models.Page{ID: uuid.NewString(), DocumentVersionID: v.ID, Number: i + 1}
	}
	if err := h.deps.Store.InsertDocument(context.Background(), doc, v, pages); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	return v
}

// seedImage stores a single-page document whose first version is a PNG.
func (h *harness) seedImage(t *testing.T, fileName string) models.DocumentVersion {
	t.Helper()
	v := h.seedMetadata(t, fileName, 1)
	pdftest.WritePNG(t, h.deps.Tier.Abs(storage.DocVersionPath(v.ID, fileName)), 40, 40)
	return v
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) runState(t *testing.T, id string) models.WorkflowState {
	t.Helper()
	run, err := h.deps.Store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun(%s) error = %v", id, err)
	}
	return run.State
}
