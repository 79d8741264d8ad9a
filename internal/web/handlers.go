package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/PiSnap/internal/debug"
	"github.com/cjeanneret/PiSnap/internal/logic/capture"
	"github.com/cjeanneret/PiSnap/internal/pictures"
)

// ConfigView holds the settings shown on the page (from config).
type ConfigView struct {
	PicturesDir     string `json:"pictures_dir"`
	CollisionPolicy string `json:"collision_policy"`
	CameraType      string `json:"camera_type"`
	MinIntervalMs   int    `json:"min_interval_ms"`
}

// PictureEntry is one item of GET /pictures.
type PictureEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Worker      *capture.Worker
	Store       *pictures.Store
	Config      ConfigView
	MinInterval time.Duration

	staticFS fs.FS
	now      func() time.Time

	startMu   sync.Mutex
	lastStart time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If worker is nil, POST /capture will return 503 Service Unavailable.
// Every finished capture, whoever triggered it, is published on the status stream.
func NewHandlers(broadcaster *StatusBroadcaster, worker *capture.Worker, store *pictures.Store, cfg ConfigView, minInterval time.Duration, staticFS fs.FS) *Handlers {
	h := &Handlers{
		Broadcaster: broadcaster,
		Worker:      worker,
		Store:       store,
		Config:      cfg,
		MinInterval: minInterval,
		staticFS:    staticFS,
		now:         time.Now,
	}
	if worker != nil {
		worker.OnResult(h.PublishResult)
	}
	return h
}

// PublishResult sends a finished capture to SSE clients.
func (h *Handlers) PublishResult(res capture.Result) {
	if res.OK() {
		h.Broadcaster.BroadcastResult(LevelInfo, fmt.Sprintf("Capture %s saved: %s", res.ID, res.FilePath), res)
		return
	}
	h.Broadcaster.BroadcastResult(LevelError, fmt.Sprintf("Capture %s failed: %s", res.ID, res.Message()), res)
}

// HandleConfig returns the UI-visible settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Config)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture to start a capture. The mux rejects other methods.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if h.Worker == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.startMu.Lock()
	defer h.startMu.Unlock()

	now := h.now()
	if !h.lastStart.IsZero() && now.Sub(h.lastStart) < h.MinInterval {
		w.Header().Set("Retry-After", fmt.Sprint(int((h.MinInterval-now.Sub(h.lastStart)).Seconds())+1))
		http.Error(w, "too many capture requests", http.StatusTooManyRequests)
		return
	}

	id, _, err := h.Worker.Start(context.WithoutCancel(r.Context()), "web")
	if errors.Is(err, capture.ErrBusy) {
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.lastStart = now

	h.Broadcaster.Broadcast(LevelInfo, "Capture "+id+" started")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "id": id})
}

// HandlePictures lists stored pictures, newest first.
func (h *Handlers) HandlePictures(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, []PictureEntry{})
		return
	}
	names, err := h.Store.List()
	if err != nil {
		debug.Error(fmt.Errorf("list pictures: %w", err))
		http.Error(w, "cannot list pictures", http.StatusInternalServerError)
		return
	}
	entries := make([]PictureEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, PictureEntry{Name: n, URL: "/pictures/" + n})
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandlePicture serves one stored JPEG.
func (h *Handlers) HandlePicture(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if h.Store == nil {
		http.NotFound(w, r)
		return
	}
	f, err := h.Store.Open(name)
	switch {
	case errors.Is(err, pictures.ErrInvalidName):
		http.Error(w, "invalid picture name", http.StatusBadRequest)
		return
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
		return
	case err != nil:
		debug.Error(fmt.Errorf("open picture %q: %w", name, err))
		http.Error(w, "cannot open picture", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "cannot open picture", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
