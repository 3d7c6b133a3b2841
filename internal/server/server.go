package server

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"golang.org/x/time/rate"

	"xsshost/internal/prefs"
	"xsshost/internal/types"
	"xsshost/web"
)

// Session is the running renderer the server previews and controls.
type Session interface {
	Inject(ev types.InputEvent) error
	Name() string
	Options() map[string]string
}

// HackInfo describes one available renderer.
type HackInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Defaults    map[string]string `json:"defaults"`
}

// Config holds all server configuration.
type Config struct {
	Addr    string
	Token   string
	FPS     int
	Quality int // JPEG quality of preview frames

	OfferTimeout   time.Duration
	AllowedOrigins []string
	AuthFailLimit  int
	AuthFailWindow time.Duration

	TLSCert string
	TLSKey  string
	TLS     *tls.Config

	Frames  types.FrameSource
	Session Session
	Prefs   *prefs.Store // may be nil
	Hacks   []HackInfo
}

type Server struct {
	cfg  Config
	http *http.Server

	mu     sync.Mutex
	viewer *Viewer

	failMu   sync.Mutex
	failures map[string]*rate.Limiter
}

func New(cfg Config) *Server {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 80
	}
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, failures: map[string]*rate.Limiter{}}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /whep", s.handleWHEPOffer)
	mux.HandleFunc("PATCH /whep/{id}", s.handleWHEPPatch)
	mux.HandleFunc("DELETE /whep/{id}", s.handleWHEPDelete)
	mux.HandleFunc("OPTIONS /whep", s.handleOptions)
	mux.HandleFunc("OPTIONS /whep/{id}", s.handleOptions)
	mux.HandleFunc("GET /snapshot.png", s.handleSnapshot)
	mux.HandleFunc("GET /hacks", s.handleHacks)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("GET /prefs", s.handlePrefs)
	mux.HandleFunc("PUT /prefs/{key}", s.handlePrefPut)
	mux.HandleFunc("OPTIONS /prefs/{key}", s.handleOptions)
	return mux
}

// ListenAndServe serves until Shutdown. TLS is used when a certificate
// file pair or a TLS config is set.
func (s *Server) ListenAndServe() error {
	hs := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		TLSConfig:         s.cfg.TLS,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = hs
	s.mu.Unlock()

	name := "preview"
	if s.cfg.Session != nil {
		name = s.cfg.Session.Name()
	}
	scheme := "http"
	if s.cfg.TLSCert != "" || s.cfg.TLS != nil {
		scheme = "https"
	}
	log.Printf("serving %s on %s://%s (%d fps)", name, scheme, s.cfg.Addr, s.cfg.FPS)

	var err error
	switch {
	case s.cfg.TLSCert != "":
		err = hs.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	case s.cfg.TLS != nil:
		err = hs.ListenAndServeTLS("", "")
	default:
		err = hs.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes the active viewer and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.teardownLocked()
	hs := s.http
	s.mu.Unlock()
	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}

// Teardown closes the active viewer.
func (s *Server) Teardown() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := web.Content.ReadFile("index.html")
	if err != nil {
		http.Error(w, "internal error", 500)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) {
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(204)
}

func (s *Server) handleWHEPOffer(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}

	// One viewer at a time: tear down the existing one.
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()

	var inject func(types.InputEvent) error
	if s.cfg.Session != nil {
		inject = s.cfg.Session.Inject
	}
	viewer, err := NewViewer(uuid.NewString(), s.cfg.Frames, inject, s.cfg.FPS, s.cfg.Quality)
	if err != nil {
		log.Printf("viewer create error: %v", err)
		http.Error(w, "internal error", 500)
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(body)}
	if err := viewer.PC.SetRemoteDescription(offer); err != nil {
		viewer.Close()
		log.Printf("set remote desc error: %v", err)
		http.Error(w, "bad SDP offer", 400)
		return
	}

	answer, err := viewer.PC.CreateAnswer(nil)
	if err != nil {
		viewer.Close()
		log.Printf("create answer error: %v", err)
		http.Error(w, "internal error", 500)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(viewer.PC)
	if err := viewer.PC.SetLocalDescription(answer); err != nil {
		viewer.Close()
		log.Printf("set local desc error: %v", err)
		http.Error(w, "internal error", 500)
		return
	}

	select {
	case <-gatherComplete:
	case <-time.After(s.cfg.OfferTimeout):
		viewer.Close()
		log.Printf("viewer %s: ICE gathering timed out", viewer.ID)
		http.Error(w, "ICE gathering timed out", 504)
		return
	case <-r.Context().Done():
		viewer.Close()
		return
	}

	s.mu.Lock()
	s.teardownLocked()
	s.viewer = viewer
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", fmt.Sprintf("/whep/%s", viewer.ID))
	w.WriteHeader(201)
	w.Write([]byte(viewer.PC.LocalDescription().SDP))
}

func (s *Server) handleWHEPPatch(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	viewer := s.viewer
	s.mu.Unlock()

	if viewer == nil || viewer.ID != id {
		http.Error(w, "not found", 404)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "a=candidate:") {
			c := strings.TrimPrefix(line, "a=")
			if err := viewer.PC.AddICECandidate(webrtc.ICECandidateInit{Candidate: c}); err != nil {
				log.Printf("add ice candidate error: %v", err)
			}
		}
	}
	w.WriteHeader(204)
}

func (s *Server) handleWHEPDelete(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.viewer == nil || s.viewer.ID != id {
		http.Error(w, "not found", 404)
		return
	}
	s.teardownLocked()
	w.WriteHeader(200)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}
	if s.cfg.Frames == nil {
		http.Error(w, "no frame source", 404)
		return
	}
	img := s.cfg.Frames.Snapshot()
	if img == nil {
		http.Error(w, "no frame yet", 503)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		log.Printf("snapshot encode error: %v", err)
	}
}

func (s *Server) handleHacks(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}
	hacks := s.cfg.Hacks
	if hacks == nil {
		hacks = []HackInfo{}
	}
	writeJSON(w, hacks)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}
	if s.cfg.Session == nil {
		http.Error(w, "no session", 404)
		return
	}
	s.mu.Lock()
	var viewerID string
	if s.viewer != nil && !s.viewer.IsClosed() {
		viewerID = s.viewer.ID
	}
	s.mu.Unlock()

	writeJSON(w, struct {
		Hack    string            `json:"hack"`
		Options map[string]string `json:"options"`
		Viewer  string            `json:"viewer,omitempty"`
	}{s.cfg.Session.Name(), s.cfg.Session.Options(), viewerID})
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}
	if s.cfg.Prefs == nil {
		http.Error(w, "no preference store", 404)
		return
	}
	writeJSON(w, s.cfg.Prefs.Snapshot())
}

// handlePrefPut stores the request body as a string preference. A
// renderer whose option changes restarts with the new value.
func (s *Server) handlePrefPut(w http.ResponseWriter, r *http.Request) {
	if !s.cors(w, r) || !s.checkAuth(w, r) {
		return
	}
	if s.cfg.Prefs == nil {
		http.Error(w, "no preference store", 404)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	key := r.PathValue("key")
	s.cfg.Prefs.SetString(key, strings.TrimSpace(string(body)))
	if err := s.cfg.Prefs.Save(); err != nil {
		log.Printf("prefs save error: %v", err)
		http.Error(w, "could not save preferences", 500)
		return
	}
	log.Printf("prefs: %s updated", key)
	w.WriteHeader(204)
}

// cors sets CORS headers for allowed origins and rejects the rest.
// Requests without an Origin and same-origin requests are always allowed.
func (s *Server) cors(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if !s.originAllowed(origin, r.Host) {
		http.Error(w, "origin not allowed", 403)
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Expose-Headers", "Location")
	w.Header().Add("Vary", "Origin")
	return true
}

func (s *Server) originAllowed(origin, host string) bool {
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	_, rest, ok := strings.Cut(origin, "://")
	return ok && strings.EqualFold(rest, host)
}

// checkAuth verifies the bearer token. Clients that keep failing are
// locked out for the rest of the failure window.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	ip := clientIP(r)
	lim := s.limiter(ip)
	if lim != nil && lim.Tokens() < 1 {
		http.Error(w, "too many failed attempts", 429)
		return false
	}

	want := []byte("Bearer " + s.cfg.Token)
	got := []byte(r.Header.Get("Authorization"))
	if subtle.ConstantTimeCompare(got, want) == 1 {
		return true
	}
	if lim != nil {
		lim.Allow()
	}
	log.Printf("auth failure from %s", ip)
	http.Error(w, "unauthorized", 401)
	return false
}

func (s *Server) limiter(ip string) *rate.Limiter {
	if s.cfg.AuthFailLimit <= 0 || s.cfg.AuthFailWindow <= 0 {
		return nil
	}
	s.failMu.Lock()
	defer s.failMu.Unlock()
	lim, ok := s.failures[ip]
	if !ok {
		if len(s.failures) >= 4096 {
			s.pruneLocked()
		}
		every := s.cfg.AuthFailWindow / time.Duration(s.cfg.AuthFailLimit)
		lim = rate.NewLimiter(rate.Every(every), s.cfg.AuthFailLimit)
		s.failures[ip] = lim
	}
	return lim
}

// pruneLocked forgets clients whose failures have fully expired.
func (s *Server) pruneLocked() {
	for ip, lim := range s.failures {
		if lim.Tokens() >= float64(lim.Burst()) {
			delete(s.failures, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func (s *Server) teardownLocked() {
	if s.viewer != nil {
		s.viewer.Close()
		s.viewer = nil
	}
}
