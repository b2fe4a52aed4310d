package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/forge-audit/forge"
)

// StatusServer is the read-only HTTP surface over an Engine: status,
// history, and witness lookups for operators and dashboards. It never
// accepts a write — recording, sealing, and anchoring stay CLI/MCP
// operations — so it carries none of the request-signing concerns a
// mutating API would need.
type StatusServer struct {
	engine *forge.Engine

	watchMu  sync.Mutex
	watchers map[*websocket.Conn]struct{}
}

func newStatusServer(engine *forge.Engine) *StatusServer {
	return &StatusServer{
		engine:   engine,
		watchers: make(map[*websocket.Conn]struct{}),
	}
}

// StartStatusServer starts the read-only status server on addr, adapted
// from the teacher's RestServer: a gorilla/mux router behind CORS and
// per-IP rate limiting, fronted by a request-id middleware.
func StartStatusServer(engine *forge.Engine, addr string) error {
	s := newStatusServer(engine)
	go s.watchForNewBlocks(5 * time.Second)

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(commonMiddleware)

	limiter := newIPRateLimiter(10, 20)
	rl := rateLimitMiddleware(limiter)

	router.Handle("/status", rl(http.HandlerFunc(s.getStatus))).Methods("GET")
	router.Handle("/history", rl(http.HandlerFunc(s.getHistory))).Methods("GET")
	router.Handle("/witness/{root}", rl(http.HandlerFunc(s.getWitness))).Methods("GET")
	router.Handle("/watch", http.HandlerFunc(s.watch)).Methods("GET")

	srv := &http.Server{
		Handler:      corsMiddleware(router),
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	printInfo("status server listening on http://%s", addr)
	return srv.ListenAndServe()
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Origin, Accept, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ipRateLimiter manages one rate.Limiter per source IP, matching the
// teacher's IPRateLimiter.
type ipRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*rate.Limiter
	r   rate.Limit
	b   int
}

func newIPRateLimiter(r rate.Limit, b int) *ipRateLimiter {
	l := &ipRateLimiter{ips: make(map[string]*rate.Limiter), r: r, b: b}
	go func() {
		for {
			time.Sleep(1 * time.Minute)
			l.mu.Lock()
			l.ips = make(map[string]*rate.Limiter)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.ips[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.ips[ip] = lim
	}
	return lim
}

func rateLimitMiddleware(limiter *ipRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiter.get(ip).Allow() {
				http.Error(w, "429 too many requests", http.StatusTooManyRequests)
				return
			}
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	}
}

type statusResponse struct {
	AtomCount   int    `json:"atom_count"`
	BlockCount  int    `json:"block_count"`
	LatestRoot  string `json:"latest_root,omitempty"`
	LatestLevel string `json:"latest_level,omitempty"`
}

func (s *StatusServer) getStatus(w http.ResponseWriter, r *http.Request) {
	atomCount, err := s.engine.Store.AtomCount()
	if err != nil {
		writeJSONError(w, err)
		return
	}
	blocks, err := s.engine.Store.GetBlocks()
	if err != nil {
		writeJSONError(w, err)
		return
	}

	resp := statusResponse{AtomCount: atomCount, BlockCount: len(blocks)}
	if len(blocks) > 0 {
		root := blocks[len(blocks)-1].Root
		resp.LatestRoot = root
		if status, err := forge.WitnessLevelOf(s.engine.Store, root); err == nil {
			resp.LatestLevel = status.Label
		}
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *StatusServer) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		var n int
		if _, err := fmt.Sscanf(q, "%d", &n); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.engine.Store.GetHistory(limit)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	json.NewEncoder(w).Encode(entries)
}

func (s *StatusServer) getWitness(w http.ResponseWriter, r *http.Request) {
	root := mux.Vars(r)["root"]
	summary, err := forge.Summarize(s.engine.Store, root)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	json.NewEncoder(w).Encode(summary)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// watch upgrades to a websocket and registers the connection for the
// block_sealed events that watchForNewBlocks broadcasts. No witness-upgrade
// events are sent, and any client frames are read and discarded.
func (s *StatusServer) watch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.watchMu.Lock()
	s.watchers[conn] = struct{}{}
	s.watchMu.Unlock()

	defer func() {
		s.watchMu.Lock()
		delete(s.watchers, conn)
		s.watchMu.Unlock()
		conn.Close()
	}()

	// Drain and discard any client frames so the connection stays alive
	// until the caller closes it; there is nothing for a watcher to send.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast pushes event to every connected watcher, dropping any that
// fail to accept it.
func (s *StatusServer) broadcast(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for conn := range s.watchers {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.watchers, conn)
		}
	}
}

// watchForNewBlocks polls the store for sealed blocks this process hasn't
// broadcast yet. Sealing happens out-of-process (the `forge seal` CLI
// invocation), so the status server has no in-process hook to observe it
// directly; polling is the simplest bridge, matching the teacher's
// periodic-cleanup-goroutine idiom in its own rate limiter.
func (s *StatusServer) watchForNewBlocks(interval time.Duration) {
	seen := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		blocks, err := s.engine.Store.GetBlocks()
		if err != nil || len(blocks) <= seen {
			continue
		}
		for _, b := range blocks[seen:] {
			s.broadcast(map[string]interface{}{
				"event":      "block_sealed",
				"root":       b.Root,
				"atom_count": b.AtomCount,
				"created_at": b.CreatedAt,
			})
		}
		seen = len(blocks)
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
