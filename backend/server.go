// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/google/uuid"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
	"github.com/ttbt-io/wicketkeeper/backend/search"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func hubBusyResponse(w http.ResponseWriter, retryAfter string) {
	w.Header().Set("Retry-After", retryAfter)
	http.Error(w, "Too Many Requests: Server is busy", http.StatusTooManyRequests)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultListPage
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil {
			offset = val
		}
	}
	if limit < 1 {
		limit = defaultListPage
	}
	if limit > maxListPageSize {
		limit = maxListPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Options represent server options.
type Options struct {
	Addr       string
	Cert       *tls.Certificate
	DataDir    string
	Debug      bool
	MatchStore *MatchStore
	TeamStore  *TeamStore
	Storage    *storage.Storage
	MasterKey  crypto.MasterKey
	Metrics    *Metrics
	Listener   net.Listener

	UseMockAuth    bool
	AuthCookieName string
	AuthJWKSURL    string

	// Raft Options
	RaftEnabled           bool
	RaftBind              string
	RaftAdvertise         string
	RaftSecret            string
	RaftJoin              string // HTTP address of a cluster member to join
	RaftBootstrap         bool
	RaftNodeID            string
	HTTPAdvertise         string            // HTTP address other nodes forward writes to
	RaftManagerChan       chan *RaftManager // For testing: receive the created RaftManager
	UseProductionTimeouts bool
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	raftMgr    *RaftManager
	ms         *MatchStore
}

// Shutdown gracefully shuts down the server and Raft node.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if s.raftMgr != nil {
		if err := s.raftMgr.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("raft: %w", err))
		}
	}
	if err := s.ms.FlushAll(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	return errors.Join(errs...)
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	api, err := newAPI(opts)
	if err != nil {
		return nil, err
	}
	if api.rm != nil {
		// Replay the log before serving so clients never see stale scoreboards.
		if err := api.rm.WaitForSync(30 * time.Second); err != nil {
			log.Printf("Warning: Raft sync timed out: %v", err)
		}
	}

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           api.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}
	go func() {
		var err error
		switch {
		case opts.Listener != nil && opts.Cert != nil:
			log.Printf("Starting HTTPS server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.ServeTLS(opts.Listener, "", "")
		case opts.Listener != nil:
			log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.Serve(opts.Listener)
		case opts.Cert != nil:
			log.Printf("Starting HTTPS server on %s...", opts.Addr)
			err = httpServer.ListenAndServeTLS("", "")
		default:
			log.Printf("Server starting on %s...", opts.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{httpServer: httpServer, raftMgr: api.rm, ms: api.ms}, nil
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) (*RaftManager, http.Handler, error) {
	api, err := newAPI(opts)
	if err != nil {
		return nil, nil, err
	}
	return api.rm, api.handler(), nil
}

// api holds everything the HTTP handlers share.
type api struct {
	opts    Options
	ms      *MatchStore
	ts      *TeamStore
	hm      *HubManager
	rm      *RaftManager
	metrics *Metrics
	debugf  func(string, ...any)
}

func newAPI(opts Options) (*api, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, opts.MasterKey)
	}
	a := &api{
		opts:    opts,
		ms:      opts.MatchStore,
		ts:      opts.TeamStore,
		metrics: opts.Metrics,
		debugf:  func(string, ...any) {},
	}
	if a.ms == nil {
		a.ms = NewMatchStore(opts.DataDir, opts.Storage)
	}
	if a.ts == nil {
		a.ts = NewTeamStore(opts.DataDir, opts.Storage)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics()
	}
	if opts.Debug {
		a.ms.Debug = true
		a.debugf = func(f string, args ...any) {
			log.Printf("[DEBUG BACKEND] "+f, args...)
		}
	}
	a.hm = NewHubManager(a.ms, a.ts, a.metrics)

	if opts.RaftEnabled {
		raftDataDir := filepath.Join(opts.DataDir, "raft")
		if err := os.MkdirAll(raftDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create Raft data directory: %w", err)
		}
		fsm := NewFSM(a.ms, a.ts, a.hm, storage.New(raftDataDir, opts.MasterKey), a.metrics)
		httpAdvertise := opts.HTTPAdvertise
		if httpAdvertise == "" {
			httpAdvertise = opts.Addr
		}
		rm := NewRaftManager(raftDataDir, opts.RaftBind, opts.RaftAdvertise, httpAdvertise, opts.RaftNodeID, opts.RaftSecret, fsm)
		rm.UseProductionTimeouts = opts.UseProductionTimeouts
		if err := rm.Start(opts.RaftBootstrap); err != nil {
			return nil, fmt.Errorf("failed to start Raft: %w", err)
		}
		if opts.RaftJoin != "" {
			go joinWithRetry(rm, opts.RaftJoin)
		}
		if opts.RaftManagerChan != nil {
			go func() { opts.RaftManagerChan <- rm }()
		}
		a.rm = rm
		a.hm.SetRaftManager(rm)
	}
	return a, nil
}

func joinWithRetry(rm *RaftManager, addr string) {
	for attempt := 1; ; attempt++ {
		err := rm.JoinCluster(addr)
		if err == nil {
			log.Printf("Joined cluster via %s", addr)
			return
		}
		log.Printf("Join attempt %d via %s failed: %v", attempt, addr, err)
		select {
		case <-rm.shutdownCh:
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *api) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/matches", a.handleCreateMatch)
	mux.HandleFunc("GET /api/matches", a.handleListMatches)
	mux.HandleFunc("GET /api/matches/{id}", a.handleGetMatch)
	mux.HandleFunc("DELETE /api/matches/{id}", a.handleDeleteMatch)
	mux.HandleFunc("POST /api/matches/{id}/toss", a.actionHandler(ActionToss))
	mux.HandleFunc("POST /api/matches/{id}/players", a.actionHandler(ActionSelectPlayers))
	mux.HandleFunc("POST /api/matches/{id}/deliveries", a.actionHandler(ActionDelivery))
	mux.HandleFunc("POST /api/matches/{id}/undo", a.actionHandler(ActionUndo))
	mux.HandleFunc("POST /api/matches/{id}/declare", a.actionHandler(ActionDeclare))

	mux.HandleFunc("POST /api/teams", a.handleSaveTeam)
	mux.HandleFunc("GET /api/teams/{id}", a.handleGetTeam)
	mux.HandleFunc("DELETE /api/teams/{id}", a.handleDeleteTeam)

	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(a.hm, w, r)
	})
	mux.Handle("GET /metrics", a.metrics.Handler())

	if a.rm != nil {
		mux.HandleFunc("/api/cluster/status", a.rm.handleStatus)
		mux.HandleFunc("/api/cluster/join", a.rm.handleJoin)
		mux.HandleFunc("/api/cluster/remove", a.rm.handleRemove)
	}

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if a.opts.UseMockAuth {
			http.SetCookie(w, &http.Cookie{
				Name:  mockAuthCookie,
				Value: "test@example.com",
				Path:  "/",
			})
		} else if userId := getUserID(r); userId == "" || !isValidEmail(userId) {
			http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	handler := http.Handler(mux)
	if a.opts.UseMockAuth {
		handler = mockAuthMiddleware(handler)
	} else {
		handler = jwtAuthMiddleware(a.opts, handler)
	}
	handler = loggingMiddleware(handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	return handler
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// errorStatus maps an error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, scoring.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, scoring.ErrConsistency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scoring.ErrState), errors.Is(err, ErrExists):
		return http.StatusConflict
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthenticated):
		return http.StatusForbidden
	case errors.Is(err, ErrNotLeader):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error()}
	var rej *scoring.RejectError
	if errors.As(err, &rej) {
		resp.Kind = rejectionKind(err)
		resp.Code = rej.Code
	}
	switch status {
	case http.StatusInternalServerError:
		log.Printf("Internal Server Error: %v", err)
		resp.Error = "Internal Server Error"
	case http.StatusNotFound:
		resp.Error = "Not Found"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterAction)
	}
	writeJSON(w, status, resp)
}

// submit queues a request on a match hub and waits for the answer. It
// returns false if a response was already written.
func (a *api) submit(w http.ResponseWriter, r *http.Request, matchId string, req HubRequest, retryAfter string) (HubResponse, bool) {
	reply := make(chan HubResponse, 1)
	req.Reply = reply
	if !a.hm.Submit(matchId, req) {
		hubBusyResponse(w, retryAfter)
		return HubResponse{}, false
	}
	select {
	case resp := <-reply:
		return resp, true
	case <-r.Context().Done():
		return HubResponse{}, false
	}
}

// requireUser returns the authenticated user, or writes 403.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId := getUserID(r)
	if userId == "" || !isValidEmail(userId) {
		http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
		return "", false
	}
	return userId, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request: body too large or unreadable", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

// forwardIfFollower sends writes that reached a follower to the leader.
func (a *api) forwardIfFollower(w http.ResponseWriter, r *http.Request, err error, body []byte) bool {
	if a.rm == nil || !errors.Is(err, ErrNotLeader) {
		return false
	}
	a.debugf("Forwarding %s %s to leader", r.Method, r.URL.Path)
	a.rm.forwardRequestToLeader(w, r, body)
	return true
}

func (a *api) resolveSide(userId string, inline *scoring.Team, teamId string) (scoring.Team, error) {
	if inline != nil {
		return *inline, nil
	}
	t, err := a.ts.LoadTeam(teamId)
	if err != nil {
		return scoring.Team{}, fmt.Errorf("team %s: %w", teamId, err)
	}
	if t.Deleted {
		return scoring.Team{}, fmt.Errorf("team %s: %w", teamId, os.ErrNotExist)
	}
	if GetTeamAccess(userId, t) < AccessRead {
		return scoring.Team{}, fmt.Errorf("team %s: %w", teamId, ErrForbidden)
	}
	return t.Roster(), nil
}

func (a *api) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	userId, ok := requireUser(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req CreateMatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
		return
	}
	if err := validateCreateMatch(&req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	teamA, err := a.resolveSide(userId, req.TeamA, req.TeamAID)
	if err != nil {
		writeError(w, err)
		return
	}
	teamB, err := a.resolveSide(userId, req.TeamB, req.TeamBID)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := scoring.NewMatch(req.ID, req.Format, req.CustomOvers, req.LastManStanding, teamA, teamB)
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now().UTC()
	m.OwnerID = userId
	m.CreatedAt = now
	for _, s := range req.Scorers {
		if s = normalizeEmail(s); !slices.Contains(m.Scorers, s) {
			m.Scorers = append(m.Scorers, s)
		}
	}
	sm := &StoredMatch{Match: *m, SchemaVersion: CurrentSchemaVersion, UpdatedAt: now.UnixMilli()}
	sm.normalize()

	resp, ok := a.submit(w, r, sm.ID, HubRequest{Type: ReqTypeHTTPCreate, UserId: userId, Match: sm}, retryAfterSave)
	if !ok {
		return
	}
	if resp.Error != nil {
		if a.forwardIfFollower(w, r, resp.Error, body) {
			return
		}
		writeError(w, resp.Error)
		return
	}
	log.Printf("Match %s created by %s", sm.ID, maskEmail(userId))
	writeJSON(w, http.StatusCreated, resp.Match.View())
}

// matchListResponse is the body of GET /api/matches.
type matchListResponse struct {
	Data []MatchMetadata `json:"data"`
	Meta struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	} `json:"meta"`
}

func (a *api) handleListMatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	query := search.Parse(r.URL.Query().Get("q"))
	if status := r.URL.Query().Get("status"); status != "" {
		query.Filters = append(query.Filters, search.Filter{Key: "status", Value: status, Operator: search.OpEqual})
	}

	var all []MatchMetadata
	for md, err := range a.ms.ListAllMatchMetadata() {
		if err != nil {
			writeError(w, err)
			return
		}
		if !md.Deleted && matchesQuery(md, query) {
			all = append(all, md)
		}
	}
	slices.SortStableFunc(all, func(x, y MatchMetadata) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})

	var resp matchListResponse
	resp.Data = make([]MatchMetadata, 0)
	if offset < len(all) {
		resp.Data = append(resp.Data, all[offset:min(offset+limit, len(all))]...)
	}
	resp.Meta.Total = len(all)
	resp.Meta.Offset = offset
	resp.Meta.Limit = limit

	data, err := json.Marshal(resp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeWithETag(w, r, data)
}

// matchesQuery reports whether a listed match satisfies every filter and
// contains every free-text word in a team name or the result summary.
func matchesQuery(md MatchMetadata, q search.Query) bool {
	for _, f := range q.Filters {
		var ok bool
		switch f.Key {
		case "status":
			ok = f.Match(string(md.Status))
		case "format":
			ok = f.Match(string(md.Format))
		case "team":
			ok = f.Match(md.TeamA) || f.Match(md.TeamB)
		case "owner":
			ok = f.Match(md.OwnerID)
		case "created":
			ok = f.Match(md.CreatedAt.UTC().Format(time.DateOnly))
		}
		if !ok {
			return false
		}
	}
	text := strings.ToLower(md.TeamA + "\n" + md.TeamB + "\n" + md.Summary)
	for _, word := range q.FreeText {
		if !strings.Contains(text, strings.ToLower(word)) {
			return false
		}
	}
	return true
}

func writeWithETag(w http.ResponseWriter, r *http.Request, data []byte) {
	etag := generateETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (a *api) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchId := r.PathValue("id")
	if !isValidUUID(matchId) {
		http.Error(w, "Bad Request: match id is invalid", http.StatusBadRequest)
		return
	}
	resp, ok := a.submit(w, r, matchId, HubRequest{Type: ReqTypeHTTPLoad}, retryAfterLoad)
	if !ok {
		return
	}
	if resp.Error != nil {
		writeError(w, resp.Error)
		return
	}
	if GetMatchAccess(getUserID(r), resp.Match, a.ts) < AccessRead {
		writeError(w, ErrForbidden)
		return
	}
	data, err := json.Marshal(resp.Match.View())
	if err != nil {
		writeError(w, err)
		return
	}
	writeWithETag(w, r, data)
}

func (a *api) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	userId, ok := requireUser(w, r)
	if !ok {
		return
	}
	matchId := r.PathValue("id")
	if !isValidUUID(matchId) {
		http.Error(w, "Bad Request: match id is invalid", http.StatusBadRequest)
		return
	}
	resp, ok := a.submit(w, r, matchId, HubRequest{Type: ReqTypeHTTPDelete, UserId: userId}, retryAfterSave)
	if !ok {
		return
	}
	if resp.Error != nil {
		if a.forwardIfFollower(w, r, resp.Error, nil) {
			return
		}
		writeError(w, resp.Error)
		return
	}
	log.Printf("Match %s deleted by %s", matchId, maskEmail(userId))
	w.WriteHeader(http.StatusNoContent)
}

// actionResponse is the body returned after a scoring action.
type actionResponse struct {
	Applied bool              `json:"applied"`
	Events  []scoring.Event   `json:"events"`
	View    scoring.MatchView `json:"view"`
}

// actionHandler returns the handler of one scoring endpoint. The request
// body is the action payload. An Idempotency-Key header makes retries safe.
func (a *api) actionHandler(actionType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		matchId := r.PathValue("id")
		if !isValidUUID(matchId) {
			http.Error(w, "Bad Request: match id is invalid", http.StatusBadRequest)
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		if len(body) > 0 && !json.Valid(body) {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		actionId := r.Header.Get("Idempotency-Key")
		if actionId == "" {
			actionId = uuid.NewString()
			// A forwarded request must keep the id chosen here.
			r.Header.Set("Idempotency-Key", actionId)
		}
		action := Action{
			ID:        actionId,
			Type:      actionType,
			Payload:   body,
			Timestamp: time.Now().UnixMilli(),
		}
		a.debugf("Action %s %s on match %s by %s", action.Type, action.ID, matchId, maskEmail(userId))

		resp, ok := a.submit(w, r, matchId, HubRequest{Type: ReqTypeHTTPAction, UserId: userId, Action: action}, retryAfterAction)
		if !ok {
			return
		}
		if resp.Error != nil {
			if a.forwardIfFollower(w, r, resp.Error, body) {
				return
			}
			if errorStatus(resp.Error) == http.StatusInternalServerError {
				log.Printf("Error processing %s on match %s: %v", actionType, matchId, resp.Error)
			}
			writeError(w, resp.Error)
			return
		}
		events := resp.Events
		if events == nil {
			events = make([]scoring.Event, 0)
		}
		writeJSON(w, http.StatusOK, actionResponse{
			Applied: resp.Changed,
			Events:  events,
			View:    resp.Match.View(),
		})
	}
}

func (a *api) handleSaveTeam(w http.ResponseWriter, r *http.Request) {
	userId, ok := requireUser(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req TeamRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := validateTeamRequest(&req); err != nil {
		writeError(w, err)
		return
	}

	team := &StoredTeam{
		Team:          req.Team,
		SchemaVersion: CurrentSchemaVersion,
		ShortName:     req.ShortName,
		OwnerID:       userId,
		Roles:         req.Roles,
		UpdatedAt:     time.Now().UnixMilli(),
	}
	status := http.StatusCreated
	if existing, err := a.ts.LoadTeam(req.ID); err == nil && !existing.Deleted {
		if GetTeamAccess(userId, existing) < AccessAdmin {
			writeError(w, ErrForbidden)
			return
		}
		team.OwnerID = existing.OwnerID
		status = http.StatusOK
	} else if err != nil && !os.IsNotExist(err) {
		writeError(w, err)
		return
	}
	team.normalize()

	if a.rm != nil {
		if _, err := a.rm.Propose(RaftCommand{Type: CmdSaveTeam, ID: team.ID, Team: team}); err != nil {
			if a.forwardIfFollower(w, r, err, body) {
				return
			}
			writeError(w, err)
			return
		}
	} else if err := a.ts.SaveTeam(team); err != nil {
		writeError(w, fmt.Errorf("save team: %w", err))
		return
	}
	writeJSON(w, status, team)
}

func (a *api) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	teamId := r.PathValue("id")
	if !isValidUUID(teamId) {
		http.Error(w, "Bad Request: team id is invalid", http.StatusBadRequest)
		return
	}
	t, err := a.ts.LoadTeam(teamId)
	if err == nil && t.Deleted {
		err = os.ErrNotExist
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if GetTeamAccess(getUserID(r), t) < AccessRead {
		writeError(w, ErrForbidden)
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeWithETag(w, r, data)
}

func (a *api) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	userId, ok := requireUser(w, r)
	if !ok {
		return
	}
	teamId := r.PathValue("id")
	if !isValidUUID(teamId) {
		http.Error(w, "Bad Request: team id is invalid", http.StatusBadRequest)
		return
	}
	t, err := a.ts.LoadTeam(teamId)
	if err == nil && t.Deleted {
		err = os.ErrNotExist
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if GetTeamAccess(userId, t) < AccessAdmin {
		writeError(w, ErrForbidden)
		return
	}
	if a.rm != nil {
		if _, err := a.rm.Propose(RaftCommand{Type: CmdDeleteTeam, ID: teamId}); err != nil {
			if a.forwardIfFollower(w, r, err, nil) {
				return
			}
			writeError(w, err)
			return
		}
	} else if err := a.ts.DeleteTeam(teamId); err != nil {
		writeError(w, fmt.Errorf("delete team: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		} else {
			w.Header().Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
