package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ssasy-auth/demo/internal/auth"
	"github.com/ssasy-auth/demo/internal/config"
	"github.com/ssasy-auth/demo/internal/keys"
	"github.com/ssasy-auth/demo/internal/model"
	"github.com/ssasy-auth/demo/internal/rate"
	"github.com/ssasy-auth/demo/internal/store"

	_ "github.com/ssasy-auth/demo/docs" // swagger docs

	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxThoughtLen = 280

type Server struct {
	store   store.Store
	auth    *auth.Service
	limiter rate.Limiter
	cfg     config.Config
	log     *logrus.Logger
}

func NewServer(store store.Store, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{store: store, auth: authSvc, limiter: limiter, cfg: cfg, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(rec, r)
	s.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status,
		"duration": time.Since(start).String(),
	}).Info("request")
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/swagger/") {
		httpSwagger.WrapHandler.ServeHTTP(w, r)
		return
	}

	segments := splitPath(r.URL.Path)

	switch {
	case len(segments) == 0:
		if r.Method == http.MethodGet {
			s.handleIndex(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "challenge":
		if r.Method == http.MethodPost {
			s.handleAuthChallenge(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "register":
		if r.Method == http.MethodPost {
			s.handleAuthRegister(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "login":
		if r.Method == http.MethodPost {
			s.handleAuthLogin(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "users":
		if r.Method == http.MethodGet {
			s.handleListUsers(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "users":
		if r.Method == http.MethodGet {
			s.handleGetUser(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "users" && segments[2] == "thoughts":
		if r.Method == http.MethodGet {
			s.handleListUserThoughts(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "users":
		if r.Method == http.MethodGet {
			s.handleGetUserByCoordinates(w, r, segments[1], segments[2])
			return
		}
	case len(segments) == 1 && segments[0] == "thoughts":
		if r.Method == http.MethodPost {
			s.handleCreateThought(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleListThoughts(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "thoughts":
		if r.Method == http.MethodGet {
			s.handleGetThought(w, r, segments[1])
			return
		}
	default:
		notFound(w)
		return
	}
	methodNotAllowed(w)
}

// handleIndex godoc
//
//	@Summary		API index
//	@Description	Returns the server's public key, which clients need to address challenge solutions
//	@Tags			Index
//	@Produce		json
//	@Success		200	{object}	map[string]any	"Server info"
//	@Router			/ [get]
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "ssasy demo api",
		"publicKey": keys.Serialize(s.auth.PublicKey()),
		"docs":      "/swagger/index.html",
	})
}

// handleAuthChallenge godoc
//
//	@Summary		Request a challenge
//	@Description	Returns an encrypted challenge only the holder of the submitted public key can solve
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{publicKey=string}	true	"Claimant public key (ssasy key URI)"
//	@Success		200		{object}	map[string]any				"Encrypted challenge"
//	@Failure		400		{object}	map[string]any				"Malformed public key"
//	@Router			/auth/challenge [post]
func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "challenge", s.cfg.RateLimits.ChallengePerMinute) {
		return
	}
	var req struct {
		PublicKey string `json:"publicKey"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ciphertext, err := s.auth.Challenge(r.Context(), req.PublicKey)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ciphertext": ciphertext})
}

// handleAuthRegister godoc
//
//	@Summary		Register a new user
//	@Description	Creates a user bound to the public key proven by the solved challenge
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{publicKey=string,username=string,challenge=string}	true	"Solved challenge"
//	@Success		201		{object}	map[string]any												"Created user"
//	@Failure		400		{object}	map[string]any												"Invalid input or duplicate username/key"
//	@Failure		401		{object}	map[string]any												"Solution did not verify"
//	@Router			/auth/register [post]
func (s *Server) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
		Username  string `json:"username"`
		Challenge string `json:"challenge"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.auth.Register(r.Context(), req.PublicKey, req.Username, req.Challenge)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// handleAuthLogin godoc
//
//	@Summary		Log in
//	@Description	Verifies a solved challenge and returns the user with a session token
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{publicKey=string,challenge=string}	true	"Solved challenge"
//	@Success		200		{object}	map[string]any								"User and bearer token"
//	@Failure		401		{object}	map[string]any								"Solution did not verify"
//	@Failure		404		{object}	map[string]any								"No user for this key"
//	@Router			/auth/login [post]
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
		Challenge string `json:"challenge"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, token, err := s.auth.Login(r.Context(), req.PublicKey, req.Challenge)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

// handleListUsers godoc
//
//	@Summary	List users
//	@Tags		Users
//	@Produce	json
//	@Success	200	{object}	map[string]any	"All users"
//	@Router		/users [get]
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleGetUser godoc
//
//	@Summary	Get a user by id
//	@Tags		Users
//	@Produce	json
//	@Param		id	path		int				true	"User id"
//	@Success	200	{object}	map[string]any	"User"
//	@Failure	404	{object}	map[string]any	"Unknown user"
//	@Router		/users/{id} [get]
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		notFound(w)
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// handleGetUserByCoordinates godoc
//
//	@Summary	Get a user by public key coordinates
//	@Tags		Users
//	@Produce	json
//	@Param		x	path		string			true	"Public key x coordinate (base64url)"
//	@Param		y	path		string			true	"Public key y coordinate (base64url)"
//	@Success	200	{object}	map[string]any	"User"
//	@Failure	404	{object}	map[string]any	"Unknown key"
//	@Router		/users/{x}/{y} [get]
func (s *Server) handleGetUserByCoordinates(w http.ResponseWriter, r *http.Request, x, y string) {
	user, err := s.store.GetUserByCoordinates(r.Context(), x, y)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// handleListUserThoughts godoc
//
//	@Summary	List a user's thoughts, newest first
//	@Tags		Thoughts
//	@Produce	json
//	@Param		id	path		int				true	"User id"
//	@Success	200	{object}	map[string]any	"The user's thoughts"
//	@Failure	404	{object}	map[string]any	"Unknown user"
//	@Router		/users/{id}/thoughts [get]
func (s *Server) handleListUserThoughts(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		notFound(w)
		return
	}
	if _, err := s.store.GetUser(r.Context(), id); err != nil {
		s.writeCoreError(w, err)
		return
	}
	thoughts, err := s.store.ListThoughtsByAuthor(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if thoughts == nil {
		thoughts = []model.Thought{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"thoughts": thoughts})
}

// handleCreateThought godoc
//
//	@Summary		Post a thought
//	@Tags			Thoughts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{text=string}	true	"Thought text"
//	@Success		201		{object}	map[string]any		"Created thought"
//	@Failure		400		{object}	map[string]any		"Invalid text"
//	@Failure		401		{object}	map[string]any		"Missing or invalid bearer token"
//	@Security		BearerAuth
//	@Router			/thoughts [post]
func (s *Server) handleCreateThought(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "thought", s.cfg.RateLimits.ThoughtPerMinute) {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" || utf8.RuneCountInString(text) > maxThoughtLen {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("text must be 1-%d characters", maxThoughtLen))
		return
	}

	thought := model.Thought{
		Text:       text,
		AuthorID:   user.ID,
		AuthorName: user.Username,
		CreatedAt:  time.Now().UTC(),
	}
	id, err := s.store.CreateThought(r.Context(), &thought)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	thought.ID = id
	writeJSON(w, http.StatusCreated, map[string]any{"thought": thought})
}

// handleListThoughts godoc
//
//	@Summary	List thoughts, newest first
//	@Tags		Thoughts
//	@Produce	json
//	@Success	200	{object}	map[string]any	"All thoughts"
//	@Router		/thoughts [get]
func (s *Server) handleListThoughts(w http.ResponseWriter, r *http.Request) {
	thoughts, err := s.store.ListThoughts(r.Context())
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if thoughts == nil {
		thoughts = []model.Thought{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"thoughts": thoughts})
}

// handleGetThought godoc
//
//	@Summary	Get a thought by id
//	@Tags		Thoughts
//	@Produce	json
//	@Param		id	path		int				true	"Thought id"
//	@Success	200	{object}	map[string]any	"Thought"
//	@Failure	404	{object}	map[string]any	"Unknown thought"
//	@Router		/thoughts/{id} [get]
func (s *Server) handleGetThought(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		notFound(w)
		return
	}
	thought, err := s.store.GetThought(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thought": thought})
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return model.User{}, false
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	user, err := s.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return model.User{}, false
	}
	return user, true
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 {
		return true
	}
	key := fmt.Sprintf("%s:ip:%s", action, clientIP(r))
	if ok, retry := s.limiter.Allow(key, limit, time.Minute); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// writeCoreError maps core failures to status codes. Verification
// failures share one generic message so a caller cannot distinguish a
// wrong key from a stale challenge or a tampered envelope.
func (s *Server) writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, keys.ErrDecode), errors.Is(err, keys.ErrKeyMismatch):
		writeError(w, http.StatusBadRequest, "malformed key or ciphertext")
	case errors.Is(err, store.ErrDuplicateKey), errors.Is(err, store.ErrDuplicateName):
		writeError(w, http.StatusBadRequest, "username or public key already registered")
	case errors.Is(err, auth.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
