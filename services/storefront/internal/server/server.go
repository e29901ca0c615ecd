package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wessbooks/internal/ratelimit"
	"wessbooks/internal/util"
	"wessbooks/pkg/cart"
	"wessbooks/pkg/session"
	"wessbooks/pkg/store"
	"wessbooks/services/storefront/internal/app"
)

const (
	checkoutMessage    = "Thank you for your purchase!"
	emptyCartMessage   = "Your cart is empty!"
	maxBodyBytes       = 1 << 20
	cartItemsPath      = "/api/cart/items"
	cartItemPathPrefix = cartItemsPath + "/"
	defaultCountWait   = 25 * time.Second
	maxCountWait       = 25 * time.Second
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	RedisAddr                  string
	RedisPassword              string
	SignInRateLimitPerMinute   int
	RegisterRateLimitPerMinute int
	TrustedProxyCIDRs          []string
	AllowedOrigins             []string
}

// Server exposes the storefront screens as JSON endpoints.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	trustedProxies  *util.TrustedProxies
	allowedOrigins  []string
	signInLimiter   *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Sign-in and register
// are rate limited per client IP when a Redis address is configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		trustedProxies: trusted,
		allowedOrigins: cfg.AllowedOrigins,
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		signInLimit := cfg.SignInRateLimitPerMinute
		if signInLimit <= 0 {
			signInLimit = 10
		}
		registerLimit := cfg.RegisterRateLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 5
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				Prefix:   "wessbooks:storefront:ratelimit:" + name,
				Limit:    limit,
				Window:   time.Minute,
			})
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		if s.signInLimiter, err = newLimiter("signin", signInLimit); err != nil {
			return nil, err
		}
		if s.registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			_ = s.signInLimiter.Close()
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("storefront", h)
	return util.WithRequestID(h)
}

// Ping checks the rate limiter backend, if any.
func (s *Server) Ping(ctx context.Context) error {
	if s.signInLimiter == nil {
		return nil
	}
	return s.signInLimiter.Ping(ctx)
}

// Close releases the rate limiter connections.
func (s *Server) Close() error {
	var errs []error
	for _, limiter := range []*ratelimit.FixedWindowLimiter{s.signInLimiter, s.registerLimiter} {
		if limiter != nil {
			errs = append(errs, limiter.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// session
	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/auth/signin", s.handleSignIn)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/signout", s.handleSignOut)

	// shop
	s.mux.HandleFunc("/api/catalog", s.handleCatalog)
	s.mux.HandleFunc("/api/cart", s.handleCart)
	s.mux.HandleFunc("/api/cart/count", s.handleCartCount)
	s.mux.HandleFunc("/api/cart/count/wait", s.handleCartCountWait)
	s.mux.HandleFunc(cartItemsPath, s.handleCartItems)
	s.mux.HandleFunc(cartItemPathPrefix, s.handleCartItem)
	s.mux.HandleFunc("/api/cart/checkout", s.handleCheckout)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Session())
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signInLimiter, "signin", "too many sign in attempts") {
		return
	}
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.app.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "register", "too many registration attempts") {
		return
	}
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.app.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	view, err := s.app.Catalog(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	view, err := s.app.Cart(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCartCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	count, err := s.app.CartCount(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

// handleCartCountWait long-polls the badge. It answers as soon as the count
// differs from ?after=, or with 204 once ?wait= seconds pass.
func (s *Server) handleCartCountWait(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	after, err := strconv.Atoi(query.Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "after must be an integer")
		return
	}
	wait := defaultCountWait
	if raw := query.Get("wait"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			writeError(w, http.StatusBadRequest, "wait must be a positive number of seconds")
			return
		}
		wait = min(time.Duration(seconds)*time.Second, maxCountWait)
	}
	count, changed, err := s.app.WaitCartCount(r.Context(), after, wait)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (s *Server) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var (
		total int
		err   error
	)
	switch {
	case req.BookID != nil:
		total, err = s.app.AddBook(r.Context(), *req.BookID)
	case strings.TrimSpace(req.Title) != "":
		total, err = s.app.AddTitle(r.Context(), req.Title)
	default:
		err = app.ErrNothingToAdd
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalResponse{Total: total})
}

func (s *Server) handleCartItem(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, cartItemPathPrefix)
	if raw == "" || strings.Contains(raw, "/") {
		http.NotFound(w, r)
		return
	}
	lineID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart line id")
		return
	}
	var total int
	switch r.Method {
	case http.MethodPatch:
		var req updateItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		switch {
		case req.Quantity != nil && req.Delta != nil:
			writeError(w, http.StatusBadRequest, "quantity and delta are mutually exclusive")
			return
		case req.Quantity != nil:
			total, err = s.app.SetQuantity(r.Context(), lineID, *req.Quantity)
		case req.Delta != nil:
			total, err = s.app.AdjustQuantity(r.Context(), lineID, *req.Delta)
		default:
			writeError(w, http.StatusBadRequest, "quantity or delta is required")
			return
		}
	case http.MethodDelete:
		total, err = s.app.RemoveLine(r.Context(), lineID)
	default:
		methodNotAllowed(w)
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalResponse{Total: total})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Checkout(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: checkoutMessage})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, name, msg string) bool {
	if limiter == nil {
		return true
	}
	key := name + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// writeAppError maps core errors to statuses. Unknown errors are logged and
// reported as 500 without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "store not ready")
	case errors.Is(err, session.ErrNotSignedIn):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrAlreadySignedIn):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, cart.ErrCartEmpty):
		writeError(w, http.StatusConflict, emptyCartMessage)
	case errors.Is(err, session.ErrMissingFields),
		errors.Is(err, cart.ErrTitleRequired),
		errors.Is(err, cart.ErrQuantityTooLarge),
		errors.Is(err, app.ErrNothingToAdd):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUnknownBook):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type addItemRequest struct {
	BookID *int   `json:"bookId"`
	Title  string `json:"title"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
	Delta    *int `json:"delta"`
}

type totalResponse struct {
	Total int `json:"total"`
}

type countResponse struct {
	Count int `json:"count"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
