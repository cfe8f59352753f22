package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/heliosfit/gymdesk/internal/api/apiutil"
	"github.com/heliosfit/gymdesk/internal/config"
	"github.com/heliosfit/gymdesk/internal/ratelimit"
	"github.com/heliosfit/gymdesk/internal/store"
)

const (
	// RoleOwner is granted to the first admin created via setup.
	RoleOwner = "owner"
	// RoleStaff is the default role for subsequently created admins.
	RoleStaff = "staff"
)

// loginLimiterIdleTTL bounds the per-client limiter map: entries idle for
// longer than this are dropped on the next sweep.
const loginLimiterIdleTTL = 15 * time.Minute

type loginLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	appConfig *config.Config
	queries   *store.Queries

	loginLimiters   = make(map[string]*loginLimiterEntry)
	loginLimitersMu sync.Mutex
	loginSweepAt    time.Time
)

// Init wires the package with app config and the query layer.
func Init(cfg *config.Config, q *store.Queries) {
	appConfig = cfg
	queries = q
}

// loginLimiter returns the per-client limiter, allowing 5 attempts
// per minute with a burst of 5.
func loginLimiter(clientIP string) *rate.Limiter {
	loginLimitersMu.Lock()
	defer loginLimitersMu.Unlock()

	now := time.Now()
	if now.Sub(loginSweepAt) > loginLimiterIdleTTL {
		pruneLoginLimitersLocked(now)
		loginSweepAt = now
	}

	entry, ok := loginLimiters[clientIP]
	if !ok {
		entry = &loginLimiterEntry{limiter: rate.NewLimiter(rate.Every(12*time.Second), 5)}
		loginLimiters[clientIP] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func pruneLoginLimitersLocked(now time.Time) {
	for ip, entry := range loginLimiters {
		if now.Sub(entry.lastSeen) > loginLimiterIdleTTL {
			delete(loginLimiters, ip)
		}
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type adminResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func adminToResponse(admin store.Admin) adminResponse {
	return adminResponse{
		ID:       admin.ID,
		Username: admin.Username,
		Email:    admin.Email,
		Name:     admin.Name,
		Role:     admin.Role,
	}
}

// HandleLogin authenticates an admin by username or email and sets the
// session cookie.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := ratelimit.GetClientIP(r, appConfig != nil && appConfig.App.TrustProxy)
	if !loginLimiter(clientIP).Allow() {
		apiutil.RespondError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		apiutil.RespondError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	}

	admin, err := queries.GetActiveAdminByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to look up admin")
		apiutil.RespondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if !VerifyPassword(admin.PasswordHash, req.Password) {
		apiutil.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := SetAuthCookie(w, Claims{
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
	}); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to set auth cookie")
		apiutil.RespondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if err := queries.UpdateAdminLastLogin(ctx, admin.ID, time.Now()); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("admin_id", admin.ID).Msg("failed to record last login")
	}

	apiutil.RespondData(w, http.StatusOK, adminToResponse(admin))
}

// HandleLogout clears the session cookie.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearAuthCookie(w)
	apiutil.RespondData(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleMe returns the authenticated admin.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := AdminFromContext(ctx)
	if claims == nil {
		apiutil.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	admin, err := queries.GetAdminByID(ctx, claims.AdminID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to load admin")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}

	apiutil.RespondData(w, http.StatusOK, adminToResponse(admin))
}

type setupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// HandleSetup creates the first owner account. It is rejected once any
// admin exists.
func HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := queries.CountAdmins(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to count admins")
		apiutil.RespondError(w, http.StatusInternalServerError, "Setup failed")
		return
	}
	if count > 0 {
		apiutil.RespondError(w, http.StatusForbidden, "Setup has already been completed")
		return
	}

	var req setupRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		apiutil.RespondError(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	admin, err := queries.CreateAdmin(ctx, store.CreateAdminParams{
		Username:     req.Username,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         RoleOwner,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create owner account")
		apiutil.RespondError(w, http.StatusInternalServerError, "Setup failed")
		return
	}

	if err := SetAuthCookie(w, Claims{
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
	}); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to set auth cookie")
	}

	apiutil.RespondData(w, http.StatusCreated, adminToResponse(admin))
}
