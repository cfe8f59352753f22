// Package settings serves the gym's operating configuration document.
package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/heliosfit/gymdesk/internal/api/apiutil"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/scheduler"
	"github.com/heliosfit/gymdesk/internal/store"
)

var queries *store.Queries

// Init wires the package with the query layer.
func Init(q *store.Queries) {
	queries = q
}

// HandleGet returns the stored configuration. The kiosk uses this endpoint,
// so it is public. The default document is seeded on first read.
func HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := queries.GetConfigDocument(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		cfg := gymconfig.Default()
		if err := gymconfig.Save(ctx, queries, cfg); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to seed gym config")
			apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch configuration")
			return
		}
		apiutil.RespondData(w, http.StatusOK, cfg)
		return
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load gym config")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch configuration")
		return
	}

	var stored gymconfig.Config
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Stored gym config is malformed, serving defaults")
		apiutil.RespondData(w, http.StatusOK, gymconfig.Default())
		return
	}

	apiutil.RespondData(w, http.StatusOK, gymconfig.Effective(&stored))
}

// HandlePut replaces the configuration document.
func HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cfg gymconfig.Config
	if err := apiutil.DecodeJSON(r, &cfg); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid configuration document")
		return
	}

	effective := gymconfig.Effective(&cfg)
	if err := gymconfig.Save(ctx, queries, effective); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to store gym config")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to update configuration")
		return
	}

	// A new closing time moves the auto-checkout job immediately. Tools and
	// tests run without the scheduler; that is not an error.
	if err := scheduler.RescheduleAutoCheckout(effective.ClosingTime); err != nil &&
		!errors.Is(err, scheduler.ErrNotInitialized) && !errors.Is(err, scheduler.ErrUnknownJob) {
		log.Ctx(ctx).Warn().Err(err).Msg("Failed to reschedule auto-checkout")
	}

	apiutil.RespondData(w, http.StatusOK, effective)
}
