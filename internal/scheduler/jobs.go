package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/heliosfit/gymdesk/internal/db"
	"github.com/heliosfit/gymdesk/internal/email"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/sessions"
)

const (
	jobTimeout       = 2 * time.Minute
	digestAheadDays  = 7
	digestListLimit  = 50
	expiryJobCron    = "0 0 * * *"
	digestJobCron    = "0 7 * * *"
	autoCheckoutName = "attendance_auto_checkout"
	expiryJobName    = "membership_expiry"
	digestJobName    = "expiry_digest"
)

// autoCheckoutCron derives the daily auto-checkout schedule from the gym's
// closing time and validates the result before registration.
func autoCheckoutCron(closingTime string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(closingTime), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid closing time %q", closingTime)
	}
	expr := fmt.Sprintf("%s %s * * *", parts[1], parts[0])
	if _, err := cronParser.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid closing time %q: %w", closingTime, err)
	}
	return expr, nil
}

// RescheduleAutoCheckout moves the auto-checkout job to a new closing time.
// Callers before scheduler initialization get ErrNotInitialized.
func RescheduleAutoCheckout(closingTime string) error {
	expr, err := autoCheckoutCron(closingTime)
	if err != nil {
		return err
	}
	_, err = Reschedule(autoCheckoutName, expr)
	return err
}

// RegisterJobs registers the maintenance jobs: auto-checkout at closing time,
// daily membership expiry, and the expiring-memberships digest email.
func RegisterJobs(database *db.DB, emailClient email.Sender) error {
	if database == nil {
		return fmt.Errorf("scheduled jobs require database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	gymCfg, err := gymconfig.Load(ctx, database.Queries)
	if err != nil {
		log.Warn().Err(err).Msg("Using default gym config for job registration")
	}

	checkoutCron, err := autoCheckoutCron(gymCfg.ClosingTime)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to default closing time for auto-checkout")
		checkoutCron, _ = autoCheckoutCron(gymconfig.Default().ClosingTime)
	}

	if _, err := AddJob(autoCheckoutName, checkoutCron, func() {
		runAutoCheckout(database)
	}); err != nil {
		return err
	}
	if _, err := AddJob(expiryJobName, expiryJobCron, func() {
		runMembershipExpiry(database)
	}); err != nil {
		return err
	}
	if _, err := AddJob(digestJobName, digestJobCron, func() {
		runExpiryDigest(database, emailClient)
	}); err != nil {
		return err
	}

	return nil
}

// runAutoCheckout closes today's open attendance records at closing time.
func runAutoCheckout(database *db.DB) {
	jobLogger := log.With().Str("component", autoCheckoutName).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = jobLogger.WithContext(ctx)

	gymCfg, err := gymconfig.Load(ctx, database.Queries)
	if err != nil {
		jobLogger.Warn().Err(err).Msg("Falling back to default gym config")
	}
	if !gymCfg.Attendance.AutoExit() {
		jobLogger.Debug().Msg("Auto checkout disabled, skipping")
		return
	}

	loc := gymCfg.Location()
	now := time.Now().In(loc)
	day := sessions.DayKey(now, loc)

	affected, err := database.Queries.AutoCheckoutOpenForDay(ctx, day, now)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to auto-checkout open records")
		return
	}
	if affected > 0 {
		jobLogger.Info().Int64("records", affected).Str("day", day).Msg("Auto-checked-out open records")
	}
}

// runMembershipExpiry marks Active members whose expiry date has passed as
// Expired.
func runMembershipExpiry(database *db.DB) {
	jobLogger := log.With().Str("component", expiryJobName).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = jobLogger.WithContext(ctx)

	affected, err := database.Queries.ExpireMemberships(ctx, time.Now())
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to expire memberships")
		return
	}
	if affected > 0 {
		jobLogger.Info().Int64("members", affected).Msg("Expired lapsed memberships")
	}
}

// runExpiryDigest emails the gym contact a digest of memberships expiring in
// the next week.
func runExpiryDigest(database *db.DB, emailClient email.Sender) {
	jobLogger := log.With().Str("component", digestJobName).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = jobLogger.WithContext(ctx)

	if emailClient == nil {
		jobLogger.Debug().Msg("Digest skipped: email client not configured")
		return
	}

	gymCfg, err := gymconfig.Load(ctx, database.Queries)
	if err != nil {
		jobLogger.Warn().Err(err).Msg("Falling back to default gym config")
	}
	recipient := strings.TrimSpace(gymCfg.Contact.Email)
	if recipient == "" {
		jobLogger.Debug().Msg("Digest skipped: gym contact email not set")
		return
	}

	loc := gymCfg.Location()
	now := time.Now().In(loc)
	members, err := database.Queries.ListExpiringMembers(ctx, now, now.AddDate(0, 0, digestAheadDays), digestListLimit)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to load expiring members")
		return
	}
	if len(members) == 0 {
		jobLogger.Debug().Msg("Digest skipped: nothing expiring")
		return
	}

	subject, body := email.BuildExpiryDigest(gymCfg.Name, members, now)
	if err := emailClient.Send(ctx, recipient, subject, body); err != nil {
		jobLogger.Error().Err(err).Msg("Failed to send expiry digest")
		return
	}
	jobLogger.Info().Int("members", len(members)).Msg("Expiry digest sent")
}
