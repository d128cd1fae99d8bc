package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/database"
)

// Retention windows for periodic cleanup jobs
const (
	auditLogRetention     = 90 * 24 * time.Hour
	revokedTokenRetention = 30 * 24 * time.Hour
)

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	payments  *PaymentService
	trips     *TripService
	rateLimit *RateLimitService
	audit     *AuditService
	tokens    *database.RefreshTokenRepository
	logger    *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(
	payments *PaymentService,
	trips *TripService,
	rateLimit *RateLimitService,
	audit *AuditService,
	tokens *database.RefreshTokenRepository,
	logger *logrus.Logger,
) *CronService {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:      c,
		payments:  payments,
		trips:     trips,
		rateLimit: rateLimit,
		audit:     audit,
		tokens:    tokens,
		logger:    logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: Expire stale payment attempts every 10 minutes
	// Cron format: second minute hour day month weekday
	_, err := s.cron.AddFunc("0 */10 * * * *", s.expireStalePaymentsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule stale payments job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Expire stale payment attempts (every 10 minutes)")

	// Job 2: Cleanup expired rate limit records hourly
	_, err = s.cron.AddFunc("0 15 * * * *", s.cleanupRateLimitsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule rate limit cleanup job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Cleanup rate limits (hourly at :15)")

	// Job 3: Verify seat counters daily at 2:30 AM
	_, err = s.cron.AddFunc("0 30 2 * * *", s.verifySeatCountersJob)
	if err != nil {
		return fmt.Errorf("failed to schedule seat counter job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Verify seat counters (Daily at 2:30 AM)")

	// Job 4: Cleanup expired and old revoked refresh tokens daily at 3 AM
	_, err = s.cron.AddFunc("0 0 3 * * *", s.cleanupTokensJob)
	if err != nil {
		return fmt.Errorf("failed to schedule token cleanup job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Cleanup refresh tokens (Daily at 3:00 AM)")

	// Job 5: Cleanup old audit logs weekly on Sunday at 4 AM
	_, err = s.cron.AddFunc("0 0 4 * * 0", s.cleanupAuditLogsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule audit log cleanup job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Cleanup audit logs (Sundays at 4:00 AM)")

	// Start the cron scheduler
	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

// expireStalePaymentsJob fails payment attempts stuck in pending
func (s *CronService) expireStalePaymentsJob() {
	startTime := time.Now()

	expired, err := s.payments.ExpireStaleAttempts(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to expire stale payment attempts")
		return
	}

	if expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  expired,
			"duration": time.Since(startTime).String(),
		}).Info("[CRON] Expired stale payment attempts")
	}
}

// cleanupRateLimitsJob removes rate limit records outside every window
func (s *CronService) cleanupRateLimitsJob() {
	removed, err := s.rateLimit.CleanupExpiredRateLimits()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup rate limits")
		return
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("[CRON] Cleaned up rate limit records")
	}
}

// verifySeatCountersJob sweeps all trips for seat counter drift. Findings
// are logged inside the service; this job only reports the sweep result.
func (s *CronService) verifySeatCountersJob() {
	startTime := time.Now()

	drifts, err := s.trips.VerifySeatCounters()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to verify seat counters")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"drifts":   len(drifts),
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Seat counter sweep finished")
}

// cleanupTokensJob removes expired tokens and long-revoked tokens
func (s *CronService) cleanupTokensJob() {
	expired, err := s.tokens.CleanupExpiredTokens()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup expired tokens")
		return
	}

	revoked, err := s.tokens.CleanupRevokedTokens(revokedTokenRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup revoked tokens")
		return
	}

	if expired > 0 || revoked > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired": expired,
			"revoked": revoked,
		}).Info("[CRON] Cleaned up refresh tokens")
	}
}

// cleanupAuditLogsJob removes audit log entries past the retention window
func (s *CronService) cleanupAuditLogsJob() {
	removed, err := s.audit.CleanupOldAuditLogs(auditLogRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup audit logs")
		return
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("[CRON] Cleaned up audit logs")
	}
}

// RunMaintenanceNow runs every cleanup job immediately
func (s *CronService) RunMaintenanceNow() {
	s.logger.Info("[MANUAL] Running maintenance jobs now...")
	s.expireStalePaymentsJob()
	s.cleanupRateLimitsJob()
	s.cleanupTokensJob()
	s.cleanupAuditLogsJob()
	s.verifySeatCountersJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
