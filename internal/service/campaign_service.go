// internal/service/campaign_service.go
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/syagroup/bulksms-backend/internal/errors"
	"github.com/syagroup/bulksms-backend/internal/gateway"
	"github.com/syagroup/bulksms-backend/internal/model"
	"github.com/syagroup/bulksms-backend/internal/queue"
	"github.com/syagroup/bulksms-backend/internal/repository"
	"github.com/syagroup/bulksms-backend/internal/retry"
)

// GatewaySender is the outbound SMS contract the runner depends on.
type GatewaySender interface {
	Send(apiURL string, p gateway.Payload, authToken string) (*gateway.Response, error)
}

// DeliveryRepoFactory resolves the per-tenant delivery store for a tenant.
type DeliveryRepoFactory interface {
	ForTenant(t *model.Tenant) (repository.DeliveryRepositoryInterface, error)
}

// CampaignService orchestrates bulk SMS campaigns: it exposes the start/stop/
// progress operations and executes one batch per runner invocation.
type CampaignService struct {
	TenantRepo    repository.TenantRepositoryInterface
	DeliveryRepos DeliveryRepoFactory
	Gateway       GatewaySender
	Queue         queue.Queue
	Progress      *ProgressTracker
	Logger        *logrus.Logger

	BatchSize  int
	SendDelay  time.Duration
	WriteRetry retry.Policy // wraps contended main/tenant store writes

	// Pace blocks between consecutive sends; nil means time.Sleep.
	Pace func(time.Duration)

	guard *runnerGuard
}

// NewCampaignService wires a service with its runner guard.
func NewCampaignService(
	tenants repository.TenantRepositoryInterface,
	deliveries DeliveryRepoFactory,
	gw GatewaySender,
	q queue.Queue,
	log *logrus.Logger,
	batchSize int,
	sendDelay time.Duration,
) *CampaignService {
	return &CampaignService{
		TenantRepo:    tenants,
		DeliveryRepos: deliveries,
		Gateway:       gw,
		Queue:         q,
		Progress:      NewProgressTracker(),
		Logger:        log,
		BatchSize:     batchSize,
		SendDelay:     sendDelay,
		WriteRetry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			Multiplier:  2,
			Jitter:      50 * time.Millisecond,
		},
		guard: newRunnerGuard(),
	}
}

// Start enables sending for the tenant, stores the campaign message and
// enqueues one runner invocation. Calling start while a campaign is already
// running only overwrites the message used by the next batch; the guard
// collapses the extra invocation.
func (s *CampaignService) Start(tenantID int64, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return appErrors.ErrEmptyMessage
	}

	if err := s.TenantRepo.SetLastMessage(tenantID, message); err != nil {
		return err
	}
	if err := s.TenantRepo.SetSendingEnabled(tenantID, true); err != nil {
		return err
	}

	return s.enqueue(tenantID, 0)
}

// Stop disables sending and zeroes the tenant's progress counters. An
// in-flight batch runs to completion; only the next reschedule is prevented.
func (s *CampaignService) Stop(tenantID int64) error {
	if err := s.TenantRepo.SetSendingEnabled(tenantID, false); err != nil {
		return err
	}
	s.Progress.Reset(tenantID)
	return nil
}

// Resume enqueues a runner invocation without touching the tenant row. Used
// by the sweep to restart a reschedule chain lost to a process restart.
func (s *CampaignService) Resume(tenantID int64) error {
	return s.enqueue(tenantID, 0)
}

// GetProgress returns the last completed batch counts, zero if none.
func (s *CampaignService) GetProgress(tenantID int64) model.BatchResult {
	return s.Progress.Get(tenantID)
}

// LastMessage returns the stored campaign text for the tenant.
func (s *CampaignService) LastMessage(tenantID int64) (string, error) {
	tenant, err := s.TenantRepo.GetByID(tenantID)
	if err != nil {
		return "", err
	}
	return tenant.LastMessage, nil
}

// IsRunnerActive reports whether a batch for the tenant is executing now.
func (s *CampaignService) IsRunnerActive(tenantID int64) bool {
	return s.guard.isActive(tenantID)
}

// ShouldSweep reports whether the sweep may re-enqueue a run for the tenant:
// no batch active and the last one finished long enough ago that the normal
// reschedule chain is evidently broken.
func (s *CampaignService) ShouldSweep(tenantID int64) bool {
	return !s.guard.isActive(tenantID) && s.guard.idleSince(tenantID) > 2*s.SendDelay
}

func (s *CampaignService) enqueue(tenantID int64, delay time.Duration) error {
	job := model.BatchJob{JobID: uuid.NewString(), TenantID: tenantID}
	return s.Queue.Publish(queue.TopicCampaignBatches, job, delay)
}

func (s *CampaignService) pace(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Pace != nil {
		s.Pace(d)
		return
	}
	time.Sleep(d)
}

// RunBatch executes one campaign batch for the tenant: load config, validate
// the gateway URL, select eligible contacts, send each with pacing, record
// per-phone outcomes, consume quota, publish progress and decide whether to
// reschedule. A duplicate invocation while a batch is in flight returns
// ErrRunnerActive with no side effects.
func (s *CampaignService) RunBatch(tenantID int64) (*model.RunOutcome, error) {
	if !s.guard.acquire(tenantID) {
		return nil, appErrors.ErrRunnerActive
	}
	defer s.guard.release(tenantID)

	log := s.Logger.WithField("tenant_id", tenantID)

	tenant, err := s.TenantRepo.GetByID(tenantID)
	if err != nil {
		return nil, err
	}

	if !tenant.SendingActive {
		log.Info("sending disabled, skipping batch")
		return &model.RunOutcome{Status: model.RunStopped}, nil
	}

	message := strings.TrimSpace(tenant.LastMessage)
	if message == "" {
		return nil, appErrors.ErrEmptyMessage
	}

	if !gateway.IsAllowedAPIURL(tenant.GatewayURL) {
		log.Errorf("blocked unsafe gateway URL: %s", tenant.GatewayURL)
		return nil, appErrors.NewBlockedDestination(tenant.GatewayURL)
	}

	remaining := tenant.QuotaRemaining()
	if remaining == 0 {
		// Quota exhausted: clear the flag so the halt is visible instead of
		// rescheduling no-op batches forever.
		if err := s.writeWithRetry(func() error {
			return s.TenantRepo.SetSendingEnabled(tenantID, false)
		}); err != nil {
			return nil, err
		}
		log.Warn("quota exhausted, sending disabled")
		return &model.RunOutcome{Status: model.RunQuotaExhausted}, nil
	}

	limit := s.BatchSize
	if remaining > 0 && remaining < limit {
		limit = remaining
	}

	deliveryRepo, err := s.DeliveryRepos.ForTenant(tenant)
	if err != nil {
		return nil, fmt.Errorf("tenant %d store unavailable: %w", tenantID, err)
	}

	batch, err := deliveryRepo.SelectEligible(limit)
	if err != nil {
		return nil, fmt.Errorf("batch selection failed: %w", err)
	}

	sent, failed := 0, 0
	for _, contact := range batch {
		if contact.LastStatus == model.StatusSent {
			log.WithField("phone", contact.Phone).Debug("skipping phone: already sent")
			continue
		}

		delivered := s.sendOne(tenant, contact.Phone, message, log)

		var writeErr error
		if delivered {
			writeErr = s.writeWithRetry(func() error {
				return deliveryRepo.UpsertDeliveryRecord(contact.Phone, message, model.StatusSent, 0)
			})
			sent++
		} else {
			writeErr = s.writeWithRetry(func() error {
				return deliveryRepo.UpsertDeliveryRecord(contact.Phone, message, model.StatusFailed, contact.Retries+1)
			})
			failed++
		}
		if writeErr != nil {
			// Fatal for the run; records written earlier in this batch stay.
			return nil, fmt.Errorf("delivery record write failed for %s: %w", contact.Phone, writeErr)
		}

		s.pace(s.SendDelay)
	}

	if sent > 0 {
		if err := s.writeWithRetry(func() error {
			return s.TenantRepo.IncrementQuotaUsed(tenantID, sent)
		}); err != nil {
			return nil, fmt.Errorf("quota update failed: %w", err)
		}
	}

	s.Progress.Set(tenantID, model.BatchResult{Sent: sent, Failed: failed})
	log.WithFields(logrus.Fields{"sent": sent, "failed": failed}).Info("batch completed")

	enabled, err := s.TenantRepo.SendingEnabled(tenantID)
	if err != nil {
		return nil, err
	}
	if enabled {
		if err := s.enqueue(tenantID, s.SendDelay); err != nil {
			return nil, fmt.Errorf("reschedule failed: %w", err)
		}
	}

	return &model.RunOutcome{Status: model.RunOK, Sent: sent, Failed: failed}, nil
}

// sendOne dispatches a single message and classifies the outcome. Any error,
// including transport retries exhausted, is recovered here: one contact's
// failure never aborts the batch.
func (s *CampaignService) sendOne(tenant *model.Tenant, phone, message string, log *logrus.Entry) bool {
	payload := gateway.Payload{
		Recipient: phone,
		SenderID:  tenant.SenderID,
		Type:      "plain",
		Message:   message,
	}

	resp, err := s.Gateway.Send(tenant.GatewayURL, payload, tenant.GatewayToken)
	if err != nil {
		log.WithField("phone", phone).Warnf("send failed: %v", err)
		return false
	}

	log.WithFields(logrus.Fields{
		"phone": phone,
		"code":  resp.StatusCode,
		"token": gateway.MaskToken(tenant.GatewayToken),
	}).Info("sms dispatched")

	return resp.Delivered()
}

func (s *CampaignService) writeWithRetry(fn func() error) error {
	return s.WriteRetry.Do(fn)
}
