package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/syagroup/bulksms-backend/internal/repository"
	"github.com/syagroup/bulksms-backend/internal/service"
)

// CampaignSweeper periodically re-enqueues batch runs for tenants whose
// sending flag is on but whose reschedule chain has gone quiet — typically
// after a worker restart lost a timer-deferred publish.
type CampaignSweeper struct {
	cronEngine *cron.Cron
	svc        *service.CampaignService
	tenantRepo repository.TenantRepositoryInterface
	logger     *logrus.Logger
	interval   time.Duration
}

func NewCampaignSweeper(
	svc *service.CampaignService,
	tenantRepo repository.TenantRepositoryInterface,
	log *logrus.Logger,
	interval time.Duration,
) *CampaignSweeper {
	return &CampaignSweeper{
		cronEngine: cron.New(cron.WithSeconds()),
		svc:        svc,
		tenantRepo: tenantRepo,
		logger:     log,
		interval:   interval,
	}
}

// Start registers the sweep job and starts the cron engine.
func (s *CampaignSweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cronEngine.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule campaign sweep: %w", err)
	}
	s.cronEngine.Start()
	s.logger.Infof("campaign sweep scheduled every %s", s.interval)
	return nil
}

// Stop halts the cron engine and waits for a running sweep to finish.
func (s *CampaignSweeper) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
}

func (s *CampaignSweeper) sweep() {
	ids, err := s.tenantRepo.ListSendingIDs()
	if err != nil {
		s.logger.Errorf("sweep: failed to list sending tenants: %v", err)
		return
	}

	for _, id := range ids {
		if !s.svc.ShouldSweep(id) {
			continue
		}
		if err := s.svc.Resume(id); err != nil {
			s.logger.WithField("tenant_id", id).Errorf("sweep: failed to re-enqueue: %v", err)
			continue
		}
		s.logger.WithField("tenant_id", id).Info("sweep: re-enqueued stalled campaign")
	}
}
