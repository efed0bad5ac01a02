// cmd/worker/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/syagroup/bulksms-backend/internal/config"
	"github.com/syagroup/bulksms-backend/internal/db"
	"github.com/syagroup/bulksms-backend/internal/gateway"
	"github.com/syagroup/bulksms-backend/internal/logger"
	"github.com/syagroup/bulksms-backend/internal/model"
	"github.com/syagroup/bulksms-backend/internal/queue"
	"github.com/syagroup/bulksms-backend/internal/repository"
	"github.com/syagroup/bulksms-backend/internal/scheduler"
	"github.com/syagroup/bulksms-backend/internal/service"
)

// The worker is the sole consumer of the campaign batch queue. Keeping a
// single consumer process makes the in-process runner guard authoritative
// for the single-runner-per-tenant invariant.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("failed to load configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()

	mainDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to main DB: %v", err)
	}
	defer mainDB.Close()

	tenantProvider := db.NewTenantDBProvider()
	defer tenantProvider.Close()

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, log)
	if err != nil {
		log.Fatalf("failed to connect to queue: %v", err)
	}
	defer q.Close()

	tenantRepo := &repository.TenantRepository{DB: mainDB}
	deliveryRepos := &repository.TenantDeliveryRepoFactory{Provider: tenantProvider}
	gw := gateway.NewClient(cfg.GatewayTimeout, cfg.GatewayRetries, log)

	campaignService := service.NewCampaignService(
		tenantRepo, deliveryRepos, gw, q, log,
		cfg.BatchSize, cfg.SendDelay,
	)

	err = q.Subscribe(queue.TopicCampaignBatches, func(job model.BatchJob) error {
		jobLog := log.WithField("job_id", job.JobID).WithField("tenant_id", job.TenantID)
		jobLog.Info("batch job started")

		outcome, err := campaignService.RunBatch(job.TenantID)
		if err != nil {
			jobLog.Warnf("batch job failed: %v", err)
			return err
		}
		jobLog.Infof("batch job finished: status=%s sent=%d failed=%d",
			outcome.Status, outcome.Sent, outcome.Failed)
		return nil
	})
	if err != nil {
		log.Fatalf("failed to subscribe to batch queue: %v", err)
	}

	sweeper := scheduler.NewCampaignSweeper(campaignService, tenantRepo, log, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("failed to start campaign sweep: %v", err)
	}

	log.Info("worker running, waiting for batch jobs")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("worker shutting down")
	sweeper.Stop()
}
