// cmd/server/main.go
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/syagroup/bulksms-backend/internal/config"
	"github.com/syagroup/bulksms-backend/internal/controller"
	"github.com/syagroup/bulksms-backend/internal/db"
	"github.com/syagroup/bulksms-backend/internal/gateway"
	"github.com/syagroup/bulksms-backend/internal/logger"
	"github.com/syagroup/bulksms-backend/internal/queue"
	"github.com/syagroup/bulksms-backend/internal/repository"
	"github.com/syagroup/bulksms-backend/internal/service"
)

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

	smsController := &controller.SMSController{CampaignService: campaignService}

	r := chi.NewRouter()
	r.Mount("/sms", smsController.Routes())

	log.Infof("server running on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
