package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"seva-platform/pkg/config"
	"seva-platform/pkg/middleware"
	"seva-platform/pkg/objectstore"
	"seva-platform/pkg/queue"
	"seva-platform/services/report-service/authority"
	"seva-platform/services/report-service/lifecycle"
	"seva-platform/services/report-service/store"
)

func main() {
	cfg := config.Load()

	st, err := store.Open(cfg.ReportsFile)
	if err != nil {
		log.Fatalf("[ERROR] Failed to open report store: %v", err)
	}
	log.Printf("[OK] Report store ready - %s", cfg.ReportsFile)

	dir, err := authority.Load(cfg.AuthoritiesFile)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load authority directory: %v", err)
	}
	log.Printf("[OK] Authority directory loaded - %d entries", len(dir.List()))

	// The lifecycle works without a broker; events are just skipped.
	var publisher lifecycle.Publisher
	conn, ch, err := queue.ConnectRabbitMQ(cfg.AMQPURL)
	if err != nil {
		log.Printf("[WARN] RabbitMQ unavailable, report events disabled: %v", err)
	} else {
		defer conn.Close()
		defer ch.Close()
		publisher = queue.NewPublisher(ch)
		log.Println("[OK] Connected to RabbitMQ")
	}

	var attachments *objectstore.Store
	objStore, err := objectstore.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Printf("[WARN] MinIO unavailable, attachments disabled: %v", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := objStore.EnsureBucket(ctx); err != nil {
			log.Printf("[WARN] MinIO bucket check failed, attachments disabled: %v", err)
		} else {
			attachments = objStore
			log.Printf("[OK] Attachment bucket ready - %s", cfg.MinioBucket)
		}
		cancel()
	}

	app := &application{
		engine:      lifecycle.New(st, dir, publisher),
		directory:   dir,
		attachments: attachments,
	}

	middleware.RegisterMetrics()

	log.Printf("[INFO] Report Service running on %s", cfg.ReportAddr)
	if err := http.ListenAndServe(cfg.ReportAddr, app.routes()); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}
