package main

import (
	"encoding/json"
	"log"

	"seva-platform/pkg/config"
	"seva-platform/pkg/queue"
	"seva-platform/services/report-service/authority"
	"seva-platform/services/report-service/lifecycle"
	"seva-platform/services/report-service/models"
)

// NotificationQueue receives every routed event for dashboard fan-out.
const NotificationQueue = "notifications"

func main() {
	cfg := config.Load()

	dir, err := authority.Load(cfg.AuthoritiesFile)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load authority directory: %v", err)
	}
	log.Printf("[OK] Authority directory loaded - %d entries", len(dir.List()))

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	log.Println("[OK] Dispatcher Service connected to RabbitMQ")

	msgs, err := queue.ConsumeMessages(ch, lifecycle.EventQueue)
	if err != nil {
		log.Fatalf("[ERROR] Failed to consume queue: %v", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			var event models.ReportEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				log.Printf("[WARN] Error parsing event: %v", err)
				continue
			}

			routeEvent(dir, event)

			if err := queue.PublishMessage(ch, NotificationQueue, event); err != nil {
				log.Printf("[WARN] Failed to forward event to notifications: %v", err)
			}
		}
	}()

	log.Printf("[INFO] Waiting for report events on '%s'. Press CTRL+C to exit.", lifecycle.EventQueue)
	<-forever
}

// routeEvent resolves the owning authority and logs the routing decision.
// Explicit assignments from the lifecycle win; otherwise the category
// heuristic decides.
func routeEvent(dir *authority.Directory, event models.ReportEvent) {
	authorityID := event.AssignedTo
	if authorityID == "" {
		if resolved := dir.Resolve(event.Category); resolved != nil {
			authorityID = *resolved
		}
	}

	if authorityID == "" {
		log.Printf("[WARN] No authority for report '%s' (category: %s) - left unassigned", event.Title, event.Category)
		return
	}

	if auth, err := dir.Get(authorityID); err == nil {
		log.Printf("[ROUTING] Report '%s' (%s) forwarded to: %s (%s)", event.Title, event.Type, auth.Name, auth.Department)
	} else {
		log.Printf("[ROUTING] Report '%s' (%s) forwarded to authority id %s", event.Title, event.Type, authorityID)
	}
}
