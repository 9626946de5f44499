package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"seva-platform/pkg/config"
	"seva-platform/pkg/database"
	"seva-platform/pkg/middleware"
	"seva-platform/pkg/queue"
	"seva-platform/pkg/response"
	"seva-platform/services/report-service/authority"
	"seva-platform/services/report-service/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationQueue is fed by the dispatcher with routed report events.
const NotificationQueue = "notifications"

// Notification is the archived form of a report event.
type Notification struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type       string             `bson:"type" json:"type"`
	ReportID   string             `bson:"report_id" json:"report_id"`
	Title      string             `bson:"title" json:"title"`
	Category   string             `bson:"category" json:"category"`
	Status     string             `bson:"status" json:"status"`
	AssignedTo string             `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	CreatedBy  string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	ReceivedAt time.Time          `bson:"received_at" json:"received_at"`
}

type Client struct {
	UserID     string
	Role       string
	Department string
	Send       chan models.ReportEvent
}

var (
	clients    = make(map[*Client]bool)
	broadcast  = make(chan models.ReportEvent, 100)
	register   = make(chan *Client)
	unregister = make(chan *Client)
	mu         sync.RWMutex

	db  *mongo.Database
	dir *authority.Directory
)

func main() {
	cfg := config.Load()

	var err error
	db, err = database.ConnectMongo(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to MongoDB: %v", err)
	}
	log.Println("[OK] Connected to MongoDB")

	dir, err = authority.Load(cfg.AuthoritiesFile)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load authority directory: %v", err)
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	log.Println("[OK] Connected to RabbitMQ")

	msgs, err := queue.ConsumeMessages(ch, NotificationQueue)
	if err != nil {
		log.Fatalf("[ERROR] Failed to consume queue: %v", err)
	}

	middleware.RegisterMetrics()

	go consumeMessages(msgs)
	go handleClients()

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/health", healthHandler)
	apiMux.HandleFunc("/notifications/history", middleware.AuthMiddleware(historyHandler))
	apiMux.Handle("/metrics", middleware.GetMetricsHandler())

	apiHandler := middleware.TraceMiddleware(
		middleware.MetricsMiddleware(
			middleware.LoggerMiddleware(apiMux),
		),
	)

	rootMux := http.NewServeMux()
	rootMux.Handle("/notifications/subscribe", middleware.TraceMiddleware(http.HandlerFunc(subscribeHandler)))
	rootMux.Handle("/", apiHandler)

	log.Printf("[INFO] Notification Service running on %s", cfg.NotificationAddr)
	if err := http.ListenAndServe(cfg.NotificationAddr, rootMux); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

func consumeMessages(msgs <-chan amqp.Delivery) {
	for d := range msgs {
		var event models.ReportEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			log.Printf("[WARN] Failed to parse notification: %v", err)
			continue
		}

		log.Printf("[OK] Notification received - Report: %s, Type: %s", event.ReportID, event.Type)
		archive(event)
		broadcast <- event
	}
}

// archive stores the event in the notification history collection. Archive
// failures never block the live broadcast.
func archive(event models.ReportEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := Notification{
		Type:       event.Type,
		ReportID:   event.ReportID,
		Title:      event.Title,
		Category:   event.Category,
		Status:     event.Status,
		AssignedTo: event.AssignedTo,
		CreatedBy:  event.CreatedBy,
		ReceivedAt: time.Now().UTC(),
	}

	if _, err := db.Collection("notifications").InsertOne(ctx, record); err != nil {
		log.Printf("[WARN] Failed to archive notification: %v", err)
	}
}

// assignedDepartment maps an event's authority id to its department label so
// authority dashboards only see their own reports.
func assignedDepartment(event models.ReportEvent) string {
	if event.AssignedTo == "" {
		return ""
	}
	auth, err := dir.Get(event.AssignedTo)
	if err != nil {
		return ""
	}
	return auth.Department
}

func handleClients() {
	for {
		select {
		case client := <-register:
			mu.Lock()
			clients[client] = true
			mu.Unlock()
			log.Printf("[INFO] Client registered - UserID: %s (Total clients: %d)", client.UserID, len(clients))

		case client := <-unregister:
			mu.Lock()
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.Send)
			}
			mu.Unlock()
			log.Printf("[INFO] Client unregistered - UserID: %s (Total clients: %d)", client.UserID, len(clients))

		case event := <-broadcast:
			department := assignedDepartment(event)
			mu.RLock()
			for client := range clients {
				if !wantsEvent(client, event, department) {
					continue
				}
				select {
				case client.Send <- event:
				default:
					// Client's send channel is full, skip
				}
			}
			mu.RUnlock()
		}
	}
}

// wantsEvent decides per client: admins see everything, authority dashboards
// see their department's reports, citizens see updates to their own reports.
func wantsEvent(client *Client, event models.ReportEvent, department string) bool {
	switch client.Role {
	case "admin":
		return true
	case "authority":
		if client.Department == "" || department == "" {
			return true
		}
		return strings.EqualFold(client.Department, department)
	default:
		return event.Type == "report.updated" &&
			event.CreatedBy != "" && event.CreatedBy == client.UserID
	}
}

// subscribeHandler streams events over SSE. The token travels as a query
// parameter because EventSource cannot set headers.
func subscribeHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if tokenString == "" {
		http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := middleware.ParseToken(tokenString)
	if err != nil {
		log.Printf("[WARN] Invalid token attempt: %v", err)
		http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	client := &Client{
		UserID:     claims.UserID,
		Role:       claims.Role,
		Department: claims.Department,
		Send:       make(chan models.ReportEvent, 10),
	}

	register <- client
	defer func() {
		unregister <- client
	}()

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"Connection established"}`)
	flusher.Flush()

	for event := range client.Send {
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()
	}
}

// historyHandler returns the caller's recent notifications, newest first.
func historyHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromRequest(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if claims.Role != "admin" && claims.Role != "authority" {
		filter["created_by"] = claims.UserID
	}

	opts := options.Find().SetSort(bson.M{"received_at": -1}).SetLimit(50)
	cursor, err := db.Collection("notifications").Find(ctx, filter, opts)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to fetch notifications", err.Error())
		return
	}
	defer cursor.Close(ctx)

	var notifications []Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to decode notifications", err.Error())
		return
	}

	response.Success(w, http.StatusOK, "Notifications fetched successfully", notifications)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	mu.RLock()
	connectedClients := len(clients)
	mu.RUnlock()

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":            "UP",
		"service":           "notification-service",
		"connected_clients": connectedClients,
	})
}
