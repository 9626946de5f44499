package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"seva-platform/pkg/config"
	"seva-platform/pkg/database"
	"seva-platform/pkg/middleware"
	"seva-platform/pkg/response"
	"seva-platform/services/auth-service/models"
	"seva-platform/services/auth-service/utils"

	"gorm.io/gorm"
)

var db *gorm.DB

var validRoles = map[string]bool{
	"user":      true,
	"authority": true,
	"admin":     true,
}

func main() {
	cfg := config.Load()

	var err error
	db, err = database.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to database: %v", err)
	}

	log.Println("[INFO] Running auto migration...")
	if err := db.AutoMigrate(&models.User{}); err != nil {
		log.Fatalf("[ERROR] Migration failed: %v", err)
	}
	log.Println("[OK] Migration success")

	middleware.RegisterMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signup", signupHandler)
	mux.HandleFunc("/api/auth/login", loginHandler)
	mux.HandleFunc("/api/auth/me", middleware.AuthMiddleware(meHandler))
	mux.HandleFunc("/health", healthCheckHandler)
	mux.Handle("/metrics", middleware.GetMetricsHandler())

	handler := middleware.TraceMiddleware(
		middleware.MetricsMiddleware(
			middleware.LoggerMiddleware(mux),
		),
	)

	log.Printf("[INFO] Auth Service running on %s", cfg.AuthAddr)
	if err := http.ListenAndServe(cfg.AuthAddr, handler); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

func signupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		Role       string `json:"role"`
		Department string `json:"department"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || input.Password == "" || input.Role == "" {
		response.Error(w, http.StatusBadRequest, "Username, Password, and Role are required", "")
		return
	}
	if !validRoles[input.Role] {
		response.Error(w, http.StatusBadRequest, "Role must be user, authority, or admin", "")
		return
	}
	if len(input.Password) < 8 {
		response.Error(w, http.StatusBadRequest, "Password must be at least 8 characters", "")
		return
	}

	var existing models.User
	if result := db.Where("username = ? AND role = ?", input.Username, input.Role).First(&existing); result.Error == nil {
		log.Printf("[WARN] Signup attempt for existing account")
		response.Error(w, http.StatusConflict, "Account already exists", "")
		return
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		log.Printf("[ERROR] Failed to hash password: %v", err)
		response.Error(w, http.StatusInternalServerError, "Failed to process signup", "")
		return
	}

	newUser := models.User{
		Username:   input.Username,
		Password:   hashed,
		Role:       input.Role,
		Department: input.Department,
	}

	if err := db.Create(&newUser).Error; err != nil {
		log.Printf("[ERROR] Failed to save user: %v", err)
		response.Error(w, http.StatusInternalServerError, "Failed to save user", "")
		return
	}

	log.Printf("[OK] User registered - ID: %s, Role: %s", newUser.ID, newUser.Role)

	token, err := utils.GenerateJWT(newUser.ID, newUser.Username, newUser.Role, newUser.Department)
	if err != nil {
		log.Printf("[ERROR] Failed to generate JWT for user id: %s", newUser.ID)
		response.Error(w, http.StatusInternalServerError, "Failed to generate token", "")
		return
	}

	response.Success(w, http.StatusCreated, "User registered successfully", map[string]interface{}{
		"id":         newUser.ID,
		"token":      token,
		"username":   newUser.Username,
		"role":       newUser.Role,
		"department": newUser.Department,
	})
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	if input.Username == "" || input.Password == "" || input.Role == "" {
		response.Error(w, http.StatusBadRequest, "Username, Password, and Role are required", "")
		return
	}

	var user models.User
	if err := db.Where("username = ? AND role = ?", input.Username, input.Role).First(&user).Error; err != nil {
		log.Printf("[WARN] Failed login attempt")
		response.Error(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	if !utils.CheckPasswordHash(input.Password, user.Password) {
		log.Printf("[WARN] Invalid password attempt")
		response.Error(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	token, err := utils.GenerateJWT(user.ID, user.Username, user.Role, user.Department)
	if err != nil {
		log.Printf("[ERROR] Failed to generate JWT for user id: %s", user.ID)
		response.Error(w, http.StatusInternalServerError, "Failed to generate token", "")
		return
	}

	log.Printf("[OK] User logged in - ID: %s, Role: %s", user.ID, user.Role)

	response.Success(w, http.StatusOK, "Login successful", map[string]interface{}{
		"id":         user.ID,
		"token":      token,
		"username":   user.Username,
		"role":       user.Role,
		"department": user.Department,
	})
}

func meHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromRequest(r)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve user context", "")
		return
	}

	var user models.User
	if err := db.First(&user, "id = ?", claims.UserID).Error; err != nil {
		response.Error(w, http.StatusNotFound, "User not found", "")
		return
	}

	response.Success(w, http.StatusOK, "User profile fetched", user)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "UP",
		"service": "auth-service",
	}

	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		health["status"] = "DOWN"
		health["database"] = "disconnected"
		response.JSON(w, http.StatusServiceUnavailable, health)
		return
	}

	health["database"] = "connected"
	response.JSON(w, http.StatusOK, health)
}
