package main

import (
	"log"
	"net/http"
	"time"

	"seva-platform/pkg/config"
	"seva-platform/pkg/middleware"
	"seva-platform/pkg/response"
)

func main() {
	cfg := config.Load()

	proxy := &geoProxy{
		client:       &http.Client{Timeout: cfg.UpstreamTimeout},
		nominatimURL: cfg.NominatimURL,
		orsBaseURL:   cfg.ORSBaseURL,
		orsKey:       cfg.ORSKey,
	}

	middleware.RegisterMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/geocode/reverse", proxy.reverseGeocodeHandler)
	mux.HandleFunc("/api/ors/route", proxy.routeHandler)
	mux.HandleFunc("/api/health", healthHandler)
	mux.Handle("/metrics", middleware.GetMetricsHandler())

	handler := middleware.TraceMiddleware(
		middleware.MetricsMiddleware(
			middleware.LoggerMiddleware(mux),
		),
	)

	log.Printf("[INFO] Geo Service running on %s", cfg.GeoAddr)
	if err := http.ListenAndServe(cfg.GeoAddr, handler); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"service":   "geo-service",
		"timestamp": time.Now().UnixMilli(),
	})
}
