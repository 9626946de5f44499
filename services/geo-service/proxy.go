package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"seva-platform/pkg/apperrors"
	"seva-platform/pkg/middleware"
	"seva-platform/pkg/response"
)

// geoProxy forwards map lookups to the upstream providers. The lifecycle core
// never calls these; they exist for the dashboards' map and ETA layer.
type geoProxy struct {
	client       *http.Client
	nominatimURL string
	orsBaseURL   string
	orsKey       string
}

// reverseGeocodeHandler proxies GET /api/geocode/reverse?lat=..&lon=.. to
// Nominatim, forwarding the upstream status and body.
func (g *geoProxy) reverseGeocodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	lat := r.URL.Query().Get("lat")
	lon := r.URL.Query().Get("lon")
	if lat == "" || lon == "" {
		response.Error(w, http.StatusBadRequest, "Missing lat/lon", "")
		return
	}

	target := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s&addressdetails=1",
		g.nominatimURL, url.QueryEscape(lat), url.QueryEscape(lon))

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Geocode proxy failed", err.Error())
		return
	}
	// Nominatim usage policy asks for an identifying agent.
	req.Header.Set("User-Agent", "SEVA-App/1.0")
	req.Header.Set("Accept-Language", "en")
	middleware.PropagateTraceID(req, middleware.GetTraceID(r))

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("[ERROR] Geocode proxy error: %v", err)
		response.ErrorFrom(w, "Geocode proxy failed", fmt.Errorf("nominatim unreachable: %w", apperrors.ErrUpstream))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		response.Error(w, resp.StatusCode, "Nominatim error", string(detail))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// routeHandler proxies POST /api/ors/route to the OpenRouteService directions
// API. Body: {coordinates: [[lon,lat],...], profile?: "driving-car"}.
func (g *geoProxy) routeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Coordinates [][]float64 `json:"coordinates"`
		Profile     string      `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	if len(input.Coordinates) < 2 {
		response.Error(w, http.StatusBadRequest, "coordinates must be provided as array of [lon,lat] pairs", "")
		return
	}
	if input.Profile == "" {
		input.Profile = "driving-car"
	}

	if g.orsKey == "" {
		response.Error(w, http.StatusInternalServerError, "ORS_KEY not configured", "")
		return
	}

	body, err := json.Marshal(map[string]interface{}{"coordinates": input.Coordinates})
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "ORS proxy failed", err.Error())
		return
	}

	target := fmt.Sprintf("%s/v2/directions/%s/geojson", g.orsBaseURL, url.PathEscape(input.Profile))
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "ORS proxy failed", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", g.orsKey)
	middleware.PropagateTraceID(req, middleware.GetTraceID(r))

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("[ERROR] ORS proxy error: %v", err)
		response.ErrorFrom(w, "ORS proxy failed", fmt.Errorf("openrouteservice unreachable: %w", apperrors.ErrUpstream))
		return
	}
	defer resp.Body.Close()

	// Forward the ORS status and body as-is, success or error.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
