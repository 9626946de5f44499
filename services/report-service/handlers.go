package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"seva-platform/pkg/middleware"
	"seva-platform/pkg/objectstore"
	"seva-platform/pkg/response"
	"seva-platform/services/report-service/authority"
	"seva-platform/services/report-service/lifecycle"

	"github.com/google/uuid"
)

const maxAttachmentBytes = 10 << 20 // 10 MiB

type application struct {
	engine      *lifecycle.Engine
	directory   *authority.Directory
	attachments *objectstore.Store
}

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reports", app.reportsHandler)
	mux.HandleFunc("/api/reports/", app.reportDetailHandler)
	mux.HandleFunc("/api/authorities", app.authoritiesHandler)
	mux.HandleFunc("/api/authorities/", app.authorityDetailHandler)
	mux.HandleFunc("/api/health", app.healthHandler)
	mux.Handle("/metrics", middleware.GetMetricsHandler())

	return middleware.TraceMiddleware(
		middleware.MetricsMiddleware(
			middleware.LoggerMiddleware(mux),
		),
	)
}

func (app *application) reportsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		app.listReports(w, r)
	case http.MethodPost:
		app.createReport(w, r)
	default:
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}
}

// reportDetailHandler routes /api/reports/{id} and its sub-actions.
func (app *application) reportDetailHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	if rest == "" {
		response.Error(w, http.StatusBadRequest, "Missing report ID", "")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			app.getReport(w, r, id)
		case http.MethodPatch:
			app.patchReport(w, r, id)
		case http.MethodDelete:
			app.requireStaff(func(w http.ResponseWriter, r *http.Request) {
				app.deleteReport(w, r, id)
			})(w, r)
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
	case "vote":
		app.postOnly(r, w, func() { app.voteReport(w, r, id) })
	case "complete-vote":
		app.postOnly(r, w, func() { app.completeVoteReport(w, r, id) })
	case "comment":
		app.postOnly(r, w, func() { app.commentReport(w, r, id) })
	case "assign":
		if r.Method != http.MethodPost {
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
			return
		}
		app.requireStaff(func(w http.ResponseWriter, r *http.Request) {
			app.assignReport(w, r, id)
		})(w, r)
	case "deadline":
		if r.Method != http.MethodPost {
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
			return
		}
		app.requireStaff(func(w http.ResponseWriter, r *http.Request) {
			app.setDeadline(w, r, id)
		})(w, r)
	case "attachment":
		app.postOnly(r, w, func() { app.uploadAttachment(w, r, id) })
	default:
		response.Error(w, http.StatusNotFound, "Unknown action", action)
	}
}

func (app *application) postOnly(r *http.Request, w http.ResponseWriter, next func()) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	next()
}

// requireStaff gates admin/authority actions on the caller's claimed role.
// The role comes straight out of the token; nothing re-verifies it here.
func (app *application) requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return middleware.AuthMiddleware(middleware.RequireRole("admin", "authority")(next))
}

func (app *application) listReports(w http.ResponseWriter, r *http.Request) {
	reports := app.engine.List()
	response.Success(w, http.StatusOK, "Reports fetched successfully", reports)
}

func (app *application) createReport(w http.ResponseWriter, r *http.Request) {
	var input lifecycle.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	report, err := app.engine.Create(input)
	if err != nil {
		response.ErrorFrom(w, "Failed to create report", err)
		return
	}

	middleware.CountMutation("create")
	log.Printf("[OK] Report created - ID: %s, Category: %s", report.ID, report.Category)
	response.Success(w, http.StatusCreated, "Report created successfully", report)
}

func (app *application) getReport(w http.ResponseWriter, r *http.Request, id string) {
	report, err := app.engine.Get(id)
	if err != nil {
		response.ErrorFrom(w, "Report not found", err)
		return
	}
	response.Success(w, http.StatusOK, "Report fetched successfully", report)
}

func (app *application) patchReport(w http.ResponseWriter, r *http.Request, id string) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	report, err := app.engine.Patch(id, patch)
	if err != nil {
		response.ErrorFrom(w, "Failed to update report", err)
		return
	}

	middleware.CountMutation("patch")
	response.Success(w, http.StatusOK, "Report updated", report)
}

func (app *application) deleteReport(w http.ResponseWriter, r *http.Request, id string) {
	if err := app.engine.Delete(id); err != nil {
		response.ErrorFrom(w, "Failed to delete report", err)
		return
	}

	middleware.CountMutation("delete")
	log.Printf("[OK] Report deleted - ID: %s", id)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) voteReport(w http.ResponseWriter, r *http.Request, id string) {
	report, err := app.engine.Vote(id)
	if err != nil {
		response.ErrorFrom(w, "Failed to record vote", err)
		return
	}

	middleware.CountMutation("vote")
	response.Success(w, http.StatusOK, "Vote recorded", report)
}

func (app *application) completeVoteReport(w http.ResponseWriter, r *http.Request, id string) {
	report, err := app.engine.CompleteVote(id)
	if err != nil {
		response.ErrorFrom(w, "Failed to record completion vote", err)
		return
	}

	middleware.CountMutation("complete_vote")
	response.Success(w, http.StatusOK, "Completion vote recorded", report)
}

func (app *application) commentReport(w http.ResponseWriter, r *http.Request, id string) {
	var input lifecycle.CommentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	comment, err := app.engine.Comment(id, input)
	if err != nil {
		response.ErrorFrom(w, "Failed to add comment", err)
		return
	}

	middleware.CountMutation("comment")
	response.Success(w, http.StatusOK, "Comment added", comment)
}

func (app *application) assignReport(w http.ResponseWriter, r *http.Request, id string) {
	var input struct {
		AuthorityID string `json:"authorityId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	report, err := app.engine.Assign(id, input.AuthorityID)
	if err != nil {
		response.ErrorFrom(w, "Failed to assign report", err)
		return
	}

	middleware.CountMutation("assign")
	log.Printf("[OK] Report %s assigned to %s", id, input.AuthorityID)
	response.Success(w, http.StatusOK, "Report assigned", report)
}

func (app *application) setDeadline(w http.ResponseWriter, r *http.Request, id string) {
	var input struct {
		Deadline *string `json:"deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	report, err := app.engine.SetDeadline(id, input.Deadline)
	if err != nil {
		response.ErrorFrom(w, "Failed to set deadline", err)
		return
	}

	middleware.CountMutation("deadline")
	response.Success(w, http.StatusOK, "Deadline set", report)
}

func (app *application) uploadAttachment(w http.ResponseWriter, r *http.Request, id string) {
	if app.attachments == nil {
		response.Error(w, http.StatusServiceUnavailable, "Attachment storage unavailable", "")
		return
	}

	// Existence check first so a missing report 404s before any upload work.
	if _, err := app.engine.Get(id); err != nil {
		response.ErrorFrom(w, "Report not found", err)
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid multipart payload", err.Error())
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Missing photo file", err.Error())
		return
	}
	defer file.Close()

	objectName := fmt.Sprintf("%s/%s%s", id, uuid.New().String(), filepath.Ext(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := app.attachments.PutAttachment(r.Context(), objectName, file, header.Size, contentType)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to store attachment", err.Error())
		return
	}

	report, err := app.engine.SetImageURL(id, url)
	if err != nil {
		response.ErrorFrom(w, "Failed to record attachment", err)
		return
	}

	middleware.CountMutation("attachment")
	log.Printf("[OK] Attachment stored - Report: %s, Object: %s", id, objectName)
	response.Success(w, http.StatusOK, "Attachment uploaded", report)
}

func (app *application) authoritiesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	response.Success(w, http.StatusOK, "Authorities fetched successfully", app.directory.List())
}

func (app *application) authorityDetailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/authorities/")
	auth, err := app.directory.Get(id)
	if err != nil {
		response.ErrorFrom(w, "Authority not found", err)
		return
	}
	response.Success(w, http.StatusOK, "Authority fetched successfully", auth)
}

func (app *application) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "UP",
		"service":   "report-service",
		"reports":   len(app.engine.List()),
		"timestamp": time.Now().UnixMilli(),
	}
	response.JSON(w, http.StatusOK, health)
}
