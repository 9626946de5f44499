package lifecycle

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"seva-platform/pkg/apperrors"
	"seva-platform/services/report-service/authority"
	"seva-platform/services/report-service/models"
	"seva-platform/services/report-service/store"

	"github.com/google/uuid"
)

// EventQueue is where lifecycle events land; dispatcher and notification
// services consume it.
const EventQueue = "report_queue"

// Publisher is the slice of pkg/queue the engine needs. A nil publisher
// disables events without touching the lifecycle itself.
type Publisher interface {
	Publish(queueName string, payload interface{}) error
}

// Engine sequences every citizen/authority/admin action over the report
// store. It never touches persisted state directly; all writes go through
// store operations.
type Engine struct {
	store     *store.Store
	directory *authority.Directory
	publisher Publisher
}

func New(st *store.Store, dir *authority.Directory, pub Publisher) *Engine {
	return &Engine{store: st, directory: dir, publisher: pub}
}

type CreateInput struct {
	Title     string   `json:"title"`
	Desc      string   `json:"desc"`
	Category  string   `json:"category"`
	Area      string   `json:"area"`
	Pincode   string   `json:"pincode"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	CreatedBy *string  `json:"createdBy"`
}

// Create validates the title, applies creation defaults, runs auto-assignment
// against the directory, and persists the record.
func (e *Engine) Create(in CreateInput) (models.Report, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Report{}, fmt.Errorf("missing title: %w", apperrors.ErrValidation)
	}

	category := in.Category
	if category == "" {
		category = "general"
	}

	r := models.Report{
		ID:         uuid.New().String(),
		Title:      in.Title,
		Desc:       in.Desc,
		Category:   category,
		Area:       in.Area,
		Pincode:    in.Pincode,
		Lat:        in.Lat,
		Lng:        in.Lng,
		Comments:   []models.Comment{},
		Status:     "open",
		AssignedTo: e.directory.Resolve(category),
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  in.CreatedBy,
	}

	created, err := e.store.Create(r)
	if err != nil {
		return models.Report{}, err
	}

	e.publish("report.created", created)
	return created, nil
}

func (e *Engine) List() []models.Report {
	return e.store.ListAll()
}

func (e *Engine) Get(id string) (models.Report, error) {
	return e.store.GetByID(id)
}

// patchable is the allow-list of caller-updatable fields. Server-controlled
// fields (id, counters, comments, rev, timestamps) are rejected outright.
var patchable = map[string]bool{
	"title":      true,
	"desc":       true,
	"category":   true,
	"area":       true,
	"pincode":    true,
	"lat":        true,
	"lng":        true,
	"status":     true,
	"deadline":   true,
	"assignedTo": true,
	"imageUrl":   true,
}

// Patch shallow-merges the allow-listed fields onto the record, stamps
// updatedAt, and replaces it wholesale. A "rev" key is treated as an
// optimistic-concurrency precondition, not merged: a stale rev fails with
// ErrConflict so lost updates surface instead of silently winning.
func (e *Engine) Patch(id string, patch map[string]json.RawMessage) (models.Report, error) {
	r, err := e.store.GetByID(id)
	if err != nil {
		return models.Report{}, err
	}
	prevStatus := r.Status

	if raw, ok := patch["rev"]; ok {
		var rev int64
		if err := json.Unmarshal(raw, &rev); err != nil {
			return models.Report{}, fmt.Errorf("invalid value for \"rev\": %w", apperrors.ErrValidation)
		}
		if rev != r.Rev {
			return models.Report{}, fmt.Errorf("report %s changed since rev %d: %w", id, rev, apperrors.ErrConflict)
		}
	}

	for key, raw := range patch {
		if key == "rev" {
			continue
		}
		if !patchable[key] {
			return models.Report{}, fmt.Errorf("field %q is not patchable: %w", key, apperrors.ErrValidation)
		}

		var uerr error
		switch key {
		case "title":
			uerr = json.Unmarshal(raw, &r.Title)
		case "desc":
			uerr = json.Unmarshal(raw, &r.Desc)
		case "category":
			uerr = json.Unmarshal(raw, &r.Category)
		case "area":
			uerr = json.Unmarshal(raw, &r.Area)
		case "pincode":
			uerr = json.Unmarshal(raw, &r.Pincode)
		case "lat":
			uerr = json.Unmarshal(raw, &r.Lat)
		case "lng":
			uerr = json.Unmarshal(raw, &r.Lng)
		case "status":
			uerr = json.Unmarshal(raw, &r.Status)
		case "deadline":
			uerr = json.Unmarshal(raw, &r.Deadline)
		case "assignedTo":
			uerr = json.Unmarshal(raw, &r.AssignedTo)
		case "imageUrl":
			uerr = json.Unmarshal(raw, &r.ImageURL)
		}
		if uerr != nil {
			return models.Report{}, fmt.Errorf("invalid value for %q: %w", key, apperrors.ErrValidation)
		}
	}

	now := time.Now().UTC()
	r.UpdatedAt = &now

	updated, err := e.store.Replace(id, r)
	if err != nil {
		return models.Report{}, err
	}

	if updated.Status != prevStatus {
		e.publish("report.updated", updated)
	}
	return updated, nil
}

func (e *Engine) Delete(id string) error {
	return e.store.Delete(id)
}

// Vote bumps the support counter by exactly one. Votes are anonymous and
// unlimited; there is no voter identity to deduplicate on.
func (e *Engine) Vote(id string) (models.Report, error) {
	return e.store.IncrementVote(id, store.FieldVotes)
}

// CompleteVote bumps the completion-poll counter by exactly one.
func (e *Engine) CompleteVote(id string) (models.Report, error) {
	return e.store.IncrementVote(id, store.FieldCompletedVotes)
}

type CommentInput struct {
	Author      string `json:"author"`
	Text        string `json:"text"`
	ByAuthority bool   `json:"byAuthority"`
	AdminReply  bool   `json:"adminReply"`
}

// Comment appends to the report's thread with a server-assigned id and
// timestamp. Author defaults to "anonymous".
func (e *Engine) Comment(id string, in CommentInput) (models.Comment, error) {
	author := strings.TrimSpace(in.Author)
	if author == "" {
		author = "anonymous"
	}

	c := models.Comment{
		ID:          uuid.New().String(),
		Author:      author,
		Text:        in.Text,
		At:          time.Now().UTC(),
		ByAuthority: in.ByAuthority,
		AdminReply:  in.AdminReply,
	}
	return e.store.AppendComment(id, c)
}

// Assign overwrites the owning authority unconditionally. The id is not
// checked against the directory; reassignment is an explicit admin decision.
func (e *Engine) Assign(id, authorityID string) (models.Report, error) {
	if strings.TrimSpace(authorityID) == "" {
		return models.Report{}, fmt.Errorf("missing authorityId: %w", apperrors.ErrValidation)
	}

	r, err := e.store.GetByID(id)
	if err != nil {
		return models.Report{}, err
	}

	r.AssignedTo = &authorityID
	return e.store.Replace(id, r)
}

// SetDeadline overwrites the deadline with whatever the caller supplied,
// including clearing it with null. No format validation.
func (e *Engine) SetDeadline(id string, deadline *string) (models.Report, error) {
	r, err := e.store.GetByID(id)
	if err != nil {
		return models.Report{}, err
	}

	r.Deadline = deadline
	return e.store.Replace(id, r)
}

// SetImageURL records the attachment location after an upload.
func (e *Engine) SetImageURL(id, url string) (models.Report, error) {
	r, err := e.store.GetByID(id)
	if err != nil {
		return models.Report{}, err
	}

	r.ImageURL = url
	return e.store.Replace(id, r)
}

func (e *Engine) publish(eventType string, r models.Report) {
	if e.publisher == nil {
		return
	}

	ev := models.ReportEvent{
		Type:      eventType,
		ReportID:  r.ID,
		Title:     r.Title,
		Category:  r.Category,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.AssignedTo != nil {
		ev.AssignedTo = *r.AssignedTo
	}
	if r.CreatedBy != nil {
		ev.CreatedBy = *r.CreatedBy
	}

	if err := e.publisher.Publish(EventQueue, ev); err != nil {
		log.Printf("[WARN] Report saved but failed to publish event: %v", err)
	}
}
