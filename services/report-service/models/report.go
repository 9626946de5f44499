package models

import (
	"time"
)

// Report is a citizen-filed civic issue. The JSON field names are the wire
// format served to dashboards, so they stay camelCase.
type Report struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Desc           string     `json:"desc"`
	Category       string     `json:"category"`
	Area           string     `json:"area"`
	Pincode        string     `json:"pincode"`
	Lat            *float64   `json:"lat"`
	Lng            *float64   `json:"lng"`
	Votes          int        `json:"votes"`
	CompletedVotes int        `json:"completedVotes"`
	Comments       []Comment  `json:"comments"`
	Status         string     `json:"status"`
	AssignedTo     *string    `json:"assignedTo"`
	Deadline       *string    `json:"deadline"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	Rev            int64      `json:"rev"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	CreatedBy      *string    `json:"createdBy"`
}

// Clone returns a copy safe to hand out while the store keeps mutating its
// own record. Comments are copied; pointer fields are re-pointed.
func (r Report) Clone() Report {
	out := r
	if r.Comments != nil {
		out.Comments = make([]Comment, len(r.Comments))
		copy(out.Comments, r.Comments)
	}
	if r.Lat != nil {
		v := *r.Lat
		out.Lat = &v
	}
	if r.Lng != nil {
		v := *r.Lng
		out.Lng = &v
	}
	if r.AssignedTo != nil {
		v := *r.AssignedTo
		out.AssignedTo = &v
	}
	if r.Deadline != nil {
		v := *r.Deadline
		out.Deadline = &v
	}
	if r.UpdatedAt != nil {
		v := *r.UpdatedAt
		out.UpdatedAt = &v
	}
	if r.CreatedBy != nil {
		v := *r.CreatedBy
		out.CreatedBy = &v
	}
	return out
}

// Comment is one entry in a report's thread. Never mutated after append.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
	ByAuthority bool      `json:"byAuthority,omitempty"`
	AdminReply  bool      `json:"adminReply,omitempty"`
}

// Authority is a responsible organization from the seed directory. Read-only
// for this service.
type Authority struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Ward       string `json:"ward,omitempty"`
	Contact    string `json:"contact,omitempty"`
}

// ReportEvent is published to the report queue on create and status changes.
type ReportEvent struct {
	Type       string    `json:"type"` // report.created | report.updated
	ReportID   string    `json:"report_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Status     string    `json:"status"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
