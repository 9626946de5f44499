package lifecycle

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"seva-platform/pkg/apperrors"
	"seva-platform/services/report-service/authority"
	"seva-platform/services/report-service/models"
	"seva-platform/services/report-service/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	fail   bool
	queues []string
	events []models.ReportEvent
}

func (p *capturePublisher) Publish(queueName string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.queues = append(p.queues, queueName)
	p.events = append(p.events, payload.(models.ReportEvent))
	return nil
}

func (p *capturePublisher) captured() []models.ReportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ReportEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newEngine(t *testing.T, authorities []models.Authority, pub Publisher) *Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "reports.json"))
	require.NoError(t, err)
	return New(st, authority.NewDirectory(authorities), pub)
}

func rawPatch(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var patch map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &patch))
	return patch
}

func TestCreateAppliesDefaults(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	e := newEngine(t, []models.Authority{
		{ID: "A", Department: "Sanitation Dept"},
		{ID: "B", Department: "Roads Dept"},
	}, pub)

	r, err := e.Create(CreateInput{Title: "Overflowing bins", Category: "sanitation"})
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, 0, r.Votes)
	assert.Equal(t, 0, r.CompletedVotes)
	assert.Equal(t, []models.Comment{}, r.Comments)
	assert.Equal(t, "open", r.Status)
	require.NotNil(t, r.AssignedTo)
	assert.Equal(t, "A", *r.AssignedTo)
	assert.Nil(t, r.Deadline)
	assert.False(t, r.CreatedAt.IsZero())

	events := pub.captured()
	require.Len(t, events, 1)
	assert.Equal(t, "report.created", events[0].Type)
	assert.Equal(t, r.ID, events[0].ReportID)
}

func TestCreateMissingTitle(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	_, err := e.Create(CreateInput{Category: "roads"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Empty(t, e.List())
}

func TestCreateDefaultsCategoryToGeneral(t *testing.T) {
	t.Parallel()

	e := newEngine(t, []models.Authority{{ID: "gen", Department: "General Administration"}}, nil)
	r, err := e.Create(CreateInput{Title: "Something odd"})
	require.NoError(t, err)
	assert.Equal(t, "general", r.Category)
	require.NotNil(t, r.AssignedTo)
	assert.Equal(t, "gen", *r.AssignedTo)
}

func TestCreateEmptyDirectoryLeavesUnassigned(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Streetlight out", Category: "electricity"})
	require.NoError(t, err)
	assert.Nil(t, r.AssignedTo)
}

func TestCreateSurvivesPublishFailure(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, &capturePublisher{fail: true})
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	got, err := e.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestPatchAllowListedFields(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole", Category: "roads"})
	require.NoError(t, err)

	updated, err := e.Patch(r.ID, rawPatch(t, `{"status":"in-progress","area":"Ward 12","lat":26.81}`))
	require.NoError(t, err)
	assert.Equal(t, "in-progress", updated.Status)
	assert.Equal(t, "Ward 12", updated.Area)
	require.NotNil(t, updated.Lat)
	assert.Equal(t, 26.81, *updated.Lat)
	require.NotNil(t, updated.UpdatedAt)

	// Untouched fields survive the merge.
	assert.Equal(t, "Pothole", updated.Title)
	assert.Equal(t, "roads", updated.Category)
}

func TestPatchRejectsServerControlledFields(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	for _, body := range []string{
		`{"votes":99}`,
		`{"id":"hijacked"}`,
		`{"comments":[]}`,
		`{"createdAt":"2020-01-01T00:00:00Z"}`,
		`{"status":"closed","completedVotes":5}`,
	} {
		_, err := e.Patch(r.ID, rawPatch(t, body))
		assert.Truef(t, errors.Is(err, apperrors.ErrValidation), "patch %s should be rejected", body)
	}

	got, err := e.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Votes)
	assert.Equal(t, "open", got.Status)
}

func TestPatchRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	_, err = e.Patch(r.ID, rawPatch(t, `{"lat":"not-a-number"}`))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestPatchRevPrecondition(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	// Matching rev applies.
	updated, err := e.Patch(r.ID, rawPatch(t, `{"status":"triaged","rev":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Rev)

	// Stale rev conflicts and changes nothing.
	_, err = e.Patch(r.ID, rawPatch(t, `{"status":"closed","rev":1}`))
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	got, err := e.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "triaged", got.Status)
}

func TestPatchStatusChangePublishesEvent(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	e := newEngine(t, nil, pub)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	_, err = e.Patch(r.ID, rawPatch(t, `{"area":"Ward 3"}`))
	require.NoError(t, err)
	_, err = e.Patch(r.ID, rawPatch(t, `{"status":"resolved"}`))
	require.NoError(t, err)

	events := pub.captured()
	require.Len(t, events, 2) // create + status change, not the area-only patch
	assert.Equal(t, "report.updated", events[1].Type)
	assert.Equal(t, "resolved", events[1].Status)
}

func TestVoteAndCompleteVote(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		got, err := e.Vote(r.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.Votes)
	}

	got, err := e.CompleteVote(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Votes)
	assert.Equal(t, 1, got.CompletedVotes)
}

func TestCommentDefaultsAuthor(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	c, err := e.Comment(r.ID, CommentInput{Text: "fix soon"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "anonymous", c.Author)
	assert.False(t, c.At.IsZero())

	c2, err := e.Comment(r.ID, CommentInput{Author: "ward officer", Text: "crew dispatched", ByAuthority: true})
	require.NoError(t, err)
	assert.Equal(t, "ward officer", c2.Author)
	assert.True(t, c2.ByAuthority)

	got, err := e.Get(r.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "fix soon", got.Comments[0].Text)
	assert.Equal(t, "crew dispatched", got.Comments[1].Text)
}

func TestCommentRequiresText(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	_, err = e.Comment(r.ID, CommentInput{Author: "someone"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestAssignOverridesResolver(t *testing.T) {
	t.Parallel()

	e := newEngine(t, []models.Authority{{ID: "A", Department: "Sanitation Dept"}}, nil)
	r, err := e.Create(CreateInput{Title: "Overflowing bins", Category: "sanitation"})
	require.NoError(t, err)
	require.NotNil(t, r.AssignedTo)
	assert.Equal(t, "A", *r.AssignedTo)

	// Admin reassignment wins, even to an id outside the directory.
	updated, err := e.Assign(r.ID, "external-team-7")
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, "external-team-7", *updated.AssignedTo)
}

func TestAssignRequiresAuthorityID(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	_, err = e.Assign(r.ID, "  ")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestSetDeadlineAndClear(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)
	r, err := e.Create(CreateInput{Title: "Pothole"})
	require.NoError(t, err)

	deadline := "2026-09-15"
	updated, err := e.SetDeadline(r.ID, &deadline)
	require.NoError(t, err)
	require.NotNil(t, updated.Deadline)
	assert.Equal(t, "2026-09-15", *updated.Deadline)

	cleared, err := e.SetDeadline(r.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Deadline)
}

func TestMutationsOnMissingReport(t *testing.T) {
	t.Parallel()

	e := newEngine(t, nil, nil)

	_, err := e.Get("ghost")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.Patch("ghost", rawPatch(t, `{"status":"x"}`))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.Vote("ghost")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.CompleteVote("ghost")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.Comment("ghost", CommentInput{Text: "hello"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.Assign("ghost", "A")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.SetDeadline("ghost", nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(e.Delete("ghost"), apperrors.ErrNotFound))
}

// Full lifecycle walk: create with auto-assign, vote twice, comment, delete.
func TestReportLifecycleScenario(t *testing.T) {
	t.Parallel()

	e := newEngine(t, []models.Authority{{ID: "pwd-1", Department: "Public Works (Roads)"}}, nil)

	r, err := e.Create(CreateInput{Title: "Pothole", Category: "roads"})
	require.NoError(t, err)
	require.NotNil(t, r.AssignedTo)
	assert.Equal(t, "pwd-1", *r.AssignedTo)
	assert.Equal(t, "open", r.Status)
	assert.Equal(t, 0, r.Votes)

	_, err = e.Vote(r.ID)
	require.NoError(t, err)
	voted, err := e.Vote(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, voted.Votes)

	c, err := e.Comment(r.ID, CommentInput{Text: "fix soon"})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", c.Author)

	got, err := e.Get(r.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)

	require.NoError(t, e.Delete(r.ID))
	_, err = e.Get(r.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
