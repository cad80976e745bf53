package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"novel-vote-server/internal/interfaces/mocks"
	"novel-vote-server/internal/models"
	"novel-vote-server/internal/story"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-admin-secret"

// --- Локальные моки сервисов --- //

type mockVoting struct{ mock.Mock }

func (m *mockVoting) SubmitVote(ctx context.Context, chapterID uuid.UUID, voter models.VoterIdentity, optionID string) (*models.VoteResult, error) {
	args := m.Called(ctx, chapterID, voter, optionID)
	res, _ := args.Get(0).(*models.VoteResult)
	return res, args.Error(1)
}

func (m *mockVoting) GetVoteStatus(ctx context.Context, chapterID uuid.UUID, voter models.VoterIdentity) (*models.VoteStatus, error) {
	args := m.Called(ctx, chapterID, voter)
	res, _ := args.Get(0).(*models.VoteStatus)
	return res, args.Error(1)
}

type mockStories struct{ mock.Mock }

func (m *mockStories) CreateStory(ctx context.Context, params story.CreateStoryParams) (*models.Story, *models.Chapter, error) {
	args := m.Called(ctx, params)
	s, _ := args.Get(0).(*models.Story)
	ch, _ := args.Get(1).(*models.Chapter)
	return s, ch, args.Error(2)
}

func (m *mockStories) GetStory(ctx context.Context, id uuid.UUID) (*story.StoryView, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*story.StoryView)
	return v, args.Error(1)
}

func (m *mockStories) GetChapter(ctx context.Context, id uuid.UUID) (*story.ChapterView, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*story.ChapterView)
	return v, args.Error(1)
}

func (m *mockStories) ListChapters(ctx context.Context, storyID uuid.UUID) ([]*models.Chapter, error) {
	args := m.Called(ctx, storyID)
	v, _ := args.Get(0).([]*models.Chapter)
	return v, args.Error(1)
}

type mockGenerations struct{ mock.Mock }

func (m *mockGenerations) Get(ctx context.Context, id uuid.UUID) (*models.GenerationRecord, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.GenerationRecord)
	return v, args.Error(1)
}

func (m *mockGenerations) GetLatestForChapter(ctx context.Context, chapterID uuid.UUID) (*models.GenerationRecord, error) {
	args := m.Called(ctx, chapterID)
	v, _ := args.Get(0).(*models.GenerationRecord)
	return v, args.Error(1)
}

func (m *mockGenerations) Retry(ctx context.Context, id uuid.UUID) (*models.GenerationRecord, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.GenerationRecord)
	return v, args.Error(1)
}

type testServer struct {
	e           *echo.Echo
	voting      *mockVoting
	stories     *mockStories
	generations *mockGenerations
	illustrator *mocks.MockIllustrationDispatcher
	verifier    *ServiceTokenVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	verifier, err := NewServiceTokenVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	ts := &testServer{
		voting:      &mockVoting{},
		stories:     &mockStories{},
		generations: &mockGenerations{},
		illustrator: mocks.NewMockIllustrationDispatcher(t),
		verifier:    verifier,
	}
	h := New(Deps{
		Voting:        ts.voting,
		Stories:       ts.stories,
		Generations:   ts.generations,
		Illustrations: ts.illustrator,
		Verifier:      verifier,
	}, zap.NewNop())
	// httptest.NewRequest приходит с адреса 192.0.2.1, он играет роль балансировщика.
	extractor, err := NewIPExtractor([]string{"192.0.2.0/24"})
	require.NoError(t, err)
	ts.e = NewEcho("*", extractor, zap.NewNop())
	h.RegisterRoutes(ts.e)

	t.Cleanup(func() {
		ts.voting.AssertExpectations(t)
		ts.stories.AssertExpectations(t)
		ts.generations.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.7")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, err := ts.verifier.Issue("admin-cli", time.Minute)
	require.NoError(t, err)
	return map[string]string{echo.HeaderAuthorization: "Bearer " + token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// --- Голосование --- //

func TestSubmitVote_Accepted(t *testing.T) {
	ts := newTestServer(t)
	chapterID := uuid.New()
	generationID := uuid.New()

	voter := models.VoterIdentity{IP: "203.0.113.7", Session: "sess-1"}
	ts.voting.On("SubmitVote", mock.Anything, chapterID, voter, "A").Return(&models.VoteResult{
		Tallies:           models.Tallies{Counts: map[string]int64{"A": 2, "B": 0}, Total: 2},
		ThresholdReached:  true,
		TriggerGeneration: true,
		LeadingOption:     "A",
		GenerationID:      &generationID,
	}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/chapters/"+chapterID.String()+"/votes",
		`{"optionId":"A","voterSession":"sess-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp voteResponse
	decode(t, rec, &resp)
	assert.Equal(t, map[string]int64{"A": 2, "B": 0}, resp.VoteCounts)
	assert.Equal(t, int64(2), resp.TotalVotes)
	assert.True(t, resp.UserVoted)
	assert.True(t, resp.ThresholdReached)
	assert.True(t, resp.TriggerGeneration)
	require.NotNil(t, resp.GenerationID)
	assert.Equal(t, generationID, *resp.GenerationID)
}

func TestSubmitVote_SessionFromHeaderWins(t *testing.T) {
	ts := newTestServer(t)
	chapterID := uuid.New()

	voter := models.VoterIdentity{IP: "203.0.113.7", Session: "header-session"}
	ts.voting.On("SubmitVote", mock.Anything, chapterID, voter, "B").
		Return(&models.VoteResult{Tallies: models.Tallies{Counts: map[string]int64{"B": 1}, Total: 1}}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/chapters/"+chapterID.String()+"/votes?session=query-session",
		`{"optionId":"B","voterSession":"body-session"}`, map[string]string{VoterSessionHeader: "header-session"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitVote_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"duplicate", models.ErrDuplicateVote, http.StatusTooManyRequests, "duplicate_vote"},
		{"closed", models.ErrVotingClosed, http.StatusTooManyRequests, "voting_closed"},
		{"rate limited", models.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"invalid option", models.ErrInvalidOption, http.StatusBadRequest, "invalid_option"},
		{"missing session", fmt.Errorf("%w: voter session is required", models.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"internal", fmt.Errorf("connection reset"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			chapterID := uuid.New()
			ts.voting.On("SubmitVote", mock.Anything, chapterID, mock.Anything, "A").Return(nil, tc.err).Once()

			rec := ts.do(t, http.MethodPost, "/chapters/"+chapterID.String()+"/votes",
				`{"optionId":"A","voterSession":"s"}`, nil)

			assert.Equal(t, tc.status, rec.Code)
			var apiErr APIError
			decode(t, rec, &apiErr)
			assert.Equal(t, tc.code, apiErr.Code)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, apiErr.Message, "connection reset")
			}
		})
	}
}

func TestSubmitVote_RejectedBeforeService(t *testing.T) {
	ts := newTestServer(t)

	t.Run("bad chapter id", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/chapters/not-a-uuid/votes", `{"optionId":"A"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing option", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/chapters/"+uuid.NewString()+"/votes", `{"voterSession":"s"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "OptionID")
	})
	t.Run("malformed json", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/chapters/"+uuid.NewString()+"/votes", `{"optionId":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	ts.voting.AssertNotCalled(t, "SubmitVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetVoteStatus(t *testing.T) {
	ts := newTestServer(t)
	chapterID := uuid.New()
	choice := "C"
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	voter := models.VoterIdentity{IP: "203.0.113.7", Session: "sess-9"}
	ts.voting.On("GetVoteStatus", mock.Anything, chapterID, voter).Return(&models.VoteStatus{
		Tallies:      models.Tallies{Counts: map[string]int64{"A": 1, "B": 0, "C": 3}, Total: 4},
		UserChoice:   &choice,
		VotingActive: true,
		VotingStatus: models.VotingStatusOpen,
		Deadline:     &deadline,
	}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/chapters/"+chapterID.String()+"/votes?session=sess-9", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp voteStatusResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(4), resp.TotalVotes)
	assert.True(t, resp.UserVoted)
	require.NotNil(t, resp.UserChoice)
	assert.Equal(t, "C", *resp.UserChoice)
	assert.True(t, resp.VotingActive)
	assert.Equal(t, models.VotingStatusOpen, resp.VotingStatus)
	require.NotNil(t, resp.VotingDeadline)
	assert.True(t, deadline.Equal(*resp.VotingDeadline))
}

// --- Чтение --- //

func TestReadEndpoints(t *testing.T) {
	ts := newTestServer(t)
	storyID := uuid.New()
	chapterID := uuid.New()
	chapter := &models.Chapter{ID: chapterID, StoryID: storyID, SequenceNumber: 1, Title: "Opening", VotingStatus: models.VotingStatusOpen}
	url := "https://cdn.example.com/illustrations/" + chapterID.String() + ".jpg"

	ts.stories.On("GetChapter", mock.Anything, chapterID).Return(&story.ChapterView{
		Chapter:      chapter,
		Illustration: &models.IllustrationRecord{ChapterID: chapterID, Status: models.IllustrationStatusReady, AssetURL: &url},
	}, nil).Once()
	ts.stories.On("GetStory", mock.Anything, storyID).Return(&story.StoryView{
		Story:          &models.Story{ID: storyID, Title: "Tale", Status: models.StoryStatusVoting, CurrentChapterID: &chapterID},
		CurrentChapter: chapter,
	}, nil).Once()
	ts.stories.On("ListChapters", mock.Anything, storyID).Return(nil, nil).Once()

	rec := ts.do(t, http.MethodGet, "/chapters/"+chapterID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), url)
	assert.Contains(t, rec.Body.String(), `"title":"Opening"`)

	rec = ts.do(t, http.MethodGet, "/stories/"+storyID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"current_chapter"`)

	rec = ts.do(t, http.MethodGet, "/stories/"+storyID.String()+"/chapters", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetChapterGeneration(t *testing.T) {
	ts := newTestServer(t)
	chapterID := uuid.New()
	resultID := uuid.New()
	details := "provider said no"

	ts.generations.On("GetLatestForChapter", mock.Anything, chapterID).Return(&models.GenerationRecord{
		ID:              uuid.New(),
		SourceChapterID: chapterID,
		Status:          models.GenerationStatusCompleted,
		Attempt:         2,
		ResultChapterID: &resultID,
		ErrorDetails:    &details,
		Input:           models.GenerationInput{PreviousContext: "secret context"},
	}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/chapters/"+chapterID.String()+"/generation", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp generationStatusResponse
	decode(t, rec, &resp)
	assert.Equal(t, models.GenerationStatusCompleted, resp.Status)
	assert.Equal(t, 2, resp.Attempt)
	assert.Equal(t, &resultID, resp.ResultChapterID)
	assert.NotContains(t, rec.Body.String(), "secret context")
	assert.NotContains(t, rec.Body.String(), details)
}

// --- Админ --- //

func TestAdmin_RequiresToken(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.NewString()

	rec := ts.do(t, http.MethodGet, "/admin/generations/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/generations/"+id, "", map[string]string{echo.HeaderAuthorization: "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewServiceTokenVerifier("another-secret", zap.NewNop())
	require.NoError(t, err)
	foreign, err := other.Issue("intruder", time.Minute)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, "/admin/generations/"+id, "", map[string]string{echo.HeaderAuthorization: "Bearer " + foreign})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := ts.verifier.Issue("admin-cli", -time.Minute)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, "/admin/generations/"+id, "", map[string]string{echo.HeaderAuthorization: "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceTokenVerifier_RejectsOtherAlgorithms(t *testing.T) {
	verifier, err := NewServiceTokenVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	claims := models.ServiceClaims{
		ServiceID:        "admin-cli",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	_, err = NewServiceTokenVerifier("", zap.NewNop())
	assert.Error(t, err)
}

func TestAdmin_CreateStory(t *testing.T) {
	ts := newTestServer(t)
	storyID := uuid.New()
	chapterID := uuid.New()

	ts.stories.On("CreateStory", mock.Anything, mock.MatchedBy(func(p story.CreateStoryParams) bool {
		return p.Title == "Tale" && p.Opening.Body == "Once upon a time" && len(p.Options) == 2 &&
			p.Options[0].Label == "Go left" && p.Options[1].Description == "Into the woods"
	})).Return(&models.Story{ID: storyID, Title: "Tale"}, &models.Chapter{ID: chapterID, StoryID: storyID}, nil).Once()

	body := `{"title":"Tale","genre":"fantasy","opening":{"title":"Start","body":"Once upon a time"},
		"options":[{"label":"Go left"},{"label":"Go right","description":"Into the woods"}]}`
	rec := ts.do(t, http.MethodPost, "/admin/stories", body, ts.adminHeaders(t))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Story   models.Story   `json:"story"`
		Chapter models.Chapter `json:"chapter"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, storyID, resp.Story.ID)
	assert.Equal(t, chapterID, resp.Chapter.ID)
}

func TestAdmin_CreateStory_Validation(t *testing.T) {
	ts := newTestServer(t)
	testCases := map[string]string{
		"no title":     `{"opening":{"title":"S","body":"B"},"options":[{"label":"a"},{"label":"b"}]}`,
		"one option":   `{"title":"T","opening":{"title":"S","body":"B"},"options":[{"label":"a"}]}`,
		"four options": `{"title":"T","opening":{"title":"S","body":"B"},"options":[{"label":"a"},{"label":"b"},{"label":"c"},{"label":"d"}]}`,
		"empty label":  `{"title":"T","opening":{"title":"S","body":"B"},"options":[{"label":""},{"label":"b"}]}`,
		"no body":      `{"title":"T","opening":{"title":"S"},"options":[{"label":"a"},{"label":"b"}]}`,
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/admin/stories", body, ts.adminHeaders(t))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	ts.stories.AssertNotCalled(t, "CreateStory", mock.Anything, mock.Anything)
}

func TestAdmin_RetryGeneration(t *testing.T) {
	ts := newTestServer(t)
	failedID := uuid.New()
	retryID := uuid.New()

	ts.generations.On("Retry", mock.Anything, failedID).Return(&models.GenerationRecord{
		ID: retryID, Status: models.GenerationStatusPending, Attempt: 2, RetryOf: &failedID,
	}, nil).Once()
	rec := ts.do(t, http.MethodPost, "/admin/generations/"+failedID.String()+"/retry", "", ts.adminHeaders(t))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), retryID.String())

	notRetryable := uuid.New()
	ts.generations.On("Retry", mock.Anything, notRetryable).Return(nil, models.ErrGenerationNotRetryable).Once()
	rec = ts.do(t, http.MethodPost, "/admin/generations/"+notRetryable.String()+"/retry", "", ts.adminHeaders(t))
	assert.Equal(t, http.StatusConflict, rec.Code)

	inFlight := uuid.New()
	ts.generations.On("Retry", mock.Anything, inFlight).Return(nil, models.ErrGenerationInFlight).Once()
	rec = ts.do(t, http.MethodPost, "/admin/generations/"+inFlight.String()+"/retry", "", ts.adminHeaders(t))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdmin_GetGeneration(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	ts.generations.On("Get", mock.Anything, id).Return(&models.GenerationRecord{
		ID: id, Status: models.GenerationStatusFailed, Input: models.GenerationInput{PreviousContext: "ctx"},
	}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/admin/generations/"+id.String(), "", ts.adminHeaders(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"previous_context":"ctx"`)
}

func TestAdmin_RequestIllustration(t *testing.T) {
	ts := newTestServer(t)
	chapterID := uuid.New()

	ts.stories.On("GetChapter", mock.Anything, chapterID).Return(&story.ChapterView{Chapter: &models.Chapter{ID: chapterID}}, nil).Once()
	ts.illustrator.On("DispatchIllustration", mock.Anything, mock.MatchedBy(func(p models.IllustrationTaskPayload) bool {
		return p.ChapterID == chapterID && p.TaskID != ""
	})).Return(nil).Once()

	rec := ts.do(t, http.MethodPost, "/admin/chapters/"+chapterID.String()+"/illustration", "", ts.adminHeaders(t))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	missing := uuid.New()
	ts.stories.On("GetChapter", mock.Anything, missing).Return(nil, models.ErrNotFound).Once()
	rec = ts.do(t, http.MethodPost, "/admin/chapters/"+missing.String()+"/illustration", "", ts.adminHeaders(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := New(Deps{Health: func(context.Context) error { return fmt.Errorf("db down") }}, zap.NewNop())
	e := NewEcho("", echo.ExtractIPDirect(), zap.NewNop())
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/generations/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "admin routes are not registered without a verifier")
}

func TestNewIPExtractor(t *testing.T) {
	extract, err := NewIPExtractor([]string{"192.0.2.0/24", " 198.51.100.0/28"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXForwardedFor, "198.51.100.77, 203.0.113.7, 198.51.100.3")
	assert.Equal(t, "203.0.113.7", extract(req), "walks past trusted hops only")

	spoofed := httptest.NewRequest(http.MethodGet, "/", nil)
	spoofed.RemoteAddr = "203.0.113.50:4711"
	spoofed.Header.Set(echo.HeaderXForwardedFor, "10.1.1.1")
	spoofed.Header.Set(echo.HeaderXRealIP, "10.2.2.2")
	assert.Equal(t, "203.0.113.50", extract(spoofed), "headers from an untrusted peer are ignored")

	direct, err := NewIPExtractor(nil)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", direct(req))

	_, err = NewIPExtractor([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestSubmitVote_IgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	ts := newTestServer(t)
	chapterID := uuid.New()
	voter := models.VoterIdentity{IP: "203.0.113.50", Session: "sess-1"}
	ts.voting.On("SubmitVote", mock.Anything, chapterID, voter, "A").
		Return(&models.VoteResult{Tallies: models.Tallies{Counts: map[string]int64{"A": 1}, Total: 1}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chapters/"+chapterID.String()+"/votes", strings.NewReader(`{"optionId":"A"}`))
	req.RemoteAddr = "203.0.113.50:4711"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXForwardedFor, "10.1.1.1")
	req.Header.Set(VoterSessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
