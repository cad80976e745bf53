package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"novel-vote-server/internal/interfaces/mocks"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orchestratorDeps struct {
	stories      *mocks.MockStoryRepository
	chapters     *mocks.MockChapterRepository
	generations  *mocks.MockGenerationRecordRepository
	generator    *mocks.MockContentGenerator
	dispatcher   *mocks.MockGenerationDispatcher
	illustrator  *mocks.MockIllustrationDispatcher
	orchestrator *Orchestrator
	now          time.Time
}

func newOrchestratorDeps(t *testing.T, maxChapters int) *orchestratorDeps {
	d := &orchestratorDeps{
		stories:     mocks.NewMockStoryRepository(t),
		chapters:    mocks.NewMockChapterRepository(t),
		generations: mocks.NewMockGenerationRecordRepository(t),
		generator:   mocks.NewMockContentGenerator(t),
		dispatcher:  mocks.NewMockGenerationDispatcher(t),
		illustrator: mocks.NewMockIllustrationDispatcher(t),
		now:         time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	chainer := NewChainer(d.stories, d.chapters, time.Hour, maxChapters, zap.NewNop())
	chainer.now = func() time.Time { return d.now }
	d.orchestrator = NewOrchestrator(Deps{
		Tx:          mocks.NewMockTransactor(t),
		Generations: d.generations,
		Generator:   d.generator,
		Chainer:     chainer,
		Dispatcher:  d.dispatcher,
		Illustrator: d.illustrator,
		Timeout:     time.Second,
	}, zap.NewNop())
	d.orchestrator.now = func() time.Time { return d.now }
	return d
}

func pendingRecord() *models.GenerationRecord {
	storyID := uuid.New()
	sourceID := uuid.New()
	return &models.GenerationRecord{
		ID:              uuid.New(),
		StoryID:         storyID,
		SourceChapterID: sourceID,
		Status:          models.GenerationStatusPending,
		Attempt:         1,
		Input: models.GenerationInput{
			StoryID:         storyID,
			SourceChapterID: sourceID,
			SourceSequence:  1,
			WinningOption:   models.VotingOption{OptionID: "A", Label: "Open the door"},
			VoteCount:       2,
			TotalVotes:      2,
		},
	}
}

// generationDurationCount возвращает число наблюдений гистограммы длительности для статуса.
func generationDurationCount(t *testing.T, status models.GenerationStatus) uint64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "novel_vote_generation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == string(status) {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

func validOutput() *models.GenerationOutput {
	return &models.GenerationOutput{
		Title:   "Behind the Door",
		Body:    "A staircase led down.",
		Summary: "They found a staircase.",
		Tags:    []string{"stairs"},
		NextOptions: []models.OptionDraft{
			{Label: "Descend"},
			{Label: "Close the door"},
			{Label: "Call out"},
		},
	}
}

func TestRun_CompletesAndChains(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()
	usage := models.UsageInfo{PromptTokens: 100, CompletionTokens: 50}

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generator.On("Generate", mock.Anything, record.Input, false).Return(validOutput(), usage, nil).Once()

	var resultChapterID uuid.UUID
	d.generations.On("MarkCompleted", mock.Anything, mock.Anything, record.ID, mock.AnythingOfType("*models.GenerationOutput"), usage, mock.AnythingOfType("uuid.UUID"), d.now).
		Return(nil).Once().
		Run(func(args mock.Arguments) { resultChapterID = args.Get(5).(uuid.UUID) })
	d.chapters.On("MaxSequence", mock.Anything, mock.Anything, record.StoryID).Return(1, nil).Once()

	var created *models.Chapter
	d.chapters.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.Chapter")).Return(nil).Once().
		Run(func(args mock.Arguments) { created = args.Get(2).(*models.Chapter) })
	d.chapters.On("MarkGenerated", mock.Anything, mock.Anything, record.SourceChapterID).Return(nil).Once()
	d.stories.On("UpdateStatus", mock.Anything, mock.Anything, record.StoryID, models.StoryStatusVoting, mock.AnythingOfType("*uuid.UUID")).Return(nil).Once()
	d.illustrator.On("DispatchIllustration", mock.Anything, mock.MatchedBy(func(p models.IllustrationTaskPayload) bool {
		return created != nil && p.ChapterID == created.ID && p.TaskID != ""
	})).Return(nil).Once()

	before := generationDurationCount(t, models.GenerationStatusCompleted)
	require.NoError(t, d.orchestrator.Run(context.Background(), record.ID))

	assert.Equal(t, before+1, generationDurationCount(t, models.GenerationStatusCompleted))
	require.NotNil(t, created)
	assert.Equal(t, resultChapterID, created.ID)
	assert.Equal(t, 2, created.SequenceNumber)
	assert.Equal(t, models.VotingStatusOpen, created.VotingStatus)
	require.NotNil(t, created.VotingDeadline)
	assert.Equal(t, d.now.Add(time.Hour), *created.VotingDeadline)
	require.Len(t, created.Options, 3)
	assert.Equal(t, "A", created.Options[0].OptionID)
	assert.Equal(t, "Descend", created.Options[0].Label)
	d.generations.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_GeneratorFailureRecordsFailed(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generator.On("Generate", mock.Anything, record.Input, false).
		Return(nil, models.UsageInfo{}, errors.New("upstream returned 503")).Once()
	d.generations.On("MarkFailed", mock.Anything, mock.Anything, record.ID, models.GenerationStatusProcessing,
		mock.MatchedBy(func(details string) bool { return details == "upstream returned 503" }),
		models.UsageInfo{}, d.now).Return(true, nil).Once()

	require.NoError(t, d.orchestrator.Run(context.Background(), record.ID))
	d.chapters.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	d.generations.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.illustrator.AssertNotCalled(t, "DispatchIllustration", mock.Anything, mock.Anything)
}

func TestRun_MalformedOutputRecordsFailed(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()
	out := validOutput()
	out.NextOptions = out.NextOptions[:1]

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generator.On("Generate", mock.Anything, record.Input, false).Return(out, models.UsageInfo{}, nil).Once()
	d.generations.On("MarkFailed", mock.Anything, mock.Anything, record.ID, models.GenerationStatusProcessing, mock.AnythingOfType("string"), models.UsageInfo{}, d.now).
		Return(true, nil).Once()

	require.NoError(t, d.orchestrator.Run(context.Background(), record.ID))
	d.chapters.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_TimeoutRecordsFailed(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	d.orchestrator.timeout = 10 * time.Millisecond
	record := pendingRecord()

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generator.On("Generate", mock.Anything, record.Input, false).Return(
		func(ctx context.Context, _ models.GenerationInput, _ bool) (*models.GenerationOutput, models.UsageInfo, error) {
			<-ctx.Done()
			return nil, models.UsageInfo{}, ctx.Err()
		}).Once()

	var details string
	d.generations.On("MarkFailed", mock.Anything, mock.Anything, record.ID, models.GenerationStatusProcessing, mock.AnythingOfType("string"), models.UsageInfo{}, d.now).
		Return(true, nil).Once().
		Run(func(args mock.Arguments) { details = args.String(4) })

	require.NoError(t, d.orchestrator.Run(context.Background(), record.ID))
	assert.Contains(t, details, "context deadline exceeded")
}

func TestRun_SkipsWhenNotPendingOrLost(t *testing.T) {
	d := newOrchestratorDeps(t, 0)

	done := pendingRecord()
	done.Status = models.GenerationStatusCompleted
	d.generations.On("GetByID", mock.Anything, mock.Anything, done.ID).Return(done, nil).Once()
	require.NoError(t, d.orchestrator.Run(context.Background(), done.ID))

	raced := pendingRecord()
	d.generations.On("GetByID", mock.Anything, mock.Anything, raced.ID).Return(raced, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, raced.ID, d.now).Return(false, nil).Once()
	require.NoError(t, d.orchestrator.Run(context.Background(), raced.ID))

	missing := uuid.New()
	d.generations.On("GetByID", mock.Anything, mock.Anything, missing).Return(nil, models.ErrNotFound).Once()
	require.NoError(t, d.orchestrator.Run(context.Background(), missing))

	d.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_FinalChapterCompletesStory(t *testing.T) {
	d := newOrchestratorDeps(t, 2)
	record := pendingRecord()
	out := validOutput()
	out.NextOptions = nil

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generator.On("Generate", mock.Anything, record.Input, true).Return(out, models.UsageInfo{}, nil).Once()
	d.generations.On("MarkCompleted", mock.Anything, mock.Anything, record.ID, out, models.UsageInfo{}, mock.Anything, d.now).Return(nil).Once()
	d.chapters.On("MaxSequence", mock.Anything, mock.Anything, record.StoryID).Return(1, nil).Once()

	var created *models.Chapter
	d.chapters.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once().
		Run(func(args mock.Arguments) { created = args.Get(2).(*models.Chapter) })
	d.chapters.On("MarkGenerated", mock.Anything, mock.Anything, record.SourceChapterID).Return(nil).Once()
	d.stories.On("UpdateStatus", mock.Anything, mock.Anything, record.StoryID, models.StoryStatusCompleted, mock.Anything).Return(nil).Once()
	d.illustrator.On("DispatchIllustration", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, d.orchestrator.Run(context.Background(), record.ID))
	require.NotNil(t, created)
	assert.Equal(t, models.VotingStatusClosed, created.VotingStatus)
	assert.Empty(t, created.Options)
	assert.Nil(t, created.VotingDeadline)
}

func TestRun_ChainFailureRecordsFailed(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generator.On("Generate", mock.Anything, record.Input, false).Return(validOutput(), models.UsageInfo{}, nil).Once()
	d.generations.On("MarkCompleted", mock.Anything, mock.Anything, record.ID, mock.Anything, mock.Anything, mock.Anything, d.now).Return(nil).Once()
	d.chapters.On("MaxSequence", mock.Anything, mock.Anything, record.StoryID).Return(1, nil).Once()
	d.chapters.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(models.ErrSequenceTaken).Once()
	d.generations.On("MarkFailed", mock.Anything, mock.Anything, record.ID, models.GenerationStatusProcessing,
		mock.MatchedBy(func(details string) bool { return strings.Contains(details, "sequence 2") }), models.UsageInfo{}, d.now).
		Return(true, nil).Once()

	before := generationDurationCount(t, models.GenerationStatusFailed)
	require.NoError(t, d.orchestrator.Run(context.Background(), record.ID))

	assert.Equal(t, before+1, generationDurationCount(t, models.GenerationStatusFailed))
	d.chapters.AssertNotCalled(t, "MarkGenerated", mock.Anything, mock.Anything, mock.Anything)
	d.illustrator.AssertNotCalled(t, "DispatchIllustration", mock.Anything, mock.Anything)
}

func TestChain_SequenceTaken(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()
	chapterID := uuid.New()
	record.Status = models.GenerationStatusCompleted
	record.Output = validOutput()
	record.ResultChapterID = &chapterID

	d.chapters.On("MaxSequence", mock.Anything, mock.Anything, record.StoryID).Return(4, nil).Once()
	d.chapters.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(models.ErrSequenceTaken).Once()

	_, err := d.orchestrator.chainer.Chain(context.Background(), nil, record)
	assert.ErrorIs(t, err, models.ErrSequenceTaken)
	assert.Contains(t, err.Error(), "sequence 5")
	d.stories.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetry(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	failed := pendingRecord()
	failed.Status = models.GenerationStatusFailed

	d.generations.On("GetByID", mock.Anything, mock.Anything, failed.ID).Return(failed, nil).Once()
	d.generations.On("GetLatestBySourceChapter", mock.Anything, mock.Anything, failed.SourceChapterID).Return(failed, nil).Once()
	var created *models.GenerationRecord
	d.generations.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*models.GenerationRecord")).Return(nil).Once().
		Run(func(args mock.Arguments) { created = args.Get(2).(*models.GenerationRecord) })
	d.dispatcher.On("DispatchGeneration", mock.Anything, mock.MatchedBy(func(p models.GenerationTaskPayload) bool {
		return p.Attempt == 2 && p.SourceChapterID == failed.SourceChapterID
	})).Return(nil).Once()

	retry, err := d.orchestrator.Retry(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Same(t, created, retry)
	assert.NotEqual(t, failed.ID, retry.ID)
	assert.Equal(t, models.GenerationStatusPending, retry.Status)
	assert.Equal(t, 2, retry.Attempt)
	require.NotNil(t, retry.RetryOf)
	assert.Equal(t, failed.ID, *retry.RetryOf)
	assert.Equal(t, models.TriggerRetry, retry.Input.Trigger)
	assert.Equal(t, failed.Input.WinningOption, retry.Input.WinningOption)
}

func TestRetry_Rejected(t *testing.T) {
	d := newOrchestratorDeps(t, 0)

	completed := pendingRecord()
	completed.Status = models.GenerationStatusCompleted
	d.generations.On("GetByID", mock.Anything, mock.Anything, completed.ID).Return(completed, nil).Once()
	_, err := d.orchestrator.Retry(context.Background(), completed.ID)
	assert.ErrorIs(t, err, models.ErrGenerationNotRetryable)

	old := pendingRecord()
	old.Status = models.GenerationStatusFailed
	newer := pendingRecord()
	d.generations.On("GetByID", mock.Anything, mock.Anything, old.ID).Return(old, nil).Once()
	d.generations.On("GetLatestBySourceChapter", mock.Anything, mock.Anything, old.SourceChapterID).Return(newer, nil).Once()
	_, err = d.orchestrator.Retry(context.Background(), old.ID)
	assert.ErrorIs(t, err, models.ErrGenerationNotRetryable)

	d.generations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	d.dispatcher.AssertNotCalled(t, "DispatchGeneration", mock.Anything, mock.Anything)
}

func TestFailPending(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(true, nil).Once()
	d.generations.On("MarkFailed", mock.Anything, mock.Anything, record.ID, models.GenerationStatusProcessing, "dead-lettered: rejected", models.UsageInfo{}, d.now).
		Return(true, nil).Once()

	require.NoError(t, d.orchestrator.FailPending(context.Background(), record.ID, "dead-lettered: rejected"))
	d.generations.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, record.ID, models.GenerationStatusPending,
		mock.Anything, mock.Anything, mock.Anything)
}

func TestFailPending_TakenByWorker(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()
	d.generations.On("MarkProcessing", mock.Anything, mock.Anything, record.ID, d.now).Return(false, nil).Once()

	require.NoError(t, d.orchestrator.FailPending(context.Background(), record.ID, "dead-lettered: rejected"))
	d.generations.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFailPending_AlreadyTerminal(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()
	record.Status = models.GenerationStatusCompleted

	d.generations.On("GetByID", mock.Anything, mock.Anything, record.ID).Return(record, nil).Once()

	require.NoError(t, d.orchestrator.FailPending(context.Background(), record.ID, "dead-lettered: rejected"))
	d.generations.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecoverStale(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	stalePending := pendingRecord()
	staleProcessing := pendingRecord()
	staleProcessing.Status = models.GenerationStatusProcessing
	before := d.now.Add(-10 * time.Minute)

	d.generations.On("ListStale", mock.Anything, mock.Anything, models.GenerationStatusPending, before, 50).
		Return([]*models.GenerationRecord{stalePending}, nil).Once()
	d.generations.On("ListStale", mock.Anything, mock.Anything, models.GenerationStatusProcessing, before, 50).
		Return([]*models.GenerationRecord{staleProcessing}, nil).Once()
	d.dispatcher.On("DispatchGeneration", mock.Anything, models.GenerationTaskPayload{
		GenerationID:    stalePending.ID,
		SourceChapterID: stalePending.SourceChapterID,
		Attempt:         1,
	}).Return(nil).Once()
	d.generations.On("MarkFailed", mock.Anything, mock.Anything, staleProcessing.ID, models.GenerationStatusProcessing, mock.AnythingOfType("string"), models.UsageInfo{}, d.now).
		Return(true, nil).Once()

	res, err := d.orchestrator.RecoverStale(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, RecoveryResult{Redispatched: 1, Failed: 1}, res)
}

func TestChain_RejectsNonCompletedRecord(t *testing.T) {
	d := newOrchestratorDeps(t, 0)
	record := pendingRecord()

	_, err := d.orchestrator.chainer.Chain(context.Background(), nil, record)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	d.chapters.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}
