//go:build integration

package database_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"novel-vote-server/internal/database"
	"novel-vote-server/internal/generation"
	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"
	"novel-vote-server/internal/story"
	"novel-vote-server/internal/voting"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const testThreshold = 2

// recordingDispatcher запоминает отправленные задачи генерации.
type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []models.GenerationTaskPayload
}

func (d *recordingDispatcher) DispatchGeneration(_ context.Context, payload models.GenerationTaskPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

// scriptedGenerator возвращает заранее заданный результат.
type scriptedGenerator struct {
	output *models.GenerationOutput
	err    error
}

func (g *scriptedGenerator) Generate(context.Context, models.GenerationInput, bool) (*models.GenerationOutput, models.UsageInfo, error) {
	return g.output, models.UsageInfo{PromptTokens: 120, CompletionTokens: 480}, g.err
}

type PipelineIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	logger      *zap.Logger

	tx          *database.PgTransactor
	chapters    interfaces.ChapterRepository
	votes       interfaces.VoteRepository
	generations interfaces.GenerationRecordRepository
	tallies     interfaces.TallyRepository
	dispatcher  *recordingDispatcher
	stories     *story.Service
	voting      *voting.Service
}

func TestPipelineIntegration(t *testing.T) {
	suite.Run(t, new(PipelineIntegrationSuite))
}

func (s *PipelineIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()

	var err error
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("novel_vote_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	dsn, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(s.T(), err)
	poolConfig.MaxConns = 32
	s.pool, err = pgxpool.NewWithConfig(s.ctx, poolConfig)
	require.NoError(s.T(), err)

	require.NoError(s.T(), database.NewMigrator(s.pool, s.logger).Up(), "Failed to run migrations")
}

func (s *PipelineIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

func (s *PipelineIntegrationSuite) SetupTest() {
	storyRepo := database.NewPgStoryRepository(s.logger)
	s.chapters = database.NewPgChapterRepository(s.logger)
	s.votes = database.NewPgVoteRepository(s.logger)
	s.generations = database.NewPgGenerationRecordRepository(s.logger)
	s.tallies = database.NewPgTallyRepository(s.logger)
	s.tx = database.NewPgTransactor(s.pool, s.logger)
	s.dispatcher = &recordingDispatcher{}

	gate := voting.NewThresholdGate(testThreshold, s.tx, storyRepo, s.chapters, s.tallies,
		s.generations, s.dispatcher, nil, s.logger)
	s.voting = voting.NewService(voting.Deps{
		Tx:            s.tx,
		Chapters:      s.chapters,
		Votes:         s.votes,
		Tallies:       s.tallies,
		Gate:          gate,
		RoundDuration: time.Hour,
	}, s.logger)
	s.stories = story.NewService(s.tx, storyRepo, s.chapters, database.NewPgIllustrationRepository(s.logger), time.Hour, s.logger)
}

func (s *PipelineIntegrationSuite) newStory() *models.Chapter {
	_, chapter, err := s.stories.CreateStory(s.ctx, story.CreateStoryParams{
		Title: "The Lighthouse",
		Genre: "mystery",
		Opening: story.OpeningChapter{
			Title: "Fog",
			Body:  "The lamp went dark at midnight.",
		},
		Options: []models.OptionDraft{
			{Label: "Climb the tower"},
			{Label: "Wake the keeper"},
			{Label: "Row back to shore"},
		},
	})
	s.Require().NoError(err)
	return chapter
}

func (s *PipelineIntegrationSuite) voter(i int) models.VoterIdentity {
	return models.VoterIdentity{IP: fmt.Sprintf("10.0.%d.%d", i/250, i%250+1), Session: uuid.NewString()}
}

func (s *PipelineIntegrationSuite) countVotes(chapterID uuid.UUID) int64 {
	var n int64
	err := s.pool.QueryRow(s.ctx, `SELECT COUNT(*) FROM votes WHERE chapter_id = $1`, chapterID).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *PipelineIntegrationSuite) countRecords(chapterID uuid.UUID) int {
	var n int
	err := s.pool.QueryRow(s.ctx, `SELECT COUNT(*) FROM generation_records WHERE source_chapter_id = $1`, chapterID).Scan(&n)
	s.Require().NoError(err)
	return n
}

// assertTalliesMatchLedger сверяет агрегат с подсчетом по журналу голосов для каждого варианта.
func (s *PipelineIntegrationSuite) assertTalliesMatchLedger(chapterID uuid.UUID) {
	ledger, err := s.votes.CountByOption(s.ctx, s.pool, chapterID)
	s.Require().NoError(err)
	tallies, err := s.voting.GetTallies(s.ctx, chapterID)
	s.Require().NoError(err)

	var total int64
	for optionID, n := range ledger {
		s.Equal(n, tallies.Counts[optionID], "option %s", optionID)
		total += n
	}
	for optionID, n := range tallies.Counts {
		if n > 0 {
			s.Contains(ledger, optionID)
		}
	}
	s.Equal(total, tallies.Total)
}

func (s *PipelineIntegrationSuite) TestThresholdScenario() {
	chapter := s.newStory()

	first, err := s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(1), "A")
	s.Require().NoError(err)
	s.False(first.TriggerGeneration)
	s.Equal(int64(1), first.Tallies.Counts["A"])

	second, err := s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(2), "A")
	s.Require().NoError(err)
	s.True(second.ThresholdReached)
	s.True(second.TriggerGeneration)
	s.Require().NotNil(second.GenerationID)

	record, err := s.generations.GetByID(s.ctx, s.pool, *second.GenerationID)
	s.Require().NoError(err)
	s.Equal(models.GenerationStatusPending, record.Status)
	s.Equal("A", record.Input.WinningOption.OptionID)
	s.Equal(int64(2), record.Input.VoteCount)
	s.Equal(1, s.countRecords(chapter.ID))
	s.Equal(1, s.dispatcher.count())

	reloaded, err := s.chapters.GetByID(s.ctx, s.pool, chapter.ID)
	s.Require().NoError(err)
	s.Equal(models.VotingStatusClosed, reloaded.VotingStatus)
}

func (s *PipelineIntegrationSuite) TestDuplicateVoteLeavesTalliesUnchanged() {
	chapter := s.newStory()
	voter := s.voter(7)

	_, err := s.voting.SubmitVote(s.ctx, chapter.ID, voter, "B")
	s.Require().NoError(err)

	_, err = s.voting.SubmitVote(s.ctx, chapter.ID, voter, "C")
	s.ErrorIs(err, models.ErrDuplicateVote)

	tallies, err := s.voting.GetTallies(s.ctx, chapter.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), tallies.Total)
	s.Equal(int64(1), tallies.Counts["B"])
	s.Equal(int64(0), tallies.Counts["C"])
	s.assertTalliesMatchLedger(chapter.ID)
}

func (s *PipelineIntegrationSuite) TestConcurrentResubmitsFromOneVoter() {
	chapter := s.newStory()
	voter := s.voter(500)
	const attempts = 24
	options := []string{"A", "B", "C"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, duplicates := 0, 0
	var unexpected []error
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.voting.SubmitVote(s.ctx, chapter.ID, voter, options[i%len(options)])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, models.ErrDuplicateVote):
				duplicates++
			default:
				unexpected = append(unexpected, err)
			}
		}(i)
	}
	wg.Wait()

	s.Empty(unexpected)
	s.Equal(1, accepted)
	s.Equal(attempts-1, duplicates)
	s.Equal(int64(1), s.countVotes(chapter.ID))

	tallies, err := s.voting.GetTallies(s.ctx, chapter.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), tallies.Total)
	s.assertTalliesMatchLedger(chapter.ID)
	s.Equal(0, s.countRecords(chapter.ID))
}

func (s *PipelineIntegrationSuite) TestInvalidOptionHasNoSideEffects() {
	chapter := s.newStory()

	_, err := s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(3), "Z")
	s.ErrorIs(err, models.ErrInvalidOption)
	s.Equal(int64(0), s.countVotes(chapter.ID))
}

func (s *PipelineIntegrationSuite) TestConcurrentVotesTriggerExactlyOnce() {
	chapter := s.newStory()
	const voters = 40

	var wg sync.WaitGroup
	var mu sync.Mutex
	triggered := 0
	errs := make([]error, 0)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(100+i), "B")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.TriggerGeneration {
				triggered++
			}
		}(i)
	}
	wg.Wait()

	// Голоса после захвата отклоняются как закрытые, других ошибок быть не должно.
	for _, err := range errs {
		s.ErrorIs(err, models.ErrVotingClosed)
	}
	s.Equal(1, triggered)
	s.Equal(1, s.countRecords(chapter.ID))
	s.Equal(1, s.dispatcher.count())

	// Счетчики совпадают с журналом голосов.
	tallies, err := s.voting.GetTallies(s.ctx, chapter.ID)
	s.Require().NoError(err)
	s.Equal(s.countVotes(chapter.ID), tallies.Total)
	s.Equal(int64(voters-len(errs)), tallies.Total)
	s.assertTalliesMatchLedger(chapter.ID)
}

func (s *PipelineIntegrationSuite) newOrchestrator(gen interfaces.ContentGenerator) *generation.Orchestrator {
	storyRepo := database.NewPgStoryRepository(s.logger)
	return generation.NewOrchestrator(generation.Deps{
		Tx:          s.tx,
		Generations: s.generations,
		Generator:   gen,
		Chainer:     generation.NewChainer(storyRepo, s.chapters, time.Hour, 0, s.logger),
		Dispatcher:  s.dispatcher,
		Timeout:     5 * time.Second,
	}, s.logger)
}

// reachThreshold голосует за вариант A до порога и возвращает созданную запись генерации.
func (s *PipelineIntegrationSuite) reachThreshold(chapter *models.Chapter, firstVoter int) uuid.UUID {
	var generationID *uuid.UUID
	for i := 0; i < testThreshold; i++ {
		res, err := s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(firstVoter+i), "A")
		s.Require().NoError(err)
		generationID = res.GenerationID
	}
	s.Require().NotNil(generationID)
	return *generationID
}

func (s *PipelineIntegrationSuite) runGeneration(chapter *models.Chapter, gen interfaces.ContentGenerator) *models.GenerationRecord {
	orchestrator := s.newOrchestrator(gen)
	generationID := s.reachThreshold(chapter, 200)

	s.Require().NoError(orchestrator.Run(s.ctx, generationID))
	// Повторная доставка той же задачи ничего не меняет.
	s.Require().NoError(orchestrator.Run(s.ctx, generationID))

	record, err := orchestrator.Get(s.ctx, generationID)
	s.Require().NoError(err)
	return record
}

func (s *PipelineIntegrationSuite) TestCompletedGenerationChainsExactlyOneChapter() {
	chapter := s.newStory()
	record := s.runGeneration(chapter, &scriptedGenerator{output: &models.GenerationOutput{
		Title: "Ascent",
		Body:  "The stairs were wet with salt.",
		Tags:  []string{"tower"},
		NextOptions: []models.OptionDraft{
			{ID: "A", Label: "Open the hatch"},
			{ID: "B", Label: "Call out"},
		},
	}})

	s.Equal(models.GenerationStatusCompleted, record.Status)
	s.Require().NotNil(record.ResultChapterID)

	chapters, err := s.chapters.ListByStory(s.ctx, s.pool, chapter.StoryID)
	s.Require().NoError(err)
	s.Require().Len(chapters, 2)
	s.Equal(chapter.SequenceNumber+1, chapters[1].SequenceNumber)
	s.Equal(*record.ResultChapterID, chapters[1].ID)
	s.Equal(models.VotingStatusOpen, chapters[1].VotingStatus)
	s.Require().Len(chapters[1].Options, 2)
	s.Equal("A", chapters[1].Options[0].OptionID)
	s.Equal("B", chapters[1].Options[1].OptionID)
	s.Less(chapters[1].Options[0].Position, chapters[1].Options[1].Position)

	source, err := s.chapters.GetByID(s.ctx, s.pool, chapter.ID)
	s.Require().NoError(err)
	s.Equal(models.VotingStatusGenerated, source.VotingStatus)

	_, err = s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(300), "A")
	s.ErrorIs(err, models.ErrVotingClosed)
	tallies, err := s.voting.GetTallies(s.ctx, chapter.ID)
	s.Require().NoError(err)
	s.Equal(int64(testThreshold), tallies.Total)
}

func (s *PipelineIntegrationSuite) TestFailedGenerationChainsNothing() {
	chapter := s.newStory()
	record := s.runGeneration(chapter, &scriptedGenerator{err: errors.New("upstream 503")})

	s.Equal(models.GenerationStatusFailed, record.Status)
	s.Require().NotNil(record.ErrorDetails)
	s.Contains(*record.ErrorDetails, "upstream 503")
	s.Nil(record.ResultChapterID)

	chapters, err := s.chapters.ListByStory(s.ctx, s.pool, chapter.StoryID)
	s.Require().NoError(err)
	s.Len(chapters, 1)

	source, err := s.chapters.GetByID(s.ctx, s.pool, chapter.ID)
	s.Require().NoError(err)
	s.Equal(models.VotingStatusClosed, source.VotingStatus)
}

func (s *PipelineIntegrationSuite) TestDeadLetteredRecordFailsThroughProcessing() {
	chapter := s.newStory()
	generationID := s.reachThreshold(chapter, 600)
	orchestrator := s.newOrchestrator(&scriptedGenerator{err: errors.New("never called")})

	s.Require().NoError(orchestrator.FailPending(s.ctx, generationID, "task dead-lettered (reason: rejected)"))
	// Повторная доставка из DLQ ничего не меняет.
	s.Require().NoError(orchestrator.FailPending(s.ctx, generationID, "task dead-lettered (reason: rejected)"))

	record, err := orchestrator.Get(s.ctx, generationID)
	s.Require().NoError(err)
	s.Equal(models.GenerationStatusFailed, record.Status)
	s.NotNil(record.StartedAt)
	s.NotNil(record.CompletedAt)
	s.Require().NotNil(record.ErrorDetails)
	s.Contains(*record.ErrorDetails, "dead-lettered")

	_, err = s.generations.MarkFailed(s.ctx, s.pool, generationID, models.GenerationStatusPending, "x", models.UsageInfo{}, time.Now())
	s.ErrorIs(err, models.ErrInvalidTransition)
}

func (s *PipelineIntegrationSuite) TestActiveRecordUniqueness() {
	chapter := s.newStory()
	for i := 0; i < testThreshold; i++ {
		_, err := s.voting.SubmitVote(s.ctx, chapter.ID, s.voter(400+i), "C")
		s.Require().NoError(err)
	}

	second := &models.GenerationRecord{
		ID:              uuid.New(),
		StoryID:         chapter.StoryID,
		SourceChapterID: chapter.ID,
		Status:          models.GenerationStatusPending,
		Attempt:         1,
		CreatedAt:       time.Now().UTC(),
	}
	err := s.generations.Create(s.ctx, s.pool, second)
	assert.ErrorIs(s.T(), err, models.ErrGenerationInFlight)
}

func (s *PipelineIntegrationSuite) TestIllustrationClaimIsExclusive() {
	chapter := s.newStory()
	repo := database.NewPgIllustrationRepository(s.logger)
	now := time.Now().UTC()
	staleBefore := now.Add(-10 * time.Minute)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimPending(s.ctx, s.pool, chapter.ID, "storybook", now, staleBefore)
			s.NoError(err)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, won)

	// Пока генерация идет, иллюстрации для читателей нет.
	_, err := repo.Get(s.ctx, s.pool, chapter.ID)
	s.ErrorIs(err, models.ErrNotFound)

	// Брошенный захват перехватывается после TTL.
	ok, err := repo.ClaimPending(s.ctx, s.pool, chapter.ID, "storybook", now.Add(time.Hour), now.Add(time.Minute))
	s.Require().NoError(err)
	s.True(ok)

	url := "http://cdn/illustrations/" + chapter.ID.String() + ".png"
	s.Require().NoError(repo.Upsert(s.ctx, s.pool, &models.IllustrationRecord{
		ChapterID: chapter.ID, Status: models.IllustrationStatusReady, AssetURL: &url, Style: "storybook", GeneratedAt: now,
	}))
	ok, err = repo.ClaimPending(s.ctx, s.pool, chapter.ID, "storybook", now.Add(2*time.Hour), now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.False(ok, "a ready illustration is never reclaimed")

	record, err := repo.Get(s.ctx, s.pool, chapter.ID)
	s.Require().NoError(err)
	s.True(record.IsReady())
}
