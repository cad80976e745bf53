package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/models"
	"novel-vote-server/internal/story"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// VoterSessionHeader - заголовок с идентификатором сессии голосующего.
const VoterSessionHeader = "X-Voter-Session"

// VotingService - операции голосования, нужные HTTP-слою.
type VotingService interface {
	SubmitVote(ctx context.Context, chapterID uuid.UUID, voter models.VoterIdentity, optionID string) (*models.VoteResult, error)
	GetVoteStatus(ctx context.Context, chapterID uuid.UUID, voter models.VoterIdentity) (*models.VoteStatus, error)
}

// StoryService - операции чтения и создания историй.
type StoryService interface {
	CreateStory(ctx context.Context, params story.CreateStoryParams) (*models.Story, *models.Chapter, error)
	GetStory(ctx context.Context, id uuid.UUID) (*story.StoryView, error)
	GetChapter(ctx context.Context, id uuid.UUID) (*story.ChapterView, error)
	ListChapters(ctx context.Context, storyID uuid.UUID) ([]*models.Chapter, error)
}

// GenerationService - чтение записей генерации и ручной повтор.
type GenerationService interface {
	Get(ctx context.Context, generationID uuid.UUID) (*models.GenerationRecord, error)
	GetLatestForChapter(ctx context.Context, chapterID uuid.UUID) (*models.GenerationRecord, error)
	Retry(ctx context.Context, generationID uuid.UUID) (*models.GenerationRecord, error)
}

// Deps - зависимости HTTP-слоя. Illustrations и Health необязательны.
type Deps struct {
	Voting        VotingService
	Stories       StoryService
	Generations   GenerationService
	Illustrations interfaces.IllustrationDispatcher
	Verifier      *ServiceTokenVerifier
	Health        func(ctx context.Context) error
}

// Handler обрабатывает HTTP-запросы API голосования.
type Handler struct {
	voting        VotingService
	stories       StoryService
	generations   GenerationService
	illustrations interfaces.IllustrationDispatcher
	verifier      *ServiceTokenVerifier
	health        func(ctx context.Context) error
	logger        *zap.Logger
}

// New создает Handler.
func New(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{
		voting:        deps.Voting,
		stories:       deps.Stories,
		generations:   deps.Generations,
		illustrations: deps.Illustrations,
		verifier:      deps.Verifier,
		health:        deps.Health,
		logger:        logger.Named("Handler"),
	}
}

// NewEcho создает экземпляр Echo с общими middleware и валидатором.
// ipExtractor определяет, откуда берется IP клиента (см. NewIPExtractor).
func NewEcho(allowedOrigins string, ipExtractor echo.IPExtractor, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.IPExtractor = ipExtractor

	e.Use(middleware.RequestID())
	e.Use(EchoZapLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: splitOrigins(allowedOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, VoterSessionHeader},
	}))
	return e
}

// RegisterRoutes регистрирует маршруты.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.healthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	chapters := e.Group("/chapters")
	{
		chapters.POST("/:id/votes", h.submitVote)
		chapters.GET("/:id/votes", h.getVoteStatus)
		chapters.GET("/:id", h.getChapter)
		chapters.GET("/:id/generation", h.getChapterGeneration)
	}

	stories := e.Group("/stories")
	{
		stories.GET("/:id", h.getStory)
		stories.GET("/:id/chapters", h.listChapters)
	}

	if h.verifier == nil {
		h.logger.Warn("Admin routes disabled: no service token verifier configured")
		return
	}
	admin := e.Group("/admin", AdminAuthMiddleware(h.verifier, h.logger))
	{
		admin.POST("/stories", h.createStory)
		admin.GET("/generations/:id", h.getGeneration)
		admin.POST("/generations/:id/retry", h.retryGeneration)
		admin.POST("/chapters/:id/illustration", h.requestIllustration)
	}
}

// --- Вспомогательные функции --- //

func parseIDParam(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id '%s'", models.ErrBadRequest, raw)
	}
	return id, nil
}

// NewIPExtractor без доверенных прокси берет адрес соединения и игнорирует заголовки.
// С прокси IP клиента берется из X-Forwarded-For, но только через адреса из trustedProxies (CIDR).
func NewIPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, raw := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", raw, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// voterFromRequest собирает идентичность голосующего: IP через IPExtractor Echo,
// сессию из заголовка, тела или query-параметра.
func voterFromRequest(c echo.Context, bodySession string) models.VoterIdentity {
	session := c.Request().Header.Get(VoterSessionHeader)
	if session == "" {
		session = bodySession
	}
	if session == "" {
		session = c.QueryParam("session")
	}
	return models.VoterIdentity{IP: c.RealIP(), Session: session}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// --- Обработчики HTTP --- //

func (h *Handler) healthCheck(c echo.Context) error {
	if h.health != nil {
		if err := h.health(c.Request().Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) submitVote(c echo.Context) error {
	chapterID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	var req submitVoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body", Code: "invalid_input"})
	}
	if err := c.Validate(&req); err != nil {
		return handleServiceError(c, err)
	}

	voter := voterFromRequest(c, req.VoterSession)
	result, err := h.voting.SubmitVote(c.Request().Context(), chapterID, voter, req.OptionID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, newVoteResponse(result))
}

func (h *Handler) getVoteStatus(c echo.Context) error {
	chapterID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	status, err := h.voting.GetVoteStatus(c.Request().Context(), chapterID, voterFromRequest(c, ""))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, newVoteStatusResponse(status))
}

func (h *Handler) getChapter(c echo.Context) error {
	chapterID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	view, err := h.stories.GetChapter(c.Request().Context(), chapterID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) getChapterGeneration(c echo.Context) error {
	chapterID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	record, err := h.generations.GetLatestForChapter(c.Request().Context(), chapterID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, newGenerationStatusResponse(record))
}

func (h *Handler) getStory(c echo.Context) error {
	storyID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	view, err := h.stories.GetStory(c.Request().Context(), storyID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) listChapters(c echo.Context) error {
	storyID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	chapters, err := h.stories.ListChapters(c.Request().Context(), storyID)
	if err != nil {
		return handleServiceError(c, err)
	}
	if chapters == nil {
		chapters = []*models.Chapter{}
	}
	return c.JSON(http.StatusOK, chapters)
}

func (h *Handler) createStory(c echo.Context) error {
	var req createStoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body", Code: "invalid_input"})
	}
	if err := c.Validate(&req); err != nil {
		return handleServiceError(c, err)
	}

	params := story.CreateStoryParams{
		Title: req.Title,
		Genre: req.Genre,
		Opening: story.OpeningChapter{
			Title:   req.Opening.Title,
			Body:    req.Opening.Body,
			Summary: req.Opening.Summary,
			Tags:    req.Opening.Tags,
		},
		Options: make([]models.OptionDraft, 0, len(req.Options)),
	}
	for _, o := range req.Options {
		params.Options = append(params.Options, models.OptionDraft{Label: o.Label, Description: o.Description})
	}

	created, chapter, err := h.stories.CreateStory(c.Request().Context(), params)
	if err != nil {
		return handleServiceError(c, err)
	}
	h.logger.Info("Story created via admin API",
		zap.String("storyID", created.ID.String()),
		zap.String("serviceID", fmt.Sprint(c.Get(serviceIDContextKey))))
	return c.JSON(http.StatusCreated, createStoryResponse{Story: created, Chapter: chapter})
}

func (h *Handler) getGeneration(c echo.Context) error {
	generationID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	record, err := h.generations.Get(c.Request().Context(), generationID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) retryGeneration(c echo.Context) error {
	generationID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	record, err := h.generations.Retry(c.Request().Context(), generationID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, record)
}

func (h *Handler) requestIllustration(c echo.Context) error {
	chapterID, err := parseIDParam(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	if h.illustrations == nil {
		return c.JSON(http.StatusServiceUnavailable, APIError{Message: "Illustrations are not configured", Code: "unavailable"})
	}
	if _, err := h.stories.GetChapter(c.Request().Context(), chapterID); err != nil {
		return handleServiceError(c, err)
	}

	payload := models.IllustrationTaskPayload{TaskID: uuid.NewString(), ChapterID: chapterID}
	if err := h.illustrations.DispatchIllustration(c.Request().Context(), payload); err != nil {
		h.logger.Error("Failed to dispatch illustration task", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, dispatchedResponse{ChapterID: chapterID, Status: "dispatched"})
}
