package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mpart-uis/grant-scout/internal/auth"
	"github.com/mpart-uis/grant-scout/internal/config"
	"github.com/mpart-uis/grant-scout/internal/db"
	"github.com/mpart-uis/grant-scout/internal/discover"
	"github.com/mpart-uis/grant-scout/internal/export"
	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	Runner      *discover.Runner
	Settings    *config.Settings
	Leads       *match.Recommender

	// Background job tracking for admin-triggered discovery runs.
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pool *pgxpool.Pool, runner *discover.Runner, settings *config.Settings) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	if settings == nil {
		settings = config.Default()
	}

	s := &Server{
		DB:          pool,
		Store:       db.NewStore(pool),
		AuthService: auth.NewService(pool),
		Echo:        e,
		Runner:      runner,
		Settings:    settings,
		Leads:       match.NewRecommender(match.DefaultSpecialists),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.GET("/matches", s.handleListMatches)
	api.GET("/matches/:id", s.handleGetMatch)
	api.GET("/runs", s.handleListRuns)
	api.GET("/stats", s.handleGetStats)
	api.GET("/leads", s.handleGetLeads)

	api.GET("/export/matches.csv", s.handleExportCSV)
	api.GET("/export/matches.xlsx", s.handleExportXLSX)
	api.GET("/export/deadlines.ics", s.handleExportICS)

	// Admin routes: trigger and monitor discovery runs.
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/discover", s.handleTriggerDiscovery)
	admin.GET("/admin/job/:id", s.handleJobStatus)

	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	protected := api.Group("")
	protected.Use(auth.Middleware)
	protected.POST("/saved/:id", s.handleSaveMatch)
	protected.DELETE("/saved/:id", s.handleUnsaveMatch)
	protected.GET("/saved", s.handleGetSavedMatches)
	protected.PUT("/decisions/:id", s.handleUpsertDecision)
	protected.GET("/decisions/:id", s.handleGetDecision)
	protected.GET("/decisions", s.handleListDecisions)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	params := db.OpportunityListParams{
		Source: c.QueryParam("source"),
		Limit:  20,
	}
	if v := c.QueryParam("passed"); v == "true" {
		params.PreFilterOnly = true
	}
	if v, err := strconv.Atoi(c.QueryParam("min_score")); err == nil && v > 0 {
		params.MinScore = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		params.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		params.Offset = v
	}

	opps, total, err := s.Store.ListOpportunities(c.Request().Context(), params)
	if err != nil {
		c.Logger().Errorf("Failed to list opportunities: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"opportunities": opps,
		"total":         total,
		"limit":         params.Limit,
		"offset":        params.Offset,
	})
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	opp, err := s.Store.GetOpportunity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, opp)
}

func (s *Server) matchListParams(c echo.Context) (db.MatchListParams, error) {
	params := db.MatchListParams{
		Depth: c.QueryParam("depth"),
		Lead:  c.QueryParam("lead"),
		Limit: 50,
	}
	if v := c.QueryParam("run_id"); v != "" {
		runID, err := uuid.Parse(v)
		if err != nil {
			return params, fmt.Errorf("invalid run_id")
		}
		params.RunID = &runID
	}
	if v, err := strconv.Atoi(c.QueryParam("min_score")); err == nil && v > 0 {
		params.MinScore = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 200 {
		params.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		params.Offset = v
	}
	return params, nil
}

func (s *Server) handleListMatches(c echo.Context) error {
	params, err := s.matchListParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	matches, total, err := s.Store.ListMatches(c.Request().Context(), params)
	if err != nil {
		c.Logger().Errorf("Failed to list matches: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"matches": matches,
		"total":   total,
		"limit":   params.Limit,
		"offset":  params.Offset,
	})
}

func (s *Server) handleGetMatch(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	m, err := s.Store.GetMatch(ctx, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	resp := map[string]any{"match": m}
	if opp, err := s.Store.GetOpportunity(ctx, id); err == nil {
		resp["opportunity"] = opp
	}
	if decision, err := s.Store.GetDecision(ctx, id); err == nil {
		resp["decision"] = decision
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetStats(c echo.Context) error {
	ctx := c.Request().Context()
	stats, err := s.Store.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if dist, err := s.Store.LeadDistribution(ctx); err == nil {
		stats["lead_distribution"] = dist
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetLeads(c echo.Context) error {
	type leadInfo struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Keywords []string `json:"keywords"`
	}
	var leads []leadInfo
	for _, sp := range s.Leads.Specialists() {
		leads = append(leads, leadInfo{ID: sp.ID, Name: sp.Name, Keywords: sp.Keywords})
	}
	return c.JSON(http.StatusOK, leads)
}

// Export handlers

func (s *Server) handleExportCSV(c echo.Context) error {
	params, err := s.matchListParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	params.Limit = 1000

	matches, _, err := s.Store.ListMatches(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="matches.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteMatchesCSV(c.Response(), matches)
}

func (s *Server) handleExportXLSX(c echo.Context) error {
	params, err := s.matchListParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	params.Limit = 1000

	matches, _, err := s.Store.ListMatches(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="matches.xlsx"`)
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteMatchesXLSX(c.Response(), matches)
}

func (s *Server) handleExportICS(c echo.Context) error {
	opps, _, err := s.Store.ListOpportunities(c.Request().Context(), db.OpportunityListParams{
		PreFilterOnly: true,
		Limit:         1000,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/calendar")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="deadlines.ics"`)
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteDeadlinesICS(c.Response(), opps, time.Now())
}

// Admin: discovery runs

func (s *Server) handleTriggerDiscovery(c echo.Context) error {
	if s.Runner == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Discovery is not configured"})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A discovery run is already in progress",
			"job_id": job.ID,
		})
	}

	filters := match.Filters{Keyword: c.QueryParam("keyword")}
	if v, err := strconv.Atoi(c.QueryParam("max_results")); err == nil && v > 0 {
		filters.MaxResults = v
	}

	// Detach from the HTTP request lifecycle but keep a hard cap.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 30*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()

		report, err := s.Runner.Run(jobCtx, filters)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[discover-job %s] failed: %v", jobID, err)
			return
		}
		job.Status = "completed"
		job.Result = map[string]any{
			"run_id":              report.RunID,
			"sources_total":       report.SourcesTotal,
			"sources_failed":      report.SourcesFailed,
			"opportunities_found": report.Found,
			"matches_kept":        report.Kept,
		}
		log.Printf("[discover-job %s] completed: %d found, %d kept", jobID, report.Found, report.Kept)
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Discovery run started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

// Auth handlers

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// Saved matches

func (s *Server) handleSaveMatch(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	grantID := c.Param("id")
	if grantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Grant ID required"})
	}

	if err := s.AuthService.SaveMatch(c.Request().Context(), userID, grantID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save match"})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleUnsaveMatch(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	if err := s.AuthService.UnsaveMatch(c.Request().Context(), userID, c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to unsave match"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "unsaved"})
}

func (s *Server) handleGetSavedMatches(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	matches, err := s.AuthService.GetSavedMatches(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch saved matches"})
	}
	return c.JSON(http.StatusOK, matches)
}

// Decisions

var validDecisionStatuses = map[models.DecisionStatus]bool{
	models.DecisionNew:         true,
	models.DecisionUnderReview: true,
	models.DecisionPursuing:    true,
	models.DecisionNotPursuing: true,
	models.DecisionSubmitted:   true,
	models.DecisionAwarded:     true,
	models.DecisionDeclined:    true,
}

func (s *Server) handleUpsertDecision(c echo.Context) error {
	if _, err := auth.GetUserIDFromContext(c); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req struct {
		Status       models.DecisionStatus `json:"status"`
		AssignedLead string                `json:"assigned_lead"`
		Notes        string                `json:"notes"`
		UpdatedBy    string                `json:"updated_by"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if !validDecisionStatuses[req.Status] {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid status %q", req.Status)})
	}

	decision := &models.Decision{
		GrantID:      c.Param("id"),
		Status:       req.Status,
		AssignedLead: req.AssignedLead,
		Notes:        req.Notes,
		UpdatedBy:    req.UpdatedBy,
	}
	if err := s.Store.UpsertDecision(c.Request().Context(), decision); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save decision"})
	}
	return c.JSON(http.StatusOK, decision)
}

func (s *Server) handleGetDecision(c echo.Context) error {
	if _, err := auth.GetUserIDFromContext(c); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	decision, err := s.Store.GetDecision(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, decision)
}

func (s *Server) handleListDecisions(c echo.Context) error {
	if _, err := auth.GetUserIDFromContext(c); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	decisions, err := s.Store.ListDecisions(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, decisions)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}
