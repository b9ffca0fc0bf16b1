package server

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"CoverLedger/internal/event"
	"CoverLedger/internal/ingestion"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"
)

// ServerDeps carries everything the HTTP surface needs.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	Ingest        *ingestion.CommandIngest
	SnapshotMgr   *persistence.SnapshotManager
	Tokens        *state.TokenBank
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	StartTime     time.Time
}

// HTTPServer serves the query API, command submission, and health endpoints.
// All state-changing requests go through the command ingest channel into the
// core; handlers never mutate protocol state directly. The one exception is
// governance token administration, which operates on the concurrency-safe
// token bank outside the event pipeline.
type HTTPServer struct {
	addr string
	deps *ServerDeps
	log  zerolog.Logger
}

func NewHTTPServer(addr string, deps *ServerDeps) *HTTPServer {
	return &HTTPServer{
		addr: addr,
		deps: deps,
		log:  observability.NewLogger("http"),
	}
}

// Run starts the server and blocks until ctx is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestMetrics())

	r.GET("/healthz", gin.WrapF(s.deps.HealthChecker.LivenessHandler))
	r.GET("/readyz", gin.WrapF(s.deps.HealthChecker.ReadinessHandler))
	r.GET("/status", s.getStatus)

	v1 := r.Group("/v1")
	{
		v1.GET("/pools", s.listPools)
		v1.GET("/pools/:id", s.getPool)
		v1.GET("/pools/:id/deposits/:address", s.getUserDeposit)

		v1.GET("/covers", s.getAvailableCovers)
		v1.GET("/covers/:id/holders/:address", s.getUserCoverInfo)

		v1.GET("/proposals", s.listProposals)
		v1.GET("/proposals/:id", s.getProposalDetails)

		v1.GET("/journal", s.getJournalHistory)
		v1.GET("/events", s.getEventHistory)

		v1.POST("/commands/:type", s.submitCommand)
	}

	admin := r.Group("/v1/admin")
	{
		admin.GET("/integrity", s.verifyIntegrity)
		admin.GET("/token/balance/:address", s.getTokenBalance)
		admin.POST("/token/mint", s.mintTokens)
		admin.POST("/token/transfer", s.transferTokens)
	}

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.deps.Metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.deps.Metrics.QueryRequests.WithLabelValues(route, status).Inc()
		s.deps.Metrics.QueryDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if c.Writer.Status() >= 500 {
			s.deps.Metrics.QueryErrors.WithLabelValues(route, status).Inc()
		}
	}
}

// --- command submission ---

// POST /v1/commands/:type
// The body is the same wire-format JSON the NATS subjects carry; the path
// segment selects the event type. Commands are validated, parsed, and queued
// for the core. 202 means accepted for processing, not applied.
func (s *HTTPServer) submitCommand(c *gin.Context) {
	eventType := c.Param("type")

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	evt, err := ingestion.ParseRawEvent(ingestion.RawEvent{Data: body}, eventType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.deps.Ingest.Submit(c.Request.Context(), evt); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted":        true,
		"event_type":      eventType,
		"idempotency_key": evt.IdempotencyKey(),
	})
}

// --- queries ---

func (s *HTTPServer) listPools(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	pools, err := s.deps.QueryService.ListPools(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pools": pools})
}

func (s *HTTPServer) getPool(c *gin.Context) {
	poolID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return
	}

	pool, err := s.deps.QueryService.GetPool(c.Request.Context(), poolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pool == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pool not found"})
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (s *HTTPServer) getUserDeposit(c *gin.Context) {
	poolID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return
	}
	address := c.Param("address")

	dep, err := s.deps.QueryService.GetUserDeposit(c.Request.Context(), address, poolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dep == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "deposit not found"})
		return
	}
	c.JSON(http.StatusOK, dep)
}

func (s *HTTPServer) getAvailableCovers(c *gin.Context) {
	var riskCategory *string
	if rc := c.Query("risk_category"); rc != "" {
		riskCategory = &rc
	}

	covers, err := s.deps.QueryService.GetAvailableCovers(c.Request.Context(), riskCategory)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"covers": covers})
}

func (s *HTTPServer) getUserCoverInfo(c *gin.Context) {
	coverID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cover id"})
		return
	}
	address := c.Param("address")

	uc, err := s.deps.QueryService.GetUserCoverInfo(c.Request.Context(), address, coverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if uc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cover position not found"})
		return
	}
	c.JSON(http.StatusOK, uc)
}

func (s *HTTPServer) listProposals(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))

	var beforeID *uint64
	if b := c.Query("before"); b != "" {
		id, err := strconv.ParseUint(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		beforeID = &id
	}

	proposals, err := s.deps.QueryService.ListProposals(c.Request.Context(), limit, beforeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": proposals})
}

func (s *HTTPServer) getProposalDetails(c *gin.Context) {
	proposalID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}

	pr, err := s.deps.QueryService.GetProposalDetails(c.Request.Context(), proposalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
		return
	}
	c.JSON(http.StatusOK, pr)
}

func (s *HTTPServer) getJournalHistory(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}
	limit := parseLimit(c.Query("limit"))
	afterSeq := parseCursor(c.Query("after"))

	entries, err := s.deps.QueryService.GetJournalHistory(c.Request.Context(), address, limit, afterSeq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *HTTPServer) getEventHistory(c *gin.Context) {
	var poolID *uint64
	if p := c.Query("pool_id"); p != "" {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool_id"})
			return
		}
		poolID = &id
	}
	limit := parseLimit(c.Query("limit"))
	afterSeq := parseCursor(c.Query("after"))

	events, err := s.deps.QueryService.GetEventHistory(c.Request.Context(), poolID, limit, afterSeq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// --- admin ---

func (s *HTTPServer) verifyIntegrity(c *gin.Context) {
	report, err := s.deps.QueryService.VerifyIntegrity(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *HTTPServer) getStatus(c *gin.Context) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"latest_sequence": latestSeq,
		"uptime_seconds":  int64(time.Since(s.deps.StartTime).Seconds()),
		"ready":           s.deps.HealthChecker.IsReady(),
	})
}

func (s *HTTPServer) getTokenBalance(c *gin.Context) {
	address := c.Param("address")
	balance := s.deps.Tokens.BalanceOf(event.Address(address))
	c.JSON(http.StatusOK, gin.H{"address": address, "balance": balance})
}

type mintRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  int64  `json:"amount" binding:"required"`
}

func (s *HTTPServer) mintTokens(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.deps.Tokens.Mint(event.Address(req.Address), req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": req.Address, "balance": s.deps.Tokens.BalanceOf(event.Address(req.Address))})
}

type transferRequest struct {
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

func (s *HTTPServer) transferTokens(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.deps.Tokens.Transfer(event.Address(req.From), event.Address(req.To), req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from_balance": s.deps.Tokens.BalanceOf(event.Address(req.From)),
		"to_balance":   s.deps.Tokens.BalanceOf(event.Address(req.To)),
	})
}

// --- helpers ---

func parseLimit(s string) int {
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func parseCursor(s string) *int64 {
	if s == "" {
		return nil
	}
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &seq
}
