// Package httpapi exposes the verdict resolution pipeline to the browser
// extension over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/adapters/extract"
	"github.com/devscan/linkguard/internal/adapters/unshorten"
	"github.com/devscan/linkguard/internal/core"
)

// HealthChecker reports remote classifier availability. The bridge provider
// implements it; providers without a health endpoint simply don't.
type HealthChecker interface {
	Health(ctx context.Context) (status string, details string)
}

// Server is the gin HTTP front-end.
type Server struct {
	resolver   *core.Resolver
	store      core.LinkStore
	cache      core.VerdictCache
	classifier core.Classifier
	extractor  *extract.Extractor
	expander   *unshorten.Expander
	logger     *zap.Logger

	httpServer *http.Server
}

// NewServer wires the HTTP handlers.
func NewServer(
	listenAddress string,
	resolver *core.Resolver,
	store core.LinkStore,
	cache core.VerdictCache,
	classifier core.Classifier,
	extractor *extract.Extractor,
	expander *unshorten.Expander,
	logger *zap.Logger,
) *Server {
	s := &Server{
		resolver:   resolver,
		store:      store,
		cache:      cache,
		classifier: classifier,
		extractor:  extractor,
		expander:   expander,
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)
	api := engine.Group("/api")
	{
		api.POST("/extension/analyze", s.handleAnalyze)
		api.POST("/extract-links", s.handleExtractLinks)
		api.POST("/unshorten", s.handleUnshorten)
		api.POST("/maintenance/clean-expired", s.handleCleanExpired)
		api.POST("/maintenance/clean-noncacheable", s.handleCleanNonCacheable)
	}

	s.httpServer = &http.Server{
		Addr:    listenAddress,
		Handler: engine,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type analyzeRequest struct {
	Links         []string `json:"links"`
	SessionID     int64    `json:"sessionId"`
	BrowserInfo   string   `json:"browserInfo"`
	Domain        string   `json:"domain"`
	PageURL       string   `json:"pageUrl"`
	PageRefreshed bool     `json:"pageRefreshed"`
}

// handleAnalyze is the extension's batch endpoint. It always answers 200
// with one verdict per URL; only a structurally empty request is rejected.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Links) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "links array is required"})
		return
	}

	ctx := c.Request.Context()

	sessionID := req.SessionID
	if s.store != nil {
		browserInfo := req.BrowserInfo
		if browserInfo == "" && req.Domain != "" {
			browserInfo = "Extension scan from " + req.Domain
		}
		id, err := s.store.GetOrCreateSession(ctx, req.SessionID, browserInfo)
		if err != nil {
			s.logger.Warn("Failed to get or create session, continuing without one",
				zap.Error(err))
			sessionID = 0
		} else {
			sessionID = id
		}
	}

	alreadyProcessed := map[string]bool{}
	if !req.PageRefreshed {
		alreadyProcessed = s.resolver.ProcessedLinks(ctx, sessionID, req.PageURL)
	}

	result, err := s.resolver.ResolveMany(ctx, req.Links, sessionID, alreadyProcessed)
	if err != nil {
		s.logger.Error("Batch resolution aborted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to analyze links"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"verdicts":    result.Verdicts,
		"session_ID":  sessionID,
		"processed":   len(result.Verdicts),
		"newLinks":    result.NewCount,
		"cachedLinks": result.CachedCount,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if hc, ok := s.classifier.(HealthChecker); ok {
		status, details := hc.Health(c.Request.Context())
		resp["classifier"] = gin.H{"status": status, "details": details}
	}
	c.JSON(http.StatusOK, resp)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleExtractLinks(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	links, err := s.extractor.ExtractLinks(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error(), "links": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "links": links})
}

func (s *Server) handleUnshorten(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	final, err := s.expander.Expand(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Failed to resolve URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": final})
}

func (s *Server) handleCleanExpired(c *gin.Context) {
	removed, err := s.cache.Sweep(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clean expired entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleCleanNonCacheable(c *gin.Context) {
	removed, err := s.cache.PurgeNonCacheable(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clean non-cacheable entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
