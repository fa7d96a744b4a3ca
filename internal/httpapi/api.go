// Package httpapi exposes the portal service over HTTP for the UI. It is
// transport glue only: shapes mirror the facade, and the error taxonomy
// maps onto status codes (validation 400, not found 404, conflict 409,
// storage 500).
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/portal"
	"github.com/automatesecurity/masat/internal/storage"
	"github.com/automatesecurity/masat/internal/types"
)

// New builds the router over a portal service.
func New(svc *portal.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/ingest", ingest(svc))
		api.GET("/issues", listIssues(svc))
		api.POST("/issues/update", updateIssue(svc))
		api.GET("/diff", diff(svc))
		api.GET("/dashboard", dashboard(svc))
		api.GET("/runs/:id", runByID(svc))
	}
	return router
}

func fail(c *gin.Context, err error) {
	var conflict *issues.ConflictError
	switch {
	case errors.Is(err, portal.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, issues.ErrNotFound), errors.Is(err, storage.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "current": conflict.Current})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type ingestRequest struct {
	Target    string          `json:"target"`
	TS        time.Time       `json:"ts"`
	Scans     []string        `json:"scans"`
	Findings  []ingestFinding `json:"findings"`
	RawResult string          `json:"results,omitempty"`
}

type ingestFinding struct {
	Asset       string            `json:"asset"`
	Scanner     string            `json:"scanner,omitempty"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Severity    int               `json:"severity"`
	Details     string            `json:"details,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	Evidence    map[string]string `json:"evidence,omitempty"`
}

func (r ingestRequest) toRun() types.Run {
	run := types.Run{
		Target:    r.Target,
		Timestamp: r.TS,
		Scans:     r.Scans,
		Results:   r.RawResult,
	}
	for _, f := range r.Findings {
		run.Findings = append(run.Findings, types.Finding{
			Asset:       f.Asset,
			Scanner:     f.Scanner,
			Category:    f.Category,
			Title:       f.Title,
			Severity:    f.Severity,
			Details:     f.Details,
			Remediation: f.Remediation,
			Evidence:    f.Evidence,
		})
	}
	return run
}

func ingest(svc *portal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run payload: " + err.Error()})
			return
		}
		run := req.toRun()
		stored, err := svc.Ingest(c.Request.Context(), run)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runId": stored.ID, "target": stored.Target})
	}
}

func listIssues(svc *portal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		var status, owner *string
		if v := c.Query("status"); v != "" {
			status = &v
		}
		if v := c.Query("owner"); v != "" {
			owner = &v
		}
		page, err := svc.Issues(c.Request.Context(), status, owner, limit, offset)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

type updateRequest struct {
	Fingerprint string  `json:"fingerprint"`
	Status      *string `json:"status,omitempty"`
	Owner       *string `json:"owner,omitempty"`
	Version     *int64  `json:"version,omitempty"`
}

func updateIssue(svc *portal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload: " + err.Error()})
			return
		}
		updated, err := svc.UpdateIssue(c.Request.Context(), req.Fingerprint, req.Status, req.Owner, req.Version)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func diff(svc *portal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Diff(c.Request.Context(), c.Query("target"))
		if err != nil {
			fail(c, err)
			return
		}
		// Insufficient history renders as JSON null, not an error.
		c.JSON(http.StatusOK, res)
	}
}

func dashboard(svc *portal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		dash, err := svc.Dashboard(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, dash)
	}
}

func runByID(svc *portal.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		run, err := svc.Run(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}
