package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/studyloop/studyloop/internal/generation/domain"
)

type generateRequest struct {
	CallerID  string `json:"caller_id"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

func (s *Server) GenerateContent(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.generationSvc.Generate(c.Request.Context(), generationdomain.GenerateRequest{
		CallerID:  strings.TrimSpace(req.CallerID),
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCallerQuota(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	report, err := s.generationSvc.RemainingQuota(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ListCallerGenerations(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	records, err := s.ledgerSvc.ListByCaller(c.Request.Context(), id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) GetPoolStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.pool.Snapshot()})
}
