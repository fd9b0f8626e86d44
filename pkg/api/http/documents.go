package http

import (
	"net/http"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/gin-gonic/gin"
)

const (
	defaultDocumentLimit = 50
	maxDocumentLimit     = 100
)

// handleListDocuments handles listing stored documents
func (s *Server) handleListDocuments(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultDocumentLimit)
	if err != nil {
		s.writeError(c, "invalid list query", err)
		return
	}
	if limit == 0 || limit > maxDocumentLimit {
		limit = maxDocumentLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, "invalid list query", err)
		return
	}

	docs, err := s.documents.ListDocuments(c.Request.Context(), ports.DocumentFilter{
		Repository: c.Query("repository"),
		Status:     domain.DocumentStatus(c.Query("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.writeError(c, "failed to list documents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"count":     len(docs),
		"limit":     limit,
		"offset":    offset,
	})
}

// handleGetDocument handles getting a document by ID
func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "failed to get document", err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// handleLatestDocument handles getting the current document of a repository
func (s *Server) handleLatestDocument(c *gin.Context) {
	repository := c.Param("owner") + "/" + c.Param("name")

	doc, err := s.documents.LatestDocument(c.Request.Context(), repository, domain.CurrentDocumentStatuses...)
	if err != nil {
		s.writeError(c, "failed to get latest document", err)
		return
	}

	c.JSON(http.StatusOK, doc)
}
