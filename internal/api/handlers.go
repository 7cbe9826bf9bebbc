package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/engine"
	"github.com/Veraticus/draftflow/internal/model"
)

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

// report binds the shared filter, runs build and writes its result.
func report[T any](s *Server, c *gin.Context, build func(ctx context.Context, f model.Filter) (*T, error)) {
	filter, err := s.bindFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	rep, err := build(c.Request.Context(), filter)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rep)
	case rep != nil:
		// Canceled or rejected partial fetch: the data is still useful.
		status, code := classify(err)
		c.JSON(http.StatusPartialContent, gin.H{
			"report": rep,
			"error":  gin.H{"code": code, "message": err.Error(), "status": status},
		})
	default:
		writeError(c, err)
	}
}

func (s *Server) quality(c *gin.Context) {
	report(s, c, s.engine.QualityReport)
}

func (s *Server) group(c *gin.Context) {
	by := c.DefaultQuery("by", engine.GroupCategory)
	report(s, c, func(ctx context.Context, f model.Filter) (*engine.GroupReport, error) {
		return s.engine.Group(ctx, f, by)
	})
}

func (s *Server) detail(c *gin.Context) {
	report(s, c, s.engine.DetailedTable)
}

func (s *Server) trend(c *gin.Context) {
	g := engine.Granularity(c.DefaultQuery("granularity", string(engine.Weekly)))
	report(s, c, func(ctx context.Context, f model.Filter) (*engine.TrendReport, error) {
		return s.engine.Trends(ctx, f, g)
	})
}

func (s *Server) distribution(c *gin.Context) {
	report(s, c, s.engine.CategoryDistribution)
}

func (s *Server) correlation(c *gin.Context) {
	flags := c.QueryArray("flag")
	report(s, c, func(ctx context.Context, f model.Filter) (*engine.CorrelationReport, error) {
		return s.engine.Correlation(ctx, f, flags...)
	})
}

func (s *Server) flow(c *gin.Context) {
	report(s, c, s.engine.Flow)
}

// pager serves one page of raw rows. The response carries the session id in
// SessionHeader; sending it back reuses the session's cached count and pages.
func (s *Server) pager(table model.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := s.bindFilter(c)
		if err != nil {
			writeError(c, err)
			return
		}
		var pq pageQuery
		if err := c.ShouldBindQuery(&pq); err != nil {
			writeErrorStatus(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}

		sess, err := s.session(c.GetHeader(SessionHeader), table)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header(SessionHeader, sess.ID)

		page, err := sess.Page(c.Request.Context(), filter, pq.Page, pq.PageSize)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// errSessionTable is returned when a session id is reused for another table.
var errSessionTable = errors.New("session belongs to another table")

// session returns the session for id, or a new one when id is empty or no
// longer known.
func (s *Server) session(id string, table model.Table) (*engine.Session, error) {
	if id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			if sess.Table() != table {
				return nil, errSessionTable
			}
			return sess, nil
		}
		slog.Debug("Unknown paging session, starting a new one", "session", id)
	}
	sess, err := s.engine.NewSession(table)
	if err != nil {
		return nil, err
	}
	s.sessions.Add(sess.ID, sess)
	return sess, nil
}

func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("id")
	sess, ok := s.sessions.Peek(id)
	if !ok {
		writeErrorStatus(c, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	stats := sess.Stats()
	s.sessions.Remove(id)
	c.JSON(http.StatusOK, gin.H{"deleted_session_id": id, "cache": stats})
}

// classify maps an engine error to an HTTP status and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrDateRangeInvalid),
		errors.Is(err, common.ErrInvalidConfig),
		errors.Is(err, common.ErrUnsupportedColumn),
		errors.Is(err, common.ErrUnknownTable),
		errors.Is(err, errSessionTable):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELED"
	case common.IsFatal(err):
		return http.StatusBadGateway, "STORE_ERROR"
	}
	var partial *common.PartialFetchError
	if errors.As(err, &partial) {
		return http.StatusBadGateway, "PARTIAL_FETCH"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	writeErrorStatus(c, status, code, err.Error())
}

func writeErrorStatus(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
