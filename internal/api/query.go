package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/model"
)

// filterQuery is the query string shared by every report endpoint. Set
// parameters repeat: ?category=billing&category=shipping.
type filterQuery struct {
	From       string   `form:"from"`
	To         string   `form:"to"`
	DateField  string   `form:"date_field" binding:"omitempty,oneof=created human_reply"`
	Versions   []string `form:"version"`
	Categories []string `form:"category"`
	Agents     []string `form:"agent"`
	Statuses   []string `form:"status"`
	Flags      []string `form:"requires"`
	Days       int      `form:"days" binding:"omitempty,gte=1,lte=3660"`
}

func (s *Server) bindFilter(c *gin.Context) (model.Filter, error) {
	var q filterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return model.Filter{}, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	r, err := model.ResolveRange(q.From, q.To, q.Days, s.now(), s.location())
	if err != nil {
		return model.Filter{}, err
	}
	return model.Filter{
		DateRange:        r,
		DateField:        model.DateField(q.DateField),
		Versions:         q.Versions,
		Categories:       q.Categories,
		Agents:           q.Agents,
		Statuses:         q.Statuses,
		RequirementFlags: q.Flags,
	}, nil
}

func (s *Server) location() *time.Location {
	if loc := s.engine.Config().Location; loc != nil {
		return loc
	}
	return time.Local
}

type pageQuery struct {
	Page     int `form:"page" binding:"gte=0"`
	PageSize int `form:"page_size" binding:"gte=0"`
}
