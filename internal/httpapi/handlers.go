package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"seatwatch/internal/availability"
	"seatwatch/internal/notifier"
)

// courseRequest is the shared request body. Term may be empty to use the
// current term.
type courseRequest struct {
	Term          string `json:"term"`
	Subject       string `json:"subject"`
	CatalogNumber string `json:"catalogNumber"`
	Section       string `json:"section"`
	Email         string `json:"email"`
}

type availabilityResponse struct {
	Success      bool                          `json:"success"`
	Term         string                        `json:"term"`
	Sections     []availability.SectionView    `json:"sections"`
	Subscription *availability.SubscribeResult `json:"subscription,omitempty"`
}

// handleAvailability returns the live sections of a course. When the body
// also carries an email, a subscription is attempted and its outcome
// (invalid when no section is given) reported alongside the sections.
func (s *Server) handleAvailability() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req courseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(codeBadRequest, msgBadRequest))
			return
		}
		ctx := c.Request.Context()

		term, err := s.svc.ResolveTerm(ctx, req.Term)
		if err != nil {
			s.writeError(c, err)
			return
		}
		views, err := s.svc.CheckAvailability(ctx, term, req.Subject, req.CatalogNumber, req.Section)
		if err != nil {
			s.writeError(c, err)
			return
		}

		resp := availabilityResponse{Success: true, Term: term, Sections: views}
		if strings.TrimSpace(req.Email) != "" {
			res, err := s.svc.Subscribe(ctx, req.Email, term, req.Subject, req.CatalogNumber, req.Section)
			if err != nil {
				s.writeError(c, err)
				return
			}
			resp.Subscription = &res
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req courseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(codeBadRequest, msgBadRequest))
			return
		}
		ctx := c.Request.Context()

		term, err := s.svc.ResolveTerm(ctx, req.Term)
		if err != nil {
			s.writeError(c, err)
			return
		}
		res, err := s.svc.Subscribe(ctx, req.Email, term, req.Subject, req.CatalogNumber, req.Section)
		if err != nil {
			s.writeError(c, err)
			return
		}

		switch res.Outcome {
		case availability.Created:
			c.JSON(http.StatusCreated, gin.H{"success": true, "subscription": res.Subscription})
		case availability.Duplicate:
			c.JSON(http.StatusConflict, errorBody(codeDuplicate, msgDuplicate))
		default:
			body := errorBody(codeInvalid, msgInvalid)
			body["problems"] = res.Problems
			c.JSON(http.StatusBadRequest, body)
		}
	}
}

func (s *Server) handleNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		items := s.hist.History()
		if items == nil {
			items = []notifier.HistoryItem{}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
	}
}
