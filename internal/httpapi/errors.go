package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatwatch/internal/course"
	"seatwatch/internal/upstream"
	logx "seatwatch/pkg/logx"
)

const (
	codeBadRequest   = "bad_request"
	codeInvalid      = "invalid_request"
	codeNotFound     = "not_found"
	codeDuplicate    = "duplicate"
	codeUpstream     = "upstream_error"
	codeUnavailable  = "upstream_unavailable"
	codeUnauthorized = "upstream_unauthorized"
	codeInternal     = "internal"

	msgBadRequest   = "Request body must be a JSON object"
	msgInvalid      = "Missing or malformed fields"
	msgNotFound     = "Unable to fetch course data"
	msgDuplicate    = "Already subscribed to this section"
	msgUpstream     = "Course data source rejected the request"
	msgUnavailable  = "Course data source is temporarily unavailable"
	msgUnauthorized = "Course data source credentials were rejected"
	msgInternal     = "Internal server error"
)

func errorBody(code, message string) gin.H {
	return gin.H{"success": false, "code": code, "message": message}
}

// writeError maps err onto a status and a fixed message. Internal detail
// never reaches the client.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *course.ValidationError
	switch {
	case errors.As(err, &ve):
		body := errorBody(codeInvalid, msgInvalid)
		body["problems"] = ve.Problems
		c.JSON(http.StatusBadRequest, body)
		return
	case errors.Is(err, course.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(codeNotFound, msgNotFound))
		return
	}

	var ue *upstream.Error
	if errors.As(err, &ue) {
		switch ue.Kind {
		case upstream.Unauthorized:
			c.JSON(http.StatusBadGateway, errorBody(codeUnauthorized, msgUnauthorized))
		case upstream.Transient:
			c.JSON(http.StatusServiceUnavailable, errorBody(codeUnavailable, msgUnavailable))
		default:
			c.JSON(http.StatusBadGateway, errorBody(codeUpstream, msgUpstream))
		}
		s.log.Warn("upstream request failed", logx.Err(err))
		return
	}

	s.log.Error("request failed", logx.Err(err), logx.String("path", c.FullPath()))
	c.JSON(http.StatusInternalServerError, errorBody(codeInternal, msgInternal))
}
