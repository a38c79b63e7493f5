package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/media"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

type ReportResponse struct {
	Applied []domain.UserID          `json:"applied"`
	Failed  map[domain.UserID]string `json:"failed,omitempty"`
}

type ViewResponse struct {
	Renders uint64    `json:"renders"`
	View    core.View `json:"view"`
}

func newReportResponse(rep media.Report) ReportResponse {
	out := ReportResponse{Applied: rep.Applied}
	if out.Applied == nil {
		out.Applied = []domain.UserID{}
	}
	if rep.Partial() {
		out.Failed = make(map[domain.UserID]string, len(rep.Failed))
		for id, err := range rep.Failed {
			out.Failed[id] = err.Error()
		}
	}
	return out
}

type handlers struct {
	cmds  Commands
	board *Board
}

func (h *handlers) view(c *gin.Context) {
	v, n := h.board.View()
	c.JSON(http.StatusOK, ViewResponse{Renders: n, View: v})
}

// notices accepts ?after=<seq> to fetch only newer entries.
func (h *handlers) notices(c *gin.Context) {
	var after uint64
	if s := c.Query("after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
			return
		}
		after = v
	}
	c.JSON(http.StatusOK, gin.H{"notices": h.board.Notices(after)})
}

func (h *handlers) streams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streams": h.board.Streams()})
}

func (h *handlers) pin(c *gin.Context) {
	id := domain.UserID(c.Param("id"))
	if err := domain.ValidateUserID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	arr, err := h.cmds.Pin(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "pin", err)
		return
	}
	c.JSON(http.StatusOK, arr)
}

func (h *handlers) toggleAudio(c *gin.Context) { h.toggle(c, "audio", h.cmds.ToggleAudio) }
func (h *handlers) toggleVideo(c *gin.Context) { h.toggle(c, "video", h.cmds.ToggleVideo) }

func (h *handlers) toggle(c *gin.Context, what string, fn func(context.Context) (bool, error)) {
	on, err := fn(c.Request.Context())
	if err != nil {
		h.fail(c, "toggle "+what, err)
		return
	}
	c.JSON(http.StatusOK, ToggleResponse{Enabled: on})
}

func (h *handlers) startScreen(c *gin.Context) {
	rep, err := h.cmds.StartScreenShare(c.Request.Context())
	h.report(c, "start screen share", rep, err)
}

func (h *handlers) stopScreen(c *gin.Context) {
	rep, err := h.cmds.StopScreenShare(c.Request.Context())
	h.report(c, "stop screen share", rep, err)
}

// report answers 200 with the per-peer outcome even when some peers
// failed; only a failure of the whole operation is an error status.
func (h *handlers) report(c *gin.Context, op string, rep media.Report, err error) {
	if err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newReportResponse(rep))
}

func (h *handlers) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid message"})
		return
	}
	if err := h.cmds.SendChat(c.Request.Context(), req.Message); err != nil {
		h.fail(c, "chat", err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) leave(c *gin.Context) {
	if err := h.cmds.Leave(c.Request.Context()); err != nil {
		h.fail(c, "leave", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) fail(c *gin.Context, op string, err error) {
	status := statusOf(err)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("module", "adapters.http").Str("op", op).Str("request_id", c.GetString("request_id")).Err(err).Msg("command failed")
	var retry *signal.RetryError
	if errors.As(err, &retry) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.After.Seconds()))))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, orch.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, orch.ErrNotJoined), errors.Is(err, media.ErrAlreadySharing):
		return http.StatusConflict
	case errors.Is(err, signal.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrNoCaptureDevice),
		errors.Is(err, signal.ErrBackpressure),
		errors.Is(err, signal.ErrClosed),
		errors.Is(err, app.ErrLoopClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
