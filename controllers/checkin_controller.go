package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

// CheckinController exposes the daily check-in and achievement endpoints.
type CheckinController struct {
	svc *services.CheckinService
}

func NewCheckinController(svc *services.CheckinService) *CheckinController {
	return &CheckinController{svc: svc}
}

// Status reports today's check-in state and the current streak.
func (c *CheckinController) Status(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	st, err := c.svc.Status(ctx.Request.Context(), userID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, st)
}

// CheckIn records today's check-in. The body is optional: {"mood": "😊"}.
func (c *CheckinController) CheckIn(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Mood string `json:"mood"`
	}
	// An empty body, chunked or not, decodes to io.EOF and means no mood.
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	res, err := c.svc.CheckIn(ctx.Request.Context(), userID, req.Mood)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "打卡成功", res)
}

// Definitions lists every achievement tier.
func (c *CheckinController) Definitions(ctx *gin.Context) {
	defs, err := c.svc.Definitions(ctx.Request.Context())
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, defs)
}

// Unlocked lists the caller's unlocked achievements.
func (c *CheckinController) Unlocked(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	out, err := c.svc.Unlocked(ctx.Request.Context(), userID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, out)
}
