package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imalive/server/jobs"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

// ReminderController exposes the admin view of the reminder job.
type ReminderController struct {
	svc       *services.ReminderService
	scheduler *jobs.Scheduler
}

func NewReminderController(svc *services.ReminderService, scheduler *jobs.Scheduler) *ReminderController {
	return &ReminderController{svc: svc, scheduler: scheduler}
}

// Pending lists users due for a reminder right now.
func (r *ReminderController) Pending(ctx *gin.Context) {
	pending, err := r.svc.Pending(ctx.Request.Context(), time.Now())
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"count": len(pending), "users": pending})
}

// Check runs the reminder job once, outside the schedule.
func (r *ReminderController) Check(ctx *gin.Context) {
	sent, err := r.scheduler.RunReminders(ctx.Request.Context())
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "提醒检查完成", gin.H{"sent": sent})
}

// Send reminds the listed users now, skipping those already checked in or reminded today.
func (r *ReminderController) Send(ctx *gin.Context) {
	var req struct {
		UserIDs []uint `json:"userIds" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "用户ID列表不能为空")
		return
	}
	sent, err := r.svc.SendTo(ctx.Request.Context(), utils.UniqueUint(req.UserIDs), time.Now())
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.SuccessMsg(ctx, "提醒已发送", gin.H{"sent": sent})
}
