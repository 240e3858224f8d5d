package controllers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

// RankingController serves the streak leaderboards.
type RankingController struct {
	svc *services.RankingService
}

func NewRankingController(svc *services.RankingService) *RankingController {
	return &RankingController{svc: svc}
}

func (r *RankingController) board(ctx *gin.Context, load func(context.Context, uint) ([]services.RankEntry, error)) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	entries, err := load(ctx.Request.Context(), userID)
	if err != nil {
		serviceError(ctx, err)
		return
	}
	utils.Success(ctx, entries)
}

// Friends ranks the caller among accepted friends.
func (r *RankingController) Friends(ctx *gin.Context) { r.board(ctx, r.svc.Friends) }

// Region ranks users sharing the caller's region.
func (r *RankingController) Region(ctx *gin.Context) { r.board(ctx, r.svc.Region) }

// National returns the top streaks overall.
func (r *RankingController) National(ctx *gin.Context) { r.board(ctx, r.svc.National) }
