package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/services"
	"github.com/cppla/dailyink/utils"
)

// WritingController exposes submissions, feedback and the caller's daily status.
type WritingController struct {
	svc *services.Writing
}

// NewWritingController creates a new WritingController instance.
func NewWritingController(svc *services.Writing) *WritingController {
	return &WritingController{svc: svc}
}

// Submit stores the caller's text for today and spends one token.
func (w *WritingController) Submit(ctx *gin.Context) {
	var req struct {
		Category  string `json:"category" binding:"required"`
		Text      string `json:"text" binding:"required"`
		UTCOffset *int   `json:"utc_offset"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}
	id, ok := getIdentity(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if req.UTCOffset == nil {
		missingOffset(ctx)
		return
	}
	cat, err := models.ParseCategory(req.Category)
	if err != nil {
		respondError(ctx, err)
		return
	}

	res, err := w.svc.Submit(ctx.Request.Context(), id, *req.UTCOffset, cat, req.Text)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, res)
}

// GiveFeedback records the caller's feedback on another user's submission.
func (w *WritingController) GiveFeedback(ctx *gin.Context) {
	var req struct {
		Body      string `json:"body" binding:"required"`
		UTCOffset *int   `json:"utc_offset"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}
	id, ok := getIdentity(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if req.UTCOffset == nil {
		missingOffset(ctx)
		return
	}

	res, err := w.svc.GiveFeedback(ctx.Request.Context(), id, *req.UTCOffset, ctx.Param("id"), req.Body)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, res)
}

// ReceivedFeedback returns the feedback on one of the caller's unlocked submissions.
func (w *WritingController) ReceivedFeedback(ctx *gin.Context) {
	id, ok := getIdentity(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	res, err := w.svc.ReceivedFeedback(ctx.Request.Context(), id, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// Status returns balance, today's submissions and streak for the caller's local day.
func (w *WritingController) Status(ctx *gin.Context) {
	id, ok := getIdentity(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	raw, ok := ctx.GetQuery("utc_offset")
	if !ok {
		missingOffset(ctx)
		return
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "utc_offset must be an integer number of minutes")
		return
	}

	st, err := w.svc.Status(ctx.Request.Context(), id, offset)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, st)
}

// The local day decides quota, eligibility and streaks, so the client's offset is never guessed.
func missingOffset(ctx *gin.Context) {
	utils.Error(ctx, http.StatusBadRequest, 40001, "utc_offset (minutes east of UTC) is required")
}
