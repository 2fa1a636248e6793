package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/dailyink/middleware"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/services"
	"github.com/cppla/dailyink/utils"
)

type errorMapping struct {
	err    error
	status int
	code   int
}

// errorTable maps service outcomes to HTTP status and envelope code. Order matters only for wrapped errors.
var errorTable = []errorMapping{
	{models.ErrQuotaExhausted, http.StatusTooManyRequests, 42910},
	{models.ErrDuplicateSubmission, http.StatusConflict, 40910},
	{models.ErrAlreadyGivenFeedback, http.StatusConflict, 40911},
	{models.ErrNotEligibleToday, http.StatusForbidden, 40310},
	{models.ErrOwnSubmission, http.StatusForbidden, 40311},
	{models.ErrFeedbackLocked, http.StatusForbidden, 40312},
	{models.ErrSubmissionNotFound, http.StatusNotFound, 40410},
	{models.ErrUserNotFound, http.StatusNotFound, 40411},
	{models.ErrInvalidCategory, http.StatusBadRequest, 40020},
	{models.ErrEmptyText, http.StatusBadRequest, 40021},
	{models.ErrTextTooLong, http.StatusBadRequest, 40022},
	{models.ErrInvalidTier, http.StatusBadRequest, 40023},
	{models.ErrStorageUnavailable, http.StatusServiceUnavailable, 50310},
}

// respondError writes the envelope for err. Unknown errors are reported as a generic 500.
func respondError(ctx *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			utils.Error(ctx, m.status, m.code, m.err.Error())
			return
		}
	}
	_ = ctx.Error(err)
	utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
}

func getIdentity(ctx *gin.Context) (services.Identity, bool) {
	userID := ctx.GetString(middleware.ContextUserIDKey)
	if userID == "" {
		return services.Identity{}, false
	}
	return services.Identity{UserID: userID, Email: ctx.GetString(middleware.ContextEmailKey)}, true
}
