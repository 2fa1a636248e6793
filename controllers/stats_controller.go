package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/utils"
)

const statsCacheKey = "stats:global"

// Stats is the public aggregate view.
type Stats struct {
	UserCount        int64  `json:"user_count"`
	SubmissionCount  int64  `json:"submission_count"`
	FeedbackCount    int64  `json:"feedback_count"`
	UnlockedCount    int64  `json:"unlocked_count"`
	TodaySubmissions int64  `json:"today_submissions"`
	CompletedStreaks int64  `json:"completed_streaks"`
	Day              string `json:"day"`
}

// StatsController provides read-only aggregate counts.
type StatsController struct {
	db    *gorm.DB
	clock *clock.Resolver
	ttl   time.Duration
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, clk *clock.Resolver) *StatsController {
	if clk == nil {
		clk = clock.NewResolver(nil)
	}
	return &StatsController{db: db, clock: clk, ttl: time.Minute}
}

// GetStats returns aggregate statistics, served from Redis for up to a minute.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var cached Stats
	if utils.CacheGetJSON(statsCacheKey, &cached) {
		utils.Success(ctx, cached)
		return
	}
	st := s.compute(ctx)
	utils.CacheSetJSON(statsCacheKey, st, s.ttl)
	utils.Success(ctx, st)
}

func (s *StatsController) compute(ctx *gin.Context) Stats {
	db := s.db.WithContext(ctx.Request.Context())
	// UTC day: the public view has no caller offset.
	st := Stats{Day: s.clock.Today(0).Bucket}

	// Fallback to 0 instead of failing the whole endpoint
	if err := db.Model(&models.User{}).Count(&st.UserCount).Error; err != nil {
		st.UserCount = 0
	}
	if err := db.Model(&models.Submission{}).Count(&st.SubmissionCount).Error; err != nil {
		st.SubmissionCount = 0
	}
	if err := db.Model(&models.Feedback{}).Count(&st.FeedbackCount).Error; err != nil {
		st.FeedbackCount = 0
	}
	if err := db.Model(&models.Submission{}).Where("feedback_unlocked = ?", true).Count(&st.UnlockedCount).Error; err != nil {
		st.UnlockedCount = 0
	}
	if err := db.Model(&models.Submission{}).Where("local_day_bucket = ?", st.Day).Count(&st.TodaySubmissions).Error; err != nil {
		st.TodaySubmissions = 0
	}
	if err := db.Model(&models.StreakRecord{}).Where("celebration_shown = ?", true).Count(&st.CompletedStreaks).Error; err != nil {
		st.CompletedStreaks = 0
	}
	return st
}
