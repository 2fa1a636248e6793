package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/utils"
)

// ConfigController serves the read-only quota and unlock policy so clients can explain limits.
type ConfigController struct {
	cfg config.AppConfig
}

func NewConfigController(cfg config.AppConfig) *ConfigController { return &ConfigController{cfg: cfg} }

// GetQuota returns per-tier refill rules, length limits, unlock thresholds and eligibility.
func (c *ConfigController) GetQuota(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"tiers":      c.cfg.Quota.Tiers,
		"max_length": c.cfg.Quota.MaxLength,
		"unlock": gin.H{
			"required_total": c.cfg.Unlock.RequiredTotal,
			"required_b":     c.cfg.Unlock.RequiredB,
			"eligibility":    c.cfg.Unlock.Eligibility,
		},
		"streak_bonus": c.cfg.Streak.BonusAmount,
	})
}
