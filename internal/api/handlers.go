package api

import (
	"net/http"

	"bot-fleet-engine/internal/fleet"

	"github.com/gin-gonic/gin"
)

// botSummary is the list view of a bot without its trade history
type botSummary struct {
	fleet.Bot
	Trades     []fleet.BotTrade `json:"trades,omitempty"`
	OpenTrades int              `json:"open_trades"`
}

func summarize(b fleet.Bot) botSummary {
	open := 0
	for _, t := range b.Trades {
		if t.Pending {
			open++
		}
	}
	return botSummary{Bot: b, OpenTrades: open}
}

// handleListBots returns every bot in deployment order
// GET /api/bots
func (s *Server) handleListBots(c *gin.Context) {
	bots := s.fleet.Bots()
	out := make([]botSummary, 0, len(bots))
	for _, b := range bots {
		out = append(out, summarize(b))
	}
	successResponse(c, out)
}

// handleGetBot returns one bot with its trade history
// GET /api/bots/:id
func (s *Server) handleGetBot(c *gin.Context) {
	bot, err := s.fleet.Bot(c.Param("id"))
	if err != nil {
		fleetError(c, err)
		return
	}
	successResponse(c, bot)
}

// handleDeployBot deploys a new bot
// POST /api/bots
func (s *Server) handleDeployBot(c *gin.Context) {
	var req fleet.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bot, err := s.fleet.Deploy(c.Request.Context(), req)
	if err != nil {
		fleetError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    bot,
	})
}

// handleRemoveBot removes a bot
// DELETE /api/bots/:id
func (s *Server) handleRemoveBot(c *gin.Context) {
	if err := s.fleet.Remove(c.Request.Context(), c.Param("id")); err != nil {
		fleetError(c, err)
		return
	}
	successResponse(c, gin.H{"removed": c.Param("id")})
}

// POST /api/bots/:id/pause
func (s *Server) handlePauseBot(c *gin.Context) {
	bot, err := s.fleet.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		fleetError(c, err)
		return
	}
	successResponse(c, summarize(bot))
}

// POST /api/bots/:id/resume
func (s *Server) handleResumeBot(c *gin.Context) {
	bot, err := s.fleet.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		fleetError(c, err)
		return
	}
	successResponse(c, summarize(bot))
}

type markErrorRequest struct {
	Reason string `json:"reason"`
}

// POST /api/bots/:id/error
func (s *Server) handleMarkError(c *gin.Context) {
	var req markErrorRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "marked by operator"
	}

	bot, err := s.fleet.MarkError(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		fleetError(c, err)
		return
	}
	successResponse(c, summarize(bot))
}

type settleRequest struct {
	ProfitLoss *float64 `json:"profit_loss" binding:"required"`
}

// handleSettleTrade back-fills a pending trade's P&L
// POST /api/bots/:id/trades/:tradeId/settle
func (s *Server) handleSettleTrade(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "profit_loss is required")
		return
	}

	trade, err := s.fleet.SettleTrade(c.Request.Context(), c.Param("id"), c.Param("tradeId"), *req.ProfitLoss)
	if err != nil {
		fleetError(c, err)
		return
	}
	successResponse(c, trade)
}

// POST /api/fleet/pause
func (s *Server) handlePauseAll(c *gin.Context) {
	s.fleet.PauseAll(c.Request.Context())
	successResponse(c, gin.H{"system_status": s.fleet.SystemStatus()})
}

// POST /api/fleet/resume
func (s *Server) handleResumeAll(c *gin.Context) {
	s.fleet.ResumeAll(c.Request.Context())
	successResponse(c, gin.H{"system_status": s.fleet.SystemStatus()})
}

// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	successResponse(c, s.fleet.Statistics())
}

// handleStatus returns the system status with the fleet statistics
// GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	data := gin.H{
		"system_status": s.fleet.SystemStatus(),
		"statistics":    s.fleet.Statistics(),
	}
	if s.scheduler != nil {
		data["scheduler_running"] = s.scheduler.IsRunning()
	}
	if report, ok := s.fleet.LatestAnalysis(); ok {
		data["engine_health"] = report.EngineHealth
		data["analysis_quality"] = report.AnalysisQuality
		data["last_analysis"] = report.Timestamp
	}
	successResponse(c, data)
}

// GET /api/analysis
func (s *Server) handleLatestAnalysis(c *gin.Context) {
	report, ok := s.fleet.LatestAnalysis()
	if !ok {
		errorResponse(c, http.StatusNotFound, "no analysis has completed yet")
		return
	}
	successResponse(c, report)
}

// handleRunAnalysis runs a deep analysis now
// POST /api/analysis/run
func (s *Server) handleRunAnalysis(c *gin.Context) {
	if err := s.fleet.DeepAnalysis(c.Request.Context()); err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	report, ok := s.fleet.LatestAnalysis()
	if !ok {
		errorResponse(c, http.StatusConflict, "no bots deployed")
		return
	}
	successResponse(c, report)
}

// POST /api/godmode
func (s *Server) handleActivateGodmode(c *gin.Context) {
	report, err := s.fleet.ActivateGodmode(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	successResponse(c, report)
}

// GET /api/scheduler
func (s *Server) handleSchedulerStats(c *gin.Context) {
	if s.scheduler == nil {
		successResponse(c, gin.H{"running": false, "jobs": []interface{}{}})
		return
	}
	successResponse(c, gin.H{
		"running": s.scheduler.IsRunning(),
		"jobs":    s.scheduler.Stats(),
	})
}
