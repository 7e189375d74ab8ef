package routers

import (
	"github.com/gin-gonic/gin"

	"github.com/jackiewangjingchun-cpu/wattcoin/internal/market"
)

func MarketManager(router *gin.RouterGroup, h *market.MarketHandler) {

	router.POST("/nodes/register", h.RegisterNode)
	router.POST("/nodes/heartbeat", h.Heartbeat)
	router.GET("/nodes", h.ListNodes)
	router.GET("/nodes/jobs", h.PollJobs)
	router.GET("/nodes/jobs/ws", h.JobFeed)
	router.POST("/nodes/jobs/:job_id/claim", h.ClaimJob)
	router.POST("/nodes/jobs/:job_id/complete", h.CompleteJob)
	router.GET("/nodes/:node_id", h.GetNode)
	router.POST("/nodes/:node_id/suspend", h.SuspendNode)
	router.POST("/nodes/:node_id/reinstate", h.ReinstateNode)
	router.POST("/jobs", h.CreateJob)
	router.GET("/jobs", h.ListJobs)
	router.GET("/jobs/:job_id", h.GetJob)
	router.GET("/jobs/:job_id/wait", h.WaitJob)
	router.POST("/jobs/:job_id/cancel", h.CancelJob)
	router.GET("/settlements/:job_id", h.GetSettlement)
	router.POST("/settlements/:job_id/retry", h.RetrySettlement)
}
