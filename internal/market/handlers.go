package market

import (
	"net/http"
	"strconv"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
	"github.com/jackiewangjingchun-cpu/wattcoin/util"
)

// MarketHandler exposes the marketplace over HTTP. Producer-side
// operations (create/cancel/wait) require the admin bearer token; node
// and read operations are public.
type MarketHandler struct {
	market     *Marketplace
	feed       *JobFeed
	adminToken string
	upgrader   websocket.Upgrader
}

func NewMarketHandler(m *Marketplace, feed *JobFeed, adminToken string) *MarketHandler {
	return &MarketHandler{
		market:     m,
		feed:       feed,
		adminToken: adminToken,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *MarketHandler) RegisterNode(c *gin.Context) {
	var req models.RegisterNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}

	node, err := h.market.RegisterNode(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(node))
}

func (h *MarketHandler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}

	node, err := h.market.Heartbeat(req.NodeId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"node_id": node.NodeId,
		"status":  node.Status,
	}))
}

func (h *MarketHandler) ListNodes(c *gin.Context) {
	nodes, err := h.market.ListNodes()
	if err != nil {
		respondError(c, err)
		return
	}

	live := 0
	for _, n := range nodes {
		if n.Live {
			live++
		}
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"count": len(nodes),
		"live":  live,
		"nodes": nodes,
	}))
}

func (h *MarketHandler) GetNode(c *gin.Context) {
	node, err := h.market.GetNode(c.Param("node_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(node))
}

func (h *MarketHandler) SuspendNode(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	node, err := h.market.SuspendNode(c.Param("node_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"node_id": node.NodeId,
		"status":  node.Status,
	}))
}

func (h *MarketHandler) ReinstateNode(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	node, err := h.market.ReinstateNode(c.Param("node_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"node_id": node.NodeId,
		"status":  node.Status,
	}))
}

func (h *MarketHandler) PollJobs(c *gin.Context) {
	jobs, err := h.market.ListAvailable(c.Query("node_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{"jobs": jobs}))
}

// JobFeed upgrades to a websocket and pushes matching jobs until the
// node disconnects.
func (h *MarketHandler) JobFeed(c *gin.Context) {
	nodeId := c.Query("node_id")
	node, err := h.market.GetNode(nodeId)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.GetLogger().Errorf("Failed upgrade job feed, node: %s, error: %v", nodeId, err)
		return
	}

	h.feed.Subscribe(conn, node.Capabilities)
	go func() {
		defer func() {
			h.feed.Unsubscribe(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *MarketHandler) ClaimJob(c *gin.Context) {
	var req models.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}

	job, err := h.market.ClaimJob(c.Param("job_id"), req.NodeId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"job_id":  job.JobId,
		"payload": job.Payload,
		"reward":  job.NodeReward,
	}))
}

func (h *MarketHandler) CompleteJob(c *gin.Context) {
	var req models.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}

	job, receipt, err := h.market.CompleteJob(c.Request.Context(), c.Param("job_id"), req.NodeId, req.Result)
	if err != nil {
		respondError(c, err)
		return
	}

	data := gin.H{
		"job_id": job.JobId,
		"status": job.Status,
		"reward": job.NodeReward,
	}
	if receipt != nil {
		data["settlement"] = receipt
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(data))
}

func (h *MarketHandler) CreateJob(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}

	result, err := h.market.CreateJob(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(result))
}

func (h *MarketHandler) ListJobs(c *gin.Context) {
	jobs, err := h.market.ListJobs(c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"count": len(jobs),
		"jobs":  jobs,
	}))
}

func (h *MarketHandler) GetJob(c *gin.Context) {
	job, err := h.market.GetJob(c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(job))
}

func (h *MarketHandler) CancelJob(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	job, err := h.market.CancelJob(c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"job_id": job.JobId,
		"status": job.Status,
	}))
}

// WaitJob blocks until the job completes or the timeout elapses, then
// cancels on timeout so the producer can fall back.
func (h *MarketHandler) WaitJob(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	var timeout time.Duration
	if raw := c.Query("timeout_sec"); raw != "" {
		sec, err := strconv.Atoi(raw)
		if err != nil || sec <= 0 {
			c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.ValidationCode, "invalid timeout_sec"))
			return
		}
		timeout = time.Duration(sec) * time.Second
	}

	job, err := h.market.WaitForResult(c.Request.Context(), c.Param("job_id"), timeout)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(gin.H{
		"job_id": job.JobId,
		"result": job.Result,
		"node":   job.ClaimantNodeId,
	}))
}

func (h *MarketHandler) GetSettlement(c *gin.Context) {
	receipt, err := h.market.GetSettlement(c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(receipt))
}

func (h *MarketHandler) RetrySettlement(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	receipt, err := h.market.RetrySettlement(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(receipt))
}

func (h *MarketHandler) authorized(c *gin.Context) bool {
	if h.adminToken == "" || c.GetHeader("Authorization") != "Bearer "+h.adminToken {
		c.JSON(http.StatusUnauthorized, util.CreateErrorResponse(util.UnauthorizedCode))
		return false
	}
	return true
}

func respondError(c *gin.Context, err error) {
	var me *models.MarketError
	if !asMarketError(err, &me) {
		logs.GetLogger().Errorf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, util.CreateErrorResponse(util.InternalCode))
		return
	}
	c.JSON(httpStatusOf(me.Class), util.CreateReasonedResponse(codeOf(me.Class), me.Reason, me.Error()))
}

func httpStatusOf(class models.ErrorClass) int {
	switch class {
	case models.ErrClassValidation, models.ErrClassStake:
		return http.StatusBadRequest
	case models.ErrClassNotFound:
		return http.StatusNotFound
	case models.ErrClassConflict:
		return http.StatusConflict
	case models.ErrClassSettlement:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(class models.ErrorClass) int {
	switch class {
	case models.ErrClassValidation:
		return util.ValidationCode
	case models.ErrClassNotFound:
		return util.NotFoundCode
	case models.ErrClassConflict:
		return util.ConflictCode
	case models.ErrClassStake:
		return util.StakeInvalidCode
	case models.ErrClassSettlement:
		return util.SettlementCode
	default:
		return util.InternalCode
	}
}
