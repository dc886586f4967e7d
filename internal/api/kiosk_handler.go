package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/cash-kiosk/internal/errors"
	"github.com/wfunc/cash-kiosk/internal/kiosk"
	"github.com/wfunc/cash-kiosk/internal/models"
	"go.uber.org/zap"
)

// KioskHandler 售货亭操作处理器
type KioskHandler struct {
	runtime *kiosk.Runtime
	log     *zap.Logger
}

// NewKioskHandler 创建处理器
func NewKioskHandler(runtime *kiosk.Runtime, log *zap.Logger) *KioskHandler {
	return &KioskHandler{
		runtime: runtime,
		log:     log,
	}
}

// SellRequest 售货请求
type SellRequest struct {
	Product string `json:"product" binding:"required"`
}

// GetStatus 获取售货亭状态
// GET /api/v1/status
func (h *KioskHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": h.runtime.Status(),
	})
}

// Sell 启动售货流程
// POST /api/v1/sell
func (h *KioskHandler) Sell(c *gin.Context) {
	var req SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "无效的请求参数",
			"message": err.Error(),
		})
		return
	}

	saleID, err := h.runtime.Sell(req.Product)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sale_id": saleID,
		"product": req.Product,
		"message": "售货已启动",
	})
}

// Restart 从故障状态重启设备
// POST /api/v1/restart
func (h *KioskHandler) Restart(c *gin.Context) {
	if err := h.runtime.Restart(); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "重启已启动",
	})
}

// QueryEvents 查询现金事件日志
// GET /api/v1/events
func (h *KioskHandler) QueryEvents(c *gin.Context) {
	query := &models.CashEventQuery{
		SaleID:    c.Query("sale_id"),
		EventType: models.CashEventType(c.Query("event_type")),
		Device:    models.CashEventDevice(c.Query("device")),
		Product:   c.Query("product"),
		OrderBy:   c.Query("order_by"),
	}

	// 解析分页参数
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			query.Limit = limit
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			query.Offset = offset
		}
	}

	// 解析时间范围（毫秒时间戳）
	if startStr := c.Query("start_time"); startStr != "" {
		if ms, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			t := time.UnixMilli(ms)
			query.StartTime = &t
		}
	}
	if endStr := c.Query("end_time"); endStr != "" {
		if ms, err := strconv.ParseInt(endStr, 10, 64); err == nil {
			t := time.UnixMilli(ms)
			query.EndTime = &t
		}
	}

	// 解析错误过滤
	if errStr := c.Query("has_error"); errStr != "" {
		if hasError, err := strconv.ParseBool(errStr); err == nil {
			query.HasError = &hasError
		}
	}

	events, total, err := h.runtime.QueryEvents(query)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   events,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// writeError 按错误码写入HTTP响应
func (h *KioskHandler) writeError(c *gin.Context, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		h.log.Warn("API request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", int(appErr.Code)),
			zap.String("message", appErr.Message))

		c.JSON(appErr.HTTPStatus(), gin.H{
			"code":    int(appErr.Code),
			"error":   appErr.Message,
			"message": appErr.Details,
		})
		return
	}

	h.log.Error("API request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "内部错误",
		"message": err.Error(),
	})
}
