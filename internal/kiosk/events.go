package kiosk

import (
	"time"

	"github.com/wfunc/cash-kiosk/internal/models"
)

// Event 运行时对外发布的现金事件，供操作端订阅与事件流水查询
type Event struct {
	Type      models.CashEventType   `json:"type"`
	Device    models.CashEventDevice `json:"device"`
	SaleID    string                 `json:"sale_id,omitempty"`
	Product   string                 `json:"product,omitempty"`
	Amount    int64                  `json:"amount,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	ErrorText string                 `json:"error_text,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
