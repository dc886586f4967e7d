package models

import (
	"time"

	"gorm.io/gorm"
)

// CashEventType 现金事件类型
type CashEventType string

const (
	CashEventCoinIn          CashEventType = "COIN_IN"             // 硬币入账
	CashEventBillIn          CashEventType = "BILL_IN"             // 纸币入账
	CashEventBillRejected    CashEventType = "BILL_REJECTED"       // 纸币退回
	CashEventCoinReturned    CashEventType = "COIN_RETURNED"       // 非收款期硬币退还
	CashEventAmountAccepted  CashEventType = "AMOUNT_ACCEPTED"     // 收款达标
	CashEventAmountUnpaid    CashEventType = "AMOUNT_NOT_ACCEPTED" // 收款超时退款
	CashEventDispenseStart   CashEventType = "DISPENSE_START"      // 开始找零
	CashEventAmountDispensed CashEventType = "AMOUNT_DISPENSED"    // 找零完成
	CashEventSaleStart       CashEventType = "SALE_START"          // 开始售货
	CashEventSaleReset       CashEventType = "SALE_RESET"          // 售货中止
	CashEventPrepared        CashEventType = "PREPARED"            // 出货成功
	CashEventNotPrepared     CashEventType = "NOT_PREPARED"        // 出货失败
	CashEventDeviceError     CashEventType = "DEVICE_ERROR"        // 设备故障
	CashEventDeviceReady     CashEventType = "DEVICE_READY"        // 现金模块就绪
	CashEventRestart         CashEventType = "RESTART"             // 操作员重启
)

// CashEventDevice 事件来源设备
type CashEventDevice string

const (
	DeviceChanger   CashEventDevice = "CHANGER"   // 硬币找零器
	DeviceValidator CashEventDevice = "VALIDATOR" // 纸币识别器
	DeviceCash      CashEventDevice = "CASH"      // 现金聚合层
	DeviceKiosk     CashEventDevice = "KIOSK"     // 售货控制层
)

// CashEvent 现金事件流水。
// 仅用于诊断与对账排查，不承担交易账本职责。
type CashEvent struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 基础信息
	SaleID    string          `gorm:"type:varchar(36);index" json:"sale_id,omitempty"` // 本次售货的UUID
	EventType CashEventType   `gorm:"type:varchar(30);index;not null" json:"event_type"`
	Device    CashEventDevice `gorm:"type:varchar(15);index;not null" json:"device"`

	// 金额信息（最小货币单位）
	Amount int64 `gorm:"default:0" json:"amount,omitempty"` // 事件涉及的金额

	// 商品信息
	Product string `gorm:"type:varchar(100);index" json:"product,omitempty"`

	// 故障信息
	ErrorCode string `gorm:"type:varchar(50)" json:"error_code,omitempty"`
	ErrorText string `gorm:"type:varchar(255)" json:"error_text,omitempty"`

	// 时间信息
	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix时间戳（毫秒）
}

// TableName 指定表名
func (CashEvent) TableName() string {
	return "cash_events"
}

// BeforeCreate 创建前的钩子
func (e *CashEvent) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// CashEventQuery 查询参数
type CashEventQuery struct {
	SaleID    string          `json:"sale_id,omitempty"`
	EventType CashEventType   `json:"event_type,omitempty"`
	Device    CashEventDevice `json:"device,omitempty"`
	Product   string          `json:"product,omitempty"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	HasError  *bool           `json:"has_error,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
	OrderBy   string          `json:"order_by,omitempty"`
}

// CashEventStats 统计信息
type CashEventStats struct {
	TotalCount     int64 `json:"total_count"`
	TotalCoinIn    int64 `json:"total_coin_in"`   // 硬币入账总额
	TotalBillIn    int64 `json:"total_bill_in"`   // 纸币入账总额
	TotalDispensed int64 `json:"total_dispensed"` // 找零总额
	TotalSales     int64 `json:"total_sales"`     // 售货次数
	TotalErrors    int64 `json:"total_errors"`    // 故障次数
}
