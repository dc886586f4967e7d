package repository

import (
	"fmt"
	"time"

	"github.com/wfunc/cash-kiosk/internal/models"
	"gorm.io/gorm"
)

// CashEventRepository 现金事件仓库
type CashEventRepository struct {
	db *gorm.DB
}

// NewCashEventRepository 创建现金事件仓库
func NewCashEventRepository(db *gorm.DB) *CashEventRepository {
	return &CashEventRepository{
		db: db,
	}
}

// Create 创建事件记录
func (r *CashEventRepository) Create(event *models.CashEvent) error {
	return r.db.Create(event).Error
}

// CreateBatch 批量创建事件记录
func (r *CashEventRepository) CreateBatch(events []*models.CashEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.CreateInBatches(events, 100).Error
}

// GetByID 根据ID获取事件
func (r *CashEventRepository) GetByID(id uint) (*models.CashEvent, error) {
	var event models.CashEvent
	err := r.db.First(&event, id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetBySaleID 根据售货ID获取整单事件流水
func (r *CashEventRepository) GetBySaleID(saleID string) ([]*models.CashEvent, error) {
	var events []*models.CashEvent
	err := r.db.Where("sale_id = ?", saleID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// Query 查询事件
func (r *CashEventRepository) Query(query *models.CashEventQuery) ([]*models.CashEvent, int64, error) {
	db := r.db.Model(&models.CashEvent{})

	// 构建查询条件
	if query.SaleID != "" {
		db = db.Where("sale_id = ?", query.SaleID)
	}
	if query.EventType != "" {
		db = db.Where("event_type = ?", query.EventType)
	}
	if query.Device != "" {
		db = db.Where("device = ?", query.Device)
	}
	if query.Product != "" {
		db = db.Where("product = ?", query.Product)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil && *query.HasError {
		db = db.Where("error_text IS NOT NULL AND error_text != ''")
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 排序
	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	// 分页
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	// 查询数据
	var events []*models.CashEvent
	if err := db.Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// GetStats 获取统计信息
func (r *CashEventRepository) GetStats(startTime, endTime *time.Time) (*models.CashEventStats, error) {
	stats := &models.CashEventStats{}
	db := r.db.Model(&models.CashEvent{})

	// 时间范围过滤
	if startTime != nil {
		db = db.Where("created_at >= ?", *startTime)
	}
	if endTime != nil {
		db = db.Where("created_at <= ?", *endTime)
	}

	// 总数统计
	if err := db.Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 金额统计
	type amountSum struct {
		Total int64
	}
	sumAmount := func(eventType models.CashEventType) (int64, error) {
		var s amountSum
		err := r.db.Model(&models.CashEvent{}).
			Select("COALESCE(SUM(amount), 0) as total").
			Where("event_type = ?", eventType).
			Scan(&s).Error
		return s.Total, err
	}

	var err error
	if stats.TotalCoinIn, err = sumAmount(models.CashEventCoinIn); err != nil {
		return nil, err
	}
	if stats.TotalBillIn, err = sumAmount(models.CashEventBillIn); err != nil {
		return nil, err
	}
	if stats.TotalDispensed, err = sumAmount(models.CashEventAmountDispensed); err != nil {
		return nil, err
	}

	// 售货次数
	if err := r.db.Model(&models.CashEvent{}).
		Where("event_type = ?", models.CashEventSaleStart).
		Count(&stats.TotalSales).Error; err != nil {
		return nil, err
	}

	// 故障次数
	if err := r.db.Model(&models.CashEvent{}).
		Where("event_type = ?", models.CashEventDeviceError).
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// GetLatest 获取最新的事件记录
func (r *CashEventRepository) GetLatest(limit int, device models.CashEventDevice) ([]*models.CashEvent, error) {
	var events []*models.CashEvent
	db := r.db.Order("created_at DESC").Limit(limit)
	if device != "" {
		db = db.Where("device = ?", device)
	}
	err := db.Find(&events).Error
	return events, err
}

// GetErrorEvents 获取故障事件
func (r *CashEventRepository) GetErrorEvents(limit int) ([]*models.CashEvent, error) {
	var events []*models.CashEvent
	err := r.db.Where("event_type = ?", models.CashEventDeviceError).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// DeleteOldEvents 删除旧事件
func (r *CashEventRepository) DeleteOldEvents(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.CashEvent{})
	return result.RowsAffected, result.Error
}

// CleanupEvents 清理事件（保留最近N天的数据）
func (r *CashEventRepository) CleanupEvents(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldEvents(beforeTime)
}
