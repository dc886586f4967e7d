package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/cash-kiosk/internal/models"
	"gorm.io/gorm"
)

// CashEventRepositoryTestSuite 现金事件仓储测试套件
type CashEventRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo *CashEventRepository
}

// SetupSuite 设置测试套件
func (suite *CashEventRepositoryTestSuite) SetupSuite() {
	suite.db = SetupTestDB()
	suite.repo = NewCashEventRepository(suite.db)
}

// TearDownSuite 清理测试套件
func (suite *CashEventRepositoryTestSuite) TearDownSuite() {
	CleanupTestDB(suite.db)
}

// SetupTest 每个测试前执行
func (suite *CashEventRepositoryTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM cash_events")
}

// TestCreate 测试创建事件
func (suite *CashEventRepositoryTestSuite) TestCreate() {
	event := &models.CashEvent{
		SaleID:    "7f9c4b2a-0000-0000-0000-000000000001",
		EventType: models.CashEventCoinIn,
		Device:    models.DeviceChanger,
		Amount:    5,
	}

	err := suite.repo.Create(event)
	assert.NoError(suite.T(), err)
	assert.NotZero(suite.T(), event.ID)
	assert.NotZero(suite.T(), event.Timestamp)
}

// TestGetBySaleID 测试按售货ID查询整单流水
func (suite *CashEventRepositoryTestSuite) TestGetBySaleID() {
	saleID := "7f9c4b2a-0000-0000-0000-000000000002"
	events := []*models.CashEvent{
		{SaleID: saleID, EventType: models.CashEventSaleStart, Device: models.DeviceKiosk, Product: "coffee"},
		{SaleID: saleID, EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 5},
		{SaleID: saleID, EventType: models.CashEventBillIn, Device: models.DeviceValidator, Amount: 100},
		{SaleID: "other", EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 1},
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(events))

	got, err := suite.repo.GetBySaleID(saleID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), got, 3)
	assert.Equal(suite.T(), models.CashEventSaleStart, got[0].EventType)
}

// TestQuery 测试条件查询
func (suite *CashEventRepositoryTestSuite) TestQuery() {
	events := []*models.CashEvent{
		{EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 5},
		{EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 10},
		{EventType: models.CashEventDeviceError, Device: models.DeviceValidator, ErrorCode: "jam", ErrorText: "卡币"},
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(events))

	got, total, err := suite.repo.Query(&models.CashEventQuery{
		EventType: models.CashEventCoinIn,
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), total)
	assert.Len(suite.T(), got, 2)

	hasError := true
	got, total, err = suite.repo.Query(&models.CashEventQuery{HasError: &hasError})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), "jam", got[0].ErrorCode)
}

// TestQueryPagination 测试分页
func (suite *CashEventRepositoryTestSuite) TestQueryPagination() {
	for i := 0; i < 5; i++ {
		err := suite.repo.Create(&models.CashEvent{
			EventType: models.CashEventCoinIn,
			Device:    models.DeviceChanger,
			Amount:    int64(i + 1),
		})
		assert.NoError(suite.T(), err)
	}

	got, total, err := suite.repo.Query(&models.CashEventQuery{Limit: 2, Offset: 2, OrderBy: "id ASC"})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(5), total)
	assert.Len(suite.T(), got, 2)
	assert.Equal(suite.T(), int64(3), got[0].Amount)
}

// TestGetStats 测试统计
func (suite *CashEventRepositoryTestSuite) TestGetStats() {
	events := []*models.CashEvent{
		{EventType: models.CashEventSaleStart, Device: models.DeviceKiosk, Product: "coffee"},
		{EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 5},
		{EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 10},
		{EventType: models.CashEventBillIn, Device: models.DeviceValidator, Amount: 100},
		{EventType: models.CashEventAmountDispensed, Device: models.DeviceCash, Amount: 15},
		{EventType: models.CashEventDeviceError, Device: models.DeviceChanger, ErrorCode: "jam"},
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(events))

	stats, err := suite.repo.GetStats(nil, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(6), stats.TotalCount)
	assert.Equal(suite.T(), int64(15), stats.TotalCoinIn)
	assert.Equal(suite.T(), int64(100), stats.TotalBillIn)
	assert.Equal(suite.T(), int64(15), stats.TotalDispensed)
	assert.Equal(suite.T(), int64(1), stats.TotalSales)
	assert.Equal(suite.T(), int64(1), stats.TotalErrors)
}

// TestGetLatest 测试最新事件
func (suite *CashEventRepositoryTestSuite) TestGetLatest() {
	events := []*models.CashEvent{
		{EventType: models.CashEventCoinIn, Device: models.DeviceChanger, Amount: 1},
		{EventType: models.CashEventBillIn, Device: models.DeviceValidator, Amount: 50},
	}
	assert.NoError(suite.T(), suite.repo.CreateBatch(events))

	got, err := suite.repo.GetLatest(10, models.DeviceValidator)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), got, 1)
	assert.Equal(suite.T(), models.CashEventBillIn, got[0].EventType)
}

// TestCleanupEvents 测试清理旧事件
func (suite *CashEventRepositoryTestSuite) TestCleanupEvents() {
	old := &models.CashEvent{
		EventType: models.CashEventCoinIn,
		Device:    models.DeviceChanger,
		Amount:    1,
		CreatedAt: time.Now().AddDate(0, 0, -60),
	}
	recent := &models.CashEvent{
		EventType: models.CashEventCoinIn,
		Device:    models.DeviceChanger,
		Amount:    2,
	}
	assert.NoError(suite.T(), suite.repo.Create(old))
	assert.NoError(suite.T(), suite.repo.Create(recent))

	deleted, err := suite.repo.CleanupEvents(30)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), deleted)

	_, total, err := suite.repo.Query(&models.CashEventQuery{})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)

	_, err = suite.repo.CleanupEvents(0)
	assert.Error(suite.T(), err)
}

// TestCashEventRepositoryTestSuite 运行测试套件
func TestCashEventRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(CashEventRepositoryTestSuite))
}
