package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrUnknownProduct, "espresso_xxl")
	suite.NotNil(err)
	suite.Equal(ErrUnknownProduct, err.Code)
	suite.Equal("未知商品", err.Message)
	suite.Equal("espresso_xxl", err.Details)

	// 测试多个详情
	err = New(ErrSerialPortOpen, "打开失败", "端口: /dev/ttyS0", "波特率: 9600")
	suite.Equal("打开失败; 端口: /dev/ttyS0; 波特率: 9600", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrDispenseShortfall, "请求 %d 实际 %d", 10, 4)
	suite.NotNil(err)
	suite.Equal(ErrDispenseShortfall, err.Code)
	suite.Equal("请求 10 实际 4", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrDatabaseQuery)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrDatabaseQuery, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError
	appErr := New(ErrNotFound, "资源不存在")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrNotFound, wrappedAppErr.Code) // 保留原始错误码
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrSerialTimeout, "设备 %s 无响应", "changer")
	suite.NotNil(wrappedErr)
	suite.Equal(ErrSerialTimeout, wrappedErr.Code)
	suite.Equal("设备 changer 无响应", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrKioskNotReady)
	suite.True(Is(err, ErrKioskNotReady))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrKioskNotReady))

	stdErr := errors.New("普通错误")
	suite.False(Is(stdErr, ErrKioskNotReady))
}

// 测试错误码提取
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrUnknown, GetCode(errors.New("普通错误")))
	suite.Equal(ErrTubeEmpty, GetCode(New(ErrTubeEmpty)))
}

// 测试Error字符串
func (suite *ErrorsTestSuite) TestErrorString() {
	err := New(ErrDeviceOffline)
	suite.Equal("[3004] 设备离线", err.Error())

	err = New(ErrDeviceOffline, "changer")
	suite.Equal("[3004] 设备离线: changer", err.Error())
}

// 测试Unwrap
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("底层错误")
	wrappedErr := Wrap(originalErr, ErrSerialPortRead)
	suite.Equal(originalErr, errors.Unwrap(wrappedErr))
	suite.True(errors.Is(wrappedErr, originalErr))
}

// 测试可重试与严重错误判断
func (suite *ErrorsTestSuite) TestRetryableAndCritical() {
	suite.True(IsRetryable(New(ErrSerialTimeout)))
	suite.True(IsRetryable(New(ErrDeviceOffline)))
	suite.False(IsRetryable(New(ErrUnknownProduct)))
	suite.False(IsRetryable(nil))

	suite.True(IsCritical(New(ErrDispenseShortfall)))
	suite.True(IsCritical(New(ErrSerialPortOpen)))
	suite.False(IsCritical(New(ErrDeviceBusy)))
	suite.False(IsCritical(nil))
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	suite.Equal(400, New(ErrUnknownProduct).HTTPStatus())
	suite.Equal(404, New(ErrNotFound).HTTPStatus())
	suite.Equal(409, New(ErrKioskNotReady).HTTPStatus())
	suite.Equal(503, New(ErrDatabaseQuery).HTTPStatus())
	suite.Equal(500, New(ErrUnknown).HTTPStatus())
}

// TestErrorsTestSuite 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
