package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Kiosk    KioskConfig    `mapstructure:"kiosk"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 操作端API服务配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SerialConfig 串口设备配置
type SerialConfig struct {
	MockMode  bool               `mapstructure:"mock_mode"` // 调试模式（使用模拟设备）
	Changer   DeviceSerialConfig `mapstructure:"changer"`
	Validator DeviceSerialConfig `mapstructure:"validator"`
	PLC       DeviceSerialConfig `mapstructure:"plc"`
}

// DeviceSerialConfig 单台串口设备配置
type DeviceSerialConfig struct {
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// KioskConfig 售货亭业务配置。
// 金额一律用最小货币单位的整数表示。
type KioskConfig struct {
	// Products 商品 → 价格表
	Products map[string]int64 `mapstructure:"products"`
	// CoinValues 硬币面额表，下标为设备上报的硬币代码
	CoinValues []int64 `mapstructure:"coin_values"`
	// BillValues 纸币面额表，下标为设备上报的纸币代码
	BillValues []int64 `mapstructure:"bill_values"`
	// AcceptTimeout 收款窗口时长
	AcceptTimeout time.Duration `mapstructure:"accept_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("CASH_KIOSK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}

		err = Validate(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 操作端API默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/cash-kiosk.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 串口设备默认配置
	v.SetDefault("serial.mock_mode", true)
	v.SetDefault("serial.changer.port", "/dev/ttyS0")
	v.SetDefault("serial.changer.baud_rate", 9600)
	v.SetDefault("serial.changer.read_timeout", "100ms")
	v.SetDefault("serial.changer.write_timeout", "100ms")
	v.SetDefault("serial.changer.poll_interval", "200ms")
	v.SetDefault("serial.validator.port", "/dev/ttyS1")
	v.SetDefault("serial.validator.baud_rate", 9600)
	v.SetDefault("serial.validator.read_timeout", "100ms")
	v.SetDefault("serial.validator.write_timeout", "100ms")
	v.SetDefault("serial.validator.poll_interval", "200ms")
	v.SetDefault("serial.plc.port", "/dev/ttyS2")
	v.SetDefault("serial.plc.baud_rate", 9600)
	v.SetDefault("serial.plc.read_timeout", "100ms")
	v.SetDefault("serial.plc.write_timeout", "100ms")
	v.SetDefault("serial.plc.poll_interval", "500ms")

	// 售货亭业务默认配置
	v.SetDefault("kiosk.accept_timeout", "10s")
	// 默认面额表：1/2/5/10 硬币，50/100/500/1000 纸币
	v.SetDefault("kiosk.coin_values", []int64{1, 2, 5, 10})
	v.SetDefault("kiosk.bill_values", []int64{50, 100, 500, 1000})

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "cash-kiosk.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验业务配置：价格与面额必须为非负整数金额
func Validate(c *Config) error {
	for product, price := range c.Kiosk.Products {
		if price < 0 {
			return fmt.Errorf("商品 %s 价格无效: %d", product, price)
		}
	}
	for i, value := range c.Kiosk.CoinValues {
		if value <= 0 {
			return fmt.Errorf("硬币面额表第 %d 项无效: %d", i, value)
		}
	}
	for i, value := range c.Kiosk.BillValues {
		if value <= 0 {
			return fmt.Errorf("纸币面额表第 %d 项无效: %d", i, value)
		}
	}
	if c.Kiosk.AcceptTimeout <= 0 {
		return fmt.Errorf("收款窗口时长无效: %s", c.Kiosk.AcceptTimeout)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := Validate(newCfg); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
