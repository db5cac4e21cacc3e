package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

var (
	config  map[string]interface{}
	mu      sync.RWMutex
	ISDEBUG = true
)

// Global [global] 段
type Global struct {
	AppName        string `json:"app_name"`
	AppVersion     string `json:"app_version"`
	RedisKeyPrefix string `json:"redis_key_prefix"`
	Debug          bool   `json:"debug"`
	NodeID         int64  `json:"node_id"` // snowflake 节点号, 0-1023
}

// Init 读取 runConfig 环境变量指定的配置文件
func Init() {
	if err := Load(os.Getenv("runConfig")); err != nil {
		panic(err)
	}
}

// Load 读取 toml 配置文件
func Load(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	return LoadBytes(data)
}

// LoadBytes 解析 toml 内容并设置全局变量
func LoadBytes(data []byte) error {
	cfg := make(map[string]interface{})
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return err
	}
	globalInfo, ok := cfg["global"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("global configuration is missing in the config file")
	}
	appName, ok := globalInfo["app_name"].(string)
	if !ok {
		return fmt.Errorf("app name is missing in the global configuration")
	}
	appVersion, _ := globalInfo["app_version"].(string)
	redisKeyPrefix, _ := globalInfo["redis_key_prefix"].(string)
	if redisKeyPrefix == "" {
		redisKeyPrefix = appName
	}
	if debug, ok := globalInfo["debug"].(bool); ok {
		ISDEBUG = debug
	}

	mu.Lock()
	config = cfg
	mu.Unlock()

	// 设置配置的全局变量
	os.Setenv("APP_NAME", appName)
	os.Setenv("APP_VERSION", appVersion)
	os.Setenv("REDIS_KEY_PREFIX", redisKeyPrefix)
	return nil
}

// Get 返回某个配置段的 JSON 字节, 不存在时返回 nil
func Get(key string) []byte {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return nil
	}
	if value, exists := config[key]; exists {
		bytes, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return bytes
	}
	return nil
}

// GetOr 配置段不存在时返回默认值
func GetOr(key string, def []byte) []byte {
	if v := Get(key); v != nil {
		return v
	}
	return def
}
