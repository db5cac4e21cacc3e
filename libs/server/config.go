package server

import "time"

type HttpServerConfig struct {
	Port       int    `json:"port" toml:"port"`               // HTTP服务器端口
	Address    string `json:"address" toml:"address"`         // HTTP服务器主机名
	Path       string `json:"path" toml:"path"`               // HTTP服务器路径
	Cors       bool   `json:"cors" toml:"cors"`               // 是否启用CORS
	RequestLog bool   `json:"request_log" toml:"request_log"` // 是否启用请求日志
	Access     bool   `json:"access" toml:"access"`           // 是否启用访问日志
	Metrics    bool   `json:"metrics" toml:"metrics"`         // 是否暴露 /metrics
}

type HttpWebSocketConfig struct {
	ReadBufferSize    int `json:"read_buffer_size" toml:"read_buffer_size"`   // WebSocket读取缓冲区大小
	WriteBufferSize   int `json:"write_buffer_size" toml:"write_buffer_size"` // WebSocket写入缓冲区大小
	TickerTime        int `json:"ticker_time" toml:"ticker_time"`             // WebSocket心跳间隔(秒)
	WriteDeadlineTime int `json:"deadline_time" toml:"deadline_time"`         // 写超时(秒)
	ReadLimit         int `json:"read_limit" toml:"read_limit"`               // 单条消息最大字节数
	HandshakeTimeout  int `json:"handshake_timeout" toml:"handshake_timeout"` // 握手超时(秒)
}

// WithDefaults 补全未配置的 websocket 参数
func (m HttpWebSocketConfig) WithDefaults() HttpWebSocketConfig {
	if m.ReadBufferSize <= 0 {
		m.ReadBufferSize = 1024
	}
	if m.WriteBufferSize <= 0 {
		m.WriteBufferSize = 1024
	}
	if m.TickerTime <= 0 {
		m.TickerTime = 54
	}
	if m.WriteDeadlineTime <= 0 {
		m.WriteDeadlineTime = 10
	}
	if m.ReadLimit <= 0 {
		// 聊天请求带完整历史, 比心跳包大得多
		m.ReadLimit = 4 << 20
	}
	if m.HandshakeTimeout <= 0 {
		m.HandshakeTimeout = 10
	}
	return m
}

func (m HttpWebSocketConfig) pingPeriod() time.Duration {
	return time.Duration(m.TickerTime) * time.Second
}

func (m HttpWebSocketConfig) writeWait() time.Duration {
	return time.Duration(m.WriteDeadlineTime) * time.Second
}

// pongWait 必须大于 pingPeriod
func (m HttpWebSocketConfig) pongWait() time.Duration {
	return m.pingPeriod() * 10 / 9
}
