package utils

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode"
	"unicode/utf8"
)

// Bytes2Struct converts a JSON byte slice to a struct.
func Bytes2Struct[T any](data []byte) (T, error) {
	var result T
	err := json.Unmarshal(data, &result)
	if err != nil {
		return result, err
	}
	return result, nil
}

// Struct2Bytes converts a struct to a JSON string.
func Struct2Bytes[T any](data T) (string, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// MakeShutdownCh 收到 SIGINT/SIGTERM 时关闭返回的通道
func MakeShutdownCh() chan struct{} {
	resultCh := make(chan struct{})
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		close(resultCh)
	}()
	return resultCh
}

// IsSpace unicode 空白, 额外包含 BOM
func IsSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// TrimSpace 去掉首尾空白
func TrimSpace(s string) string {
	return strings.TrimFunc(s, IsSpace)
}

// TruncateRunes 按字符截断, 不会切断多字节字符
func TruncateRunes(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
