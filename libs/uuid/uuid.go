// Package uuid 生成记录ID、请求ID和随机文件名
package uuid

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	guuid "github.com/google/uuid"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var (
	node     *snowflake.Node
	nodeOnce sync.Once
	nodeErr  error
	nodeID   int64 = 1
)

// SetNode 在第一次生成ID之前调用, 多实例部署时每个实例不同
func SetNode(id int64) {
	nodeID = id
}

func getNode() *snowflake.Node {
	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(nodeID)
		if nodeErr != nil {
			node, _ = snowflake.NewNode(1)
		}
	})
	return node
}

// NextID 时间有序的 int64 ID
func NextID() int64 {
	return getNode().Generate().Int64()
}

// NextIDString 十进制字符串形式
func NextIDString() string {
	return strconv.FormatInt(NextID(), 10)
}

// RequestID 每个代理请求一个
func RequestID() string {
	return guuid.NewString()
}

// GenString 生成长度为 n 的小写字母数字随机串
func GenString(n int) string {
	return string(GenBytes(n))
}

func GenBytes(n int) []byte {
	container := make([]byte, 0, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		r, err := rand.Int(rand.Reader, max)
		if err != nil {
			r = big.NewInt(int64(i % len(alphabet)))
		}
		container = append(container, alphabet[r.Int64()])
	}
	return container
}
