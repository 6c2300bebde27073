package utilities

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// nodeFromEnv reads SNOWFLAKE_NODE, defaulting to node 1 when missing or invalid.
func nodeFromEnv() int64 {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		return 1
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}

// NextID returns a snowflake id from the process-wide node. The node is created
// lazily from SNOWFLAKE_NODE; if that fails the id falls back to the current
// time in milliseconds, which is still unique enough for a single process.
func NextID() int64 {
	nodeOnce.Do(func() {
		n, err := snowflake.NewNode(nodeFromEnv())
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	if node == nil {
		return time.Now().UnixMilli()
	}
	return node.Generate().Int64()
}

// NewSnowflakeID is NextID formatted as a decimal string.
func NewSnowflakeID() string {
	return strconv.FormatInt(NextID(), 10)
}
