package jsonrpc

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"bridgewallet.io/bridge-wallet/pkg/log"
)

var idNode *snowflake.Node

// nolint:gochecknoinits
func init() {
	node, err := snowflake.NewNode(1)
	if err != nil {
		log.Errorf("init snowflake id node:%v", err)
		return
	}
	idNode = node
}

// NextID returns a fresh positive request id. Ids are monotonic within a
// process so responses can be correlated by the peer.
func NextID() int64 {
	if idNode != nil {
		return idNode.Generate().Int64()
	}
	return time.Now().UnixNano() / 1000
}
