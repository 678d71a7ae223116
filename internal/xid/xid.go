package xid

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	nodeMu sync.Mutex
	node   *snowflake.Node
)

// Init sets the snowflake node used by New. Calling it is optional; the
// first call to New falls back to node 1.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	nodeMu.Lock()
	node = n
	nodeMu.Unlock()
	return nil
}

func currentNode() *snowflake.Node {
	nodeMu.Lock()
	defer nodeMu.Unlock()
	if node == nil {
		n, err := snowflake.NewNode(1)
		if err != nil {
			log.Fatalf("[xid] failed to init snowflake node: %v", err)
		}
		node = n
	}
	return node
}

// New returns a time-ordered entity id such as "pur-1790001234567890123".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, currentNode().Generate().String())
}

// NewLineID returns the stable identifier carried by a cart line through
// purchase items, transaction lines and stock mutation items.
func NewLineID() string {
	return uuid.NewString()
}

// DocumentNumber formats PREFIX-YYYYMMDD-mmm where mmm is the millisecond
// part of the unix clock.
func DocumentNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, at.Format("20060102"), at.UnixMilli()%1000)
}

const (
	PurchasePrefix       = "PUR"
	InvoicePrefix        = "INV"
	PurchaseReturnPrefix = "RET"
)
