package id

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// New returns a unique, roughly time-ordered int64 ID. The snowflake node
// number comes from ID_NODE (default 1) so the api and janitor processes can
// generate IDs without coordinating.
func New() int64 {
	once.Do(func() {
		nodeNum := int64(1)
		if v := os.Getenv("ID_NODE"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				panic(fmt.Sprintf("invalid ID_NODE %q: %v", v, err))
			}
			nodeNum = n
		}
		n, err := snowflake.NewNode(nodeNum)
		if err != nil {
			panic(fmt.Sprintf("creating snowflake node: %v", err))
		}
		node = n
	})
	return node.Generate().Int64()
}
