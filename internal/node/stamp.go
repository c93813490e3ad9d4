package node

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Stamp describes the parse that produced a tree.
type Stamp struct {
	Format  string
	Parser  string
	Content string
}

// Finalize assigns sequential ids in document order, fills in missing
// titles and source formats, and records ParseInfo on the root. It returns
// the number of nodes in the tree.
func Finalize(root *Node, s Stamp) int {
	if root == nil {
		return 0
	}
	counter := 0
	root.Walk(func(n *Node) {
		n.ID = padNodeID(counter)
		counter++
		if n.Title == "" {
			n.Title = DefaultTitle
		}
		if n.SourceFormat == "" {
			n.SourceFormat = s.Format
		}
		if n.Children == nil {
			n.Children = []*Node{}
		}
	})
	root.ParseInfo = &ParseInfo{
		Parser:      s.Parser,
		Timestamp:   time.Now().UTC(),
		RunID:       uuid.NewString(),
		ContentHash: ContentHash(s.Content),
	}
	return counter
}

// ContentHash returns the hex BLAKE3 digest of content.
func ContentHash(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// padNodeID pads an integer id to 4 digits.
func padNodeID(id int) string {
	return fmt.Sprintf("%04d", id)
}
