package souper

import (
	"fmt"
	"os"
)

// DebugLevel controls how chatty the passes are on stderr. 0 is silent,
// 1 reports pass-level failures, higher levels trace discarded candidates.
var DebugLevel = 1

func debugf(level int, format string, args ...interface{}) {
	if DebugLevel >= level {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
