package reqid

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	prefix  string
	counter uint64
)

func init() {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = uuid.NewString()
	}
	prefix = fmt.Sprintf("%s/%s", hostname, uuid.NewString()[:8])
}

// GetReqID returns a process-unique request id, suitable as the value of the
// request id header on outbound calls.
func GetReqID() string {
	return fmt.Sprintf("%s-%06d", prefix, atomic.AddUint64(&counter, 1))
}
