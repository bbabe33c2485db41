package mqtt

import (
	"net"
	"strings"
	"time"
)

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func isClosedConn(e error) bool {
	return e != nil && strings.HasSuffix(e.Error(), "use of closed network connection")
}

func isTimeout(e error) bool {
	ne, ok := e.(net.Error)
	return ok && ne.Timeout()
}

func durationDefault(main, def time.Duration) time.Duration {
	if main <= 0 {
		return def
	}
	return main
}
