package httpapi

import (
	"fmt"
	"strings"
)

// splitHostPort is a minimal host:port splitter sufficient for the Host
// header values net/http hands handlers; avoids pulling in net.SplitHostPort
// just to strip a port for the connection-info derivation.
func splitHostPort(hostport string) (host, port string, err error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, "", nil
	}
	return hostport[:idx], hostport[idx+1:], nil
}

func joinURL(scheme, host string, port int, path string) string {
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, port, path)
}
