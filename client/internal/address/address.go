// Package address persists the device address across restarts.
package address

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/tapto/tapremote/pkg/protocol"
)

// Key is the preference key the address is stored under.
const Key = "deviceAddress"

// ErrInvalidAddress reports a value that cannot be used as a device host.
var ErrInvalidAddress = errors.New("invalid device address")

// Store reads and writes the device address. An unset address is "".
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, host string) error
}

// Normalize turns user input into a bare host. It accepts an optional ws://
// scheme, trailing slash and the device port; anything else beyond a host is
// rejected. Empty input stays empty.
func Normalize(input string) (string, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "ws://")
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return "", nil
	}
	if strings.ContainsAny(s, "/?# \t") || strings.Contains(s, "://") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}

	host := s
	if h, port, err := net.SplitHostPort(s); err == nil {
		if port != strconv.Itoa(protocol.Port) {
			return "", fmt.Errorf("%w: port must be %d, got %s", ErrInvalidAddress, protocol.Port, port)
		}
		host = h
	} else if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		host = s[1 : len(s)-1]
	} else if strings.Count(s, ":") == 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}

	if host == "" || strings.ContainsAny(host, "[]") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}
	return host, nil
}
