package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const localhost = "localhost"

var (
	ErrInvalidHost = errors.New("host must match IP format 'XXX.XXX.XXX.XXX'")
	ErrInvalidPort = errors.New("port must be a valid u16")
)

// ParseHost accepts "localhost" or a dotted IPv4 quad and returns the quad.
func ParseHost(host string) (string, error) {
	if host == localhost {
		return "127.0.0.1", nil
	}
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	for _, part := range parts {
		if _, err := strconv.ParseUint(part, 10, 8); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
		}
	}
	return host, nil
}

func ParsePort(port string) (uint16, error) {
	value, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, port)
	}
	return uint16(value), nil
}
