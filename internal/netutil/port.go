package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// SelectBindAddr picks an available bind address. The preferred address
// is tried first; when it is busy and autoFallback is set, the candidate
// ports are tried in order on the preferred host.
func SelectBindAddr(preferred string, candidates []int, autoFallback bool) (string, error) {
	host := "127.0.0.1"
	if preferred != "" {
		if h, _, err := net.SplitHostPort(preferred); err == nil && h != "" {
			host = h
		}
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, port := range candidates {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", errors.New("no available status bind addresses")
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
