// Package netutil holds small listener helpers for the shell's control API.
package netutil

import (
	"errors"
	"fmt"
	"net"
)

// SelectBindAddr returns the first address the API server can bind. The
// preferred address wins when free; with fallback enabled the candidate
// list is tried in order afterwards.
func SelectBindAddr(preferred string, candidates []string, fallback bool) (string, error) {
	if preferred != "" {
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !fallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, addr := range candidates {
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", errors.New("no available api bind addresses")
}

// IsAddrAvailable reports whether addr can be listened on right now. A
// failed probe listen means busy, not an error.
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
