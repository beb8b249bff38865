package netutil

import (
	"net"
	"strconv"
	"testing"
)

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	return port
}

func TestSelectBindAddrPreferredFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	got, err := SelectBindAddr(addr, nil, false)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != addr {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, addr)
	}
}

func TestSelectBindAddrFallsBackToCandidatePort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen free: %v", err)
	}
	freePort := listenerPort(t, free)
	_ = free.Close()

	got, err := SelectBindAddr(busy.Addr().String(), []int{listenerPort(t, busy), freePort}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	want := net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort))
	if got != want {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, want)
	}
}

func TestSelectBindAddrBusyWithoutFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	if _, err := SelectBindAddr(busy.Addr().String(), []int{9999}, false); err == nil {
		t.Fatal("SelectBindAddr() error = nil; want in-use error")
	}
}

func TestSelectBindAddrNoCandidates(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	if _, err := SelectBindAddr(busy.Addr().String(), []int{listenerPort(t, busy)}, true); err == nil {
		t.Fatal("SelectBindAddr() error = nil; want exhaustion error")
	}
}
