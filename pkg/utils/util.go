package utils

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
)

var ErrPort = errors.New("invalid port")

// ListenUDPInPortRange binds laddr.IP to the first free port of
// [portMin, portMax], starting from a random one. A zero bound is open.
func ListenUDPInPortRange(portMin, portMax int, laddr *net.UDPAddr) (*net.UDPConn, error) {
	if (laddr.Port != 0) || ((portMin == 0) && (portMax == 0)) {
		return net.ListenUDP("udp", laddr)
	}
	var i, j int
	i = portMin
	if i == 0 {
		i = 1
	}
	j = portMax
	if j == 0 {
		j = 0xFFFF
	}
	if i > j || j > 0xFFFF {
		return nil, ErrPort
	}
	portStart := rand.Intn(j-i+1) + i
	portCurrent := portStart
	var lastErr error
	for {
		addr := &net.UDPAddr{IP: laddr.IP, Port: portCurrent}
		c, e := net.ListenUDP("udp", addr)
		if e == nil {
			*laddr = *addr
			return c, nil
		}
		lastErr = e
		portCurrent++
		if portCurrent > j {
			portCurrent = i
		}
		if portCurrent == portStart {
			break
		}
	}
	return nil, fmt.Errorf("%w: no free port in %d-%d: %v", ErrPort, i, j, lastErr)
}
