package util

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var ipv4Re = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}(/([0-9]|[1-2][0-9]|3[0-2]))?$`)

// CheckIpv4 reports whether ip is a dotted IPv4 address with an optional
// prefix length, e.g. 192.168.1.1/24.
func CheckIpv4(ip string) bool {
	if !ipv4Re.MatchString(ip) {
		return false
	}

	address, _, _ := strings.Cut(ip, "/")

	// check each part of the IP address
	parts := strings.Split(address, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if val, err := strconv.Atoi(part); err != nil || val < 0 || val > 255 {
			return false
		}
	}
	return true
}

// CheckIpv4Cidr is CheckIpv4 with a mandatory prefix length.
func CheckIpv4Cidr(cidr string) bool {
	return strings.Contains(cidr, "/") && CheckIpv4(cidr)
}

// SameSubnet reports whether the gateway ip lies inside cidr.
func SameSubnet(cidr, ip string) (bool, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false, fmt.Errorf("failed to parse CIDR %s: %v", cidr, err)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, fmt.Errorf("invalid IP address: %v", ip)
	}
	return ipNet.Contains(parsed), nil
}
