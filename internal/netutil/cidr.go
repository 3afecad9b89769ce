package netutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MaxExpand caps how many addresses a single range may expand to.
const MaxExpand = 1 << 16

// ExpandTargets turns a CIDR range (or a single IP) and an optional
// comma-separated port list into probe targets. Default ports (80, 443)
// produce a bare IP so that both schemes are tried; other ports produce
// ip:port.
func ExpandTargets(cidr string, portsStr string) ([]string, error) {
	cidr = strings.TrimSpace(cidr)
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		// Maybe it's a single IP, not a CIDR.
		ip = net.ParseIP(cidr)
		if ip == nil {
			return nil, fmt.Errorf("invalid CIDR or IP: %q", cidr)
		}
		mask := net.CIDRMask(32, 32)
		if ip.To4() == nil {
			mask = net.CIDRMask(128, 128)
		} else {
			ip = ip.To4()
		}
		ipnet = &net.IPNet{IP: ip, Mask: mask}
	}

	ones, bits := ipnet.Mask.Size()
	if bits-ones > 16 {
		return nil, fmt.Errorf("range %s is too large (more than %d addresses)", cidr, MaxExpand)
	}

	ports, err := parsePorts(portsStr)
	if err != nil {
		return nil, err
	}
	bare := len(ports) == 0
	var extra []string
	for _, p := range ports {
		if p == "80" || p == "443" {
			bare = true
			continue
		}
		extra = append(extra, p)
	}

	var hosts []string
	for ip := ip.Mask(ipnet.Mask); ipnet.Contains(ip); inc(ip) {
		// Skip network and broadcast addresses for ranges wider than /31.
		if bits-ones > 1 {
			if ip.Equal(ipnet.IP.Mask(ipnet.Mask)) {
				continue
			}
			if ip.Equal(broadcastAddr(ipnet)) {
				continue
			}
		}

		host := ip.String()
		if bare {
			hosts = append(hosts, host)
		}
		for _, port := range extra {
			hosts = append(hosts, net.JoinHostPort(host, port))
		}
	}

	return hosts, nil
}

func parsePorts(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var ports []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		ports = append(ports, strconv.Itoa(n))
	}
	return ports, nil
}

func inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func broadcastAddr(n *net.IPNet) net.IP {
	base := n.IP.Mask(n.Mask)
	ip := make(net.IP, len(base))
	for i := range ip {
		ip[i] = base[i] | ^n.Mask[i]
	}
	return ip
}
