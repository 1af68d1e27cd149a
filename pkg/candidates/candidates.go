package candidates

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/projectdiscovery/mapcidr"
	fileutil "github.com/projectdiscovery/utils/file"
	sliceutil "github.com/projectdiscovery/utils/slice"
)

// maxLineSize bounds a single line read from a target stream
const maxLineSize = "1MB"

// MaxHostBits bounds the size of a single CIDR entry (2^20 addresses)
const MaxHostBits = 20

var (
	// ErrInvalidTarget is returned for entries that are neither an IP nor a CIDR
	ErrInvalidTarget = errors.New("invalid target")
	// ErrRangeTooLarge is returned for CIDR entries above MaxHostBits
	ErrRangeTooLarge = errors.New("range too large")
)

// Expand turns IPs and CIDR ranges into a deduplicated address list.
// First-seen order is preserved.
func Expand(targets []string) ([]string, error) {
	var addresses []string
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}

		if !strings.Contains(target, "/") {
			ip := net.ParseIP(target)
			if ip == nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
			}
			addresses = append(addresses, ip.String())
			continue
		}

		expanded, err := expandCIDR(target)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, expanded...)
	}
	return sliceutil.Dedupe(addresses), nil
}

func expandCIDR(cidr string) ([]string, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTarget, cidr, err)
	}
	ones, bits := network.Mask.Size()
	if bits-ones > MaxHostBits {
		return nil, fmt.Errorf("%w: %s holds 2^%d addresses", ErrRangeTooLarge, cidr, bits-ones)
	}

	ips, err := mapcidr.IPAddresses(cidr)
	if err != nil {
		return nil, fmt.Errorf("failed to expand CIDR: %w", err)
	}

	// /31 and /32 have no network or broadcast address
	if network.IP.To4() == nil || ones >= 31 {
		return ips, nil
	}
	usable := make([]string, 0, len(ips))
	for _, addr := range ips {
		ip := net.ParseIP(addr)
		if ip == nil || IsNetworkOrBroadcast(ip, network) {
			continue
		}
		usable = append(usable, ip.String())
	}
	return usable, nil
}

// IsNetworkOrBroadcast checks if an IPv4 address is the network or broadcast
// address of network.
func IsNetworkOrBroadcast(ip net.IP, network *net.IPNet) bool {
	if network == nil {
		return false
	}
	ip4 := ip.To4()
	base := network.IP.To4()
	if ip4 == nil || base == nil || len(network.Mask) != net.IPv4len {
		return false
	}
	if ip4.Equal(base) {
		return true
	}

	broadcast := make(net.IP, net.IPv4len)
	for i := range broadcast {
		broadcast[i] = base[i] | ^network.Mask[i]
	}
	return ip4.Equal(broadcast)
}

// LoadFile reads targets from path, one per line
func LoadFile(path string) ([]string, error) {
	lines, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	var targets []string
	for line := range lines {
		if target, ok := parseLine(line); ok {
			targets = append(targets, target)
		}
	}
	return Expand(targets)
}

// Parse reads targets from r, one per line
func Parse(r io.Reader) ([]string, error) {
	maxLine, err := humanize.ParseBytes(maxLineSize)
	if err != nil {
		return nil, fmt.Errorf("failed to parse buffer size %s: %w", maxLineSize, err)
	}

	var targets []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), int(maxLine))
	for scanner.Scan() {
		if target, ok := parseLine(scanner.Text()); ok {
			targets = append(targets, target)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return Expand(targets)
}

// parseLine strips comments and whitespace
func parseLine(line string) (string, bool) {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	return line, line != ""
}
