package security

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
)

// Locator validation errors. Media locators come out of page markup and
// network traffic the page controls, so they are untrusted input.
var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrBlockedScheme    = errors.New("URL scheme not allowed")
	ErrPrivateIPBlocked = errors.New("private/internal IP addresses are not allowed")
	ErrLocalhostBlocked = errors.New("localhost URLs are not allowed")
	ErrMetadataBlocked  = errors.New("cloud metadata URLs are not allowed")
)

// Proxy URL validation errors.
var (
	ErrInvalidProxyURL    = errors.New("invalid proxy URL")
	ErrBlockedProxyScheme = errors.New("proxy URL scheme not allowed (must be http, https, socks4, or socks5)")
)

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

var allowedProxySchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks4": true,
	"socks5": true,
}

// blockedHosts are hostnames that never serve public media.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata":                 true,
	"instance-data":            true,
}

var cloudMetadataIPs = []net.IP{
	net.ParseIP("169.254.169.254"), // AWS, GCP, Azure, DigitalOcean, OpenStack
	net.ParseIP("169.254.170.2"),   // AWS ECS task metadata
	net.ParseIP("100.100.100.200"), // Alibaba Cloud
	net.ParseIP("192.0.0.192"),     // Oracle Cloud
	net.ParseIP("fd00:ec2::254"),   // AWS IPv6
	net.ParseIP("fc00:ec2::254"),
}

// ValidateLocatorURL checks that a media locator is an http(s) URL whose
// host is not loopback, private, link-local or a cloud metadata endpoint.
// Hostnames are not resolved here; DialControl checks the address that is
// actually dialed. With allowPrivate only the scheme and host presence are
// checked.
func ValidateLocatorURL(rawURL string, allowPrivate bool) error {
	if rawURL == "" {
		return ErrInvalidURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if !allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return ErrBlockedScheme
	}
	hostname := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if hostname == "" {
		return ErrInvalidURL
	}
	if allowPrivate {
		return nil
	}
	return validateHost(hostname)
}

// DialControl is a net.Dialer Control hook that rejects connections to
// addresses ValidateLocatorURL would block. It runs after DNS resolution,
// so a public hostname resolving to a private address is still refused.
func DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return ErrInvalidURL
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ErrInvalidURL
	}
	return validateIP(normalizeIPv4Mapped(ip))
}

// ValidateProxyURL checks a proxy URL's scheme and host. Private and
// loopback proxies are allowed; a local forwarder is the common setup.
func ValidateProxyURL(proxyURL string) error {
	if proxyURL == "" {
		return nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return ErrInvalidProxyURL
	}
	if !allowedProxySchemes[strings.ToLower(parsed.Scheme)] {
		return ErrBlockedProxyScheme
	}
	if parsed.Host == "" {
		return ErrInvalidProxyURL
	}
	return nil
}

func validateHost(hostname string) error {
	if blockedHosts[hostname] || isLocalhostHostname(hostname) {
		return ErrLocalhostBlocked
	}
	if ip := parseIPWithNormalization(hostname); ip != nil {
		return validateIP(normalizeIPv4Mapped(ip))
	}
	return nil
}

// parseIPWithNormalization also accepts the decimal, octal, hex and
// shortened IPv4 forms browsers resolve, e.g. 2130706433 or 0x7f.1.
func parseIPWithNormalization(hostname string) net.IP {
	if ip := net.ParseIP(hostname); ip != nil {
		return ip
	}
	if num, err := strconv.ParseUint(hostname, 10, 32); err == nil {
		return net.IPv4(byte(num>>24), byte(num>>16), byte(num>>8), byte(num))
	}

	parts := strings.Split(hostname, ".")
	switch len(parts) {
	case 4:
		var octets [4]byte
		for i, part := range parts {
			val, err := parseIntWithBase(part)
			if err != nil || val > 255 {
				return nil
			}
			octets[i] = byte(val)
		}
		return net.IPv4(octets[0], octets[1], octets[2], octets[3])
	case 2:
		first, err1 := parseIntWithBase(parts[0])
		second, err2 := parseIntWithBase(parts[1])
		if err1 == nil && err2 == nil && first <= 255 && second <= 0xFFFFFF {
			return net.IPv4(byte(first), byte(second>>16), byte(second>>8), byte(second))
		}
	}
	return nil
}

func parseIntWithBase(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty string")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	if strings.HasPrefix(s, "0") && len(s) > 1 {
		return strconv.ParseUint(s[1:], 8, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func normalizeIPv4Mapped(ip net.IP) net.IP {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4
	}
	return ip
}

func isLocalhostHostname(hostname string) bool {
	switch hostname {
	case "localhost", "localhost.localdomain", "local", "ip6-localhost", "ip6-loopback":
		return true
	}
	return strings.HasSuffix(hostname, ".localhost") || strings.HasPrefix(hostname, "localhost.")
}

func validateIP(ip net.IP) error {
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 127 {
		return ErrLocalhostBlocked
	}
	if ip.Equal(net.IPv6loopback) {
		return ErrLocalhostBlocked
	}
	if isCloudMetadataIP(ip) {
		return ErrMetadataBlocked
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return ErrPrivateIPBlocked
	}
	return nil
}

func isCloudMetadataIP(ip net.IP) bool {
	for _, metadataIP := range cloudMetadataIPs {
		if ip.Equal(metadataIP) {
			return true
		}
	}
	return false
}
