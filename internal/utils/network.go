package utils

import (
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealIP extracts the client IP, preferring proxy headers over the socket
// address: X-Real-IP first, then the first public hop in X-Forwarded-For,
// then gin's own resolution for direct connections.
func GetRealIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); isPublicIP(ip) {
		return ip
	}

	// X-Forwarded-For: client, proxy1, proxy2
	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for _, hop := range hops {
			if ip := strings.TrimSpace(hop); isPublicIP(ip) {
				return ip
			}
		}
		// Every hop is private: the request never left the internal network,
		// so the first hop is the client
		if ip := strings.TrimSpace(hops[0]); isValidIP(ip) {
			return ip
		}
	}

	return c.ClientIP()
}

// GetUserAgent extracts the User-Agent header from the request
func GetUserAgent(c *gin.Context) string {
	if ua := c.Request.UserAgent(); ua != "" {
		return ua
	}
	return "Unknown"
}

func isValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// isPublicIP reports whether s parses as an address outside private,
// loopback and link-local space.
func isPublicIP(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return !addr.IsPrivate() && !addr.IsLoopback() && !addr.IsLinkLocalUnicast()
}
