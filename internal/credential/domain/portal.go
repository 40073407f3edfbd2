package domain

import "time"

// PortalSession is a volatile bearer session for the employer portal. It is
// never persisted and never silently refreshed; logout or the sweep removes
// it.
type PortalSession struct {
	Token       string
	AccountID   string
	Email       string
	DisplayName string
	Role        string
	ExpiresAt   time.Time
}

func (s PortalSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
