package domain

import (
	"fmt"
	"net/url"
)

// ProxyEndpoint identifies one egress route. Health state is tracked
// separately by the pool; this value only carries identity.
type ProxyEndpoint struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Key returns the host:port identity used to match pool state.
func (p ProxyEndpoint) Key() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL renders the endpoint as an http proxy URL, embedding credentials
// when present.
func (p ProxyEndpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}
