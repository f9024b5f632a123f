package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// NewMemcached accepts a comma separated server list.
func NewMemcached(servers string) (*memcache.Client, error) {
	var list []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no memcached servers configured")
	}

	client := memcache.New(list...)
	client.Timeout = 500 * time.Millisecond
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach memcached at %s: %w", servers, err)
	}
	return client, nil
}
