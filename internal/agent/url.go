package agent

import (
	"fmt"
	"net/url"
)

func urlOf(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Path == "" && u.Host == "" {
		return nil, fmt.Errorf("empty url")
	}
	return u, nil
}
