package realtime

import (
	"errors"
	"net/url"
	"strings"

	"github.com/syntrixbase/msgstore/internal/gateway/config"
)

var errOriginNotAllowed = errors.New("origin not allowed")

func checkAllowedOrigin(origin string, reqHost string, cfg config.RealtimeConfig) error {
	if origin == "" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return errOriginNotAllowed
	}

	// Allow same host origin
	originHost := strings.Split(parsed.Host, ":")[0]
	reqHostPart := strings.Split(reqHost, ":")[0]
	if strings.EqualFold(originHost, reqHostPart) {
		return nil
	}

	if cfg.AllowDevOrigin {
		if originHost == "localhost" || originHost == "127.0.0.1" {
			return nil
		}
	}

	trimmedOrigin := strings.TrimRight(origin, "/")
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "" {
			continue
		}
		if strings.EqualFold(strings.TrimRight(allowed, "/"), trimmedOrigin) {
			return nil
		}
	}

	return errOriginNotAllowed
}
