package ledger

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultValkeyPort = "6379"

type connInfo struct {
	addr     string
	username string
	password string
	selectDB int
	useTLS   bool
}

// parseLedgerURL 은 redis://, rediss:// URL 또는 host[:port] 주소를 해석한다.
func parseLedgerURL(raw string) (connInfo, error) {
	if strings.TrimSpace(raw) == "" {
		return connInfo{}, errors.New("ledger url is empty")
	}
	if !strings.Contains(raw, "://") {
		return parseLedgerAddr(raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return connInfo{}, fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "redis", "rediss", "valkey", "valkeys":
	default:
		return connInfo{}, fmt.Errorf("unsupported ledger url scheme: %s", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return connInfo{}, errors.New("ledger host missing")
	}
	port := parsed.Port()
	if port == "" {
		port = defaultValkeyPort
	}

	selectDB := 0
	if path := strings.TrimPrefix(parsed.Path, "/"); strings.TrimSpace(path) != "" {
		db, convErr := strconv.Atoi(path)
		if convErr != nil || db < 0 {
			return connInfo{}, fmt.Errorf("invalid ledger db: %q", path)
		}
		selectDB = db
	}

	info := connInfo{
		addr:     net.JoinHostPort(host, port),
		selectDB: selectDB,
		useTLS:   strings.EqualFold(parsed.Scheme, "rediss") || strings.EqualFold(parsed.Scheme, "valkeys"),
	}
	if parsed.User != nil {
		info.username = parsed.User.Username()
		info.password, _ = parsed.User.Password()
	}
	return info, nil
}

func parseLedgerAddr(addr string) (connInfo, error) {
	trimmed := strings.TrimSpace(addr)
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) || addrErr.Err != "missing port in address" {
			return connInfo{}, fmt.Errorf("invalid ledger address: %w", err)
		}
		host = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
		port = defaultValkeyPort
	}
	if strings.TrimSpace(host) == "" {
		return connInfo{}, errors.New("ledger host missing")
	}
	return connInfo{addr: net.JoinHostPort(host, port)}, nil
}
