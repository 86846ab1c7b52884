package ledger

import (
	"context"
	"crypto/tls"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
)

//go:embed lua/increment_below_limit.lua
var incrementBelowLimitLua string

const (
	fieldValue       = "value"
	fieldLastUpdated = "last_updated"
)

// ValkeyStore 는 Lua 스크립트로 조건부 증가를 수행하는 Valkey 카운터 저장소다.
type ValkeyStore struct {
	client    valkey.Client
	prefix    string
	increment *valkey.Lua
	opTimeout time.Duration
	owned     bool
}

// NewValkeyStore 는 설정 URL 로 Valkey 에 연결한다.
func NewValkeyStore(cfg config.LedgerConfig) (*ValkeyStore, error) {
	conn, err := parseLedgerURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ledger url: %w", err)
	}

	var tlsConfig *tls.Config
	if conn.useTLS {
		host, _, splitErr := net.SplitHostPort(conn.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse ledger addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	opTimeout := time.Duration(cfg.OpTimeoutSeconds) * time.Second
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:        tlsConfig,
		Username:         conn.username,
		Password:         conn.password,
		InitAddress:      []string{conn.addr},
		SelectDB:         conn.selectDB,
		DisableCache:     cfg.DisableCache,
		ConnWriteTimeout: opTimeout,
		Dialer:           net.Dialer{Timeout: opTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	store := NewValkeyStoreWithClient(client, cfg.KeyPrefix)
	store.opTimeout = opTimeout
	store.owned = true
	return store, nil
}

// NewValkeyStoreWithClient 는 기존 클라이언트를 감싼다. Close 는 클라이언트를 닫지 않는다.
func NewValkeyStoreWithClient(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "usage"
	}
	return &ValkeyStore{
		client:    client,
		prefix:    prefix,
		increment: valkey.NewLuaScript(incrementBelowLimitLua),
		opTimeout: DefaultOpTimeout,
	}
}

// SetOpTimeout 은 연산별 제한 시간을 바꾼다. 0 이하이면 기본값을 쓴다.
func (s *ValkeyStore) SetOpTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	s.opTimeout = timeout
}

// Get 은 카운터 값을 조회한다.
func (s *ValkeyStore) Get(ctx context.Context, key Key) (Counter, error) {
	if err := key.Validate(); err != nil {
		return Counter{}, err
	}
	ctx, cancel := withOpTimeout(ctx, s.opTimeout)
	defer cancel()

	cmd := s.client.B().Hmget().Key(key.redisKey(s.prefix)).Field(fieldValue, fieldLastUpdated).Build()
	values, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return Counter{}, fmt.Errorf("ledger get: %w", err)
	}
	if len(values) != 2 {
		return Counter{}, fmt.Errorf("ledger get: unexpected reply len %d", len(values))
	}

	var counter Counter
	if value, err := values[0].AsInt64(); err == nil {
		counter.Value = value
	} else if !valkey.IsValkeyNil(err) {
		return Counter{}, fmt.Errorf("ledger get value: %w", err)
	}
	if millis, err := values[1].AsInt64(); err == nil {
		counter.LastUpdated = time.UnixMilli(millis)
	}
	return counter, nil
}

// IncrementBelow 는 Lua 스크립트로 value < limit 일 때만 증가시킨다.
func (s *ValkeyStore) IncrementBelow(ctx context.Context, key Key, limit int64) (Increment, error) {
	if err := key.Validate(); err != nil {
		return Increment{}, err
	}
	ctx, cancel := withOpTimeout(ctx, s.opTimeout)
	defer cancel()

	resp := s.increment.Exec(ctx, s.client,
		[]string{key.redisKey(s.prefix)},
		[]string{strconv.FormatInt(limit, 10), strconv.FormatInt(time.Now().UnixMilli(), 10)},
	)
	applied, value, err := parseInt64Pair(resp)
	if err != nil {
		return Increment{}, fmt.Errorf("ledger increment: %w", err)
	}
	return Increment{Applied: applied == 1, Value: value}, nil
}

// Preload 는 증가 스크립트를 SCRIPT LOAD 로 미리 적재한다.
func (s *ValkeyStore) Preload(ctx context.Context) error {
	cmd := s.client.B().ScriptLoad().Script(incrementBelowLimitLua).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ledger lua preload: %w", err)
	}
	return nil
}

// Ping 은 Valkey 연결 상태를 확인한다.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	ctx, cancel := withOpTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ledger ping: %w", err)
	}
	return nil
}

// Backend 는 백엔드 이름을 반환한다.
func (s *ValkeyStore) Backend() string {
	return config.LedgerBackendValkey
}

// Close 는 소유한 연결을 종료한다.
func (s *ValkeyStore) Close() {
	if s == nil || !s.owned || s.client == nil {
		return
	}
	s.client.Close()
}

// parseInt64Pair 는 Lua 결과 {int, int} 를 해석한다.
func parseInt64Pair(resp valkey.ValkeyResult) (int64, int64, error) {
	values, err := resp.ToArray()
	if err != nil {
		return 0, 0, fmt.Errorf("parse lua array failed: %w", err)
	}
	if len(values) != 2 {
		return 0, 0, errors.New("unexpected lua array len")
	}
	first, err := values[0].AsInt64()
	if err != nil {
		return 0, 0, fmt.Errorf("parse lua int64 failed: %w", err)
	}
	second, err := values[1].AsInt64()
	if err != nil {
		return 0, 0, fmt.Errorf("parse lua int64 failed: %w", err)
	}
	return first, second, nil
}

var _ Store = (*ValkeyStore)(nil)
