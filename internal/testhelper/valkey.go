package testhelper

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"
)

// NewTestValkey: miniredis 에 연결된 valkey 클라이언트를 반환합니다.
func NewTestValkey(t testing.TB) (valkey.Client, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{mini.Addr()},
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("connect miniredis: %v", err)
	}
	t.Cleanup(client.Close)
	return client, mini
}
