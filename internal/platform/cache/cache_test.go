package cache

import (
	"context"
	"testing"
)

func TestNewRedis_BadURL(t *testing.T) {
	if _, _, err := NewRedis(context.Background(), "not a redis url", "triage:"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestRedisStore_Key(t *testing.T) {
	s := &redisStore{prefix: "triage:"}
	if got := s.key("catalog:symptoms"); got != "triage:catalog:symptoms" {
		t.Errorf("unexpected key %q", got)
	}
}
