package redis

import (
	"strings"
	"testing"
)

func TestKeyspace(t *testing.T) {
	k := keyspace("settled")
	for got, want := range map[string]string{
		k.market(42):         "settled:market:42",
		k.lock("market:7"):   "settled:lock:market:7",
		k.rate("ip:1.2.3.4"): "settled:ratelimit:ip:1.2.3.4",
	} {
		if got != want {
			t.Errorf("key = %q, want %q", got, want)
		}
	}
}

func TestWrapDefaultsNamespace(t *testing.T) {
	if got := Wrap(nil, "").keys.market(1); got != "settled:market:1" {
		t.Fatalf("default namespace key = %q", got)
	}
	if got := Wrap(nil, "staging").keys.lock("m"); got != "staging:lock:m" {
		t.Fatalf("custom namespace key = %q", got)
	}
}

func TestPayloadOf(t *testing.T) {
	if b, ok := payloadOf(map[string]any{"payload": `{"type":"claimed"}`}); !ok || string(b) != `{"type":"claimed"}` {
		t.Fatalf("string payload = %q, %v", b, ok)
	}
	if b, ok := payloadOf(map[string]any{"payload": []byte("x")}); !ok || string(b) != "x" {
		t.Fatalf("byte payload = %q, %v", b, ok)
	}
	if _, ok := payloadOf(map[string]any{"other": "x"}); ok {
		t.Fatal("entry without payload field accepted")
	}
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	for _, want := range []string{"ZREMRANGEBYSCORE", "ZADD", "ARGV[4]"} {
		if !strings.Contains(slidingWindowLua, want) {
			t.Fatalf("sliding window script missing %s", want)
		}
	}
}

func TestReleaseLockScriptChecksToken(t *testing.T) {
	for _, want := range []string{"redis.call('GET', KEYS[1]) ~= ARGV[1]", "redis.call('DEL', KEYS[1])"} {
		if !strings.Contains(releaseLockLua, want) {
			t.Fatalf("release script missing %q", want)
		}
	}
}
