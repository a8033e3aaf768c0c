// Package redisstream mirrors the replay log into a Redis stream so other
// services can follow a park without reading its files.
package redisstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"parkcraft.ai/internal/sim/dispatch"
)

// Publisher is a dispatch.Sink. Entry ids are "<seq>-0", which keeps the
// stream in replay order and makes a re-published seq fail instead of
// duplicating.
type Publisher struct {
	client  redis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
}

var _ dispatch.Sink = (*Publisher)(nil)

func NewPublisher(client redis.UniversalClient, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen, timeout: 2 * time.Second}
}

func StreamKey(parkID string) string { return "parkcraft:replay:" + parkID }

func (p *Publisher) Record(e dispatch.ReplayEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	args := &redis.XAddArgs{
		Stream: p.stream,
		ID:     entryID(e.Seq),
		Values: map[string]interface{}{
			"seq":       e.Seq,
			"tick":      e.Tick,
			"kind":      e.Kind,
			"kind_name": e.KindName,
			"player":    e.Player,
			"params":    e.Params,
			"status":    e.Status,
			"message":   e.Message,
			"cost":      e.Cost,
			"digest":    e.Digest,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s seq %d: %w", p.stream, e.Seq, err)
	}
	return nil
}

func entryID(seq uint32) string { return strconv.FormatUint(uint64(seq), 10) + "-0" }

// ReadAfter returns up to count entries with seq > after, in order.
func ReadAfter(ctx context.Context, client redis.UniversalClient, stream string, after uint32, count int64) ([]dispatch.ReplayEntry, error) {
	msgs, err := client.XRangeN(ctx, stream, entryID(after+1), "+", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.ReplayEntry, 0, len(msgs))
	for _, m := range msgs {
		e, err := decodeEntry(m.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", m.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeEntry(v map[string]interface{}) (dispatch.ReplayEntry, error) {
	var e dispatch.ReplayEntry
	u := func(key string, bits int) (uint64, error) {
		return strconv.ParseUint(str(v[key]), 10, bits)
	}
	seq, err := u("seq", 32)
	if err != nil {
		return e, fmt.Errorf("seq: %w", err)
	}
	tick, err := u("tick", 32)
	if err != nil {
		return e, fmt.Errorf("tick: %w", err)
	}
	kind, err := u("kind", 16)
	if err != nil {
		return e, fmt.Errorf("kind: %w", err)
	}
	player, err := u("player", 32)
	if err != nil {
		return e, fmt.Errorf("player: %w", err)
	}
	cost, err := strconv.ParseInt(str(v["cost"]), 10, 64)
	if err != nil {
		return e, fmt.Errorf("cost: %w", err)
	}
	e = dispatch.ReplayEntry{
		Seq:      uint32(seq),
		Tick:     uint32(tick),
		Kind:     uint16(kind),
		KindName: str(v["kind_name"]),
		Player:   uint32(player),
		Params:   []byte(str(v["params"])),
		Status:   str(v["status"]),
		Message:  str(v["message"]),
		Cost:     cost,
		Digest:   str(v["digest"]),
	}
	return e, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// HealthChecker pings the Redis server behind a publisher.
type HealthChecker struct {
	client redis.UniversalClient
}

func NewHealthChecker(client redis.UniversalClient) *HealthChecker {
	return &HealthChecker{client: client}
}

func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := h.client.Ping(ctx).Result(); err != nil {
		logrus.Errorf("Redis health check failed: %v", err)
		return err
	}
	return nil
}
