package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/supramm/canvas-connect/internal/config"
	"github.com/supramm/canvas-connect/internal/wire"
)

// bridgeChannel carries every frame relayed by any instance. One
// channel for all rooms; the envelope names the room.
const bridgeChannel = "board_events"

// bridgeEnvelope wraps a relayed frame with its origin so instances can
// skip their own publications.
type bridgeEnvelope struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Payload  json.RawMessage `json:"payload"`
}

// Bridge fans frames out across relay instances through Redis pub/sub
// and keeps a shared presence roster per room, so clients connected to
// different instances still see each other.
type Bridge struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
}

// NewBridge connects to Redis and verifies the connection.
func NewBridge(ctx context.Context, cfg config.RedisConfig) (*Bridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.PresenceTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Bridge{
		client:     client,
		instanceID: uuid.NewString(),
		ttl:        ttl,
	}, nil
}

// Publish forwards one frame to the other instances.
func (b *Bridge) Publish(ctx context.Context, room string, payload []byte) error {
	env := bridgeEnvelope{
		Instance: b.instanceID,
		Room:     room,
		Payload:  payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, bridgeChannel, raw).Err()
}

// Run consumes the bridge channel until ctx is done, handing frames
// from other instances to deliver. Own publications are skipped by
// instance ID.
func (b *Bridge) Run(ctx context.Context, deliver func(room string, payload []byte)) {
	pubsub := b.client.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()

	log.Printf("[Bridge] Subscribed to %s (instance %s)", bridgeChannel, b.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[Bridge] Dropping malformed envelope: %v", err)
				continue
			}
			if env.Instance == b.instanceID {
				continue
			}
			deliver(env.Room, env.Payload)
		}
	}
}

func (b *Bridge) rosterKey(room string) string {
	return fmt.Sprintf("board:%s:presence", room)
}

// TrackPresence records a member in the shared roster. The hash expires
// as a whole; an instance that dies without cleanup stops refreshing
// and its entries age out with the key.
func (b *Bridge) TrackPresence(ctx context.Context, room string, p wire.Presence) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := b.rosterKey(room)
	if err := b.client.HSet(ctx, key, p.ID, raw).Err(); err != nil {
		return err
	}
	return b.client.Expire(ctx, key, b.ttl).Err()
}

// UntrackPresence removes a member from the shared roster.
func (b *Bridge) UntrackPresence(ctx context.Context, room, id string) error {
	return b.client.HDel(ctx, b.rosterKey(room), id).Err()
}

// Roster returns every member tracked across all instances.
func (b *Bridge) Roster(ctx context.Context, room string) ([]wire.Presence, error) {
	entries, err := b.client.HGetAll(ctx, b.rosterKey(room)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]wire.Presence, 0, len(entries))
	for id, raw := range entries {
		var p wire.Presence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Printf("[Bridge] Dropping malformed roster entry %s: %v", id, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Close releases the Redis connection.
func (b *Bridge) Close() error {
	return b.client.Close()
}
