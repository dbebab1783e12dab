package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue keys and the visibility timeout for in-flight deliveries.
const (
	PendingMailKey    = "pending_mail"
	ProcessingMailKey = "processing_mail"
	// DefaultMailVisibility is how long a consumer may hold a message before
	// the reclaimer puts it back on the pending list.
	DefaultMailVisibility = 30 * time.Second
)

// MailPublisher is the dispatcher's view of the queue.
type MailPublisher interface {
	Publish(ctx context.Context, msg MailMessage) error
}

// MailQueue is a durable queue of serialized mail messages with visibility
// timeout and explicit ack, so a message survives a consumer dying mid-send.
type MailQueue struct {
	client *redis.Client
}

func NewMailQueue(client *redis.Client) *MailQueue {
	return &MailQueue{client: client}
}

// Publish serializes msg and pushes it onto the pending list.
func (q *MailQueue) Publish(ctx context.Context, msg MailMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, PendingMailKey, string(payload)).Err(); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// reserveScript moves one item atomically from pending -> processing with a
// visibility deadline score, so the message is not lost if the consumer dies
// before ack.
var reserveScript = redis.NewScript(`
local v = redis.call('RPOP', KEYS[1])
if v then
  redis.call('ZADD', KEYS[2], ARGV[1], v)
end
return v
`)

// requeueScript moves expired processing items back to pending.
var requeueScript = redis.NewScript(`
local vals = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = table.getn(vals)
if count > 0 then
  redis.call('ZREM', KEYS[1], unpack(vals))
  redis.call('LPUSH', KEYS[2], unpack(vals))
end
return vals
`)

// Reserve claims the next pending message for up to visibility. It returns
// the decoded message plus the raw payload needed to ack. redis.Nil is
// returned untouched when the queue is empty.
func (q *MailQueue) Reserve(ctx context.Context, visibility time.Duration) (MailMessage, string, error) {
	deadline := float64(time.Now().Add(visibility).UnixMilli())
	res, err := reserveScript.Run(ctx, q.client, []string{PendingMailKey, ProcessingMailKey}, deadline).Result()
	if err != nil {
		return MailMessage{}, "", err
	}
	if res == nil {
		return MailMessage{}, "", redis.Nil
	}
	raw, ok := res.(string)
	if !ok {
		return MailMessage{}, "", errors.New("unexpected reserve response type")
	}

	var msg MailMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Poison payload: ack it away so it cannot wedge the queue.
		_ = q.Ack(ctx, raw)
		return MailMessage{}, "", err
	}
	return msg, raw, nil
}

// Ack removes a processing message after it was handled.
func (q *MailQueue) Ack(ctx context.Context, raw string) error {
	if err := q.client.ZRem(ctx, ProcessingMailKey, raw).Err(); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// RequeueExpired moves messages whose visibility deadline passed back to the
// pending list and returns the moved payloads.
func (q *MailQueue) RequeueExpired(ctx context.Context, now time.Time) ([]string, error) {
	score := float64(now.UnixMilli())
	res, err := requeueScript.Run(ctx, q.client, []string{ProcessingMailKey, PendingMailKey}, score).Result()
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	rawVals, ok := res.([]interface{})
	if !ok {
		return nil, errors.New("unexpected requeue response type")
	}
	out := make([]string, 0, len(rawVals))
	for _, v := range rawVals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
