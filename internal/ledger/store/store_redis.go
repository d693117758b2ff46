package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"taxlens/internal/fhe"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	"taxlens/internal/ledger/models"
	profilemodels "taxlens/internal/profile/models"
	"taxlens/pkg/platform/sentinel"
)

const requestKeyPrefix = "ledger:req:"

// registerScript creates the hash only when the key is absent.
var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// consumeScript sets resolved_at once. Returns -1 when the key is missing,
// 0 when it was already resolved.
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HEXISTS', KEYS[1], 'resolved_at') == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'resolved_at', ARGV[1])
return 1
`)

// RedisStore keeps the ledger in Redis hashes so several processes can share
// it. Register and Consume are single Lua scripts, so each is atomic on the
// server. Redis does not join SQL transactions; callers consume last in a
// unit of work.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces keys, e.g. per environment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: requestKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Register(ctx context.Context, req *models.PendingRequest) error {
	created, err := registerScript.Run(ctx, s.client, []string{s.key(req.RequestID)}, encodeFields(req)...).Int()
	if err != nil {
		return fmt.Errorf("register decryption request: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("request %s: %w", req.RequestID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, rid fhe.RequestID) (*models.PendingRequest, error) {
	fields, err := s.client.HGetAll(ctx, s.key(rid)).Result()
	if err != nil {
		return nil, fmt.Errorf("find decryption request: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeFields(rid, fields)
}

func (s *RedisStore) Consume(ctx context.Context, rid fhe.RequestID, now time.Time) (*models.PendingRequest, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(rid)}, now.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return nil, fmt.Errorf("consume decryption request: %w", err)
	}
	switch res {
	case -1:
		return nil, sentinel.ErrNotFound
	case 0:
		return nil, fmt.Errorf("request %s already resolved: %w", rid, sentinel.ErrAlreadyUsed)
	}
	return s.Find(ctx, rid)
}

func (s *RedisStore) key(rid fhe.RequestID) string {
	return s.prefix + rid.String()
}

func encodeFields(req *models.PendingRequest) []any {
	handles := make([]string, len(req.Handles))
	for i, h := range req.Handles {
		handles[i] = h.String()
	}
	fields := []any{
		"kind", string(req.Target.Kind),
		"handles", strings.Join(handles, ","),
		"requested_at", req.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
	switch req.Target.Kind {
	case models.TargetProfile:
		fields = append(fields, "profile_id", req.Target.ProfileID.String())
	case models.TargetJurisdictionStats:
		fields = append(fields, "name_hash", req.Target.NameHash.String())
	}
	return fields
}

func decodeFields(rid fhe.RequestID, fields map[string]string) (*models.PendingRequest, error) {
	req := &models.PendingRequest{RequestID: rid}
	req.Target.Kind = models.TargetKind(fields["kind"])
	switch req.Target.Kind {
	case models.TargetProfile:
		id, err := strconv.ParseUint(fields["profile_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode profile target: %w", err)
		}
		req.Target.ProfileID = profilemodels.ProfileID(id)
	case models.TargetJurisdictionStats:
		var h jurisdictionmodels.NameHash
		if err := h.UnmarshalText([]byte(fields["name_hash"])); err != nil {
			return nil, fmt.Errorf("decode jurisdiction target: %w", err)
		}
		req.Target.NameHash = h
	default:
		return nil, fmt.Errorf("decode target: unknown kind %q", req.Target.Kind)
	}

	if raw := fields["handles"]; raw != "" {
		for _, part := range strings.Split(raw, ",") {
			h, err := fhe.ParseHandle(part)
			if err != nil {
				return nil, err
			}
			req.Handles = append(req.Handles, h)
		}
	}

	requestedAt, err := time.Parse(time.RFC3339Nano, fields["requested_at"])
	if err != nil {
		return nil, fmt.Errorf("decode requested_at: %w", err)
	}
	req.RequestedAt = requestedAt
	if raw, ok := fields["resolved_at"]; ok {
		resolvedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("decode resolved_at: %w", err)
		}
		req.ResolvedAt = &resolvedAt
	}
	return req, nil
}
