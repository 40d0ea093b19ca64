package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/DataShades/fpx/internal/models"
)

const (
	redisTicketPrefix = "fpx:ticket:"
	redisTicketIndex  = "fpx:tickets"
	redisClientNames  = "fpx:clients:by-name"
	redisClientIDs    = "fpx:clients:by-id"
)

var redisJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// setAvailable flips the flag only on tickets that still exist.
var setAvailableScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], "available", "1")
	return 1
end
return 0
`)

// RedisStore keeps tickets as hashes and indexes them by creation time in a
// sorted set. Clients live in two hashes mapping name to id and back.
type RedisStore struct {
	rdb *redis.Client
}

func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Migrate(context.Context) error { return nil }

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.rdb.Close() }

func ticketKey(id string) string { return redisTicketPrefix + id }

func (s *RedisStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	fields, err := s.rdb.HGetAll(ctx, ticketKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeTicket(id, fields)
}

func decodeTicket(id string, fields map[string]string) (*models.Ticket, error) {
	t := &models.Ticket{ID: id, Type: fields["type"], IsAvailable: fields["available"] == "1"}
	if err := t.Items.Scan(fields["items"]); err != nil {
		return nil, fmt.Errorf("decode ticket %s items: %w", id, err)
	}
	if err := t.Options.Scan(fields["options"]); err != nil {
		return nil, fmt.Errorf("decode ticket %s options: %w", id, err)
	}
	nanos, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode ticket %s created: %w", id, err)
	}
	t.CreatedAt = time.Unix(0, nanos).UTC()
	return t, nil
}

func (s *RedisStore) InsertTicket(ctx context.Context, t *models.Ticket) error {
	items, err := redisJSON.MarshalToString(t.Items)
	if err != nil {
		return err
	}
	options, err := redisJSON.MarshalToString(t.Options)
	if err != nil {
		return err
	}
	available := "0"
	if t.IsAvailable {
		available = "1"
	}
	created := t.CreatedAt.UnixNano()
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ticketKey(t.ID),
			"type", t.Type,
			"items", items,
			"options", options,
			"available", available,
			"created", strconv.FormatInt(created, 10),
		)
		pipe.ZAdd(ctx, redisTicketIndex, redis.Z{Score: float64(created), Member: t.ID})
		return nil
	})
	return err
}

func (s *RedisStore) DeleteTicket(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, ticketKey(id))
		pipe.ZRem(ctx, redisTicketIndex, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (s *RedisStore) SetTicketAvailable(ctx context.Context, id string) error {
	n, err := setAvailableScript.Run(ctx, s.rdb, []string{ticketKey(id)}).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListTickets(ctx context.Context, offset, limit int) ([]models.Ticket, int64, error) {
	total, err := s.rdb.ZCard(ctx, redisTicketIndex).Result()
	if err != nil {
		return nil, 0, err
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	ids, err := s.rdb.ZRange(ctx, redisTicketIndex, int64(offset), stop).Result()
	if err != nil {
		return nil, 0, err
	}
	tickets := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTicket(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, total, nil
}

func (s *RedisStore) DeleteTicketsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, redisTicketIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	return s.deleteTickets(ctx, ids)
}

func (s *RedisStore) DeleteAllTickets(ctx context.Context) (int64, error) {
	ids, err := s.rdb.ZRange(ctx, redisTicketIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	return s.deleteTickets(ctx, ids)
}

func (s *RedisStore) deleteTickets(ctx context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		ok, err := s.DeleteTicket(ctx, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *RedisStore) FindClientByName(ctx context.Context, name string) (*models.Client, error) {
	id, err := s.rdb.HGet(ctx, redisClientNames, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.Client{ID: id, Name: name}, nil
}

func (s *RedisStore) FindClientByID(ctx context.Context, id string) (*models.Client, error) {
	name, err := s.rdb.HGet(ctx, redisClientIDs, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.Client{ID: id, Name: name}, nil
}

func (s *RedisStore) InsertClient(ctx context.Context, c *models.Client) error {
	added, err := s.rdb.HSetNX(ctx, redisClientNames, c.Name, c.ID).Result()
	if err != nil {
		return err
	}
	if !added {
		return ErrDuplicate
	}
	return s.rdb.HSet(ctx, redisClientIDs, c.ID, c.Name).Err()
}

func (s *RedisStore) DeleteClient(ctx context.Context, name string) (bool, error) {
	c, err := s.FindClientByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, redisClientNames, name)
		pipe.HDel(ctx, redisClientIDs, c.ID)
		return nil
	})
	return err == nil, err
}

func (s *RedisStore) UpdateClientID(ctx context.Context, name, id string) error {
	c, err := s.FindClientByName(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, redisClientIDs, c.ID)
		pipe.HSet(ctx, redisClientIDs, id, name)
		pipe.HSet(ctx, redisClientNames, name, id)
		return nil
	})
	return err
}

func (s *RedisStore) ListClients(ctx context.Context) ([]models.Client, error) {
	all, err := s.rdb.HGetAll(ctx, redisClientNames).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Client, 0, len(all))
	for name, id := range all {
		out = append(out, models.Client{ID: id, Name: name})
	}
	sortClients(out)
	return out, nil
}
