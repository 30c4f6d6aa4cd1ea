package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/conference-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// Scripts reply {status, booked, max}.
const (
	scriptOK      = 0
	scriptMissing = -1
	scriptSoldOut = -2
)

// reserveScript runs atomically inside Redis: no other command can touch
// the hash between the capacity check and the increment.
var reserveScript = redis.NewScript(`
local max = redis.call('HGET', KEYS[1], 'max')
if not max then return {-1, 0, 0} end
max = tonumber(max)
local booked = tonumber(redis.call('HGET', KEYS[1], 'booked') or '0')
local n = tonumber(ARGV[1])
if booked + n > max then return {-2, booked, max} end
return {0, redis.call('HINCRBY', KEYS[1], 'booked', n), max}
`)

var releaseScript = redis.NewScript(`
local max = redis.call('HGET', KEYS[1], 'max')
if not max then return {-1, 0, 0} end
local booked = tonumber(redis.call('HGET', KEYS[1], 'booked') or '0')
local left = booked - tonumber(ARGV[1])
if left < 0 then left = 0 end
redis.call('HSET', KEYS[1], 'booked', left)
return {0, left, tonumber(max)}
`)

// RedisSeatStore keeps each workshop's pool in a hash {max, booked} so that
// several portal instances share one set of counters.
type RedisSeatStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSeatStore constructs a RedisSeatStore. Keys are prefix + workshop id.
func NewRedisSeatStore(client *redis.Client, prefix string) *RedisSeatStore {
	return &RedisSeatStore{client: client, prefix: prefix}
}

var _ capacity.Store = (*RedisSeatStore)(nil)

func (s *RedisSeatStore) key(workshopID string) string {
	return s.prefix + workshopID
}

func (s *RedisSeatStore) Reserve(ctx context.Context, workshopID string, count int) (capacity.Seats, error) {
	seats, status, err := s.run(ctx, reserveScript, workshopID, count)
	if err != nil {
		return capacity.Seats{}, fmt.Errorf("reserve seats: %w", err)
	}
	switch status {
	case scriptMissing:
		return capacity.Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
	case scriptSoldOut:
		return seats, fmt.Errorf("%w: %s", model.ErrSoldOut, workshopID)
	}
	return seats, nil
}

func (s *RedisSeatStore) Release(ctx context.Context, workshopID string, count int) (capacity.Seats, error) {
	seats, status, err := s.run(ctx, releaseScript, workshopID, count)
	if err != nil {
		return capacity.Seats{}, fmt.Errorf("release seats: %w", err)
	}
	if status == scriptMissing {
		return capacity.Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
	}
	return seats, nil
}

func (s *RedisSeatStore) run(ctx context.Context, script *redis.Script, workshopID string, count int) (capacity.Seats, int64, error) {
	reply, err := script.Run(ctx, s.client, []string{s.key(workshopID)}, count).Int64Slice()
	if err != nil {
		return capacity.Seats{}, 0, err
	}
	if len(reply) != 3 {
		return capacity.Seats{}, 0, fmt.Errorf("unexpected script reply %v", reply)
	}
	return capacity.Seats{WorkshopID: workshopID, BookedSeats: int(reply[1]), MaxSeats: int(reply[2])}, reply[0], nil
}

func (s *RedisSeatStore) Seats(ctx context.Context, workshopID string) (capacity.Seats, error) {
	vals, err := s.client.HMGet(ctx, s.key(workshopID), "max", "booked").Result()
	if err != nil {
		return capacity.Seats{}, fmt.Errorf("get seats: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return capacity.Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
	}
	out := capacity.Seats{WorkshopID: workshopID}
	if out.MaxSeats, err = toInt(vals[0]); err != nil {
		return capacity.Seats{}, fmt.Errorf("parse max seats: %w", err)
	}
	if vals[1] != nil {
		if out.BookedSeats, err = toInt(vals[1]); err != nil {
			return capacity.Seats{}, fmt.Errorf("parse booked seats: %w", err)
		}
	}
	return out, nil
}

// Ensure sets max seats and creates the booked counter only if absent.
func (s *RedisSeatStore) Ensure(ctx context.Context, workshopID string, maxSeats int) error {
	key := s.key(workshopID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "max", maxSeats)
		p.HSetNX(ctx, key, "booked", 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure workshop seats: %w", err)
	}
	return nil
}

func toInt(v any) (int, error) {
	str, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected redis value type")
	}
	return strconv.Atoi(str)
}
