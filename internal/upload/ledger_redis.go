package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cinestream/server/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cinestream:upload:"

// casScript applies HSET fields only while the session is open and still at
// the expected offset. Returns 1 on success, 0 on conflict, -1 when missing.
var casScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= 'open' then
	return 0
end
if redis.call('HGET', KEYS[1], 'next_offset') ~= ARGV[1] then
	return 0
end
for i = 2, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// RedisLedger keeps each session in a hash with a TTL. Open sessions are also
// indexed in a sorted set scored by creation time for the sweeper.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) sessionKey(uploadID string) string {
	return redisKeyPrefix + "session:" + uploadID
}

func (l *RedisLedger) openKey() string {
	return redisKeyPrefix + "open"
}

func (l *RedisLedger) Create(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	session.Status = models.UploadStatusOpen
	session.CreatedAt = now
	session.UpdatedAt = now

	key := l.sessionKey(session.UploadID)
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"resumable_uri":    session.ResumableURI,
		"file_name":        session.FileName,
		"file_size":        session.FileSize,
		"mime_type":        session.MimeType,
		"next_offset":      session.NextOffset,
		"last_chunk_start": 0,
		"status":           string(models.UploadStatusOpen),
		"created_by":       session.CreatedBy.String(),
		"result":           "",
		"created_at":       now.UnixNano(),
		"updated_at":       now.UnixNano(),
	})
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	pipe.ZAdd(ctx, l.openKey(), redis.Z{Score: float64(now.Unix()), Member: session.UploadID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create upload session in redis: %w", err)
	}
	return nil
}

func (l *RedisLedger) Get(ctx context.Context, uploadID string) (*Session, error) {
	values, err := l.client.HGetAll(ctx, l.sessionKey(uploadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load upload session from redis: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}
	return sessionFromHash(uploadID, values)
}

func (l *RedisLedger) Advance(ctx context.Context, uploadID string, expected, chunkStart, next int64) error {
	return l.cas(ctx, uploadID, expected,
		"next_offset", strconv.FormatInt(next, 10),
		"last_chunk_start", strconv.FormatInt(chunkStart, 10),
		"updated_at", strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
	)
}

func (l *RedisLedger) Complete(ctx context.Context, uploadID string, expected, chunkStart int64, file *FileMetadata) error {
	encoded, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}
	size, err := l.client.HGet(ctx, l.sessionKey(uploadID), "file_size").Result()
	if errors.Is(err, redis.Nil) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("load upload session size: %w", err)
	}

	if err := l.cas(ctx, uploadID, expected,
		"status", string(models.UploadStatusCompleted),
		"next_offset", size,
		"last_chunk_start", strconv.FormatInt(chunkStart, 10),
		"result", string(encoded),
		"updated_at", strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
	); err != nil {
		return err
	}
	if err := l.client.ZRem(ctx, l.openKey(), uploadID).Err(); err != nil {
		return fmt.Errorf("unindex completed upload session: %w", err)
	}
	return nil
}

func (l *RedisLedger) cas(ctx context.Context, uploadID string, expected int64, fields ...string) error {
	args := make([]interface{}, 0, len(fields)+1)
	args = append(args, strconv.FormatInt(expected, 10))
	for _, field := range fields {
		args = append(args, field)
	}

	res, err := casScript.Run(ctx, l.client, []string{l.sessionKey(uploadID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("update upload session in redis: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrSessionNotFound
	default:
		return ErrOffsetConflict
	}
}

func (l *RedisLedger) ExpireOpenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := l.client.ZRangeByScore(ctx, l.openKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list stale upload sessions: %w", err)
	}

	var expired int64
	for _, id := range ids {
		offset, err := l.client.HGet(ctx, l.sessionKey(id), "next_offset").Result()
		if err == nil {
			current, _ := strconv.ParseInt(offset, 10, 64)
			err = l.cas(ctx, id, current,
				"status", string(models.UploadStatusExpired),
				"updated_at", strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
			)
			if err == nil {
				expired++
			}
		}
		if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrOffsetConflict) {
			return expired, err
		}
		if err := l.client.ZRem(ctx, l.openKey(), id).Err(); err != nil {
			return expired, fmt.Errorf("unindex stale upload session: %w", err)
		}
	}
	return expired, nil
}

func sessionFromHash(uploadID string, values map[string]string) (*Session, error) {
	parseInt := func(field string) int64 {
		n, _ := strconv.ParseInt(values[field], 10, 64)
		return n
	}

	createdBy, err := uuid.Parse(values["created_by"])
	if err != nil {
		return nil, fmt.Errorf("decode upload session owner: %w", err)
	}

	session := &Session{
		UploadID:       uploadID,
		ResumableURI:   values["resumable_uri"],
		FileName:       values["file_name"],
		FileSize:       parseInt("file_size"),
		MimeType:       values["mime_type"],
		NextOffset:     parseInt("next_offset"),
		LastChunkStart: parseInt("last_chunk_start"),
		Status:         models.UploadStatus(values["status"]),
		CreatedBy:      createdBy,
		CreatedAt:      time.Unix(0, parseInt("created_at")).UTC(),
		UpdatedAt:      time.Unix(0, parseInt("updated_at")).UTC(),
	}
	if raw := values["result"]; raw != "" {
		var file FileMetadata
		if err := json.Unmarshal([]byte(raw), &file); err != nil {
			return nil, fmt.Errorf("decode file metadata: %w", err)
		}
		session.File = &file
	}
	return session, nil
}
