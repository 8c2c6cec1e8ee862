package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingRecordVersion1 = 1
)

var (
	ErrPendingNotFound  = errors.New("pending login not found")
	ErrPendingExpired   = errors.New("pending login expired")
	ErrPendingAccount   = errors.New("pending login belongs to another account")
	ErrPendingBackend   = errors.New("pending login backend unavailable")
	errPendingIDTooLong = errors.New("pending login account id too long")
)

// PendingLogin is the server-side half of a PENDING token: the token says who
// passed the password step, this record says the step has not been used up.
type PendingLogin struct {
	AccountID string
	ExpiresAt int64
	Attempts  uint16
}

// PendingLoginStore keeps one record per PENDING token, keyed by its jti.
type PendingLoginStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingLoginStore(redisClient redis.UniversalClient, prefix string) *PendingLoginStore {
	if prefix == "" {
		prefix = "apl"
	}
	return &PendingLoginStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingLoginStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Save stores record until its expiry.
func (s *PendingLoginStore) Save(ctx context.Context, tokenID string, record *PendingLogin) error {
	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrPendingExpired
	}
	encoded, err := encodePendingLogin(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	return nil
}

// Get loads the record for tokenID and checks it belongs to accountID.
func (s *PendingLoginStore) Get(ctx context.Context, tokenID, accountID string) (*PendingLogin, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}

	record, err := decodePendingLogin(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(tokenID)).Result()
		return nil, ErrPendingExpired
	}
	if record.AccountID != accountID {
		return nil, ErrPendingAccount
	}
	return record, nil
}

// Consume deletes the record. Only the first caller for a given tokenID gets
// a nil error; every later call sees ErrPendingNotFound.
func (s *PendingLoginStore) Consume(ctx context.Context, tokenID string) error {
	n, err := s.redis.Del(ctx, s.key(tokenID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	if n == 0 {
		return ErrPendingNotFound
	}
	return nil
}

// RecordFailure counts a wrong code. Once maxAttempts is reached the record is
// deleted and exceeded is true.
func (s *PendingLoginStore) RecordFailure(
	ctx context.Context,
	tokenID string,
	maxAttempts int,
) (exceeded bool, err error) {
	const maxRetries = 4
	key := s.key(tokenID)

	deleteKey := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		exceeded = false
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingLogin(data)
			if err != nil {
				return err
			}
			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				if err := deleteKey(tx); err != nil {
					return err
				}
				return ErrPendingExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				return deleteKey(tx)
			}

			updated, err := encodePendingLogin(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrPendingNotFound
			}
			if errors.Is(err, ErrPendingExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrPendingBackend, err)
		}
		return exceeded, nil
	}

	return false, fmt.Errorf("%w: too much contention", ErrPendingBackend)
}

func encodePendingLogin(record *PendingLogin) ([]byte, error) {
	if len(record.AccountID) > 65535 {
		return nil, errPendingIDTooLong
	}

	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	return buf.Bytes(), nil
}

func decodePendingLogin(data []byte) (*PendingLogin, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, errors.New("invalid pending login version")
	}

	record := &PendingLogin{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.AccountID = string(id)
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in pending login record")
	}

	return record, nil
}
