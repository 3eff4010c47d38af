package emailauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/krista-software/krista-email-authentication/internal"
	"github.com/redis/go-redis/v9"
)

const (
	linkKeyPrefix       = "secret-"
	linkRecordVersionV1 = 1

	linkStateGenerated uint8 = 1
	linkStateUsed      uint8 = 2
)

// Expired links stay resolvable for the distinct expiry error until Redis
// reclaims them.
const linkRetention = 24 * time.Hour

var (
	errLinkNotFound         = errors.New("link record not found")
	errLinkExpired          = errors.New("link record expired")
	errLinkUsed             = errors.New("link record already used")
	errLinkSecretMismatch   = errors.New("link record secret mismatch")
	errLinkRedisUnavailable = errors.New("link redis unavailable")
)

type verificationLinkRecord struct {
	Email            string
	Secret           string
	ExpiresAt        int64
	State            uint8
	PendingSessionID string
	PendingAccountID string
}

type linkStore struct {
	redis  *redis.Client
	prefix string
}

func newLinkStore(redisClient *redis.Client) *linkStore {
	return &linkStore{
		redis:  redisClient,
		prefix: linkKeyPrefix,
	}
}

func (s *linkStore) key(secret string) string {
	return s.prefix + secret
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *linkStore) Save(ctx context.Context, record *verificationLinkRecord) error {
	encoded, err := encodeVerificationLinkRecord(record)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + linkRetention

	if err := s.redis.Set(ctx, s.key(record.Secret), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLinkRedisUnavailable, err)
	}

	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *linkStore) Get(ctx context.Context, secret string) (*verificationLinkRecord, error) {
	data, err := s.redis.Get(ctx, s.key(secret)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errLinkNotFound
		}
		return nil, fmt.Errorf("%w: %v", errLinkRedisUnavailable, err)
	}

	return decodeVerificationLinkRecord(data)
}

// Remove describes the remove operation and its observable behavior.
//
// Remove may return an error when input validation, dependency calls, or security checks fail.
// Remove does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *linkStore) Remove(ctx context.Context, secret string) error {
	if err := s.redis.Del(ctx, s.key(secret)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errLinkRedisUnavailable, err)
	}
	return nil
}

// Consume atomically transitions a Generated link to Used and returns the
// record. The expiry check strictly precedes the state check, expired records
// are deleted on lookup, and the whole read-check-write sequence runs under an
// optimistic Redis WATCH so concurrent verifications of the same secret see at
// most one success.
//
// policyCheck runs after the record validates and before the Used transition
// is written; a policy failure leaves the record untouched so the link stays
// consumable once policy allows it.
func (s *linkStore) Consume(
	ctx context.Context,
	code string,
	policyCheck func(email string) error,
) (*verificationLinkRecord, error) {
	const maxRetries = 4
	key := s.key(code)

	for i := 0; i < maxRetries; i++ {
		var consumed *verificationLinkRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeVerificationLinkRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errLinkExpired
			}

			if record.State != linkStateGenerated {
				return errLinkUsed
			}

			if !internal.SecretsEqual(record.Secret, code) {
				return errLinkSecretMismatch
			}

			if policyCheck != nil {
				if err := policyCheck(record.Email); err != nil {
					return err
				}
			}

			used := *record
			used.State = linkStateUsed

			updated, err := encodeVerificationLinkRecord(&used)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + linkRetention

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errLinkNotFound
			case errors.Is(err, errLinkNotFound),
				errors.Is(err, errLinkExpired),
				errors.Is(err, errLinkUsed),
				errors.Is(err, errLinkSecretMismatch),
				errors.Is(err, ErrDomainNotSupported):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errLinkRedisUnavailable, err)
			}
		}

		return consumed, nil
	}

	return nil, errLinkUsed
}

func encodeVerificationLinkRecord(record *verificationLinkRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(linkRecordVersionV1)
	buf.WriteByte(record.State)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.Email, record.Secret, record.PendingSessionID, record.PendingAccountID} {
		if len(field) > 65535 {
			return nil, errors.New("link record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeVerificationLinkRecord(data []byte) (*verificationLinkRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != linkRecordVersionV1 {
		return nil, errors.New("invalid link record version")
	}

	state, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &verificationLinkRecord{State: state}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	fields := []*string{&record.Email, &record.Secret, &record.PendingSessionID, &record.PendingAccountID}
	for _, field := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in link record")
	}

	return record, nil
}
