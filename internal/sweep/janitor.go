// Package sweep retries object-storage deletions that failed during
// best-effort cleanup. Failed deletes are parked on a Redis stream and a
// background janitor retries them, so record mutations never block on
// storage cleanup but orphaned objects still get collected eventually.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizshow/internal/storage"
	"quizshow/internal/util"
)

// Janitor consumes parked deletion requests from a Redis stream.
type Janitor struct {
	client       *redis.Client
	objects      storage.ObjectStore
	stream       string
	group        string
	consumerBase string
	block        time.Duration
	claimIdle    time.Duration
	maxRetries   int
	maxLen       int64
	once         sync.Once
}

// Config configures the janitor.
type Config struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	Block      time.Duration
	ClaimIdle  time.Duration
	MaxRetries int
	MaxLen     int64
}

// NewJanitor builds a janitor over the given object store.
func NewJanitor(cfg Config, objects storage.ObjectStore) (*Janitor, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	if objects == nil {
		return nil, errors.New("object store required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "quizshow:sweep"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "janitor"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Janitor{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		objects:      objects,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		block:        block,
		claimIdle:    claimIdle,
		maxRetries:   maxRetries,
		maxLen:       maxLen,
	}, nil
}

// Enqueue parks a public URL whose object should be deleted.
func (j *Janitor) Enqueue(ctx context.Context, fileURL string) error {
	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" {
		return errors.New("file url required")
	}
	return j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: map[string]any{
			"url":      fileURL,
			"attempts": "0",
		},
	}).Err()
}

// Start launches consumer goroutines that run until ctx is canceled.
func (j *Janitor) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	j.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", j.consumerBase, i)
		go j.consumeLoop(ctx, consumer)
	}
}

// SweepOnce processes currently available messages and returns how many
// objects were removed or settled.
func (j *Janitor) SweepOnce(ctx context.Context) (int, error) {
	j.ensureGroup(ctx)
	return j.sweep(ctx, j.consumerBase, time.Millisecond)
}

func (j *Janitor) ensureGroup(ctx context.Context) {
	j.once.Do(func() {
		err := j.client.XGroupCreateMkStream(ctx, j.stream, j.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("sweep group create failed", "stream", j.stream, "err", err)
		}
	})
}

func (j *Janitor) consumeLoop(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := j.sweep(ctx, consumer, j.block); err != nil && ctx.Err() == nil {
			slog.Warn("sweep pass failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context, consumer string, block time.Duration) (int, error) {
	settled := 0

	claimed, _, err := j.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   j.stream,
		Group:    j.group,
		Consumer: consumer,
		MinIdle:  j.claimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("sweep autoclaim failed", "stream", j.stream, "err", err)
		}
	} else {
		for _, msg := range claimed {
			if j.handleMessage(ctx, msg) {
				settled++
			}
		}
	}

	streams, err := j.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    j.group,
		Consumer: consumer,
		Streams:  []string{j.stream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return settled, nil
		}
		return settled, err
	}
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if j.handleMessage(ctx, msg) {
				settled++
			}
		}
	}
	return settled, nil
}

// handleMessage returns true when the message is settled (object removed,
// already gone, or retries exhausted).
func (j *Janitor) handleMessage(ctx context.Context, msg redis.XMessage) bool {
	fileURL, _ := msg.Values["url"].(string)
	if fileURL == "" {
		j.ackAndDel(ctx, msg.ID)
		return false
	}
	attempts := 0
	if raw, ok := msg.Values["attempts"].(string); ok {
		attempts, _ = strconv.Atoi(raw)
	}

	deleted, err := j.objects.DeleteByURL(ctx, fileURL)
	if err == nil {
		if deleted {
			slog.Info("swept orphaned object", "url", fileURL, "attempts", attempts)
		}
		j.ackAndDel(ctx, msg.ID)
		return true
	}

	attempts++
	if attempts >= j.maxRetries {
		slog.Error("giving up on orphaned object", "url", fileURL, "attempts", attempts, "err", err)
		j.ackAndDel(ctx, msg.ID)
		return true
	}
	slog.Warn("sweep delete failed, requeueing", "url", fileURL, "attempts", attempts, "err", err)
	_ = j.requeueAndAck(ctx, msg.ID, fileURL, attempts)
	return false
}

func (j *Janitor) ackAndDel(ctx context.Context, msgID string) {
	_, _ = j.client.XAck(ctx, j.stream, j.group, msgID).Result()
	_, _ = j.client.XDel(ctx, j.stream, msgID).Result()
}

func (j *Janitor) requeueAndAck(ctx context.Context, msgID, fileURL string, attempts int) error {
	pipe := j.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: map[string]any{
			"url":      fileURL,
			"attempts": strconv.Itoa(attempts),
		},
	})
	pipe.XAck(ctx, j.stream, j.group, msgID)
	pipe.XDel(ctx, j.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}
