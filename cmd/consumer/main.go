package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"streamrelay/model"
	"streamrelay/platform"
)

const (
	consumerGroup = "relay-consumers"
	batchSize     = 100
	blockInterval = 5 * time.Second
)

var logger = platform.Logger

// ensureConsumerGroup creates the group at the stream tail, tolerating
// the BUSYGROUP reply when another worker got there first.
func ensureConsumerGroup(ctx context.Context, rdb *redis.Client) error {
	err := rdb.XGroupCreateMkStream(ctx, model.EventStreamKey, consumerGroup, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func handleEntry(id string, values map[string]interface{}) {
	event := model.StreamEventFromValues(values)
	logger.Infof("[%s] %s message %s in conversation %s: %s",
		id, event.Role, event.MessageId, event.ConversationId, event.Content)
}

// run consumes fan-out records until ctx is cancelled. Entries are
// acknowledged after handling; a crashed worker leaves them pending for
// redelivery, so downstream processing is at-least-once.
func run(ctx context.Context, rdb *redis.Client, workerId string) error {
	if err := ensureConsumerGroup(ctx, rdb); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	logger.Infof("worker %s consuming %s as group %s", workerId, model.EventStreamKey, consumerGroup)

	for {
		streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: workerId,
			Streams:  []string{model.EventStreamKey, ">"},
			Count:    batchSize,
			Block:    blockInterval,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnf("read group failed, retrying: %s", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				handleEntry(entry.ID, entry.Values)
				if err := rdb.XAck(ctx, model.EventStreamKey, consumerGroup, entry.ID).Err(); err != nil {
					logger.Warnf("ack %s failed: %s", entry.ID, err)
				}
			}
		}
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Println("failed to load the env file")
	}

	platform.InitRedis()
	if platform.RDB == nil {
		logger.Error("redis unavailable, exiting")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerId := fmt.Sprintf("worker-%d", os.Getpid())
	if err := run(ctx, platform.RDB, workerId); err != nil {
		logger.Errorf("consumer stopped: %s", err)
		os.Exit(1)
	}
	logger.Infof("worker %s shut down", workerId)
}
