package websocket

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mapit-backend/internal/models"
)

// ChannelName is the redis pub/sub channel carrying userID's updates.
func ChannelName(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

// Publisher sends messages to a user's sockets through redis, so any
// server instance holding the socket can deliver them.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// Publish is best effort; failures are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("publish to user %s: marshal: %v", userID, err)
		return
	}
	if err := p.redis.Publish(ctx, ChannelName(userID), data).Err(); err != nil {
		log.Printf("publish to user %s: %v", userID, err)
	}
}
