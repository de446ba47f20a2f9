package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Channel 返回用户的通知频道名，WebSocket 端按同样规则订阅。
func Channel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// Publisher 向用户推送一条 JSON 通知。
type Publisher interface {
	Publish(ctx context.Context, userID uint, message any) error
}

// RedisPublisher 通过 Redis Pub/Sub 转发通知。
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher 构造 RedisPublisher。
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish 序列化消息并发布到用户频道。
func (p *RedisPublisher) Publish(ctx context.Context, userID uint, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// PaymentMessage 支付结果通知，字段名与前端解析保持一致。
type PaymentMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	PaymentID uint   `json:"payment_id"`
	PlanID    uint   `json:"plan_id"`
	PlanName  string `json:"plan_name"`
}
