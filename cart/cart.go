package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Line is one cart entry. A missing or sentinel medicine id is skipped by
// the assembler; quantities below 1 never enter the cart.
type Line struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

// Cart is the Redis-persisted cart snapshot for one user.
type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Line    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository reads and clears carts. The cart is owned by the cart
// subsystem; the order engine only consumes it at checkout and clears it
// after the order is durable.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Delete(ctx context.Context, userID string) error
}

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) key(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}

// Get returns the user's cart, or nil when none exists.
func (r *RedisRepository) Get(ctx context.Context, userID string) (*Cart, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c Cart
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RedisRepository) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
