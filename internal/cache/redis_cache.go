package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"centralkitchen/backend/internal/domain"
)

const recipeKeyPrefix = "centralkitchen:recipe:"

type RedisRecipeCache struct {
	client *redis.Client
}

func NewRedisRecipeCache(addr string, password string, db int) *RedisRecipeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRecipeCache{client: client}
}

func (c *RedisRecipeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRecipeCache) Close() error {
	return c.client.Close()
}

func (c *RedisRecipeCache) Get(ctx context.Context, productID string) (*domain.Recipe, bool, error) {
	val, err := c.client.Get(ctx, recipeKeyPrefix+productID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var recipe domain.Recipe
	if err := json.Unmarshal(val, &recipe); err != nil {
		return nil, false, err
	}
	return &recipe, true, nil
}

func (c *RedisRecipeCache) Set(ctx context.Context, recipe domain.Recipe, ttl time.Duration) error {
	payload, err := json.Marshal(recipe)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, recipeKeyPrefix+recipe.ProductID, payload, ttl).Err()
}

func (c *RedisRecipeCache) Delete(ctx context.Context, productID string) error {
	return c.client.Del(ctx, recipeKeyPrefix+productID).Err()
}
