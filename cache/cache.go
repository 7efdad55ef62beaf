// Package cache keeps published surveys, with their questions, close to the
// public pages.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbolis/survey-builder/model"
	"github.com/redis/go-redis/v9"
)

// SurveyCache stores surveys by id. Get returns nil, nil on a miss.
type SurveyCache interface {
	Get(ctx context.Context, id int64) (*model.Survey, error)
	Set(ctx context.Context, survey *model.Survey) error
	Invalidate(ctx context.Context, id int64) error
}

type surveyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSurveyCache(client *redis.Client, ttl time.Duration) SurveyCache {
	return &surveyCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *surveyCache) key(id int64) string {
	return fmt.Sprintf("survey:%d", id)
}

func (c *surveyCache) Get(ctx context.Context, id int64) (*model.Survey, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var survey model.Survey
	if err := json.Unmarshal(data, &survey); err != nil {
		return nil, err
	}
	return &survey, nil
}

func (c *surveyCache) Set(ctx context.Context, survey *model.Survey) error {
	data, err := json.Marshal(survey)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(survey.ID), data, c.ttl).Err()
}

func (c *surveyCache) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

type nop struct{}

// Nop is used when no redis server is configured.
func Nop() SurveyCache {
	return nop{}
}

func (nop) Get(context.Context, int64) (*model.Survey, error) { return nil, nil }
func (nop) Set(context.Context, *model.Survey) error          { return nil }
func (nop) Invalidate(context.Context, int64) error           { return nil }
