package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teledrive-vn/teledrive/internal/drive/biz"
	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"github.com/teledrive-vn/teledrive/internal/pkg/redis"
	"go.uber.org/zap"
)

const listingTTL = 5 * time.Minute

type cachedListing struct {
	Files []*biz.File `json:"files"`
	Total int64       `json:"total"`
}

// ListingCache implements biz.ListingCache on redis. Failures degrade
// to cache misses, the database stays the source of truth.
type ListingCache struct {
	rdb    *redis.Client
	logger *logger.Logger
}

func NewListingCache(rdb *redis.Client, log *logger.Logger) biz.ListingCache {
	return &ListingCache{rdb: rdb, logger: log}
}

func listingKey(ownerID int64, page, perPage int) string {
	return fmt.Sprintf("files:list:%d:%d:%d", ownerID, page, perPage)
}

func (c *ListingCache) GetListing(ctx context.Context, ownerID int64, page, perPage int) ([]*biz.File, int64, bool) {
	raw, err := c.rdb.Get(ctx, listingKey(ownerID, page, perPage))
	if err != nil {
		if !redis.IsNil(err) {
			c.logger.Warn("listing cache read failed", zap.Error(err))
		}
		return nil, 0, false
	}

	var cached cachedListing
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.logger.Warn("listing cache entry corrupt", zap.Error(err))
		return nil, 0, false
	}
	return cached.Files, cached.Total, true
}

func (c *ListingCache) PutListing(ctx context.Context, ownerID int64, page, perPage int, files []*biz.File, total int64) {
	payload, err := json.Marshal(cachedListing{Files: files, Total: total})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, listingKey(ownerID, page, perPage), payload, listingTTL); err != nil {
		c.logger.Warn("listing cache write failed", zap.Error(err))
	}
}

func (c *ListingCache) InvalidateOwner(ctx context.Context, ownerID int64) {
	pattern := fmt.Sprintf("files:list:%d:*", ownerID)
	if _, err := c.rdb.DelPattern(ctx, pattern); err != nil {
		c.logger.Warn("listing cache invalidation failed",
			zap.Int64("owner_id", ownerID),
			zap.Error(err),
		)
	}
}
