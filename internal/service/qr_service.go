package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/staff-card-api/pkg/qr"
)

type qrEncoder interface {
	Encode(ctx context.Context, content string, opts qr.Options) ([]byte, error)
}

// QRService encodes profile links and keeps the resulting images in the shared cache.
// It satisfies cardpdf.QREncoder and is safe for concurrent use.
type QRService struct {
	encoder qrEncoder
	cache   *CacheService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewQRService constructs a QRService. A nil cache disables caching.
func NewQRService(encoder qrEncoder, cache *CacheService, ttl time.Duration, logger *zap.Logger) *QRService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRService{encoder: encoder, cache: cache, ttl: ttl, logger: logger}
}

// Encode returns the PNG payload for content, consulting the cache first.
func (s *QRService) Encode(ctx context.Context, content string, opts qr.Options) ([]byte, error) {
	key := qrCacheKey(content, opts)
	if payload, hit, err := s.cache.Get(ctx, key); err == nil && hit {
		return payload, nil
	}

	payload, err := s.encoder.Encode(ctx, content, opts)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		s.logger.Debug("qr payload not cached", zap.String("content", content), zap.Error(err))
	}
	return payload, nil
}

// Invalidate drops every cached image encoding content.
func (s *QRService) Invalidate(ctx context.Context, content string) error {
	return s.cache.Invalidate(ctx, "qr:*:"+content)
}

func qrCacheKey(content string, opts qr.Options) string {
	level := opts.ErrorCorrection
	if level == "" {
		level = qr.LevelHigh
	}
	size := opts.PixelSize
	if size <= 0 {
		size = qr.DefaultPixelSize
	}
	return fmt.Sprintf("qr:%s:%d:%s", level, size, content)
}
