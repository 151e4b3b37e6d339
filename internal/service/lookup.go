package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/repo"
)

// resolved is a tag found by resolveTag, with the key that matched it.
type resolved struct {
	tag     domain.Tag
	byStamp bool
}

// resolveTag is the single dual-key resolver. The key is normalized, tried as
// a tag code, then as a tannery stamp code. Not matching either is NotFound,
// distinct from any rejection the tag's state would produce.
func resolveTag(ctx context.Context, tags repo.TagRepo, key string) (resolved, error) {
	key = domain.NormalizeKey(key)
	if key == "" {
		return resolved{}, domain.Reject(domain.ErrInvalidInput, domain.ReasonMissingField, "tag code or stamp code is required")
	}

	tag, err := tags.GetByCode(ctx, key)
	if err == nil {
		return resolved{tag: tag}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return resolved{}, fmt.Errorf("resolve %s: %w", key, err)
	}

	tag, err = tags.GetByStampCode(ctx, key)
	if err == nil {
		return resolved{tag: tag, byStamp: true}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return resolved{}, fmt.Errorf("resolve %s: %w", key, err)
	}
	return resolved{}, domain.Reject(domain.ErrNotFound, domain.ReasonTagNotFound, "no tag or stamp code matches %s", key)
}
