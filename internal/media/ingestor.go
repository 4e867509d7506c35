// Package media copies gateway attachments into durable object storage.
package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/common"
	"github.com/suPer8Hu/salesbot/internal/gateway"
	"github.com/suPer8Hu/salesbot/internal/metrics"
	"github.com/suPer8Hu/salesbot/internal/store/objectstore"
)

// Fetcher resolves and downloads a gateway attachment.
type Fetcher interface {
	FetchMedia(ctx context.Context, creds gateway.Creds, mediaID string) ([]byte, string, error)
}

type Ingestor struct {
	fetcher Fetcher
	store   objectstore.Store
	prefix  string
}

func NewIngestor(fetcher Fetcher, store objectstore.Store, prefix string) *Ingestor {
	if prefix == "" {
		prefix = "tenants"
	}
	return &Ingestor{fetcher: fetcher, store: store, prefix: strings.Trim(prefix, "/")}
}

// Ingest downloads mediaID and uploads it under the chat's inbound folder,
// returning the public URL.
func (i *Ingestor) Ingest(ctx context.Context, tenantID string, creds gateway.Creds, chatID uint64, mediaID, mime string) (string, error) {
	if i.store == nil {
		return "", objectstore.ErrNotConfigured
	}
	data, fetchedMime, err := i.fetcher.FetchMedia(ctx, creds, mediaID)
	if err != nil {
		metrics.DegradedSteps.WithLabelValues("media_download").Inc()
		return "", fmt.Errorf("download media %s: %w", mediaID, err)
	}
	if mime == "" {
		mime = fetchedMime
	}

	key, err := i.Key(tenantID, chatID, "inbound", objectstore.ExtFor(mime))
	if err != nil {
		return "", err
	}
	url, err := i.store.Put(ctx, key, data, mime)
	if err != nil {
		metrics.DegradedSteps.WithLabelValues("media_upload").Inc()
		return "", err
	}
	log.Info().Str("tenant", tenantID).Uint64("chat", chatID).Str("media", mediaID).Str("url", url).Msg("media ingested")
	return url, nil
}

// Store uploads generated content (synthesized audio) for the chat.
func (i *Ingestor) Store(ctx context.Context, tenantID string, chatID uint64, data []byte, mime string) (string, error) {
	if i.store == nil {
		return "", objectstore.ErrNotConfigured
	}
	key, err := i.Key(tenantID, chatID, "outbound", objectstore.ExtFor(mime))
	if err != nil {
		return "", err
	}
	return i.store.Put(ctx, key, data, mime)
}

// Key builds <prefix>/<tenant>/chats/<chat>/<direction>/<ulid><ext>.
func (i *Ingestor) Key(tenantID string, chatID uint64, direction, ext string) (string, error) {
	id, err := common.NewULID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/chats/%d/%s/%s%s", i.prefix, tenantID, chatID, direction, id, ext), nil
}
