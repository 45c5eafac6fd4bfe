package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// mirrorLetterhead publishes the profile's letterhead image and returns its
// public URL. The upload is gated on a content hash persisted locally:
// identical content is never re-uploaded and costs zero network calls.
// Failures are swallowed — a letterhead problem must never block the rest
// of a sync — so the previous URL (possibly empty) comes back instead.
func (e *Engine) mirrorLetterhead(ctx context.Context, deviceID, content string) string {
	savedHash, savedURL, err := e.store.AssetRef()
	if err != nil {
		e.logger.WithError(err).Warn("Letterhead mirror: cannot read asset state")
		return ""
	}

	if content == "" {
		return savedURL
	}

	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])
	if hash == savedHash {
		return savedURL
	}

	data, err := decodeImage(content)
	if err != nil {
		e.logger.WithError(err).Warn("Letterhead mirror: image is not valid base64")
		return savedURL
	}

	// Timestamp-suffixed names never overwrite a prior object; old
	// letterheads stay downloadable for anyone still holding their URL.
	name := fmt.Sprintf("%s_header_%d.png", deviceID, time.Now().UnixMilli())

	url, err := e.objects.Upload(ctx, name, data, "image/png")
	if err != nil {
		e.metrics.assetUploads.WithLabelValues("error").Inc()
		e.logger.WithError(err).Warn("Letterhead mirror: upload failed")
		return savedURL
	}
	e.metrics.assetUploads.WithLabelValues("ok").Inc()

	if err := e.store.SetAssetRef(hash, url); err != nil {
		e.logger.WithError(err).Warn("Letterhead mirror: cannot persist asset state")
	}
	return url
}

// decodeImage accepts a bare base64 payload or a data URL.
func decodeImage(content string) ([]byte, error) {
	payload := content
	if strings.HasPrefix(content, "data:") {
		idx := strings.Index(content, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data url")
		}
		payload = content[idx+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}
