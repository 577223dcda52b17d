package queue

import (
	"fmt"
	"path/filepath"
	"strings"

	"filmstrip/internal/textutil"
)

// StagingRoot returns the per-item staging directory rooted at base. The
// upload token keeps concurrent items from colliding; items without a token
// fall back to queue-{ID}.
func (i Item) StagingRoot(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	segment := strings.TrimSpace(i.Token)
	if segment == "" {
		segment = fmt.Sprintf("queue-%d", i.ID)
	}
	segment = textutil.SanitizeToken(segment)
	return filepath.Join(base, segment)
}

// OutputBasename returns the filesystem-safe stem used for rendered and
// published artifacts derived from the uploaded filename.
func (i Item) OutputBasename() string {
	base := filepath.Base(strings.TrimSpace(i.Filename))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = textutil.SanitizeToken(stem)
	if stem == "unknown" {
		return fmt.Sprintf("render-%d", i.ID)
	}
	return stem
}
