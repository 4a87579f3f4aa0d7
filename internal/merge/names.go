package merge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Directory resolves attendee emails to display names in one batch.
type Directory interface {
	ResolveDisplayNames(ctx context.Context, emails []string) (map[string]string, error)
}

// NameCache memoizes Directory lookups for a fixed window. When the window
// ends the whole map is dropped and rebuilt on demand; entries are never
// invalidated one by one. Unknown emails are remembered as misses so they
// do not cost a query on every read.
type NameCache struct {
	dir Directory
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger

	mu      sync.Mutex
	names   map[string]string
	expires time.Time
}

// NewNameCache builds a cache over dir. ttl <= 0 means five minutes.
func NewNameCache(dir Directory, ttl time.Duration, now func() time.Time, log zerolog.Logger) *NameCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &NameCache{dir: dir, ttl: ttl, now: now, log: log, names: map[string]string{}}
}

// Resolve returns a display name for every email. Emails the directory does
// not know get a name derived from their local part.
func (n *NameCache) Resolve(ctx context.Context, emails []string) map[string]string {
	out := make(map[string]string, len(emails))

	n.mu.Lock()
	now := n.now()
	if !now.Before(n.expires) {
		n.names = map[string]string{}
		n.expires = now.Add(n.ttl)
	}
	var missing []string
	seen := map[string]bool{}
	for _, e := range emails {
		key := normalizeEmail(e)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := n.names[key]; !ok {
			missing = append(missing, key)
		}
	}
	n.mu.Unlock()

	if len(missing) > 0 && n.dir != nil {
		found, err := n.dir.ResolveDisplayNames(ctx, missing)
		if err != nil {
			n.log.Warn().Err(err).Int("emails", len(missing)).Msg("display name lookup failed")
		} else {
			n.mu.Lock()
			for _, key := range missing {
				n.names[key] = found[key]
			}
			n.mu.Unlock()
		}
	}

	n.mu.Lock()
	for key := range seen {
		if name := n.names[key]; name != "" {
			out[key] = name
		} else {
			out[key] = FallbackName(key)
		}
	}
	n.mu.Unlock()
	return out
}

// Name looks up one email in a map returned by Resolve.
func Name(names map[string]string, email string) string {
	if name, ok := names[normalizeEmail(email)]; ok {
		return name
	}
	return FallbackName(email)
}

// FallbackName turns "jane.doe@example.com" into "Jane Doe".
func FallbackName(email string) string {
	local := strings.TrimSpace(email)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[:i]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	if len(parts) == 0 {
		return strings.TrimSpace(email)
	}
	return cases.Title(language.Und).String(strings.Join(parts, " "))
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
