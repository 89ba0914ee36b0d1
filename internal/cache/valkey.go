package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/jonathan/company-brochure/internal/types"
)

// DefaultConnectTimeout bounds the initial Valkey ping.
const DefaultConnectTimeout = 5 * time.Second

// ValkeyConfig holds the connection settings for a Valkey cache.
type ValkeyConfig struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Valkey is a Store backed by a Valkey (or Redis) server. Expiry is left
// to the server via SET EX.
type Valkey struct {
	inner  valkeylib.Client
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewValkey connects to Valkey and verifies the connection with a ping.
// The caller must call Close.
func NewValkey(cfg ValkeyConfig, ttl time.Duration, log logrus.FieldLogger) (*Valkey, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	return newValkeyWithClient(inner, cfg.KeyPrefix, ttl, log), nil
}

func newValkeyWithClient(inner valkeylib.Client, prefix string, ttl time.Duration, log logrus.FieldLogger) *Valkey {
	if prefix == "" {
		prefix = "brochure"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.New()
	}
	return &Valkey{
		inner:  inner,
		prefix: prefix + "page:",
		ttl:    ttl,
		log:    log,
	}
}

func (v *Valkey) key(k string) string {
	return v.prefix + k
}

// Get returns cached content. Backend errors are logged and reported as misses.
func (v *Valkey) Get(ctx context.Context, key string) (types.PageContent, bool) {
	data, err := v.inner.Do(ctx, v.inner.B().Get().Key(v.key(key)).Build()).AsBytes()
	if err != nil {
		if !valkeylib.IsValkeyNil(err) {
			v.log.WithError(err).WithField("url", key).Warn("valkey cache get failed")
		}
		return types.PageContent{}, false
	}

	var content types.PageContent
	if err := json.Unmarshal(data, &content); err != nil {
		v.log.WithError(err).WithField("url", key).Warn("discarding undecodable cache entry")
		return types.PageContent{}, false
	}
	return content, true
}

// Put stores content with the cache TTL.
func (v *Valkey) Put(ctx context.Context, key string, content types.PageContent) {
	content.FromCache = false
	data, err := json.Marshal(content)
	if err != nil {
		v.log.WithError(err).WithField("url", key).Warn("failed to encode cache entry")
		return
	}
	cmd := v.inner.B().Set().Key(v.key(key)).Value(string(data)).Ex(v.ttl).Build()
	if err := v.inner.Do(ctx, cmd).Error(); err != nil {
		v.log.WithError(err).WithField("url", key).Warn("valkey cache put failed")
	}
}

// ClearExpired is a no-op: Valkey expires keys itself.
func (v *Valkey) ClearExpired(_ context.Context) int {
	return 0
}

// Clear deletes every key under the cache prefix.
func (v *Valkey) Clear(ctx context.Context) {
	var cursor uint64
	for {
		cmd := v.inner.B().Scan().Cursor(cursor).Match(v.prefix + "*").Count(100).Build()
		result, err := v.inner.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			v.log.WithError(err).Warn("valkey cache scan failed")
			return
		}
		if len(result.Elements) > 0 {
			if err := v.inner.Do(ctx, v.inner.B().Del().Key(result.Elements...).Build()).Error(); err != nil {
				v.log.WithError(err).Warn("valkey cache delete failed")
				return
			}
		}
		cursor = result.Cursor
		if cursor == 0 {
			return
		}
	}
}

// Close closes the Valkey connection.
func (v *Valkey) Close() {
	if v.inner != nil {
		v.inner.Close()
	}
}
