// Package permsync is the live permission sync layer. It loads effective
// permission sets from the RBAC store, caches them, listens on Redis
// pub/sub for grant changes so open sessions converge quickly, and
// refreshes periodically as a safety net for missed messages.
package permsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"

	"github.com/secopshq/console/pkg/observability"
	"github.com/secopshq/console/pkg/rbac"
)

const channelPrefix = "rbac:changed:"

// memberKey identifies one member's cached permission set.
type memberKey struct {
	tenantID int64
	userID   int64
}

// changeEvent is the pub/sub payload for a grant change. UserID 0 means
// every member of the tenant.
type changeEvent struct {
	TenantID int64 `json:"tenant_id"`
	UserID   int64 `json:"user_id"`
}

// Source resolves live permission sets. It implements rbac.SyncSource
// for the request path and rbac.ChangeNotifier for the management API.
type Source struct {
	store  *rbac.Store
	client *redis.Client
	cache  *expirable.LRU[memberKey, []rbac.Permission]
	logger *observability.Logger
	cron   *cron.Cron

	pubsub *redis.PubSub
	done   chan struct{}
}

// Options tunes the sync source. Zero values pick sensible defaults.
type Options struct {
	// CacheSize bounds the number of cached member sets.
	CacheSize int
	// CacheTTL bounds staleness when neither pub/sub nor the periodic
	// refresh reaches an entry.
	CacheTTL time.Duration
	// RefreshSchedule is a cron expression for the full cache refresh.
	RefreshSchedule string
}

func (o Options) withDefaults() Options {
	if o.CacheSize <= 0 {
		o.CacheSize = 4096
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.RefreshSchedule == "" {
		o.RefreshSchedule = "@every 10m"
	}
	return o
}

// NewSource creates a sync source. Call Start to begin listening for
// change events; without it the source still works, converging on the
// cache TTL alone.
func NewSource(store *rbac.Store, client *redis.Client, logger *observability.Logger, opts Options) *Source {
	opts = opts.withDefaults()
	s := &Source{
		store:  store,
		client: client,
		cache:  expirable.NewLRU[memberKey, []rbac.Permission](opts.CacheSize, nil, opts.CacheTTL),
		logger: logger.WithField("component", "permsync"),
		cron:   cron.New(),
		done:   make(chan struct{}),
	}
	// The periodic purge forces reloads even for entries that pub/sub
	// missed, for example during a Redis outage.
	if _, err := s.cron.AddFunc(opts.RefreshSchedule, func() {
		s.cache.Purge()
		s.logger.Debug("Purged permission cache for periodic refresh")
	}); err != nil {
		s.logger.WithError(err).Error("Failed to schedule permission refresh")
	}
	return s
}

// Start subscribes to grant change events and starts the periodic
// refresh. It returns once the subscription is established.
func (s *Source) Start(ctx context.Context) error {
	s.pubsub = s.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to grant changes: %w", err)
	}
	go s.listen()
	s.cron.Start()
	return nil
}

// Stop shuts down the subscription and the refresh schedule.
func (s *Source) Stop() {
	close(s.done)
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	<-s.cron.Stop().Done()
}

// State returns the member's live permission state. A cache miss loads
// from the store synchronously; only a load failure reports Loading, so
// callers fall back to session claims instead of an empty set.
func (s *Source) State(ctx context.Context, tenantID, userID int64) rbac.SyncState {
	key := memberKey{tenantID: tenantID, userID: userID}
	if perms, ok := s.cache.Get(key); ok {
		return rbac.SyncState{Permissions: perms}
	}

	perms, err := s.store.EffectivePermissions(ctx, tenantID, userID)
	if err != nil {
		s.logger.WithError(err).
			WithFields(map[string]interface{}{"tenant_id": tenantID, "user_id": userID}).
			Warn("Failed to load permissions, reporting loading")
		return rbac.SyncState{Loading: true}
	}
	if perms == nil {
		// Unknown member: a loaded empty set. Cached and trusted, it must
		// not fall back to claims.
		perms = []rbac.Permission{}
	}
	s.cache.Add(key, perms)
	return rbac.SyncState{Permissions: perms}
}

// NotifyChange publishes a grant change so every replica invalidates the
// affected entries. userID 0 targets the whole tenant.
func (s *Source) NotifyChange(ctx context.Context, tenantID, userID int64) error {
	// Local invalidation first: the publisher's own next read must be
	// fresh even if Redis is down.
	s.invalidate(tenantID, userID)

	payload, err := json.Marshal(changeEvent{TenantID: tenantID, UserID: userID})
	if err != nil {
		return err
	}
	channel := fmt.Sprintf("%s%d", channelPrefix, tenantID)
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish grant change: %w", err)
	}
	return nil
}

func (s *Source) listen() {
	defer observability.RecoverPanic(s.logger, "permission sync listener")
	ch := s.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event changeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.WithError(err).WithField("channel", msg.Channel).Warn("Ignoring malformed grant change event")
				continue
			}
			s.invalidate(event.TenantID, event.UserID)
		case <-s.done:
			return
		}
	}
}

// invalidate drops cached entries for one member, or for every member of
// the tenant when userID is 0.
func (s *Source) invalidate(tenantID, userID int64) {
	if userID != 0 {
		s.cache.Remove(memberKey{tenantID: tenantID, userID: userID})
		return
	}
	for _, key := range s.cache.Keys() {
		if key.tenantID == tenantID {
			s.cache.Remove(key)
		}
	}
}
