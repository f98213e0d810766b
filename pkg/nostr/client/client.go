// Package client is the top-level surface of the protocol engine. It owns
// the key signer, the relay pool, the subscription registry, the event
// cache and the direct message inbox, and exposes one facade that
// applications drive.
package client

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/normalize"
	"github.com/nostric/connectr/pkg/nostr/cache"
	"github.com/nostric/connectr/pkg/nostr/dm"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/nostr/keys"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/pool"
	"github.com/nostric/connectr/pkg/nostr/registry"
	"github.com/nostric/connectr/pkg/nostr/relay"
	"github.com/nostric/connectr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// State is the lifecycle phase of the client.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Capabilities switches feature groups on and off. A call into a disabled
// group fails at the facade boundary with a FeatureDisabled error before
// touching any relay.
type Capabilities struct {
	Publish        bool `json:"publish"`
	Subscribe      bool `json:"subscribe"`
	DirectMessages bool `json:"direct_messages"`
}

// AllCapabilities enables everything.
var AllCapabilities = Capabilities{
	Publish:        true,
	Subscribe:      true,
	DirectMessages: true,
}

// Config carries everything the client needs to start.
type Config struct {
	Relays []string `json:"relays"`

	// SecretKey is a 64-character hex secret key. Leave it empty together
	// with PublicKey to run watch-only.
	SecretKey string `json:"secret_key,omitempty"`
	PublicKey string `json:"public_key,omitempty"`

	AutoConnect      bool         `json:"auto_connect"`
	ConnectTimeoutMS int          `json:"connect_timeout_ms,omitempty"`
	MaxRelays        int          `json:"max_relays,omitempty"`
	CacheTTLMS       int          `json:"cache_ttl_ms,omitempty"`
	Capabilities     Capabilities `json:"capabilities"`
}

func (cfg *Config) connectTimeout() time.Duration {
	if cfg.ConnectTimeoutMS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond
}

func (cfg *Config) cacheTTL() time.Duration {
	if cfg.CacheTTLMS <= 0 {
		return cache.DefaultTTL
	}
	return time.Duration(cfg.CacheTTLMS) * time.Millisecond
}

// T is the client facade. All methods are safe for concurrent use.
type T struct {
	cfg Config

	ctx    context.T
	cancel context.F

	state atomic.Int32

	mutex  sync.Mutex
	signer *keys.Signer

	pool     *pool.Pool
	registry *registry.T
	cache    *cache.T
	inbox    *dm.Inbox

	feedCancel context.F

	// one network cancel per live Subscribe, keyed by registry id
	subCancels map[string]context.F
}

// New builds a client from the config without touching the network. The
// relay URLs are normalized; a config with no relays is accepted here and
// only fails when an operation actually needs one.
func New(c context.T, cfg Config) (cl *T, err error) {
	for i, u := range cfg.Relays {
		cfg.Relays[i] = normalize.URL(u)
	}
	ctx, cancel := context.Cancel(c)
	cl = &T{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		registry:   registry.New(),
		cache:      cache.New(cfg.cacheTTL()),
		inbox:      dm.NewInbox(),
		subCancels: make(map[string]context.F),
	}
	if cfg.SecretKey != "" {
		if cl.signer, err = keys.Import(cfg.SecretKey); err != nil {
			cancel()
			return nil, errs.Wrap(errs.Initialization,
				"invalid secret key in config: %s", err.Error())
		}
	} else if cfg.PublicKey != "" {
		if cl.signer, err = keys.WatchOnly(cfg.PublicKey); err != nil {
			cancel()
			return nil, errs.Wrap(errs.Initialization,
				"invalid public key in config: %s", err.Error())
		}
	}
	if cfg.AutoConnect {
		if err = cl.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	return cl, nil
}

// State returns the current lifecycle phase.
func (cl *T) State() State { return State(cl.state.Load()) }

func (cl *T) setState(s State) { cl.state.Store(int32(s)) }

// Initialize connects the relay pool and starts the internal event feed.
// It is valid from Uninitialized and from Disconnected; a failed attempt
// returns the client to Uninitialized.
func (cl *T) Initialize(c context.T) (err error) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	switch cl.State() {
	case Uninitialized, Disconnected:
	default:
		return errs.Wrap(errs.Initialization,
			"cannot initialize from state %s", cl.State())
	}
	if len(cl.cfg.Relays) == 0 {
		return errs.Wrap(errs.Initialization, "no relays configured")
	}
	cl.setState(Initializing)

	maxRelays := cl.cfg.MaxRelays
	if maxRelays <= 0 {
		maxRelays = pool.DefaultMaxRelays
	}
	cl.pool = pool.New(cl.ctx, pool.WithMaxRelays(maxRelays))

	ctx, cancel := context.Timeout(c, cl.cfg.connectTimeout())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cl.pool.Connect(cl.cfg.Relays) }()
	select {
	case err = <-done:
	case <-ctx.Done():
		err = errs.Wrap(errs.Initialization, "connect timed out after %v",
			cl.cfg.connectTimeout())
	}
	if err != nil {
		cl.pool.DisconnectAll()
		cl.pool = nil
		cl.setState(Uninitialized)
		return err
	}

	cl.startFeed()
	cl.setState(Ready)
	log.I.F("client ready with %d relays", len(cl.pool.ConnectedRelays()))
	return nil
}

// startFeed opens the always-on subscription that keeps the cache and the
// direct message inbox fed. Caller holds cl.mutex.
func (cl *T) startFeed() {
	ff := filters.T{{
		Kinds: []kind.T{kind.ProfileMetadata, kind.TextNote,
			kind.FollowList},
	}}
	if cl.cfg.Capabilities.DirectMessages && cl.signer != nil &&
		!cl.signer.ReadOnly() {
		ff = append(ff, filter.T{
			Kinds: []kind.T{kind.EncryptedDirectMessage},
			Tags:  filter.TagMap{"p": []string{cl.signer.PublicKey()}},
		})
	}

	feedCtx, feedCancel := context.Cancel(cl.ctx)
	cl.feedCancel = feedCancel
	events := cl.pool.SubMany(feedCtx, cl.cfg.Relays, ff, true)
	go func() {
		for ievt := range events {
			cl.consume(ievt)
		}
	}()
}

// consume routes one validated incoming event into the cache, the
// registry, and, for encrypted direct messages, the inbox.
func (cl *T) consume(ievt pool.IncomingEvent) {
	source := ""
	if ievt.Relay != nil {
		source = ievt.Relay.URL
	}
	cl.cache.Insert(ievt.T, source)
	cl.registry.Dispatch(ievt.T, source)
	if ievt.T.Kind == kind.EncryptedDirectMessage &&
		cl.cfg.Capabilities.DirectMessages &&
		cl.signer != nil && !cl.signer.ReadOnly() {
		cl.inbox.Deliver(cl.signer, ievt.T)
	}
}

// requireReady gates operations that touch the network.
func (cl *T) requireReady() error {
	if cl.State() != Ready {
		return errs.Wrap(errs.Initialization,
			"client is %s, not ready", cl.State())
	}
	return nil
}

// GenerateKeyPair makes a fresh key pair the client's identity and returns
// the public key. Any previous identity is replaced.
func (cl *T) GenerateKeyPair() (pubkey string, err error) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	var s *keys.Signer
	if s, err = keys.Generate(); chk.E(err) {
		return
	}
	cl.signer = s
	return s.PublicKey(), nil
}

// ImportKeyPair replaces the client's identity with the given secret key
// and returns the derived public key.
func (cl *T) ImportKeyPair(skHex string) (pubkey string, err error) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	var s *keys.Signer
	if s, err = keys.Import(skHex); err != nil {
		return
	}
	cl.signer = s
	return s.PublicKey(), nil
}

// GetPublicKey returns the public key of the current identity.
func (cl *T) GetPublicKey() (pubkey string, err error) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	if cl.signer == nil {
		return "", errs.Wrap(errs.Initialization, "no key pair loaded")
	}
	return cl.signer.PublicKey(), nil
}

// Signer returns the current identity, or nil when none is loaded.
func (cl *T) Signer() *keys.Signer {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	return cl.signer
}

// RelayRecords snapshots the state of every relay in the pool.
func (cl *T) RelayRecords() []relay.Record {
	cl.mutex.Lock()
	p := cl.pool
	cl.mutex.Unlock()
	if p == nil {
		return nil
	}
	return p.Records()
}

// Disconnect tears down the pool and cancels every subscription, network
// side and registry side, so no handler fires after a later re-Initialize.
// Idempotent; the client can be initialized again afterwards.
func (cl *T) Disconnect() {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	if cl.State() == Disconnected {
		return
	}
	if cl.feedCancel != nil {
		cl.feedCancel()
		cl.feedCancel = nil
	}
	for id, cancel := range cl.subCancels {
		cancel()
		delete(cl.subCancels, id)
	}
	cl.registry.Clear()
	if cl.pool != nil {
		cl.pool.DisconnectAll()
		cl.pool = nil
	}
	cl.setState(Disconnected)
}

// Close disconnects and releases the client for good.
func (cl *T) Close() {
	cl.Disconnect()
	cl.cancel()
}
