package tiered

import (
	"time"

	"cache-service/internal/circuitbreaker"
	"cache-service/internal/config"
)

// L1Mode selects which caches keep an in-process copy of L2 values.
type L1Mode int

const (
	// L1Disabled keeps every read on L2.
	L1Disabled L1Mode = iota
	// L1AllOpen enables L1 for every cache name.
	L1AllOpen
	// L1Manual enables L1 for the names and name:key pairs listed in L1Policy.
	L1Manual
)

func (m L1Mode) String() string {
	switch m {
	case L1AllOpen:
		return "all"
	case L1Manual:
		return "manual"
	default:
		return "disabled"
	}
}

// L1Policy decides whether L1 is open for a cache name or a single key.
type L1Policy struct {
	Mode  L1Mode
	Names map[string]struct{}
	// Keys holds "name:key" entries. They match the key under every tenant
	// and ignore the store prefix.
	Keys map[string]struct{}
}

// open reports whether L1 serves name/key. Names are checked first, then the
// per-key override.
func (p L1Policy) open(name, key string) bool {
	switch p.Mode {
	case L1AllOpen:
		return true
	case L1Manual:
		if _, ok := p.Names[name]; ok {
			return true
		}
		_, ok := p.Keys[name+":"+key]
		return ok
	default:
		return false
	}
}

// Config configures a Manager and every cache it creates.
type Config struct {
	// KeyPrefix is prepended to every L2 key.
	KeyPrefix string
	// DefaultTTL applies to caches without an entry in TTLs. Zero means no expiry.
	DefaultTTL time.Duration
	TTLs       map[string]time.Duration
	// PenetrationTTL bounds how long an empty marker is cached for names and
	// keys listed in PenetrationNames / PenetrationKeys.
	PenetrationTTL   time.Duration
	PenetrationNames map[string]struct{}
	PenetrationKeys  map[string]struct{}
	// NullDisallowed lists caches where an empty write evicts the key.
	NullDisallowed map[string]struct{}

	L1          L1Policy
	L1TTL       time.Duration
	// L1Sweep is how often the subscriber goroutine drops expired L1 entries.
	L1Sweep     time.Duration
	Topic       string
	NodeID      string
	Breaker     circuitbreaker.Config
	LockStripes int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:        "cache:",
		TTLs:             map[string]time.Duration{},
		PenetrationTTL:   5 * time.Minute,
		PenetrationNames: map[string]struct{}{},
		PenetrationKeys:  map[string]struct{}{},
		NullDisallowed:   map[string]struct{}{},
		L1:               L1Policy{Mode: L1Disabled},
		L1TTL:            5 * time.Minute,
		L1Sweep:          10 * time.Minute,
		Topic:            "cache:invalidation",
		Breaker:          circuitbreaker.StoreConfig,
		LockStripes:      defaultStripes,
	}
}

// NewConfig maps the service configuration onto a tiered Config.
func NewConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	c.DefaultTTL = cfg.TieredDefaultTTL
	c.PenetrationTTL = cfg.TieredPenetrationTTL
	c.L1TTL = cfg.TieredL1TTL
	c.Topic = cfg.InvalidationTopic
	c.NodeID = cfg.NodeID
	c.PenetrationNames = toSet(cfg.TieredPenetrationCacheNames)
	c.PenetrationKeys = toSet(cfg.TieredPenetrationKeys)
	c.NullDisallowed = toSet(cfg.TieredNullDisallowed)
	for name, ttl := range cfg.TieredCacheTTLs {
		c.TTLs[name] = ttl
	}

	switch cfg.TieredL1Mode {
	case config.L1ModeAll:
		c.L1 = L1Policy{Mode: L1AllOpen}
	case config.L1ModeManual:
		c.L1 = L1Policy{
			Mode:  L1Manual,
			Names: toSet(cfg.TieredL1CacheNames),
			Keys:  toSet(cfg.TieredL1Keys),
		}
	}
	return c
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (c Config) ttlFor(name string) time.Duration {
	if ttl, ok := c.TTLs[name]; ok {
		return ttl
	}
	return c.DefaultTTL
}

func (c Config) penetrationFor(name, key string) bool {
	if _, ok := c.PenetrationNames[name]; ok {
		return true
	}
	_, ok := c.PenetrationKeys[name+":"+key]
	return ok
}

func (c Config) allowNull(name string) bool {
	_, disallowed := c.NullDisallowed[name]
	return !disallowed
}
