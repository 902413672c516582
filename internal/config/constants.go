package config

// Ownership sigils and attributes as they appear in source and in the AST the
// parser hands us.
const (
	UniqueSigil = "~"
	SharedSigil = "@"
	WeakAttr    = "#weak"
	SyncAttr    = "#sync"
	OwnAttr     = "#own"
	ActorAttr   = "#actor"
	DynMarker   = "dyn"
)

// Names of the concurrency constructs the evaluator recognizes.
const (
	ChannelFuncName = "channel"
	SendMethodName  = "push"
	RecvMethodName  = "next"
	HandleMethod    = "handle"
)

// Scheduler defaults; overridable via RuntimeConfig.
const (
	// DefaultShards is deliberately 1: a single shard keeps cooperative
	// ordering deterministic unless a program opts into more.
	DefaultShards = 1

	// DefaultMailboxCapacity of 0 means unbounded mailboxes.
	DefaultMailboxCapacity = 0

	// DefaultTraceRing is how many transitions the in-memory journal keeps.
	DefaultTraceRing = 1024
)
