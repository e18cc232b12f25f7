// Package bctx implements the process-local half of the browsing-context
// lifetime protocol: the context tree, the id registry, and the related
// context groups whose subscription state drives cross-process reclamation.
//
// # Context lifetime
//
// Browsing contexts are handled in groups. Each Group represents a set of
// contexts which may reference one another. A content process becomes
// "subscribed" to a Group when any context from that group is shared with
// it, and every share carries the group epoch recorded for that process.
//
// A context is not reclaimed when its last Ref is released. Instead, the
// Group tracks how many of its member contexts currently hold a non-zero
// ref count in this process. When that number reaches zero in a content
// process, an UnsubscribeGroup message carrying the current epoch is sent
// to the parent, and the group is flagged speculative: it appears dead to
// most code, but is retained until the parent answers.
//
// If the epoch still matches in the parent, the sender is dropped from the
// subscriber table and the ack reports success, after which the content
// process may free everything. If a new share raced the unsubscribe, the
// parent's epoch has moved on, the ack reports failure, and the content
// process keeps its copy. A success ack may also land after a local
// reference has revived the group; the content process then keeps its copy
// and re-announces the live attached members, restoring its subscriber
// entry in the parent.
//
// Contexts are marked Dead when killed in the parent. The parent notifies
// every subscribed content process and keeps the context's bookkeeping
// alive until each of them acknowledges (or exits). The parent always
// maintains a copy of live contexts; content processes hold them only
// through explicit Refs.
//
// All mutating entry points must run on the goroutine that owns the World.
// This rule is asserted, not locked: violations are programming errors and
// panic.
package bctx
