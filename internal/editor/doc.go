// Package editor ties one controller, one undo stack and the document stores
// together into a Session that may be shared between goroutines.
//
// The graph, controller and stack are single-threaded. Session serialises
// every access to them behind one mutex, so HTTP handlers, the file watcher
// and CLI code can drive the same document. Notifications are still
// delivered synchronously while the lock is held; subscribers that need to
// do real work should use service.EventBus.SubscribeChan.
//
// After each successful change the session snapshots the graph into the
// optional repository.SnapshotStore so that an unsaved document can be
// recovered after a crash.
package editor
