// Package service implements the mutation layer of the graph editor.
//
// # Controller
//
// Controller is the only code path allowed to change a domain.Graph. It wraps
// the primitive graph operations with selection handling and change
// notification: adding and removing nodes, edges and pins, moving nodes and
// reloading the whole document. Every operation either succeeds and leaves the
// graph consistent or fails with a typed error and changes nothing.
//
// # Event System
//
// Notifications are published on an EventBus synchronously, in subscriber
// registration order, before the mutating call returns. Handlers must not call
// back into the Controller; such calls fail with ErrReentrantMutation.
// Asynchronous consumers such as the SSE hub use SubscribeChan, which never
// blocks the publisher.
package service
