// Package sync keeps the articles of the CMS synchronized with one bibliographic
// registry per sync target.
//
// # Manager
//
// A Manager owns one target: its registry client, its state store and its
// selection queries. DoUpdate runs one tick:
//
//  1. clear the global error and stamp the update time
//  2. flag articles edited since the last modification check as modified and
//     advance the check time
//  3. resolve pending submissions that are still within the timeout, by status
//     check or identification depending on the registry capabilities
//  4. submit the work queue (modified, then retries, then new articles) up to the batch size
//  5. when nothing was submitted and the registry supports it, identify articles
//     that were never looked up
//
// Every per-article step yields a TickResult. StopBatch ends the tick after the
// first per-article failure when the target is configured to stop on failure.
// AbortTick ends it on authentication or configuration errors, which are recorded
// as the global error of the target rather than on the article.
//
// Only one tick or administrative operation runs per target at a time; a
// concurrent call fails with ErrUpdateInProgress.
//
// # Recorded operations
//
// Identify, Submit, CheckStatus and Delete wrap the registry client and persist
// the outcome on the sync record. Submit marks the record pending before the
// network call so an interrupted call stays observable.
//
// The coordinator subpackage schedules DoUpdate periodically for every enabled target.
package sync
