// Package watch implements directory change-watching for the script host.
//
// A Session bridges a Notifier (inotify, fsnotify or a polling fallback) into
// the host scheduler:
//
//	notifier ──Result──▶ [chan, cap 1] ──▶ Session loop ──▶ Filter ──▶ Router ──▶ Scheduler
//
// The notifier's producer blocks on the capacity-1 channel until the loop has
// taken the previous result, so a busy loop delays events instead of dropping
// them and order is preserved. Handlers never run on the loop itself; the
// router only queues them.
//
// Any notifier error after a session started is fatal to that session. There
// is no retry or reconnection.
package watch
