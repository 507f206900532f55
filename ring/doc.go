// Package ring provides the per-channel bounded, lossy frame queue at
// the core of ShmBridge.
//
// Each Ring owns a fixed pool of frame slots allocated once at
// construction. Produce copies an inbound frame into the next slot;
// Consume hands back the oldest unconsumed frame exactly once. When
// production outruns consumption the oldest entry is silently
// overwritten: the newest poolSize frames win, and the producer is
// never blocked and never sees an error for the loss.
//
// Statistics are always collected for observability. Per-channel
// Prometheus metrics can be enabled with WithMetrics:
//
//	r, err := ring.New(64, 128,
//		ring.WithMetrics(registry, "M7_0/echo"),
//		ring.WithDropHook(func(size int) { dropped.Add(1) }),
//	)
package ring
