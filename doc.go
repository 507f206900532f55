// Package shmbridge multiplexes bounded, lossy message channels over a
// shared frame transport and exposes each channel through device-style
// read/write handles.
//
// # Model
//
// A deployment declares a fixed set of instances, each grouping the
// channels of one remote execution endpoint. Every channel owns a ring
// of fixed-capacity frame slots:
//
//	┌─────────────────────────────────────┐
//	│           Transport                 │  frames in/out
//	│   (loopback, NATS subjects)         │  (delivery goroutine)
//	└─────────────────────────────────────┘
//	           ↓ on receive          ↑ send
//	┌─────────────────────────────────────┐
//	│            Bridge                   │  resolve channel,
//	│  (ingest, handles, lifecycle)       │  produce/consume
//	└─────────────────────────────────────┘
//	           ↓                     ↑
//	┌─────────────────────────────────────┐
//	│     Ring per channel                │  bounded, lossy,
//	│  (fixed pool, overwrite oldest)     │  never blocks
//	└─────────────────────────────────────┘
//
// Rings retain the newest frames: when a reader lags, the oldest
// unconsumed frame is silently overwritten rather than blocking the
// transport. Reads drain one frame per call and return immediately when
// empty; writes truncate to the channel's frame capacity.
//
// Package layout:
//   - ring: the per-channel bounded lossy queue
//   - channel: the static registry mapping identity to ring and path
//   - transport: the frame transport boundary and loopback implementation
//   - transport/natsbridge: frames carried over NATS subjects
//   - bridge: ingestion, handles, and lifecycle
//   - config: JSON configuration with fail-fast validation
//   - metric, health, errors, pkg/retry: shared infrastructure
package shmbridge
