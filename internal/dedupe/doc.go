// Package dedupe tracks recently seen gift-wrap event ids so the inbound
// pipeline can skip decryption work for wraps a relay has already
// delivered. The thread engine still deduplicates by rumor id; this cache
// only short-circuits the expensive unwrap for byte-identical redeliveries.
package dedupe
