package realtime

import "github.com/cespare/xxhash/v2"

// ShardCount is the number of lock stripes used by keyed tables.
const ShardCount = 32

// ShardIndex maps key onto one of ShardCount stripes.
func ShardIndex(key string) int {
	return int(xxhash.Sum64String(key) % ShardCount)
}
