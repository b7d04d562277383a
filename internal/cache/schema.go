package cache

// SQL schemas for cache tables
// All cache tables use "cache_key" as the primary key column for consistency

// SteamDetailsTable caches Steam store appdetails payloads
const SteamDetailsTable = "steam_details_cache"

// SteamDetailsCacheSchema defines the schema for the Steam appdetails cache
const SteamDetailsCacheSchema = `
CREATE TABLE IF NOT EXISTS steam_details_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_steam_details_expires_at ON steam_details_cache(expires_at);
`

// AllCacheSchemas contains all cache table schemas for easy initialization
var AllCacheSchemas = []string{
	SteamDetailsCacheSchema,
}

// ValidCacheTableNames is the whitelist of allowed cache table names
// Used to prevent SQL injection when interpolating table names
var ValidCacheTableNames = map[string]bool{
	SteamDetailsTable: true,
}

// Sources maps the names accepted on the command line to cache tables
var Sources = map[string]string{
	"steam": SteamDetailsTable,
}
