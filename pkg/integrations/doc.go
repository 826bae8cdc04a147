// Package integrations provides clients for gem metadata servers.
//
// # Overview
//
// Gem servers publish a "compact index": one plain-text info file per gem
// listing every version with its platform, runtime dependencies, checksum and
// required Ruby. [ParseInfo] reads that format into [GemVersion] values.
// Two transports are provided in subpackages:
//
//   - [rubygems]: HTTP servers (rubygems.org, gemstash, private mirrors)
//   - [s3index]: compact index files mirrored into an S3 bucket
//
// # Shared Infrastructure
//
// The [Client] type provides caching and retry for HTTP transports. Each
// lookup takes a [Policy]: resolving remotely refreshes, resolving with cache
// prefers cached entries, and resolving locally never leaves the cache.
//
// [rubygems]: github.com/matzehuels/gemlock/pkg/integrations/rubygems
// [s3index]: github.com/matzehuels/gemlock/pkg/integrations/s3index
package integrations
