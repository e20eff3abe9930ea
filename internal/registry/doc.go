// Package registry is the directory service for summary files: it
// allocates unique on-disk paths, tracks cross-clip reference counts in
// SQLite, and reclaims files whose last owner has released them. A
// flock on the cache directory keeps two processes from mutating the
// same cache.
package registry
