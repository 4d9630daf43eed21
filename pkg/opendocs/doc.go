// Package opendocs tracks the records a backend user recently opened.
//
// Every user owns one session slot holding an ordered JSON object that maps
// "table:uid" identifiers to {table, uid, updatedAt} entries. Repository reads
// and writes that slot, keeps at most MaxRecent entries ordered by updatedAt,
// and migrates entries written by older versions (positional arrays of
// title, edit parameters, query string, metadata and return url) the first
// time it touches them.
//
// Listener turns host lifecycle events into repository calls, and Enricher
// resolves tracked documents into listing rows.
package opendocs
