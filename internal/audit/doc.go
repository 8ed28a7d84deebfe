// Package audit defines the records produced by the deletion audit pipeline
// and their CSV encodings.
//
// Three tables exist per project output folder:
//
//   - Deletion log (append-only): Project Name,Element ID,Time,User
//   - Snapshot (replace-only): Project Name,Element ID,Element Type,Element Name,Level
//   - Report (replace-only): Project Name,Element ID,Element Type,Element Name,Level,Time,User
//
// Timestamps use the layout yyyy-MM-dd HH:mm:ss in the host's local time.
// Readers tolerate a leading UTF-8 byte order mark, which files written by
// older tooling carry.
package audit
