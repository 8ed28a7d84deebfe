// Package persist writes audit tables to the shared output folder.
//
// Output is partitioned by project, date and identity prefix so concurrent
// operators never write the same file:
//
//	<root>/<project>_<dd-MM-yyyy>/<project>_<prefix>/SourceTables/<project>_<prefix>.csv     deletion log
//	<root>/<project>_<dd-MM-yyyy>/<project>_<prefix>/SourceTables/<project>_<prefix>_Db.csv  snapshot
//	<root>/<project>_<dd-MM-yyyy>/<project>_<prefix>/<project>_<prefix>Deleted.csv          report
//
// A [Persister] retries writes that fail because another process holds the
// file (share or lock violations). After the configured number of attempts
// the write is abandoned: the data for that cycle is lost and nothing is
// requeued. Callers inspect the returned [Result] for logging and journaling
// but never receive an error.
package persist
