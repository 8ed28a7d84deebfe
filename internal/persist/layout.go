package persist

import (
	"path/filepath"
	"time"
)

// DateLayout formats the date component of the project folder (dd-MM-yyyy).
const DateLayout = "02-01-2006"

// Layout resolves output paths under a shared root for one identity prefix.
type Layout struct {
	Root   string
	Prefix string
}

// Paths are the files of one project/date/prefix output folder.
type Paths struct {
	Project      string
	Dir          string
	SourceTables string
	DeletionLog  string
	Snapshot     string
	Report       string
}

// For computes the paths for a project on the given day. Callers compute
// paths once per cycle so every table of the cycle lands in the same folder.
func (l Layout) For(project string, day time.Time) Paths {
	folder := project + "_" + l.Prefix
	dir := filepath.Join(l.Root, project+"_"+day.Format(DateLayout), folder)
	tables := filepath.Join(dir, "SourceTables")

	return Paths{
		Project:      project,
		Dir:          dir,
		SourceTables: tables,
		DeletionLog:  filepath.Join(tables, folder+".csv"),
		Snapshot:     filepath.Join(tables, folder+"_Db.csv"),
		Report:       filepath.Join(dir, folder+"Deleted.csv"),
	}
}
