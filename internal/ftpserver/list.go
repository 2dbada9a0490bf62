package ftpserver

import (
	"fmt"
	"time"

	"github.com/nebulaftp/nebulaftp/internal/vfs"
	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
)

// sixMonths is the POSIX ls -l cutoff between "recent" (shown as
// HH:MM) and "old" (shown with the year instead of a time), matching
// stat.filemode/strftime usage in the source's build_list_string.
const sixMonths = 15778476 * time.Second

// buildListString renders one LIST line for node under the C locale
// month-abbreviation convention, matching
// `" ".join((filemode, nlink, owner, group, size, time, name))`.
func buildListString(node *vfsmodel.Node) string {
	st := vfs.StatNode(node)
	mode := filemode(st.Mode, st.IsDir)
	mtime := time.Unix(st.MTime, 0).UTC()

	var when string
	now := time.Now().UTC()
	recent := mtime.After(now.Add(-sixMonths)) && !mtime.After(now)
	if recent {
		when = fmt.Sprintf("%s %2d %02d:%02d", shortMonth[mtime.Month()], mtime.Day(), mtime.Hour(), mtime.Minute())
	} else {
		when = fmt.Sprintf("%s %2d  %d", shortMonth[mtime.Month()], mtime.Day(), mtime.Year())
	}

	return fmt.Sprintf("%s %d none none %d %s %s", mode, st.NLink, st.Size, when, node.Name)
}

var shortMonth = map[time.Month]string{
	time.January: "Jan", time.February: "Feb", time.March: "Mar", time.April: "Apr",
	time.May: "May", time.June: "Jun", time.July: "Jul", time.August: "Aug",
	time.September: "Sep", time.October: "Oct", time.November: "Nov", time.December: "Dec",
}

// filemode renders a 10-character mode string ("drwxrwxrwx" style) from
// the synthesized mode bits, matching Python's stat.filemode for the
// fixed 0o100666/0o40777 values this system ever produces.
func filemode(mode uint32, isDir bool) string {
	b := [10]byte{'-', '-', '-', '-', '-', '-', '-', '-', '-', '-'}
	if isDir {
		b[0] = 'd'
	}
	perm := mode & 0o777
	bits := "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			b[i+1] = bits[i]
		}
	}
	return string(b[:])
}
