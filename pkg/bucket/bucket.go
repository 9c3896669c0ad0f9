// Package bucket manages the per-day directories under the backup root.
//
// Every calendar day that sees at least one backup gets its own directory named
// <month>-<day>-<year> (unpadded, human month numbering, e.g. "3-5-2024"). Each unit
// archived that day lives inside it as <unit>.zip, and the presence of that file is the
// only signal that the unit has already been backed up for the day.
package bucket

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

// ArchiveExt is the file extension of every unit archive.
const ArchiveExt = ".zip"

// nameSeparator joins the month, day and year fields of a bucket name.
const nameSeparator = "-"

// ErrInvalidBucketName is returned by ParseDate for names that are not <month>-<day>-<year>.
var ErrInvalidBucketName = errors.New("invalid bucket name")

// Manager computes and creates date buckets below a fixed backup root.
type Manager struct {
	root string
	now  func() time.Time
}

// NewManager creates a Manager for the given backup root. If now is nil, time.Now is used.
func NewManager(root string, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{root: root, now: now}
}

// Root returns the backup root this manager operates on.
func (m *Manager) Root() string {
	return m.root
}

// Now returns the current time from the manager's clock.
func (m *Manager) Now() time.Time {
	return m.now()
}

// CurrentBucketPath returns the bucket directory for the current day and makes sure it exists.
// The date is taken from the clock on every call.
func (m *Manager) CurrentBucketPath() (string, error) {
	bucketPath := filepath.Join(m.root, FormatDate(m.now()))
	if err := os.MkdirAll(bucketPath, util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("failed to create bucket directory %s: %w", bucketPath, err)
	}
	return bucketPath, nil
}

// ArchivePath returns the path of the archive for unitName inside bucketPath.
func ArchivePath(bucketPath, unitName string) string {
	return filepath.Join(bucketPath, unitName+ArchiveExt)
}

// HasArchive reports whether bucketPath already holds an archive for unitName.
// Presence alone counts; the archive's content is not inspected.
func HasArchive(bucketPath, unitName string) bool {
	info, err := os.Stat(ArchivePath(bucketPath, unitName))
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// FormatDate renders t as a bucket name.
func FormatDate(t time.Time) string {
	return strconv.Itoa(int(t.Month())) + nameSeparator +
		strconv.Itoa(t.Day()) + nameSeparator +
		strconv.Itoa(t.Year())
}

// ParseDate parses a bucket name back into a date at midnight in loc.
// Out of range fields roll over the same way time.Date normalizes them.
func ParseDate(name string, loc *time.Location) (time.Time, error) {
	fields := strings.Split(name, nameSeparator)
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q has %d fields, expected 3", ErrInvalidBucketName, name, len(fields))
	}

	var values [3]int
	for i, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidBucketName, name, err)
		}
		values[i] = v
	}

	month, day, year := values[0], values[1], values[2]
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), nil
}
