package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/bucket"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/pathretention"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

// Retention states shown by the list command.
const (
	stateCurrent = "current"
	stateKeep    = "keep"
	stateExpired = "expired"
)

// invalidMarker flags folders whose name is not a date. Retention judges them as dated today.
const invalidMarker = "*"

// bucketListing is one row of the list output.
type bucketListing struct {
	name     string
	date     time.Time
	valid    bool
	state    string
	archives []string
}

// RunList handles the logic for the list command.
func RunList(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.List, flagMap)
	if err != nil {
		return err
	}

	listings, err := listBuckets(ctx, runConfig.BackupFolder, time.Now())
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		plog.Info(buildinfo.Name+" no backup folders found.", "backup_folder", runConfig.BackupFolder)
		return nil
	}

	printListings(os.Stdout, listings)
	return nil
}

// listBuckets reads the backup folders below root, newest first, with the verdict prune
// would reach at now. Folders whose name is not a date are listed last.
func listBuckets(ctx context.Context, root string, now time.Time) ([]bucketListing, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup folder %s: %w", root, err)
	}

	today := bucket.FormatDate(now)
	var listings []bucketListing
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !entry.IsDir() {
			continue
		}

		l := bucketListing{name: entry.Name()}
		d, err := pathretention.BucketDate(l.name, now)
		l.valid = err == nil
		if l.valid {
			l.date = d
		}
		switch {
		case l.name == today:
			l.state = stateCurrent
		case pathretention.Expired(d, now):
			l.state = stateExpired
		default:
			l.state = stateKeep
		}

		l.archives, err = listArchives(filepath.Join(root, l.name))
		if err != nil {
			plog.Warn("Failed to read backup folder", "folder", l.name, "error", err)
		}
		listings = append(listings, l)
	}

	slices.SortFunc(listings, func(a, b bucketListing) int {
		if a.valid != b.valid {
			if a.valid {
				return -1
			}
			return 1
		}
		if c := b.date.Compare(a.date); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	return listings, nil
}

// listArchives returns the unit names that have an archive in bucketPath, sorted.
func listArchives(bucketPath string) ([]string, error) {
	entries, err := os.ReadDir(bucketPath)
	if err != nil {
		return nil, err
	}
	var units []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, bucket.ArchiveExt) {
			continue
		}
		units = append(units, strings.TrimSuffix(name, bucket.ArchiveExt))
	}
	return units, nil
}

func printListings(w io.Writer, listings []bucketListing) {
	nameColWidth := len("Folder")
	for _, l := range listings {
		if len(l.name) > nameColWidth {
			nameColWidth = len(l.name)
		}
	}

	fmt.Fprintf(w, "  %-*s %-8s %s\n", nameColWidth, "Folder", "State", "Archives")
	hasInvalid := false
	for _, l := range listings {
		archives := "-"
		if len(l.archives) > 0 {
			archives = strings.Join(l.archives, ", ")
		}
		state := l.state
		if !l.valid {
			state += invalidMarker
			hasInvalid = true
		}
		fmt.Fprintf(w, "  %-*s %-8s %s\n", nameColWidth, l.name, state, archives)
	}
	if hasInvalid {
		fmt.Fprintf(w, "  %s folder name is not a date, judged as dated today\n", invalidMarker)
	}
}
