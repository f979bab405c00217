package main

import (
	"fmt"
	"os"
	"strings"
)

// Actions is the set of per-partition operations requested on the command line.
type Actions struct {
	MD5     bool
	Backup  bool
	Erase   bool
	Flash   bool
	Compare bool
	Reboot  bool
}

// FileCommands reports whether an action takes the FILE argument.
func (a Actions) FileCommands() bool {
	return a.Flash || a.Compare || a.Backup
}

// PartCommands reports whether any action touches partitions.
func (a Actions) PartCommands() bool {
	return a.FileCommands() || a.MD5 || a.Erase
}

// needsFile reports whether each target gets a filename.
func (a Actions) needsFile() bool {
	return a.FileCommands() || a.MD5
}

// lookupExact returns the first entry named name.
func lookupExact(t Table, name string) (Partition, bool) {
	for _, p := range t {
		if p.Name == name {
			return p, true
		}
	}
	return Partition{}, false
}

// expandWildcard returns every entry except __all__, in table order.
func expandWildcard(t Table) []Partition {
	var parts []Partition
	for _, p := range t {
		if p.Name != allPartition {
			parts = append(parts, p)
		}
	}
	return parts
}

// Resolve turns partition tokens and the FILE argument into targets.
// It performs no I/O; staged targets get their file from Stage.
func Resolve(tokens []string, t Table, path string, a Actions) ([]Target, error) {
	var parts []Partition
	for _, tok := range tokens {
		if tok == wildcard {
			parts = append(parts, expandWildcard(t)...)
			continue
		}
		p, ok := lookupExact(t, tok)
		if !ok {
			return nil, usageErrorf("Invalid partition name %q", tok)
		}
		parts = append(parts, p)
	}

	targets := make([]Target, 0, len(parts))
	for _, p := range parts {
		tg := Target{Offset: p.Offset, Size: p.Size, Name: p.Name}
		if a.needsFile() {
			switch {
			case !a.FileCommands() || path == stdioArg:
				tg.Staged = true
			default:
				tg.Filename = targetFilename(path, p.Name, len(parts))
			}
		}
		targets = append(targets, tg)
	}
	return targets, nil
}

func targetFilename(path, name string, count int) string {
	switch {
	case count == 1:
		return path
	case path == "" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)):
		return path + name
	default:
		return strings.TrimRight(path, ".") + "." + name
	}
}

// Stage returns the file a target operates on. Staged targets get a new
// temporary file in dir (the system default when empty); cleanup removes it.
func (tg Target) Stage(dir string) (filename string, cleanup func(), err error) {
	if !tg.Staged {
		return tg.Filename, func() {}, nil
	}
	f, err := os.CreateTemp(dir, "partflash-*."+stagingSuffix.Replace(tg.Name))
	if err != nil {
		return "", nil, fmt.Errorf("create staging file for %s: %w", tg.Name, err)
	}
	filename = f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(filename)
		return "", nil, fmt.Errorf("create staging file for %s: %w", tg.Name, err)
	}
	return filename, func() { _ = os.Remove(filename) }, nil
}

var stagingSuffix = strings.NewReplacer("/", "_", `\`, "_", "*", "_")
