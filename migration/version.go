// Package migration applies and reverts an ordered set of schema versions
// against a database, one transaction per version, and records which version
// the database is at.
package migration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Target names understood by Upgrade and Downgrade.
const (
	Head = "head"
	Base = "base"
)

var (
	// ErrUnknownVersion is returned for a target that names no known
	// version, or when the database records a version the code does not
	// know about.
	ErrUnknownVersion = errors.New("unknown schema version")
	// ErrWrongDirection is returned when an upgrade target is behind the
	// current version or a downgrade target is ahead of it.
	ErrWrongDirection = errors.New("target is in the wrong direction")
	// ErrInvalidVersions is returned by NewRunner for a malformed version list.
	ErrInvalidVersions = errors.New("invalid version list")
)

// Version is one migration step. Up builds it on top of the previous
// version; Down is its exact inverse. Statements run in order inside a
// single transaction.
type Version struct {
	ID          string
	Description string
	Up          []string
	Down        []string
}

// Applied is one entry of the migration history.
type Applied struct {
	Version   string
	Direction string
	AppliedAt time.Time
}

// Directions recorded in the history.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

func validateVersions(versions []Version) error {
	if len(versions) == 0 {
		return fmt.Errorf("%w: no versions", ErrInvalidVersions)
	}
	seen := make(map[string]bool, len(versions))
	for i, v := range versions {
		switch {
		case v.ID == "":
			return fmt.Errorf("%w: version %d has an empty ID", ErrInvalidVersions, i)
		case v.ID == Head || v.ID == Base || strings.HasPrefix(v.ID, "-"):
			return fmt.Errorf("%w: %q is a reserved target name", ErrInvalidVersions, v.ID)
		case seen[v.ID]:
			return fmt.Errorf("%w: duplicate ID %q", ErrInvalidVersions, v.ID)
		case i > 0 && v.ID <= versions[i-1].ID:
			return fmt.Errorf("%w: %q is not after %q", ErrInvalidVersions, v.ID, versions[i-1].ID)
		case len(v.Up) == 0:
			return fmt.Errorf("%w: %q has no up statements", ErrInvalidVersions, v.ID)
		}
		seen[v.ID] = true
	}
	return nil
}

// position returns the index of id in versions; -1 stands for base.
func position(versions []Version, id string) (int, error) {
	if id == "" || id == Base {
		return -1, nil
	}
	for i, v := range versions {
		if v.ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, id)
}

// resolveTarget maps a target name to an index. Relative targets ("-1",
// "-2") count back from current.
func resolveTarget(versions []Version, target string, current int) (int, error) {
	switch {
	case target == "" || target == Head:
		return len(versions) - 1, nil
	case strings.HasPrefix(target, "-"):
		n, err := strconv.Atoi(target[1:])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, target)
		}
		if current-n < -1 {
			return 0, fmt.Errorf("%w: %q steps below base from %s", ErrUnknownVersion, target, idAt(versions, current))
		}
		return current - n, nil
	}
	return position(versions, target)
}

func idAt(versions []Version, i int) string {
	if i < 0 {
		return Base
	}
	return versions[i].ID
}
