package maintenance

import (
	"fmt"
	"strings"

	"github.com/go-udf/udfkit/pkg/directory"
	"github.com/go-udf/udfkit/pkg/fileentry"
)

// State classifies what Resolve found at the end of a path.
type State int

const (
	DirInvalid State = iota
	DoesNotExist
	ExistingFile
	ExistingDir
	DeletedFile
	DeletedDir
)

func (s State) String() string {
	switch s {
	case DoesNotExist:
		return "does not exist"
	case ExistingFile:
		return "file"
	case ExistingDir:
		return "directory"
	case DeletedFile:
		return "deleted file"
	case DeletedDir:
		return "deleted directory"
	default:
		return "invalid path"
	}
}

// Result is what path resolution found: the directory containing the
// final component (and its File Entry), the matching FID's index
// within it (-1 if none), and the classification of what's there.
type Result struct {
	State State
	Dir   *directory.Directory
	DirFE *fileentry.FileEntry
	Index int
	FID   directory.FID
	Name  string
}

// Resolve walks path component by component, starting from the
// engine's current directory for a relative path or the volume root
// for one starting with "/", following only non-DELETED directory
// FIDs and ".." entries via each directory's PARENT FID (spec.md §4.J
// "path resolution"). The final component is classified even when
// it's a DELETED FID, so callers can distinguish "never existed" from
// "deleted but not yet reclaimed".
func (e *Engine) Resolve(path string) (Result, error) {
	dir, dirFE := e.cwd, e.cwdFE
	if strings.HasPrefix(path, "/") {
		dir, dirFE = e.root, e.rootFE
	}

	parts := splitPath(path)
	if len(parts) == 0 {
		return Result{State: ExistingDir, Dir: dir, DirFE: dirFE, Index: -1}, nil
	}

	for i, part := range parts {
		last := i == len(parts)-1

		if part == ".." {
			parentFID, found := findParentFID(dir)
			if !found {
				return Result{}, fmt.Errorf("maintenance: %q: directory has no parent entry", part)
			}
			upFE, err := e.readFileEntry(parentFID.ICB.Block)
			if err != nil {
				return Result{}, err
			}
			upDir, err := e.readDirectory(upFE)
			if err != nil {
				return Result{}, err
			}
			if last {
				return Result{State: ExistingDir, Dir: upDir, DirFE: upFE, Index: -1}, nil
			}
			dir, dirFE = upDir, upFE
			continue
		}

		nameBytes, err := e.codec.Encode(part, 255)
		if err != nil {
			return Result{}, fmt.Errorf("maintenance: encoding path component %q: %w", part, err)
		}
		fid, idx, found := findIncludingDeleted(dir, nameBytes)
		if !found {
			if last {
				return Result{State: DoesNotExist, Dir: dir, DirFE: dirFE, Index: -1, Name: part}, nil
			}
			return Result{}, fmt.Errorf("maintenance: %q: no such directory", part)
		}

		isDir := fid.FileCharacteristics&directory.CharDirectory != 0
		isDeleted := fid.IsDeleted()

		if last {
			state := ExistingFile
			switch {
			case isDir && isDeleted:
				state = DeletedDir
			case isDir:
				state = ExistingDir
			case isDeleted:
				state = DeletedFile
			}
			return Result{State: state, Dir: dir, DirFE: dirFE, Index: idx, FID: fid, Name: part}, nil
		}

		if !isDir {
			return Result{}, fmt.Errorf("maintenance: %q: not a directory", part)
		}
		if isDeleted {
			return Result{}, fmt.Errorf("maintenance: %q: directory is deleted", part)
		}

		childFE, err := e.readFileEntry(fid.ICB.Block)
		if err != nil {
			return Result{}, err
		}
		childDir, err := e.readDirectory(childFE)
		if err != nil {
			return Result{}, err
		}
		dir, dirFE = childDir, childFE
	}

	return Result{}, fmt.Errorf("maintenance: unreachable path resolution state")
}

// resolveDirPath resolves a pure directory path for commands (mkdir's
// parent, cd's target) that need the directory itself rather than a
// classified final component. "" means the current directory, "/"
// means the root; anything else is resolved with Resolve and must name
// an existing, non-deleted directory.
func (e *Engine) resolveDirPath(path string) (*directory.Directory, *fileentry.FileEntry, error) {
	switch path {
	case "":
		return e.cwd, e.cwdFE, nil
	case "/":
		return e.root, e.rootFE, nil
	}

	res, err := e.Resolve(path)
	if err != nil {
		return nil, nil, err
	}
	if res.State != ExistingDir {
		return nil, nil, fmt.Errorf("maintenance: %s: %s", path, res.State)
	}
	if res.Index < 0 {
		// Resolve already loaded and returned the directory itself
		// (the no-components or ".." case).
		return res.Dir, res.DirFE, nil
	}
	childFE, err := e.readFileEntry(res.FID.ICB.Block)
	if err != nil {
		return nil, nil, err
	}
	childDir, err := e.readDirectory(childFE)
	if err != nil {
		return nil, nil, err
	}
	return childDir, childFE, nil
}

// findIncludingDeleted scans dir for name, skipping only the PARENT
// entry — unlike Directory.Find, it does not skip DELETED entries, so
// Resolve can report DeletedFile/DeletedDir instead of DoesNotExist.
func findIncludingDeleted(dir *directory.Directory, name []byte) (directory.FID, int, bool) {
	for i, f := range dir.Fids {
		if f.IsParent() {
			continue
		}
		if bytesEqual(f.FileIdent, name) {
			return f, i, true
		}
	}
	return directory.FID{}, -1, false
}

// findParentFID returns dir's self-referencing PARENT entry, which
// locates the directory one level up (or dir itself, for the root).
func findParentFID(dir *directory.Directory) (directory.FID, bool) {
	for _, f := range dir.Fids {
		if f.IsParent() {
			return f, true
		}
	}
	return directory.FID{}, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitPath breaks a path into its non-empty, non-"." components,
// preserving ".." so Resolve can walk it via the PARENT FID.
func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// splitParentLeaf splits a path into its parent directory path (as
// resolveDirPath expects: "" for the current directory, "/" for the
// root) and its final component.
func splitParentLeaf(path string) (parent string, leaf string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

// cleanPath renders a component list back to an absolute display path.
func cleanPath(parts []string) string {
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}
