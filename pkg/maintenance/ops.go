package maintenance

import (
	"fmt"
	"strings"

	"github.com/go-udf/udfkit/pkg/directory"
	"github.com/go-udf/udfkit/pkg/fileentry"
	"github.com/go-udf/udfkit/pkg/primitive"
)

// Mkdir creates an empty directory at path (spec.md §4.J "mkdir"): a
// new File Entry with a single PARENT FID pointing up at the
// containing directory, inserted as a new FID in the parent.
func (e *Engine) Mkdir(path string) error {
	parentPath, leaf := splitParentLeaf(path)
	if leaf == "" {
		return fmt.Errorf("maintenance: mkdir: %s: empty name", path)
	}
	parentDir, parentFE, err := e.resolveDirPath(parentPath)
	if err != nil {
		return fmt.Errorf("maintenance: mkdir: %w", err)
	}
	nameBytes, err := e.codec.Encode(leaf, 255)
	if err != nil {
		return fmt.Errorf("maintenance: mkdir: encoding name: %w", err)
	}
	if fid, _, found := findIncludingDeleted(parentDir, nameBytes); found && !fid.IsDeleted() {
		return fmt.Errorf("maintenance: mkdir: %s: already exists", path)
	}

	result, err := fileentry.CreateFileEntry(e.alloc, e.ids, e.counts, fileentry.Params{
		ParentICBBlock:        parentFE.Tag.TagLocation,
		ParentICBPartitionRef: e.partNum,
		FileType:              fileentry.FileTypeDirectory,
		Now:                   e.clock.Now(),
		BlockSize:             e.blockSize,
		ImplementationIdent:   e.implIdent,
	})
	if err != nil {
		return fmt.Errorf("maintenance: mkdir: %w", err)
	}
	result.FE.FileLinkCount = 1

	newDir := directory.New(result.Block, []directory.FID{
		{
			FileCharacteristics: directory.CharParent | directory.CharDirectory,
			ICB:                 primitive.LongAD{Block: parentFE.Tag.TagLocation, PartitionRef: e.partNum},
		},
	})
	contentBlock, err := e.alloc.AllocBlocks(0, 1)
	if err != nil {
		return fmt.Errorf("maintenance: mkdir: allocating directory content: %w", err)
	}
	if err := e.persistDirectoryContent(result.FE, newDir, contentBlock); err != nil {
		return fmt.Errorf("maintenance: mkdir: %w", err)
	}

	parentDir.Insert(directory.FID{
		FileCharacteristics: directory.CharDirectory,
		ICB:                 primitive.LongAD{Block: result.Block, PartitionRef: e.partNum},
		FileIdent:           nameBytes,
	})
	if err := e.persistDirectoryContent(parentFE, parentDir, parentFE.DataExtents()[0].Block); err != nil {
		return fmt.Errorf("maintenance: mkdir: updating parent directory: %w", err)
	}
	return nil
}

// Rmdir removes an empty directory at path (spec.md §4.J "rmdir"): it
// is empty if every FID besides PARENT is already DELETED.
func (e *Engine) Rmdir(path string) error {
	res, err := e.Resolve(path)
	if err != nil {
		return fmt.Errorf("maintenance: rmdir: %w", err)
	}
	if res.State != ExistingDir {
		return fmt.Errorf("maintenance: rmdir: %s: %s", path, res.State)
	}

	childFE, err := e.readFileEntry(res.FID.ICB.Block)
	if err != nil {
		return fmt.Errorf("maintenance: rmdir: %w", err)
	}
	childDir, err := e.readDirectory(childFE)
	if err != nil {
		return fmt.Errorf("maintenance: rmdir: %w", err)
	}
	for _, f := range childDir.Fids {
		if f.IsParent() || f.IsDeleted() {
			continue
		}
		return fmt.Errorf("maintenance: rmdir: %s: directory not empty", path)
	}

	if err := res.Dir.Delete(res.Index, childFE, e.alloc, e.counts, nil, true); err != nil {
		return fmt.Errorf("maintenance: rmdir: %w", err)
	}
	return e.persistDirectoryContent(res.DirFE, res.Dir, res.DirFE.DataExtents()[0].Block)
}

// Rm removes a regular file at path (spec.md §4.J "rm").
func (e *Engine) Rm(path string) error {
	res, err := e.Resolve(path)
	if err != nil {
		return fmt.Errorf("maintenance: rm: %w", err)
	}
	if res.State != ExistingFile {
		return fmt.Errorf("maintenance: rm: %s: %s", path, res.State)
	}

	fe, err := e.readFileEntry(res.FID.ICB.Block)
	if err != nil {
		return fmt.Errorf("maintenance: rm: %w", err)
	}
	if err := res.Dir.Delete(res.Index, fe, e.alloc, e.counts, nil, false); err != nil {
		return fmt.Errorf("maintenance: rm: %w", err)
	}
	return e.persistDirectoryContent(res.DirFE, res.Dir, res.DirFE.DataExtents()[0].Block)
}

// RmRecursive removes path, descending into and emptying it first if
// it names a directory (spec.md §4.J "rm -r").
func (e *Engine) RmRecursive(path string) error {
	res, err := e.Resolve(path)
	if err != nil {
		return fmt.Errorf("maintenance: rm: %w", err)
	}
	switch res.State {
	case ExistingFile:
		return e.Rm(path)
	case ExistingDir:
	default:
		return fmt.Errorf("maintenance: rm: %s: %s", path, res.State)
	}

	childFE, err := e.readFileEntry(res.FID.ICB.Block)
	if err != nil {
		return fmt.Errorf("maintenance: rm: %w", err)
	}
	childDir, err := e.readDirectory(childFE)
	if err != nil {
		return fmt.Errorf("maintenance: rm: %w", err)
	}

	for _, f := range append([]directory.FID(nil), childDir.Fids...) {
		if f.IsParent() || f.IsDeleted() {
			continue
		}
		name, err := e.codec.Decode(f.FileIdent)
		if err != nil {
			return fmt.Errorf("maintenance: rm: decoding child name: %w", err)
		}
		if err := e.RmRecursive(joinPath(path, name)); err != nil {
			return err
		}
	}

	return e.Rmdir(path)
}

// Ls lists the non-deleted entries of the directory at path ("" for
// the current directory) (spec.md §4.J "ls").
func (e *Engine) Ls(path string) ([]string, error) {
	dir, _, err := e.resolveDirPath(path)
	if err != nil {
		return nil, fmt.Errorf("maintenance: ls: %w", err)
	}
	var names []string
	for _, f := range dir.Fids {
		if f.IsParent() || f.IsDeleted() {
			continue
		}
		name, err := e.codec.Decode(f.FileIdent)
		if err != nil {
			return nil, fmt.Errorf("maintenance: ls: decoding name: %w", err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Cd changes the current directory to path (spec.md §4.J "cd").
func (e *Engine) Cd(path string) error {
	newDir, newFE, err := e.resolveDirPath(path)
	if err != nil {
		return fmt.Errorf("maintenance: cd: %w", err)
	}
	e.cwd = newDir
	e.cwdFE = newFE
	e.cwdPath = advanceCwdPath(e.cwdPath, path)
	return nil
}

// WriteFile creates a new regular file at path holding content
// (spec.md §4.J "cp": the host-side file read and the recursive walk
// of a host directory tree are the maintenance shell's job; this is
// the single-file primitive it drives). When overwrite is false, an
// existing non-deleted entry at path is rejected rather than replaced,
// matching "confirm on overwrite unless -f" with the confirmation
// itself left to the caller.
func (e *Engine) WriteFile(path string, content []byte, overwrite bool) error {
	parentPath, leaf := splitParentLeaf(path)
	if leaf == "" {
		return fmt.Errorf("maintenance: cp: %s: empty name", path)
	}
	parentDir, parentFE, err := e.resolveDirPath(parentPath)
	if err != nil {
		return fmt.Errorf("maintenance: cp: %w", err)
	}
	nameBytes, err := e.codec.Encode(leaf, 255)
	if err != nil {
		return fmt.Errorf("maintenance: cp: encoding name: %w", err)
	}

	if fid, idx, found := findIncludingDeleted(parentDir, nameBytes); found && !fid.IsDeleted() {
		if !overwrite {
			return fmt.Errorf("maintenance: cp: %s: already exists", path)
		}
		existingFE, err := e.readFileEntry(fid.ICB.Block)
		if err != nil {
			return fmt.Errorf("maintenance: cp: %w", err)
		}
		isDir := fid.FileCharacteristics&directory.CharDirectory != 0
		if err := parentDir.Delete(idx, existingFE, e.alloc, e.counts, nil, isDir); err != nil {
			return fmt.Errorf("maintenance: cp: removing existing %s: %w", path, err)
		}
	}

	result, err := fileentry.CreateFileEntry(e.alloc, e.ids, e.counts, fileentry.Params{
		ParentICBBlock:        parentFE.Tag.TagLocation,
		ParentICBPartitionRef: e.partNum,
		FileType:              fileentry.FileTypeRegular,
		Now:                   e.clock.Now(),
		BlockSize:             e.blockSize,
		ImplementationIdent:   e.implIdent,
	})
	if err != nil {
		return fmt.Errorf("maintenance: cp: %w", err)
	}
	result.FE.FileLinkCount = 1

	if err := e.writeFileContent(result.FE, content); err != nil {
		return fmt.Errorf("maintenance: cp: %w", err)
	}

	parentDir.Insert(directory.FID{
		ICB:       primitive.LongAD{Block: result.Block, PartitionRef: e.partNum},
		FileIdent: nameBytes,
	})
	if err := e.persistDirectoryContent(parentFE, parentDir, parentFE.DataExtents()[0].Block); err != nil {
		return fmt.Errorf("maintenance: cp: updating directory: %w", err)
	}
	return nil
}

// ReadFile returns the full content of the regular file at path
// (spec.md §4.J "cp", the image-to-host extraction direction).
func (e *Engine) ReadFile(path string) ([]byte, error) {
	res, err := e.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("maintenance: cp: %w", err)
	}
	if res.State != ExistingFile {
		return nil, fmt.Errorf("maintenance: cp: %s: %s", path, res.State)
	}
	fe, err := e.readFileEntry(res.FID.ICB.Block)
	if err != nil {
		return nil, fmt.Errorf("maintenance: cp: %w", err)
	}
	return e.readFileContent(fe)
}

// Ln creates a hard link at dst to the same File Entry as the existing
// file at src, bumping its link count (supplemented feature, grounded
// on wrudf-cmnd.c's ln command — hard links stay within one
// partition, since a FID's ICB carries no cross-partition indirection
// this engine exercises).
func (e *Engine) Ln(src, dst string) error {
	res, err := e.Resolve(src)
	if err != nil {
		return fmt.Errorf("maintenance: ln: %w", err)
	}
	if res.State != ExistingFile {
		return fmt.Errorf("maintenance: ln: %s: %s", src, res.State)
	}

	parentPath, leaf := splitParentLeaf(dst)
	if leaf == "" {
		return fmt.Errorf("maintenance: ln: %s: empty name", dst)
	}
	parentDir, parentFE, err := e.resolveDirPath(parentPath)
	if err != nil {
		return fmt.Errorf("maintenance: ln: %w", err)
	}
	nameBytes, err := e.codec.Encode(leaf, 255)
	if err != nil {
		return fmt.Errorf("maintenance: ln: encoding name: %w", err)
	}
	if _, _, found := findIncludingDeleted(parentDir, nameBytes); found {
		return fmt.Errorf("maintenance: ln: %s: already exists", dst)
	}

	targetFE, err := e.readFileEntry(res.FID.ICB.Block)
	if err != nil {
		return fmt.Errorf("maintenance: ln: %w", err)
	}
	targetFE.FileLinkCount++
	if err := e.writeFileEntry(targetFE.Tag.TagLocation, targetFE); err != nil {
		return fmt.Errorf("maintenance: ln: %w", err)
	}

	parentDir.Insert(directory.FID{
		ICB:       primitive.LongAD{Block: res.FID.ICB.Block, PartitionRef: e.partNum},
		FileIdent: nameBytes,
	})
	if err := e.persistDirectoryContent(parentFE, parentDir, parentFE.DataExtents()[0].Block); err != nil {
		return fmt.Errorf("maintenance: ln: updating directory: %w", err)
	}
	return nil
}

// Mv renames or moves the entry at src to dst, within one directory or
// across two (supplemented feature, grounded on wrudf-cmnd.c's mv
// command). It inserts a FID for dst pointing at the same ICB and
// removes the FID at src, leaving the target's link count untouched —
// a move, not a new link. Moving a directory across parents also
// reparents it: its own File Entry's ICBTag.ParentICBBlock and its
// PARENT FID's ICB are updated to point at the new containing
// directory, so a later ".." resolution still lands in the right
// place.
func (e *Engine) Mv(src, dst string) error {
	res, err := e.Resolve(src)
	if err != nil {
		return fmt.Errorf("maintenance: mv: %w", err)
	}
	if res.State != ExistingFile && res.State != ExistingDir {
		return fmt.Errorf("maintenance: mv: %s: %s", src, res.State)
	}

	parentPath, leaf := splitParentLeaf(dst)
	if leaf == "" {
		return fmt.Errorf("maintenance: mv: %s: empty name", dst)
	}
	dstDir, dstFE, err := e.resolveDirPath(parentPath)
	if err != nil {
		return fmt.Errorf("maintenance: mv: %w", err)
	}
	nameBytes, err := e.codec.Encode(leaf, 255)
	if err != nil {
		return fmt.Errorf("maintenance: mv: encoding name: %w", err)
	}
	if _, _, found := findIncludingDeleted(dstDir, nameBytes); found {
		return fmt.Errorf("maintenance: mv: %s: already exists", dst)
	}

	sameDir := res.DirFE.Tag.TagLocation == dstFE.Tag.TagLocation
	if sameDir {
		dstDir = res.Dir
	}
	moved := res.FID
	moved.FileIdent = nameBytes
	dstDir.Insert(moved)
	if err := res.Dir.Remove(res.Index); err != nil {
		return fmt.Errorf("maintenance: mv: %w", err)
	}

	if !sameDir && res.State == ExistingDir {
		if err := e.reparent(moved.ICB.Block, dstFE.Tag.TagLocation); err != nil {
			return fmt.Errorf("maintenance: mv: %w", err)
		}
	}

	if err := e.persistDirectoryContent(res.DirFE, res.Dir, res.DirFE.DataExtents()[0].Block); err != nil {
		return fmt.Errorf("maintenance: mv: updating source directory: %w", err)
	}
	if sameDir {
		return nil
	}
	if err := e.persistDirectoryContent(dstFE, dstDir, dstFE.DataExtents()[0].Block); err != nil {
		return fmt.Errorf("maintenance: mv: updating destination directory: %w", err)
	}
	return nil
}

// reparent updates a moved directory's File Entry parent pointer and
// its own PARENT FID so both follow it to its new location.
func (e *Engine) reparent(dirFEBlock, newParentBlock uint32) error {
	fe, err := e.readFileEntry(dirFEBlock)
	if err != nil {
		return err
	}
	fe.ICBTag.ParentICBBlock = newParentBlock
	if err := e.writeFileEntry(dirFEBlock, fe); err != nil {
		return err
	}

	dir, err := e.readDirectory(fe)
	if err != nil {
		return err
	}
	for i, f := range dir.Fids {
		if f.IsParent() {
			dir.Fids[i].ICB.Block = newParentBlock
			dir.Dirty = true
			break
		}
	}
	extents := fe.DataExtents()
	if len(extents) == 0 {
		return fmt.Errorf("maintenance: reparent: directory at %d has no content extent", dirFEBlock)
	}
	return e.persistDirectoryContent(fe, dir, extents[0].Block)
}

func joinPath(parent, leaf string) string {
	if parent == "/" {
		return "/" + leaf
	}
	return parent + "/" + leaf
}

// advanceCwdPath computes the new display path for Cd(target), given
// the current display path.
func advanceCwdPath(current, target string) string {
	if target == "" {
		return current
	}
	if strings.HasPrefix(target, "/") {
		return cleanPath(splitPath(target))
	}

	joined := current
	if joined != "/" {
		joined += "/"
	}
	joined += target
	return cleanPath(resolveDotDot(splitPath(joined)))
}

// resolveDotDot collapses ".." components against their preceding
// entry for display purposes; path resolution itself follows the
// on-disc PARENT FID rather than trusting this string walk.
func resolveDotDot(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p == ".." {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, p)
	}
	return out
}
