package archive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// packageFS implements fs.FS over a package's entry names
type packageFS struct {
	pkg   *Package
	files []fsEntry
}

type fsEntry struct {
	path  string
	index int
}

// FS returns a read-only fs.FS view of the package. Entry names compare
// case-sensitively here; duplicate names keep the first entry.
func (p *Package) FS() fs.FS {
	files := make([]fsEntry, 0, len(p.entries))
	seen := make(map[string]bool, len(p.entries))
	for i, e := range p.entries {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		files = append(files, fsEntry{path: e.Name, index: i})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].path < files[j].path
	})
	return &packageFS{pkg: p, files: files}
}

func (pfs *packageFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	files := pfs.files

	if name == "." {
		return &packageDir{fs: pfs, prefix: "", offset: 0}, nil
	}

	idx := sort.Search(len(files), func(i int) bool {
		return files[i].path >= name
	})
	if idx < len(files) && files[idx].path == name {
		return &packageFile{fs: pfs, info: &files[idx]}, nil
	}

	// not a file, so look for anything below name/
	dirName := name + "/"
	idx += sort.Search(len(files)-idx, func(i int) bool {
		return files[idx+i].path >= dirName
	})
	if idx < len(files) && strings.HasPrefix(files[idx].path, dirName) {
		return &packageDir{fs: pfs, prefix: dirName, offset: idx}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// packageFile implements fs.File for a single entry
type packageFile struct {
	fs     *packageFS
	info   *fsEntry
	reader *bytes.Reader
}

func (pf *packageFile) entry() *Entry {
	return &pf.fs.pkg.entries[pf.info.index]
}

func (pf *packageFile) Read(p []byte) (int, error) {
	if pf.reader == nil {
		data, err := pf.fs.pkg.Read(pf.info.index)
		if err != nil {
			return 0, &fs.PathError{Op: "read", Path: pf.info.path, Err: err}
		}
		pf.reader = bytes.NewReader(data)
	}
	return pf.reader.Read(p)
}

func (pf *packageFile) Close() error {
	return nil
}

func (pf *packageFile) Stat() (fs.FileInfo, error) {
	return &packageFileInfo{pf}, nil
}

type packageFileInfo struct {
	*packageFile
}

func (pfi packageFileInfo) Name() string       { return path.Base(pfi.info.path) }
func (pfi packageFileInfo) Size() int64        { return pfi.entry().Size }
func (pfi packageFileInfo) Mode() fs.FileMode  { return 0o444 }
func (pfi packageFileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (pfi packageFileInfo) IsDir() bool        { return false }
func (pfi packageFileInfo) Sys() any           { return pfi.entry() }

// packageDir implements fs.ReadDirFile for a directory prefix
type packageDir struct {
	fs     *packageFS
	prefix string
	offset int
}

func (pd *packageDir) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("%s: is a directory", pd.prefix)
}

func (pd *packageDir) Close() error {
	return nil
}

func (pd *packageDir) Stat() (fs.FileInfo, error) {
	return &packageDirInfo{pd}, nil
}

func (pd *packageDir) ReadDir(n int) ([]fs.DirEntry, error) {
	files := pd.fs.files
	prefixLen := len(pd.prefix)

	dirents := []fs.DirEntry{}

	for pd.offset < len(files) {
		fi := &files[pd.offset]
		if !strings.HasPrefix(fi.path, pd.prefix) {
			break
		}

		slashIdx := strings.Index(fi.path[prefixLen:], "/")
		if slashIdx != -1 {
			dir := fi.path[:prefixLen+slashIdx]
			dirents = append(dirents, &packageDirEnt{fs: pd.fs, path: dir})
			pd.offset += sort.Search(len(files)-pd.offset, func(i int) bool {
				return files[pd.offset+i].path >= dir+"/\xff"
			})
		} else {
			dirents = append(dirents, &packageDirEnt{
				fs:   pd.fs,
				path: fi.path,
				file: &packageFile{fs: pd.fs, info: fi},
			})
			pd.offset++
		}

		if n > 0 && len(dirents) >= n {
			return dirents, nil
		}
	}

	if n > 0 && len(dirents) == 0 {
		return dirents, io.EOF
	}
	return dirents, nil
}

type packageDirInfo struct {
	*packageDir
}

func (pdi packageDirInfo) Name() string {
	if pdi.prefix == "" {
		return "."
	}
	return path.Base(pdi.prefix)
}
func (pdi packageDirInfo) Size() int64        { return 0 }
func (pdi packageDirInfo) Mode() fs.FileMode  { return 0o555 | fs.ModeDir }
func (pdi packageDirInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (pdi packageDirInfo) IsDir() bool        { return true }
func (pdi packageDirInfo) Sys() any           { return nil }

type packageDirEnt struct {
	fs   *packageFS
	path string
	file *packageFile
}

func (pde *packageDirEnt) Name() string { return path.Base(pde.path) }
func (pde *packageDirEnt) IsDir() bool  { return pde.file == nil }

func (pde *packageDirEnt) Type() fs.FileMode {
	if pde.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (pde *packageDirEnt) Info() (fs.FileInfo, error) {
	if pde.IsDir() {
		return &packageDirInfo{&packageDir{fs: pde.fs, prefix: pde.path + "/", offset: -1}}, nil
	}
	return &packageFileInfo{pde.file}, nil
}
