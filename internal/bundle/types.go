package bundle

// Index is the parsed contents of _.index.bin: the bundle names and the
// location of every file inside them.
type Index struct {
	Bundles []string
	Files   []FileInfo
}

// FileInfo locates one file. Path is empty when no path list entry hashes
// to Hash.
type FileInfo struct {
	Path     string
	Hash     uint64
	BundleID uint32
	Offset   uint32
	Size     uint32
}

// Location is the Entry.Extra of bundle entries.
type Location struct {
	Bundle string
	Offset uint32
}

// Resolved returns how many files have a known path.
func (idx *Index) Resolved() int {
	n := 0
	for i := range idx.Files {
		if idx.Files[i].Path != "" {
			n++
		}
	}
	return n
}
