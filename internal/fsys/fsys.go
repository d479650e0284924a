// Package fsys implements the kernel's in-memory file store: a fixed
// inode table backed by the heap, and a dense, hole-closing-shift
// descriptor table. Descriptors hold only an inode index and a cursor,
// never a cached pointer into the inode's data, so a write that
// reallocates through one descriptor can never leave another
// descriptor's view of the same file pointing at freed memory. Delete
// closes matching descriptors in a two-pass, descending-index style so
// the renumbering-on-close behavior cannot make it skip one.
package fsys

import (
	"github.com/kernellabs/prokernel/internal/heap"
	"github.com/kernellabs/prokernel/internal/kernelerr"
)

// Mode is a file open mode.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeAppend
)

// TickSource supplies the monotonic tick counter used to timestamp inode
// creation and modification. Any type with a Ticks() uint32 method
// satisfies this, including internal/clock.Clock; fsys never imports
// internal/clock.
type TickSource interface {
	Ticks() uint32
}

type noTicks struct{}

func (noTicks) Ticks() uint32 { return 0 }

// Inode is a file's persistent metadata and data handle.
type Inode struct {
	InUse         bool
	InodeNum      uint32
	Filename      string
	Size          uint32
	Capacity      uint32
	HasData       bool
	Data          heap.Handle
	CreatedTicks  uint32
	ModifiedTicks uint32
}

// descriptor is an open file handle. It holds only an inode index and a
// cursor, never a cached pointer into the inode's data, so that a write
// through one descriptor can never leave another descriptor's view of the
// same file pointing at freed memory.
type descriptor struct {
	inodeIndex int
	ownerPID   uint32
	readPos    uint32
	writePos   uint32
}

// Stats is a point-in-time snapshot of file store counters.
type Stats struct {
	TotalFiles uint32
	UsedFiles  uint32
	OpenFiles  uint32
	TotalSpace uint64
	UsedSpace  uint64
	FreeSpace  uint64
}

// FileStore is the kernel's file subsystem: an inode table plus a dense
// open-descriptor table, both fixed-size per the kernel ABI.
type FileStore struct {
	heap        *heap.Heap
	ticks       TickSource
	maxFiles    int
	maxFilename int
	maxFileSize uint32

	inodes      []Inode
	descriptors []descriptor
	nextInode   uint32
	usedInodes  int
}

// New creates a FileStore with maxFiles inode slots, each capped at
// maxFileSize bytes, backed by h for data storage.
func New(h *heap.Heap, ticks TickSource, maxFiles, maxFilename int, maxFileSize uint32) *FileStore {
	if ticks == nil {
		ticks = noTicks{}
	}
	inodes := make([]Inode, maxFiles)
	for i := range inodes {
		inodes[i].Capacity = maxFileSize
	}
	return &FileStore{
		heap:        h,
		ticks:       ticks,
		maxFiles:    maxFiles,
		maxFilename: maxFilename,
		maxFileSize: maxFileSize,
		inodes:      inodes,
		nextInode:   1,
	}
}

func (fs *FileStore) findInodeByName(name string) int {
	for i := range fs.inodes {
		if fs.inodes[i].InUse && fs.inodes[i].Filename == name {
			return i
		}
	}
	return -1
}

func (fs *FileStore) findFreeInode() int {
	for i := range fs.inodes {
		if !fs.inodes[i].InUse {
			return i
		}
	}
	return -1
}

func (fs *FileStore) truncateName(name string) string {
	if len(name) > fs.maxFilename-1 {
		return name[:fs.maxFilename-1]
	}
	return name
}

// Open opens filename under mode on behalf of pid and returns a
// descriptor id, or an error.
func (fs *FileStore) Open(filename string, mode Mode, pid uint32) (int32, error) {
	if filename == "" {
		return -1, kernelerr.New("fs.Open", kernelerr.CodeInvalidArgument, "empty filename")
	}
	if len(fs.descriptors) >= fs.maxFiles {
		return -1, kernelerr.New("fs.Open", kernelerr.CodeResourceExhausted, "descriptor table full")
	}

	var idx int
	switch mode {
	case ModeRead:
		idx = fs.findInodeByName(filename)
		if idx < 0 {
			return -1, kernelerr.New("fs.Open", kernelerr.CodeNotFound, "file not found")
		}
	case ModeWrite, ModeAppend:
		idx = fs.findInodeByName(filename)
		if idx < 0 {
			idx = fs.findFreeInode()
			if idx < 0 {
				return -1, kernelerr.New("fs.Open", kernelerr.CodeResourceExhausted, "no free inode")
			}
			fs.inodes[idx] = Inode{
				InUse:        true,
				InodeNum:     fs.nextInode,
				Filename:     fs.truncateName(filename),
				Capacity:     fs.maxFileSize,
				CreatedTicks: fs.ticks.Ticks(),
			}
			fs.nextInode++
			fs.usedInodes++
		} else if mode == ModeWrite {
			inode := &fs.inodes[idx]
			if inode.HasData {
				_ = fs.heap.Free(inode.Data)
			}
			inode.HasData = false
			inode.Size = 0
		}
	default:
		return -1, kernelerr.New("fs.Open", kernelerr.CodeInvalidArgument, "unknown mode")
	}

	inode := &fs.inodes[idx]
	d := descriptor{inodeIndex: idx, ownerPID: pid}
	if mode == ModeAppend {
		d.writePos = inode.Size
	}

	fs.descriptors = append(fs.descriptors, d)
	return int32(len(fs.descriptors) - 1), nil
}

func (fs *FileStore) descriptorAt(fd int32) (*descriptor, error) {
	if fd < 0 || int(fd) >= len(fs.descriptors) {
		return nil, kernelerr.New("fs", kernelerr.CodeNotFound, "invalid descriptor")
	}
	return &fs.descriptors[fd], nil
}

// Close releases fd, shifting later descriptors down by one index.
// The hole-closing renumbering is part of the descriptor contract:
// closing fd invalidates every higher-numbered descriptor, which now
// refers to the file one slot up. Command-level callers depend on it.
func (fs *FileStore) Close(fd int32) error {
	if _, err := fs.descriptorAt(fd); err != nil {
		return err
	}
	fs.descriptors = append(fs.descriptors[:fd], fs.descriptors[fd+1:]...)
	return nil
}

// Read copies up to len(buf) bytes starting at fd's read cursor and
// advances it. It returns 0 (not an error) at EOF.
func (fs *FileStore) Read(fd int32, buf []byte) (int, error) {
	d, err := fs.descriptorAt(fd)
	if err != nil {
		return 0, err
	}
	inode := &fs.inodes[d.inodeIndex]

	if d.readPos > inode.Size {
		return 0, kernelerr.New("fs.Read", kernelerr.CodeIntegrity, "read position out of range")
	}
	if d.readPos >= inode.Size {
		return 0, nil
	}

	remaining := inode.Size - d.readPos
	toRead := uint32(len(buf))
	if toRead > remaining {
		toRead = remaining
	}

	if !inode.HasData {
		return 0, kernelerr.New("fs.Read", kernelerr.CodeIntegrity, "inode has no data buffer")
	}
	payload, err := fs.heap.Payload(inode.Data)
	if err != nil {
		return 0, kernelerr.Wrap("fs.Read", kernelerr.CodeIntegrity, err)
	}

	n := copy(buf[:toRead], payload[d.readPos:d.readPos+toRead])
	d.readPos += uint32(n)
	return n, nil
}

// Write copies data into fd's file at its write cursor, growing the
// underlying heap allocation if necessary, and advances the cursor.
func (fs *FileStore) Write(fd int32, data []byte) (int, error) {
	d, err := fs.descriptorAt(fd)
	if err != nil {
		return 0, err
	}
	inode := &fs.inodes[d.inodeIndex]

	size := uint32(len(data))
	if d.writePos+size > inode.Capacity {
		return 0, kernelerr.New("fs.Write", kernelerr.CodeInvalidArgument, "write would exceed file capacity")
	}

	needed := d.writePos + size
	if needed > inode.Size {
		newHandle, err := fs.heap.Alloc(needed + 1)
		if err != nil {
			return 0, kernelerr.Wrap("fs.Write", kernelerr.CodeResourceExhausted, err)
		}
		newPayload, err := fs.heap.Payload(newHandle)
		if err != nil {
			return 0, kernelerr.Wrap("fs.Write", kernelerr.CodeIntegrity, err)
		}
		if inode.HasData && inode.Size > 0 {
			oldPayload, err := fs.heap.Payload(inode.Data)
			if err == nil {
				copy(newPayload, oldPayload[:inode.Size])
			}
		}
		if inode.HasData {
			_ = fs.heap.Free(inode.Data)
		}
		inode.Data = newHandle
		inode.HasData = true
		inode.Size = needed
	}

	payload, err := fs.heap.Payload(inode.Data)
	if err != nil {
		return 0, kernelerr.Wrap("fs.Write", kernelerr.CodeIntegrity, err)
	}
	copy(payload[d.writePos:d.writePos+size], data)
	d.writePos += size
	inode.ModifiedTicks = fs.ticks.Ticks()

	if int(d.writePos) < len(payload) {
		payload[d.writePos] = 0
	}

	return int(size), nil
}

// Delete removes filename: every open descriptor referencing it is
// closed first, collecting matches and closing highest index first so
// Close's renumbering cannot let a later match slip past the loop, then
// its data buffer is released and its inode slot freed.
func (fs *FileStore) Delete(filename string) error {
	idx := fs.findInodeByName(filename)
	if idx < 0 {
		return kernelerr.New("fs.Delete", kernelerr.CodeNotFound, "file not found")
	}
	var matching []int32
	for i := range fs.descriptors {
		if fs.descriptors[i].inodeIndex == idx {
			matching = append(matching, int32(i))
		}
	}
	for i := len(matching) - 1; i >= 0; i-- {
		_ = fs.Close(matching[i])
	}

	inode := &fs.inodes[idx]
	if inode.HasData {
		_ = fs.heap.Free(inode.Data)
	}
	*inode = Inode{Capacity: fs.maxFileSize}
	fs.usedInodes--
	return nil
}

// GetFile returns a copy of filename's inode metadata.
func (fs *FileStore) GetFile(filename string) (Inode, bool) {
	idx := fs.findInodeByName(filename)
	if idx < 0 {
		return Inode{}, false
	}
	return fs.inodes[idx], true
}

// Exists reports whether filename is present in the inode table.
func (fs *FileStore) Exists(filename string) bool {
	return fs.findInodeByName(filename) >= 0
}

// FileSize returns filename's current size, or 0 if it does not exist.
func (fs *FileStore) FileSize(filename string) uint32 {
	idx := fs.findInodeByName(filename)
	if idx < 0 {
		return 0
	}
	return fs.inodes[idx].Size
}

// ListFiles returns every in-use inode, for the shell's /ls command.
func (fs *FileStore) ListFiles() []Inode {
	var out []Inode
	for _, inode := range fs.inodes {
		if inode.InUse {
			out = append(out, inode)
		}
	}
	return out
}

// Stats returns a point-in-time snapshot of filesystem statistics.
func (fs *FileStore) Stats() Stats {
	var usedSpace uint64
	for _, inode := range fs.inodes {
		if inode.InUse && inode.HasData {
			usedSpace += uint64(inode.Size)
		}
	}
	total := uint64(fs.maxFiles) * uint64(fs.maxFileSize)
	return Stats{
		TotalFiles: uint32(fs.maxFiles),
		UsedFiles:  uint32(fs.usedInodes),
		OpenFiles:  uint32(len(fs.descriptors)),
		TotalSpace: total,
		UsedSpace:  usedSpace,
		FreeSpace:  total - usedSpace,
	}
}
