package buffermgr

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"odscore/src/models"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

/*

This is exclusively for managing read access to external binary files.
Files are mapped read-only and shared between readers with reference
counting. Idle mappings stay cached up to a limit so repeated channel reads
do not remap; the least recently used idle mappings are dropped first.

*/

// MappedFile is a read-only memory view of one file.
type MappedFile struct {
	path       string
	data       []byte
	size       int64
	modTime    time.Time
	refCount   int
	lastAccess int64
}

// Path returns the absolute path of the mapped file.
func (mf *MappedFile) Path() string {
	return mf.path
}

// Bytes returns the mapped content. It must not be used after Release.
func (mf *MappedFile) Bytes() []byte {
	return mf.data
}

// Size returns the file size at mapping time.
func (mf *MappedFile) Size() int64 {
	return mf.size
}

func (mf *MappedFile) unmap() error {
	if len(mf.data) == 0 {
		return nil
	}
	err := unix.Munmap(mf.data)
	mf.data = nil
	return err
}

// FileRegistry manages the mapped files of a data set
type FileRegistry struct {
	mu        sync.Mutex
	files     map[string]*MappedFile
	maxMapped int
	logger    *zap.SugaredLogger
}

// NewFileRegistry creates a registry keeping at most maxMapped idle mappings.
func NewFileRegistry(maxMapped int, logger *zap.SugaredLogger) *FileRegistry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if maxMapped < 1 {
		maxMapped = 1
	}
	return &FileRegistry{
		files:     make(map[string]*MappedFile),
		maxMapped: maxMapped,
		logger:    logger,
	}
}

// Acquire maps path, or shares an existing mapping, and takes a reference.
// Every successful Acquire must be paired with Release.
func (fr *FileRegistry) Acquire(path string) (*MappedFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, models.WrapIOFailure(err, "resolve %s", path)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	info, err := os.Stat(abs)
	if err != nil {
		return nil, models.WrapIOFailure(err, "stat %s", abs)
	}
	if info.IsDir() {
		return nil, models.WrapIOFailure(os.ErrInvalid, "%s is a directory", abs)
	}

	if mf, ok := fr.files[abs]; ok {
		if mf.size == info.Size() && mf.modTime.Equal(info.ModTime()) {
			mf.refCount++
			mf.lastAccess = time.Now().UnixNano()
			return mf, nil
		}
		if mf.refCount == 0 {
			// file changed on disk since it was mapped
			if err := mf.unmap(); err != nil {
				fr.logger.Errorf("Failed to unmap stale %s: %v", abs, err)
			}
			delete(fr.files, abs)
		} else {
			return nil, models.WrapIOFailure(os.ErrInvalid, "%s changed while mapped", abs)
		}
	}

	mf, err := mapFile(abs)
	if err != nil {
		return nil, err
	}
	mf.refCount = 1
	mf.lastAccess = time.Now().UnixNano()
	fr.files[abs] = mf
	fr.logger.Debugf("mapped %s (%d bytes)", abs, mf.size)
	return mf, nil
}

func mapFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.WrapIOFailure(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, models.WrapIOFailure(err, "stat %s", path)
	}
	mf := &MappedFile{path: path, size: info.Size(), modTime: info.ModTime()}
	if mf.size == 0 {
		mf.data = []byte{}
		return mf, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(mf.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, models.WrapIOFailure(err, "mmap %s", path)
	}
	mf.data = data
	return mf, nil
}

// Release drops a reference taken by Acquire. Idle mappings beyond the
// registry limit are unmapped.
func (fr *FileRegistry) Release(mf *MappedFile) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	cur, ok := fr.files[mf.path]
	if !ok || cur != mf || mf.refCount <= 0 {
		return models.WrapIOFailure(os.ErrClosed, "release of %s without acquire", mf.path)
	}
	mf.refCount--
	if mf.refCount == 0 {
		return fr.evictIdle()
	}
	return nil
}

// evictIdle unmaps least recently used idle files until at most maxMapped
// mappings remain. Caller holds fr.mu.
func (fr *FileRegistry) evictIdle() error {
	if len(fr.files) <= fr.maxMapped {
		return nil
	}
	var idle []*MappedFile
	for _, mf := range fr.files {
		if mf.refCount == 0 {
			idle = append(idle, mf)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].lastAccess < idle[j].lastAccess })

	var lastErr error
	for _, mf := range idle {
		if len(fr.files) <= fr.maxMapped {
			break
		}
		if err := mf.unmap(); err != nil {
			lastErr = models.WrapIOFailure(err, "munmap %s", mf.path)
		}
		delete(fr.files, mf.path)
	}
	return lastErr
}

// WithFile maps path for the duration of fn. The mapping is released on
// every exit path, including a panic in fn.
func (fr *FileRegistry) WithFile(path string, fn func(data []byte) error) (err error) {
	mf, err := fr.Acquire(path)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := fr.Release(mf); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(mf.Bytes())
}

// Mapped returns the number of files currently mapped.
func (fr *FileRegistry) Mapped() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return len(fr.files)
}

// CloseAll unmaps every file. Files still referenced are unmapped as well
// and reported.
func (fr *FileRegistry) CloseAll() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	var lastErr error
	for path, mf := range fr.files {
		if mf.refCount > 0 {
			fr.logger.Warnf("Unmapping %s with %d open references", path, mf.refCount)
		}
		if err := mf.unmap(); err != nil {
			lastErr = models.WrapIOFailure(err, "munmap %s", path)
			fr.logger.Errorf("Failed to unmap %s: %v", path, err)
		}
	}

	fr.files = make(map[string]*MappedFile)

	return lastErr
}
