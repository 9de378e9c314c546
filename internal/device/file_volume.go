package device

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileVolume is a Volume backed by a flat regular file, one fixed-size
// slice per LEB, the reference implementation used by tests and by the
// CLI when pointed at a disk image rather than a live UBI device node.
type FileVolume struct {
	mu sync.Mutex

	f            *os.File
	lebSize      uint32
	lebCount     int
	minIOSize    uint32
	maxWriteSize uint32
	mapped       []bool
}

// OpenFileVolume opens (or creates, if create is true) path as a
// lebCount*lebSize byte image and wraps it as a Volume.
func OpenFileVolume(path string, lebCount int, lebSize, minIOSize, maxWriteSize uint32, create bool) (*FileVolume, error) {
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}

	wantSize := int64(lebCount) * int64(lebSize)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("device: stat %s: %w", path, err)
	}
	if info.Size() < wantSize {
		// Grow the image with erased (0xFF) bytes, so every LEB the file
		// did not yet cover starts unmapped.
		pad := bytes.Repeat([]byte{0xFF}, int(wantSize-info.Size()))
		if _, err := f.WriteAt(pad, info.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("device: extend %s: %w", path, err)
		}
	}

	v := &FileVolume{
		f:            f,
		lebSize:      lebSize,
		lebCount:     lebCount,
		minIOSize:    minIOSize,
		maxWriteSize: maxWriteSize,
		mapped:       make([]bool, lebCount),
	}
	if err := v.scanMapped(); err != nil {
		f.Close()
		return nil, err
	}
	return v, nil
}

// scanMapped marks a LEB mapped if it is not entirely 0xFF, mirroring the
// convention used by scan_leb for empty-space detection.
func (v *FileVolume) scanMapped() error {
	buf := make([]byte, v.lebSize)
	for i := 0; i < v.lebCount; i++ {
		if _, err := v.f.ReadAt(buf, int64(i)*int64(v.lebSize)); err != nil && err != io.EOF {
			return fmt.Errorf("device: scan leb %d: %w", i, err)
		}
		v.mapped[i] = !allFF(buf)
	}
	return nil
}

func allFF(buf []byte) bool {
	for _, b := range buf {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func (v *FileVolume) LebSize() uint32      { return v.lebSize }
func (v *FileVolume) LebCount() int        { return v.lebCount }
func (v *FileVolume) MinIOSize() uint32    { return v.minIOSize }
func (v *FileVolume) MaxWriteSize() uint32 { return v.maxWriteSize }

func (v *FileVolume) checkRange(lnum int) error {
	if lnum < 0 || lnum >= v.lebCount {
		return &ErrOutOfRange{Lnum: lnum, Count: v.lebCount}
	}
	return nil
}

func (v *FileVolume) LebRead(lnum int, offs, length int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkRange(lnum); err != nil {
		return nil, err
	}
	if offs < 0 || length < 0 || uint32(offs+length) > v.lebSize {
		return nil, fmt.Errorf("device: read leb %d offs %d len %d exceeds leb size %d", lnum, offs, length, v.lebSize)
	}
	buf := make([]byte, length)
	base := int64(lnum)*int64(v.lebSize) + int64(offs)
	if _, err := v.f.ReadAt(buf, base); err != nil && err != io.EOF {
		return nil, fmt.Errorf("device: read leb %d: %w", lnum, err)
	}
	return buf, nil
}

func (v *FileVolume) LebWrite(lnum int, offs int, buf []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkRange(lnum); err != nil {
		return err
	}
	if uint32(offs)%v.minIOSize != 0 || uint32(len(buf))%v.minIOSize != 0 {
		return fmt.Errorf("device: write leb %d offs %d len %d not aligned to min i/o size %d", lnum, offs, len(buf), v.minIOSize)
	}
	if uint32(offs+len(buf)) > v.lebSize {
		return fmt.Errorf("device: write leb %d offs %d len %d exceeds leb size %d", lnum, offs, len(buf), v.lebSize)
	}
	base := int64(lnum)*int64(v.lebSize) + int64(offs)
	if _, err := v.f.WriteAt(buf, base); err != nil {
		return fmt.Errorf("device: write leb %d: %w", lnum, err)
	}
	v.mapped[lnum] = true
	return nil
}

func (v *FileVolume) LebChange(lnum int, buf []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkRange(lnum); err != nil {
		return err
	}
	if uint32(len(buf)) > v.lebSize {
		return fmt.Errorf("device: change leb %d: buf len %d exceeds leb size %d", lnum, len(buf), v.lebSize)
	}
	full := bytes.Repeat([]byte{0xFF}, int(v.lebSize))
	copy(full, buf)
	base := int64(lnum) * int64(v.lebSize)
	if _, err := v.f.WriteAt(full, base); err != nil {
		return fmt.Errorf("device: change leb %d: %w", lnum, err)
	}
	v.mapped[lnum] = len(buf) > 0
	return nil
}

func (v *FileVolume) LebUnmap(lnum int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkRange(lnum); err != nil {
		return err
	}
	full := bytes.Repeat([]byte{0xFF}, int(v.lebSize))
	base := int64(lnum) * int64(v.lebSize)
	if _, err := v.f.WriteAt(full, base); err != nil {
		return fmt.Errorf("device: unmap leb %d: %w", lnum, err)
	}
	v.mapped[lnum] = false
	return nil
}

func (v *FileVolume) IsMapped(lnum int) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkRange(lnum); err != nil {
		return false, err
	}
	return v.mapped[lnum], nil
}

// Close releases the underlying file handle.
func (v *FileVolume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.f.Close()
}
