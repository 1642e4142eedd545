//go:build linux

// Package shm_ring publishes acquired frames into a shared memory ring so
// other processes can follow the scope without a network hop.
package shm_ring

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RingHeader sits at the very beginning of the shared memory. Head, Tail and
// Last are monotonic byte counts; the ring position is the count modulo
// Size.
type RingHeader struct {
	Magic    uint64 // For validation
	Size     uint64 // Total data size (excluding header)
	Head     uint64 // Bytes written
	Tail     uint64 // Bytes consumed by the reader that last acknowledged
	Last     uint64 // Start of the newest complete frame
	Frames   uint64
	Version  uint32
	Channels uint32
}

// FrameHeader precedes every frame in the ring.
type FrameHeader struct {
	Sync    uint32
	Depth   uint32 // sample pairs that follow
	Trigger int32
	Edge    uint32
	Seq     uint64
	Ts      float64 // seconds per sample
}

const (
	HeaderSize      = uint64(unsafe.Sizeof(RingHeader{}))
	FrameHeaderSize = uint64(unsafe.Sizeof(FrameHeader{}))
	MagicValue      = 0x454d4152464f5344 // "DSOFRAME"
	frameSync       = 0x46524d45
)

var (
	ErrEmpty   = errors.New("shm ring: no new frame")
	ErrOverrun = errors.New("shm ring: reader overrun")
)

type ShmRing struct {
	fd     int
	data   []byte
	header *RingHeader
	total  uint64
}

func shmPath(name string) string { return "/dev/shm" + name }

// Create creates a new shared memory ring buffer holding size bytes of
// frames.
func Create(name string, size uint64) (*ShmRing, error) {
	f, err := unix.Open(shmPath(name), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0666)
	if err != nil {
		if err == unix.EEXIST {
			return Open(name)
		}
		return nil, fmt.Errorf("open shm: %w", err)
	}

	totalSize := HeaderSize + size
	if err := unix.Ftruncate(f, int64(totalSize)); err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	data, err := unix.Mmap(f, 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("mmap: %w", err)
	}

	ring := &ShmRing{
		fd:    f,
		data:  data,
		total: size,
	}

	ring.header = (*RingHeader)(unsafe.Pointer(&data[0]))
	ring.header.Magic = MagicValue
	ring.header.Size = size
	ring.header.Version = 2
	ring.header.Channels = 2
	atomic.StoreUint64(&ring.header.Head, 0)
	atomic.StoreUint64(&ring.header.Tail, 0)
	atomic.StoreUint64(&ring.header.Last, 0)
	atomic.StoreUint64(&ring.header.Frames, 0)

	return ring, nil
}

// Open opens an existing shared memory ring buffer
func Open(name string) (*ShmRing, error) {
	f, err := unix.Open(shmPath(name), unix.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("open shm: %w", err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(f, &stat); err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if uint64(stat.Size) <= HeaderSize {
		unix.Close(f)
		return nil, fmt.Errorf("shm %s too small: %d bytes", name, stat.Size)
	}

	data, err := unix.Mmap(f, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("mmap: %w", err)
	}

	ring := &ShmRing{
		fd:    f,
		data:  data,
		total: uint64(stat.Size) - HeaderSize,
	}

	ring.header = (*RingHeader)(unsafe.Pointer(&data[0]))
	if ring.header.Magic != MagicValue {
		ring.Close()
		return nil, fmt.Errorf("invalid magic value in shm")
	}

	return ring, nil
}

// put copies p into the ring at the monotonic offset pos.
func (r *ShmRing) put(pos uint64, p []byte) {
	dest := r.data[HeaderSize:]
	at := pos % r.total
	n := copy(dest[at:], p)
	copy(dest, p[n:])
}

// get copies len(p) bytes out of the ring from the monotonic offset pos.
func (r *ShmRing) get(pos uint64, p []byte) {
	src := r.data[HeaderSize:]
	at := pos % r.total
	n := copy(p, src[at:])
	copy(p[n:], src)
}

// Write appends raw bytes at the Head.
func (r *ShmRing) Write(p []byte) (n int, err error) {
	n = len(p)
	if uint64(n) > r.total {
		return 0, fmt.Errorf("write larger than ring size")
	}
	head := atomic.LoadUint64(&r.header.Head)
	r.put(head, p)
	atomic.StoreUint64(&r.header.Head, head+uint64(n))
	return n, nil
}

// WriteFrame appends one frame of interleaved samples and marks it as the
// newest.
func (r *ShmRing) WriteFrame(hdr FrameHeader, samples []byte) error {
	hdr.Sync = frameSync
	hdr.Depth = uint32(len(samples) / 2)
	size := FrameHeaderSize + uint64(len(samples))
	if size > r.total {
		return fmt.Errorf("frame of %d bytes larger than ring size %d", size, r.total)
	}

	start := atomic.LoadUint64(&r.header.Head)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&hdr)), FrameHeaderSize)
	r.put(start, raw)
	r.put(start+FrameHeaderSize, samples)

	atomic.StoreUint64(&r.header.Head, start+size)
	atomic.StoreUint64(&r.header.Last, start)
	atomic.AddUint64(&r.header.Frames, 1)
	return nil
}

// ReadFrame copies the frame starting at pos into buf, growing it when
// needed, and returns the offset of the following frame. ErrOverrun means
// the writer lapped pos; resume from Latest.
func (r *ShmRing) ReadFrame(pos uint64, buf []byte) (FrameHeader, []byte, uint64, error) {
	var hdr FrameHeader
	head := atomic.LoadUint64(&r.header.Head)
	if pos >= head {
		return hdr, buf, pos, ErrEmpty
	}
	if head-pos > r.total {
		return hdr, buf, pos, ErrOverrun
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&hdr)), FrameHeaderSize)
	r.get(pos, raw)
	if hdr.Sync != frameSync {
		return hdr, buf, pos, fmt.Errorf("shm ring: no frame at %d", pos)
	}
	n := 2 * int(hdr.Depth)
	if uint64(n) > r.total {
		return hdr, buf, pos, fmt.Errorf("shm ring: frame depth %d too large", hdr.Depth)
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	r.get(pos+FrameHeaderSize, buf)

	// the copy is only good if the writer did not reach it meanwhile
	end := pos + FrameHeaderSize + uint64(n)
	if atomic.LoadUint64(&r.header.Head)-pos > r.total {
		return hdr, buf, pos, ErrOverrun
	}
	return hdr, buf, end, nil
}

// Latest returns the offset of the newest frame and how many frames have
// been written.
func (r *ShmRing) Latest() (pos, frames uint64) {
	frames = atomic.LoadUint64(&r.header.Frames)
	return atomic.LoadUint64(&r.header.Last), frames
}

func (r *ShmRing) GetPointers() (uint64, uint64) {
	return atomic.LoadUint64(&r.header.Head), atomic.LoadUint64(&r.header.Tail)
}

// SetTail records how far a reader has consumed.
func (r *ShmRing) SetTail(tail uint64) {
	atomic.StoreUint64(&r.header.Tail, tail)
}

func (r *ShmRing) Size() uint64 { return r.total }

func (r *ShmRing) Close() error {
	if r.data != nil {
		unix.Munmap(r.data)
		r.data = nil
	}
	if r.fd != 0 {
		unix.Close(r.fd)
		r.fd = 0
	}
	return nil
}

func Remove(name string) error {
	err := unix.Unlink(shmPath(name))
	if err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}
