//go:build linux
// +build linux

package ktime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/rlimit"

	"go.sazak.io/monoclock/clock"
)

// Socket filters are run by BPF_PROG_TEST_RUN against a packet; the kernel
// wants at least an Ethernet header's worth of it.
const packetSize = 14

// Source runs a socket filter that stores bpf_ktime_get_ns() into a one-slot
// array map and reads the slot back. Each reading costs two syscalls, so it
// is a reference clock, not a hot-path one.
type Source struct {
	mu     sync.Mutex
	prog   *ebpf.Program
	slot   *ebpf.Map
	packet []byte
}

var _ clock.Source = (*Source)(nil)

// NewSource loads the program. It needs CAP_BPF (or root) and a kernel with
// BPF_PROG_TEST_RUN support for socket filters.
func NewSource() (*Source, error) {
	// Allow the current process to lock memory for eBPF resources.
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}

	slot, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "ktime_slot",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ktime map: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "ktime_read",
		Type:         ebpf.SocketFilter,
		License:      "GPL",
		Instructions: readKtime(slot.FD()),
	})
	if err != nil {
		slot.Close()
		if errors.Is(err, ebpf.ErrNotSupported) {
			return nil, fmt.Errorf("%w: %v", ErrNotSupported, err)
		}
		return nil, fmt.Errorf("loading ktime program: %w", err)
	}

	return &Source{
		prog:   prog,
		slot:   slot,
		packet: make([]byte, packetSize),
	}, nil
}

// readKtime stores bpf_ktime_get_ns() at key 0 of the map behind mapFD.
func readKtime(mapFD int) asm.Instructions {
	return asm.Instructions{
		asm.FnKtimeGetNs.Call(),
		// value at fp-8, key at fp-12
		asm.StoreMem(asm.RFP, -8, asm.R0, asm.DWord),
		asm.StoreImm(asm.RFP, -12, 0, asm.Word),
		asm.LoadMapPtr(asm.R1, mapFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -12),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -8),
		asm.Mov.Imm(asm.R4, 0), // BPF_ANY
		asm.FnMapUpdateElem.Call(),
		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),
	}
}

func (s *Source) Name() string { return Name }

func (s *Source) Period() (clock.Period, error) {
	if _, err := s.Ticks(); err != nil {
		return clock.Period{}, err
	}
	return clock.Nanosecond, nil
}

func (s *Source) Ticks() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.prog.Run(&ebpf.RunOptions{Data: s.packet}); err != nil {
		return 0, fmt.Errorf("running ktime program: %w", err)
	}
	var (
		key uint32
		ns  uint64
	)
	if err := s.slot.Lookup(&key, &ns); err != nil {
		return 0, fmt.Errorf("reading ktime slot: %w", err)
	}
	return ns, nil
}

// Close releases the program and its map.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(s.prog.Close(), s.slot.Close())
}
