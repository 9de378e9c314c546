// Package check implements the consistency engine (spec.md §4.5): a
// fixed sequence of passes run after the loader brings a volume up,
// cross-checking the TNC, the LPT, and the scanned file graph, each
// emitting zero or more problems through the mode gate in
// internal/problem.
package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/lpt"
	"github.com/ubifsck/ubifsck/internal/node"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/scan"
	"github.com/ubifsck/ubifsck/internal/scanfile"
	"github.com/ubifsck/ubifsck/internal/session"
	"github.com/ubifsck/ubifsck/internal/tnc"
)

// AskFunc prompts the user for one problem instance in normal mode; it is
// forwarded to problem.Decide unchanged.
type AskFunc func(problem.Kind) problem.Answer

// Engine holds the in-memory state the consistency engine passes
// operate on and mutate: the TNC/LPT overlay produced by the loader, and
// the scanned-file graph the TNC sweep builds up.
type Engine struct {
	Sess   *session.Session
	Tnc    *tnc.Tnc
	Lpt    *lpt.Lpt
	Device device.Volume

	// Master is the chosen master-node copy from loader bring-up; the
	// index-size check rewrites MasterLnum/MasterOffs in place when the
	// stored IdxSize disagrees with the recount.
	Master               *node.Master
	MasterLnum, MasterOffs int

	Files       map[uint32]*scanfile.File
	HighestInum uint32

	// lebKind records, per main LEB visited during the sweep, whether it
	// hosts index or non-index nodes — the segregation invariant check.
	lebKind    map[int]bool // true == index leb
	lebCorrupt map[int]bool

	ask AskFunc

	// Disconnected collects regular files with no reachable dentry,
	// parked rather than deleted (spec.md §9's lost+found alternative to
	// outright dropping them).
	Disconnected []*scanfile.File
}

// New constructs an Engine over an already-loaded TNC and LPT.
func New(sess *session.Session, t *tnc.Tnc, l *lpt.Lpt, vol device.Volume, ask AskFunc) *Engine {
	return &Engine{
		Sess:       sess,
		Tnc:        t,
		Lpt:        l,
		Device:     vol,
		Files:      make(map[uint32]*scanfile.File),
		lebKind:    make(map[int]bool),
		lebCorrupt: make(map[int]bool),
		ask:        ask,
	}
}

// decide runs a found problem through the session's mode gate, records
// it on the exit-code accumulator and the session metrics handle, and
// returns whether the caller should apply the fix.
func (e *Engine) decide(kind problem.Kind) (problem.Decision, error) {
	d, err := problem.Decide(kind, e.Sess.Mode, e.ask)
	if err != nil {
		return problem.Decision{}, err
	}
	e.Sess.Metrics.ProblemFound(context.Background(), kind.String())
	e.Sess.ExitCode.RecordDecision(d)
	if d.Fix {
		e.Sess.Metrics.ProblemFixed(context.Background(), kind.String())
	}
	if d.Fatal {
		if flags, ok := problem.Lookup(kind); ok && flags&problem.NeedRebuild != 0 {
			e.Sess.TryRebuild = true
		}
	}
	return d, nil
}

// file returns (creating if needed) the scanned file for inum.
func (e *Engine) file(inum uint32) *scanfile.File {
	f, ok := e.Files[inum]
	if !ok {
		f = scanfile.New(inum)
		e.Files[inum] = f
	}
	return f
}

// readLeb reads and scans a main LEB, recording a corrupt result in
// e.lebCorrupt; nothing else is cached, so every call reads and scans
// the LEB again.
func (e *Engine) readLeb(lnum int) (*scan.Sleb, error) {
	buf, err := e.Device.LebRead(lnum, 0, int(e.Device.LebSize()))
	if err != nil {
		return nil, fmt.Errorf("check: read leb %d: %w", lnum, err)
	}
	sl, err := scan.LEB(lnum, buf)
	if err != nil {
		if errors.Is(err, scan.ErrGarbage) {
			// Unrecognizable leading garbage: the LEB is corrupt but
			// this is not a fatal error for the caller, which escalates
			// via e.lebCorrupt the same way it handles a recoverable
			// HasBadNode result.
			e.lebCorrupt[lnum] = true
			return sl, nil
		}
		return nil, err
	}
	if sl.HasBadNode {
		e.lebCorrupt[lnum] = true
	}
	return sl, nil
}

// markLebKind records lnum's observed segregation (index vs non-index),
// flagging it corrupt the moment a mix is observed (spec.md §3: "either
// all its nodes are index nodes or none of them are").
func (e *Engine) markLebKind(lnum int, isIdx bool) {
	if kind, seen := e.lebKind[lnum]; seen {
		if kind != isIdx {
			e.lebCorrupt[lnum] = true
		}
		return
	}
	e.lebKind[lnum] = isIdx
}
