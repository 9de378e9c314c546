// Package fsck is the top-level driver spec.md §9 describes: it brings
// a volume up through internal/loader, runs internal/check's fixed pass
// sequence, and escalates to internal/rebuild's scavenging rebuilder
// either when bring-up itself fails outright (a corrupt superblock or
// master) or when the consistency engine sets Session.TryRebuild after a
// MustFix-and-NeedRebuild problem goes unfixed. It owns nothing the
// lower packages don't already own; its only job is sequencing them and
// translating their outcomes into the bitmask exit code spec.md §6
// defines.
package fsck

import (
	"context"
	"errors"
	"fmt"

	"github.com/ubifsck/ubifsck/internal/auth"
	"github.com/ubifsck/ubifsck/internal/check"
	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/loader"
	"github.com/ubifsck/ubifsck/internal/logger"
	"github.com/ubifsck/ubifsck/internal/metrics"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/rebuild"
	"github.com/ubifsck/ubifsck/internal/session"
)

// Options configures a single Run.
type Options struct {
	Mode    problem.Mode
	Auth    auth.Signer
	Metrics metrics.Handle
	Ask     check.AskFunc
}

// Result is what a completed (or aborted) run reports back to the CLI.
type Result struct {
	ExitCode problem.ExitCode
	Rebuilt  bool
	RunID    string
}

// Run executes one full fsck pass over vol: bring-up, consistency check,
// and, if needed, scavenging rebuild followed by a verification pass.
// The returned error is non-nil when bring-up, the consistency check or
// the rebuild fails with an error, and Result is then zero-valued; a
// context already cancelled on entry sets the cancelled-by-signal bit
// and returns a nil error. Everything else is folded into
// Result.ExitCode.
func Run(ctx context.Context, vol device.Volume, opts Options) (Result, error) {
	sess := session.New()
	sess.Mode = opts.Mode
	if opts.Auth != nil {
		sess.Auth = opts.Auth
	}
	if opts.Metrics != nil {
		sess.Metrics = opts.Metrics
	}

	res := Result{RunID: sess.RunID.String()}

	if err := ctx.Err(); err != nil {
		sess.ExitCode.Set(problem.ExitCancelledBySignal)
		res.ExitCode = sess.ExitCode.Code()
		return res, nil
	}

	loaded, bringUpFatal, err := bringUp(sess, vol, opts.Ask)
	if err != nil {
		return Result{}, err
	}

	if loaded != nil {
		eng := check.New(sess, loaded.Tnc, loaded.Lpt, vol, opts.Ask)
		eng.Master = loaded.Master
		eng.MasterLnum = loaded.MasterLnum
		eng.MasterOffs = loaded.MasterOffs

		if err := eng.Run(); err != nil {
			return Result{}, fmt.Errorf("fsck: consistency check: %w", err)
		}
	}

	if bringUpFatal || sess.TryRebuild {
		logger.Infof("fsck: escalating to scavenging rebuild (run %s)", sess.RunID)
		if err := runRebuild(ctx, sess, vol); err != nil {
			return Result{}, err
		}
		res.Rebuilt = true
	}

	res.ExitCode = sess.ExitCode.Code()
	return res, nil
}

// bringUp runs loader.Load and, on a bring-up failure the loader itself
// cannot repair (a corrupt superblock or master), routes the failure
// through the mode gate as problem.MstCorrupted the same way the
// consistency engine routes every other problem — bring-up has no
// Engine yet to call decide() on, so the gate is invoked directly.
// Returns (nil, true, nil) when the run must proceed straight to
// rebuild without ever constructing a consistency engine.
func bringUp(sess *session.Session, vol device.Volume, ask check.AskFunc) (*loader.Result, bool, error) {
	loaded, err := loader.Load(vol)
	if err == nil {
		return loaded, false, nil
	}

	if errors.Is(err, loader.ErrBelowMinima) {
		sess.ExitCode.Set(problem.ExitOperationalError)
		return nil, false, fmt.Errorf("fsck: %w", err)
	}

	if !errors.Is(err, loader.ErrSuperblockCorrupted) && !errors.Is(err, loader.ErrMasterCorrupted) {
		sess.ExitCode.Set(problem.ExitOperationalError)
		return nil, false, fmt.Errorf("fsck: bring-up: %w", err)
	}

	d, derr := problem.Decide(problem.MstCorrupted, sess.Mode, ask)
	if derr != nil {
		sess.ExitCode.Set(problem.ExitOperationalError)
		return nil, false, fmt.Errorf("fsck: %w", derr)
	}
	sess.Metrics.ProblemFound(context.Background(), problem.MstCorrupted.String())
	sess.ExitCode.RecordDecision(d)
	if !d.Fix {
		return nil, false, nil
	}
	sess.Metrics.ProblemFixed(context.Background(), problem.MstCorrupted.String())
	return nil, true, nil
}

// runRebuild invokes the scavenging rebuilder in forced auto-fix mode
// and then re-runs bring-up and the consistency engine once to confirm
// the rebuilt volume is internally consistent (spec.md §8's "rebuild
// round-trip" and "idempotent repair" properties): a second TryRebuild
// request after a rebuild just completed means the rebuilder itself
// produced an inconsistent volume, which is an operational error rather
// than something the mode gate can resolve.
func runRebuild(ctx context.Context, sess *session.Session, vol device.Volume) error {
	rebuildMode := sess.Mode
	sess.Mode = problem.ModeRebuild
	if err := rebuild.Run(ctx, sess, vol); err != nil {
		sess.ExitCode.Set(problem.ExitOperationalError)
		return fmt.Errorf("fsck: rebuild: %w", err)
	}
	sess.ExitCode.Set(problem.ExitErrorsCorrected)
	sess.ExitCode.Set(problem.ExitRebootRecommended)
	sess.Mode = rebuildMode
	sess.TryRebuild = false

	loaded, err := loader.Load(vol)
	if err != nil {
		sess.ExitCode.Set(problem.ExitOperationalError)
		return fmt.Errorf("fsck: post-rebuild bring-up: %w", err)
	}

	eng := check.New(sess, loaded.Tnc, loaded.Lpt, vol, neverAsk)
	eng.Master = loaded.Master
	eng.MasterLnum = loaded.MasterLnum
	eng.MasterOffs = loaded.MasterOffs
	if err := eng.Run(); err != nil {
		return fmt.Errorf("fsck: post-rebuild check: %w", err)
	}
	if sess.TryRebuild {
		sess.ExitCode.Set(problem.ExitOperationalError)
		return errors.New("fsck: volume still inconsistent after rebuild")
	}
	return nil
}

// neverAsk backs the post-rebuild verification pass, which runs under
// the run's original mode; it answers No to any prompt a normal-mode run
// would raise there.
func neverAsk(problem.Kind) problem.Answer { return problem.AnswerNo }
