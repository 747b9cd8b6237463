// Package operator implements the VZFS Operator (O): a single-threaded,
// message-driven actor sitting on top of Tree Ops (T) and the Lock
// Manager (L), exactly as §4.5 describes it. Commands arrive on a
// channel and are processed one at a time, in order; a second goroutine
// runs the lock-pruner region in parallel, mirroring the hierarchical
// state machine's two parallel regions (`lockTablePruner`, `operator`)
// with Go's native concurrency primitives instead of a literal state
// chart.
package operator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dvanderweele/vzfs/internal/fsguard"
	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzerr"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

const op = "operator"

// pruneInterval is how often the lock-pruner region wakes up on its
// own, independent of the "raise pruneExpiredLocks on every entry to
// awaitingCommand" trigger (§4.5).
const pruneInterval = 2 * time.Second

type request struct {
	cmd   Command
	reply chan Reply
}

// Actor is one instance of the Operator state machine: uninitialized
// until Init succeeds, then dispatching commands against one open
// filesystem database until Close.
type Actor struct {
	baseDir string

	requests chan request

	store *vzstore.Store
	ops   *treeops.Ops
	locks *lockmgr.Manager
	cwd   string
}

// New constructs an Actor rooted at baseDir (where filesystem databases
// live, per vzstore.DSNFor). It starts in the uninitialized state; call
// Run in its own goroutine, then Send commands.
func New(baseDir string) *Actor {
	return &Actor{
		baseDir:  baseDir,
		requests: make(chan request),
	}
}

// Send delivers cmd to the actor and blocks for its reply. Safe to call
// from multiple goroutines; the actor itself still processes commands
// one at a time, in the order Send calls reach the request channel
// (§5 "Ordering guarantees within one actor").
func (a *Actor) Send(ctx context.Context, cmd Command) Reply {
	r := request{cmd: cmd, reply: make(chan Reply, 1)}
	select {
	case a.requests <- r:
	case <-ctx.Done():
		return Reply{Kind: cmd.Kind, Err: ctx.Err()}
	}
	select {
	case reply := <-r.reply:
		return reply
	case <-ctx.Done():
		return Reply{Kind: cmd.Kind, Err: ctx.Err()}
	}
}

// Run is the actor's main loop. It returns when ctx is cancelled or a
// Close command is processed. Intended to be run in its own goroutine;
// the lock-pruner region is a second goroutine started here and
// stopped when Run returns.
func (a *Actor) Run(ctx context.Context) error {
	prunerCtx, stopPruner := context.WithCancel(ctx)
	defer stopPruner()
	go a.runPruner(prunerCtx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-a.requests:
			reply := a.dispatch(req.cmd)
			req.reply <- reply
			if req.cmd.Kind == Close {
				return nil
			}
		}
	}
}

func (a *Actor) runPruner(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pruneOnce()
		}
	}
}

func (a *Actor) pruneOnce() {
	if a.locks == nil {
		return // uninitialized: nothing to prune yet.
	}
	result, err := a.locks.PruneExpiredLocks()
	if err != nil {
		// The pruner swallows its own errors and re-enters idle (§4.5).
		log.WithError(err).Debug("operator: prune sweep failed, will retry next tick")
		return
	}
	log.WithFields(log.Fields{
		"examined": result.Examined,
		"pruned":   result.Pruned,
		"skipped":  result.Skipped,
	}).Debug("operator: lock sweep complete")
}

func (a *Actor) dispatch(cmd Command) Reply {
	// Every entry into awaitingCommand raises pruneExpiredLocks (§4.5); a
	// command dispatch is exactly such an entry.
	a.pruneOnce()

	switch cmd.Kind {
	case Init:
		return a.handleInit(cmd)
	case ListFilesystems:
		return a.handleListFilesystems()
	case DropFilesystem:
		return a.handleDropFilesystem(cmd)
	case RestoreFilesystemFromJSON:
		return a.handleRestoreFilesystemFromJSON(cmd)
	case Close:
		return a.handleClose()
	}

	if a.store == nil {
		return Reply{Kind: cmd.Kind, Err: vzerr.New(vzerr.StoreError, op, fmt.Errorf("actor not initialized"))}
	}

	switch cmd.Kind {
	case ChangeDirectory:
		return a.handleChangeDirectory(cmd)
	case CreateFile:
		return a.handleCreateFile(cmd)
	case ReadFile:
		return a.handleReadFile(cmd)
	case UpdateFileTimestamp:
		return a.handleUpdateFileTimestamp(cmd)
	case UpdateFileContent:
		return a.handleUpdateFileContent(cmd)
	case DeleteFile:
		return a.handleDeleteFile(cmd)
	case CreateDirectory:
		return a.handleCreateDirectory(cmd)
	case GetDirectoryRecord:
		return a.handleGetDirectoryRecord(cmd)
	case EmptyDirectory:
		return a.handleEmptyDirectory(cmd)
	case DeleteDirectoryIfEmpty:
		return a.handleDeleteDirectoryIfEmpty(cmd)
	case RipFilesystemToJSON:
		return a.handleRipFilesystemToJSON()
	default:
		return Reply{Kind: cmd.Kind, Err: vzerr.New(vzerr.StoreError, op, fmt.Errorf("unknown command"))}
	}
}

func (a *Actor) duration(cmd Command) time.Duration {
	if cmd.DurationMS <= 0 {
		return lockmgr.DefaultDuration
	}
	return time.Duration(cmd.DurationMS) * time.Millisecond
}

// handleInit runs the uninitialized.idle -> initializing -> seeding ->
// done sequence of §4.5: open/upgrade the database, then conditionally
// insert the root entity (a ConstraintError there counts as success,
// §4.6).
func (a *Actor) handleInit(cmd Command) Reply {
	dsn := vzstore.DSNFor(a.baseDir, cmd.Init.FilesystemName)
	store, err := vzstore.Open(cmd.Init.FilesystemName, dsn)
	if err != nil {
		wrapped := errors.Wrapf(err, "opening filesystem %q", cmd.Init.FilesystemName)
		return Reply{Kind: Init, Err: vzerr.New(vzerr.StoreError, op+".init", wrapped)}
	}

	now := time.Now().UnixMilli()
	insertErr := store.InsertEntity(vzstore.Entity{
		Path: "/", Name: "", IsLeaf: false, CreatedAt: now, UpdatedAt: now,
	})
	if insertErr != nil {
		if _, ok := insertErr.(*vzstore.ConstraintError); !ok {
			_ = store.Close()
			return Reply{Kind: Init, Err: vzerr.New(vzerr.StoreError, op+".init", insertErr)}
		}
	}

	a.store = store
	a.ops = treeops.New(store)
	a.locks = lockmgr.New(store)
	a.cwd = "/"
	return Reply{Kind: Init, Data: "vzfsAwaitingCommand"}
}

func (a *Actor) handleListFilesystems() Reply {
	names, err := vzstore.ListFilesystems(a.baseDir)
	if err != nil {
		return Reply{Kind: ListFilesystems, Err: err}
	}
	return Reply{Kind: ListFilesystems, Data: names}
}

func (a *Actor) handleDropFilesystem(cmd Command) Reply {
	if err := vzstore.DropFilesystem(a.baseDir, cmd.DropFilesystem.FSName); err != nil {
		return Reply{Kind: DropFilesystem, Err: err}
	}
	return Reply{Kind: DropFilesystem}
}

// handleRestoreFilesystemFromJSON refuses an existing database (§4.6),
// creates a fresh one, and puts every backup record -- dropping locks
// already expired at import time (Open Question 3, decided in
// SPEC_FULL.md rather than written verbatim).
func (a *Actor) handleRestoreFilesystemFromJSON(cmd Command) Reply {
	fsName := cmd.RestoreFilesystemFromJSON.FSName
	if vzstore.Exists(a.baseDir, fsName) {
		return Reply{Kind: RestoreFilesystemFromJSON, Err: vzerr.New(vzerr.Exists, op+".restoreFilesystemFromJSON", nil)}
	}
	var backup Backup
	if err := oj.Unmarshal([]byte(cmd.RestoreFilesystemFromJSON.Backup), &backup); err != nil {
		return Reply{Kind: RestoreFilesystemFromJSON, Err: vzerr.New(vzerr.InvalidPath, op+".restoreFilesystemFromJSON", err)}
	}

	store, err := vzstore.Open(fsName, vzstore.DSNFor(a.baseDir, fsName))
	if err != nil {
		return Reply{Kind: RestoreFilesystemFromJSON, Err: vzerr.New(vzerr.StoreError, op+".restoreFilesystemFromJSON", err)}
	}
	defer func() { _ = store.Close() }()

	entities := make([]vzstore.Entity, len(backup.Entity))
	for i, e := range backup.Entity {
		entities[i] = vzstore.Entity{
			Path: e.Path, Name: e.Name, IsLeaf: e.IsLeaf,
			CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
		}
		if e.ParentPath != "" {
			entities[i].ParentPath.String = e.ParentPath
			entities[i].ParentPath.Valid = true
		}
	}
	if err := store.PutEntitiesBatch(entities); err != nil {
		return Reply{Kind: RestoreFilesystemFromJSON, Err: vzerr.New(vzerr.StoreError, op+".restoreFilesystemFromJSON", err)}
	}

	contents := make([]vzstore.Content, len(backup.Content))
	for i, c := range backup.Content {
		contents[i] = vzstore.Content{LeafPath: c.LeafPath, Content: c.Content}
	}
	if err := store.PutContentBatch(contents); err != nil {
		return Reply{Kind: RestoreFilesystemFromJSON, Err: vzerr.New(vzerr.StoreError, op+".restoreFilesystemFromJSON", err)}
	}

	now := time.Now().UnixMilli()
	var locks []vzstore.Lock
	for _, l := range backup.Lock {
		if l.Expiry <= now {
			continue
		}
		locks = append(locks, vzstore.Lock{PathPrefix: l.PathPrefix, Expiry: l.Expiry, CreatedAt: l.CreatedAt})
	}
	if err := store.PutLocksBatch(locks); err != nil {
		return Reply{Kind: RestoreFilesystemFromJSON, Err: vzerr.New(vzerr.StoreError, op+".restoreFilesystemFromJSON", err)}
	}
	return Reply{Kind: RestoreFilesystemFromJSON}
}

func (a *Actor) handleClose() Reply {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
		a.ops = nil
		a.locks = nil
	}
	return Reply{Kind: Close}
}

// handleChangeDirectory validates the target exists and is a directory
// (§4.5 "Working-directory semantics"), then mutates cwd only; cwd is
// never persisted.
func (a *Actor) handleChangeDirectory(cmd Command) Reply {
	target := cmd.ChangeDirectory.NewDirectoryPath
	e, err := a.ops.GetEntity(a.cwd, target)
	if err != nil {
		return Reply{Kind: ChangeDirectory, Err: err}
	}
	if e.IsLeaf {
		return Reply{Kind: ChangeDirectory, Err: vzerr.New(vzerr.NotADirectory, op+".changeDirectory", nil)}
	}
	// Directories are always keyed with a trailing "/" (AddDirectoryEntity),
	// but cwd is reported to callers and folded into resolution via
	// pathnorm.AbsPathToPieces, which only cares about segments, not the
	// trailing slash -- so cwd is kept trimmed, the root "/" excepted.
	a.cwd = strings.TrimSuffix(e.Path, "/")
	if a.cwd == "" {
		a.cwd = "/"
	}
	return Reply{Kind: ChangeDirectory, Data: a.cwd}
}

func (a *Actor) handleCreateFile(cmd Command) Reply {
	var result treeops.Entity
	err := fsguard.WithLock(a.locks, a.cwd, cmd.CreateFile.ParentPath, a.duration(cmd), func(string) error {
		e, err := a.ops.AddFileEntity(a.cwd, cmd.CreateFile.Name, cmd.CreateFile.ParentPath, cmd.CreateFile.Content)
		result = e
		return err
	})
	if err != nil {
		return Reply{Kind: CreateFile, Err: err}
	}
	return Reply{Kind: CreateFile, Data: result.Path}
}

func (a *Actor) handleReadFile(cmd Command) Reply {
	var result treeops.Entity
	err := fsguard.WithLock(a.locks, a.cwd, cmd.ReadFile.Path, a.duration(cmd), func(string) error {
		e, err := a.ops.GetEntity(a.cwd, cmd.ReadFile.Path)
		if err != nil {
			return err
		}
		if !e.IsLeaf {
			return vzerr.New(vzerr.NotALeaf, op+".readFile", nil)
		}
		e, err = a.ops.JoinContentToLeaf(e)
		result = e
		return err
	})
	if err != nil {
		return Reply{Kind: ReadFile, Err: err}
	}
	rec := FileRecord{
		Path: result.Path, Name: result.Name, IsLeaf: true,
		CreatedAt: result.CreatedAt, UpdatedAt: result.UpdatedAt,
		Content: result.Content,
	}
	if result.ParentPath != nil {
		rec.ParentPath = *result.ParentPath
	}
	return Reply{Kind: ReadFile, Data: rec}
}

func (a *Actor) handleUpdateFileTimestamp(cmd Command) Reply {
	err := fsguard.WithLock(a.locks, a.cwd, cmd.UpdateFileTimestamp.Path, a.duration(cmd), func(string) error {
		return a.ops.UpdateFileTimestamp(a.cwd, cmd.UpdateFileTimestamp.Path)
	})
	if err != nil {
		return Reply{Kind: UpdateFileTimestamp, Err: err}
	}
	return Reply{Kind: UpdateFileTimestamp}
}

func (a *Actor) handleUpdateFileContent(cmd Command) Reply {
	err := fsguard.WithLock(a.locks, a.cwd, cmd.UpdateFileContent.Path, a.duration(cmd), func(string) error {
		return a.ops.UpdateFile(a.cwd, cmd.UpdateFileContent.Path, cmd.UpdateFileContent.Content)
	})
	if err != nil {
		return Reply{Kind: UpdateFileContent, Err: err}
	}
	return Reply{Kind: UpdateFileContent}
}

func (a *Actor) handleDeleteFile(cmd Command) Reply {
	err := fsguard.WithLock(a.locks, a.cwd, cmd.DeleteFile.Path, a.duration(cmd), func(string) error {
		return a.ops.DeleteLeafEntity(a.cwd, cmd.DeleteFile.Path)
	})
	if err != nil {
		return Reply{Kind: DeleteFile, Err: err}
	}
	return Reply{Kind: DeleteFile}
}

func (a *Actor) handleCreateDirectory(cmd Command) Reply {
	err := fsguard.WithLock(a.locks, a.cwd, cmd.CreateDirectory.ParentPath, a.duration(cmd), func(string) error {
		_, err := a.ops.AddDirectoryEntity(a.cwd, cmd.CreateDirectory.Name, cmd.CreateDirectory.ParentPath)
		return err
	})
	if err != nil {
		return Reply{Kind: CreateDirectory, Err: err}
	}
	return Reply{Kind: CreateDirectory}
}

// handleGetDirectoryRecord answers with the directory's entity and
// immediate child keys, or -- when no payload was sent -- with cwd's
// child keys (§6: "{childKeys:[], cwd} when no payload").
func (a *Actor) handleGetDirectoryRecord(cmd Command) Reply {
	target := a.cwd
	if cmd.GetDirectoryRecord.Present {
		target = cmd.GetDirectoryRecord.Path
	}
	var rec DirectoryRecord
	err := fsguard.WithLock(a.locks, a.cwd, target, a.duration(cmd), func(resolved string) error {
		if !cmd.GetDirectoryRecord.Present {
			keys, err := a.ops.GetImmediateChildKeys(a.cwd, target)
			if err != nil {
				return err
			}
			rec = DirectoryRecord{ChildKeys: keys, Cwd: a.cwd}
			return nil
		}
		e, err := a.ops.GetEntity(a.cwd, target)
		if err != nil {
			return err
		}
		keys, err := a.ops.GetImmediateChildKeys(a.cwd, target)
		if err != nil {
			return err
		}
		rec = DirectoryRecord{Entity: e, ChildKeys: keys}
		return nil
	})
	if err != nil {
		return Reply{Kind: GetDirectoryRecord, Err: err}
	}
	return Reply{Kind: GetDirectoryRecord, Data: rec}
}

func (a *Actor) handleEmptyDirectory(cmd Command) Reply {
	err := fsguard.WithLock(a.locks, a.cwd, cmd.EmptyDirectory.Path, a.duration(cmd), func(string) error {
		return a.ops.EmptyDirectory(a.cwd, cmd.EmptyDirectory.Path)
	})
	if err != nil {
		return Reply{Kind: EmptyDirectory, Err: err}
	}
	return Reply{Kind: EmptyDirectory}
}

func (a *Actor) handleDeleteDirectoryIfEmpty(cmd Command) Reply {
	err := fsguard.WithLock(a.locks, a.cwd, cmd.DeleteDirectoryIfEmpty.Path, a.duration(cmd), func(string) error {
		return a.ops.DeleteDirectoryIfEmpty(a.cwd, cmd.DeleteDirectoryIfEmpty.Path)
	})
	if err != nil {
		return Reply{Kind: DeleteDirectoryIfEmpty, Err: err}
	}
	return Reply{Kind: DeleteDirectoryIfEmpty}
}

// handleRipFilesystemToJSON reads all three object stores and emits the
// backup document shape of §4.6/§6.
func (a *Actor) handleRipFilesystemToJSON() Reply {
	entities, err := a.store.AllEntities()
	if err != nil {
		return Reply{Kind: RipFilesystemToJSON, Err: vzerr.New(vzerr.StoreError, op+".ripFilesystemToJSON", err)}
	}
	contents, err := a.store.AllContent()
	if err != nil {
		return Reply{Kind: RipFilesystemToJSON, Err: vzerr.New(vzerr.StoreError, op+".ripFilesystemToJSON", err)}
	}
	locks, err := a.store.AllLocks()
	if err != nil {
		return Reply{Kind: RipFilesystemToJSON, Err: vzerr.New(vzerr.StoreError, op+".ripFilesystemToJSON", err)}
	}

	backup := Backup{}
	for _, e := range entities {
		be := BackupEntity{Path: e.Path, Name: e.Name, IsLeaf: e.IsLeaf, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
		if e.ParentPath.Valid {
			be.ParentPath = e.ParentPath.String
		}
		backup.Entity = append(backup.Entity, be)
	}
	for _, c := range contents {
		backup.Content = append(backup.Content, BackupContent{LeafPath: c.LeafPath, Content: c.Content})
	}
	for _, l := range locks {
		backup.Lock = append(backup.Lock, BackupLock{PathPrefix: l.PathPrefix, Expiry: l.Expiry, CreatedAt: l.CreatedAt})
	}

	out, err := oj.Marshal(backup)
	if err != nil {
		return Reply{Kind: RipFilesystemToJSON, Err: vzerr.New(vzerr.StoreError, op+".ripFilesystemToJSON", err)}
	}
	return Reply{Kind: RipFilesystemToJSON, Data: string(out)}
}
