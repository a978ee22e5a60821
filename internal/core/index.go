package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrStorageMisuse is returned when a caller attempts an operation the
// storage layer refuses on structural grounds, e.g. importing a file that
// already lives inside the destination storage's own root.
var ErrStorageMisuse = errors.New("storage misuse")

// ProgressFunc reports transfer progress; bytesTotal may be 0 if unknown.
// Implementations MUST return quickly; it is called from the hot path of
// every Storage read/write.
type ProgressFunc func(bytesDone, bytesTotal int64)

// JournalOutcome is the result recorded for a JournalEntry.
type JournalOutcome string

const (
	JournalOK      JournalOutcome = "ok"
	JournalWarning JournalOutcome = "warning"
	JournalError   JournalOutcome = "error"
)

// Journal receives one record per Index operation. It is purely additive
// bookkeeping: nothing in Index reads a Journal back to make a decision. A
// nil Journal is valid; Index skips recording in that case.
type Journal interface {
	Record(ctx context.Context, kind, fromVersion, toVersion string, outcome JournalOutcome, message string) error
}

// Storage is the uniform contract over a local filesystem root or an
// S3-compatible remote bucket.
type Storage interface {
	ListFiles(ctx context.Context) ([]Entry, error)
	GetFile(ctx context.Context, relativePath string, progress ProgressFunc) (File, error)
	AddFile(ctx context.Context, file File, target string, progress ProgressFunc) (Entry, error)
	IsLocal() bool
	LocalPath() (string, bool)
}

// Index is the façade orchestrating the PatchGraph and the two Storages. Its
// mutating methods are not safe for concurrent calls from multiple
// goroutines except Push, which bounds its own internal concurrency.
type Index struct {
	local  Storage
	remote Storage
	graph  *PatchGraph
	cache  *lru.Cache[string, []byte]
	logger *slog.Logger
	journal Journal
}

// IndexOption configures optional Index behavior at construction time.
type IndexOption func(*Index)

// WithJournal attaches a Journal to record every mutating operation.
func WithJournal(j Journal) IndexOption {
	return func(idx *Index) { idx.journal = j }
}

// WithLogger overrides the default discard logger.
func WithLogger(logger *slog.Logger) IndexOption {
	return func(idx *Index) { idx.logger = logger }
}

// New constructs an Index over local and remote, listing both (remote
// first, then local, so that local entries win on locality conflicts) and
// composing the PatchGraph from the combined listing.
func New(ctx context.Context, local, remote Storage, opts ...IndexOption) (*Index, error) {
	if !local.IsLocal() {
		return nil, fmt.Errorf("%w: local storage must be a filesystem store", ErrStorageMisuse)
	}

	cache, err := lru.New[string, []byte](8)
	if err != nil {
		return nil, fmt.Errorf("construct build cache: %w", err)
	}

	idx := &Index{
		local:  local,
		remote: remote,
		graph:  NewPatchGraph(nil),
		cache:  cache,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.graph = NewPatchGraph(idx.logger)

	remoteEntries, err := remote.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote storage: %w", err)
	}
	if err := idx.graph.UpdateFromFileList(remoteEntries, StorageRemote); err != nil {
		return nil, fmt.Errorf("index remote listing: %w", err)
	}

	localEntries, err := local.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local storage: %w", err)
	}
	if err := idx.graph.UpdateFromFileList(localEntries, StorageLocal); err != nil {
		return nil, fmt.Errorf("index local listing: %w", err)
	}

	return idx, nil
}

func (idx *Index) record(ctx context.Context, kind, from, to string, outcome JournalOutcome, message string) {
	if idx.journal == nil {
		return
	}
	if err := idx.journal.Record(ctx, kind, from, to, outcome, message); err != nil {
		idx.logger.Warn("failed to write journal entry", "kind", kind, "error", err)
	}
}

// GetBuild ensures the build for version is present locally, fetching it
// from remote if necessary, and returns its local Entry.
func (idx *Index) GetBuild(ctx context.Context, version Version) (Entry, error) {
	build, err := idx.graph.LocalBuild(version)
	if err != nil {
		idx.record(ctx, "get-build", version.String(), "", JournalError, err.Error())
		return Entry{}, err
	}

	if build.HasLocal() {
		if build.HasRemote() && build.Local.Size != build.Remote.Size {
			idx.logger.Warn(fmt.Sprintf("size on remote differs for build `%s`", version), "local_size", build.Local.Size, "remote_size", build.Remote.Size)
		}
		idx.record(ctx, "get-build", version.String(), "", JournalOK, "already local")
		return *build.Local, nil
	}

	storagePath := BuildPathFromVersion(version)
	file, err := idx.remote.GetFile(ctx, storagePath, nil)
	if err != nil {
		idx.record(ctx, "get-build", version.String(), "", JournalError, err.Error())
		return Entry{}, fmt.Errorf("fetch build `%s` from remote: %w", version, err)
	}

	localTarget, ok := idx.local.LocalPath()
	if !ok {
		return Entry{}, fmt.Errorf("%w: local storage has no path", ErrStorageMisuse)
	}
	entry, err := idx.local.AddFile(ctx, file, filepath.Join(localTarget, storagePath), nil)
	if err != nil {
		idx.record(ctx, "get-build", version.String(), "", JournalError, err.Error())
		return Entry{}, fmt.Errorf("cache build `%s` locally: %w", version, err)
	}

	if err := idx.graph.AddBuild(version, entry, StorageLocal); err != nil {
		return Entry{}, fmt.Errorf("record fetched build `%s`: %w", version, err)
	}
	idx.record(ctx, "get-build", version.String(), "", JournalOK, "fetched from remote")
	return entry, nil
}

// GetPatch ensures the patch from -> to is present locally, fetching it
// from remote if necessary.
func (idx *Index) GetPatch(ctx context.Context, from, to Version) (Entry, error) {
	if !idx.graph.HasPatch(from, to) {
		err := fmt.Errorf("%w: patch `%s`->`%s`", ErrUnknownBuild, from, to)
		idx.record(ctx, "get-patch", from.String(), to.String(), JournalError, err.Error())
		return Entry{}, err
	}

	storagePath := PatchStoragePath(from, to)
	localTarget, ok := idx.local.LocalPath()
	if !ok {
		return Entry{}, fmt.Errorf("%w: local storage has no path", ErrStorageMisuse)
	}
	localFull := filepath.Join(localTarget, storagePath)

	if entry, err := EntryFromPath(localFull, StorageLocal); err == nil {
		idx.record(ctx, "get-patch", from.String(), to.String(), JournalOK, "already local")
		return entry, nil
	}

	file, err := idx.remote.GetFile(ctx, storagePath, nil)
	if err != nil {
		idx.record(ctx, "get-patch", from.String(), to.String(), JournalError, err.Error())
		return Entry{}, fmt.Errorf("fetch patch `%s`->`%s` from remote: %w", from, to, err)
	}

	entry, err := idx.local.AddFile(ctx, file, localFull, nil)
	if err != nil {
		idx.record(ctx, "get-patch", from.String(), to.String(), JournalError, err.Error())
		return Entry{}, fmt.Errorf("cache patch `%s`->`%s` locally: %w", from, to, err)
	}
	if err := idx.graph.AddPatch(from, to, entry, StorageLocal); err != nil {
		return Entry{}, fmt.Errorf("record fetched patch `%s`->`%s`: %w", from, to, err)
	}
	idx.record(ctx, "get-patch", from.String(), to.String(), JournalOK, "fetched from remote")
	return entry, nil
}

// CalculatePatch synthesizes a binary delta from from to to and records it
// as a local Patch. It is idempotent: if the patch already exists, it
// succeeds without recomputing.
func (idx *Index) CalculatePatch(ctx context.Context, from, to Version) error {
	if idx.graph.HasPatch(from, to) {
		idx.record(ctx, "create-patch", from.String(), to.String(), JournalOK, "already exists")
		return nil
	}

	fromEntry, err := idx.GetBuild(ctx, from)
	if err != nil {
		idx.record(ctx, "create-patch", from.String(), to.String(), JournalError, err.Error())
		return fmt.Errorf("materialize source build `%s`: %w", from, err)
	}
	toEntry, err := idx.GetBuild(ctx, to)
	if err != nil {
		idx.record(ctx, "create-patch", from.String(), to.String(), JournalError, err.Error())
		return fmt.Errorf("materialize target build `%s`: %w", to, err)
	}

	fromBytes, err := idx.decompressedBuild(from, fromEntry)
	if err != nil {
		return fmt.Errorf("decompress source build `%s`: %w", from, err)
	}
	toBytes, err := idx.decompressedBuild(to, toEntry)
	if err != nil {
		return fmt.Errorf("decompress target build `%s`: %w", to, err)
	}

	localTarget, ok := idx.local.LocalPath()
	if !ok {
		return fmt.Errorf("%w: local storage has no path", ErrStorageMisuse)
	}
	destPath := filepath.Join(localTarget, PatchStoragePath(from, to))

	pf, err := CreatePartialFile(destPath)
	if err != nil {
		idx.record(ctx, "create-patch", from.String(), to.String(), JournalError, err.Error())
		return fmt.Errorf("open patch destination: %w", err)
	}

	level := CompressionLevel(DefaultCompressionLevel, idx.logger)
	enc, err := Compress(pf, level)
	if err != nil {
		pf.Abort()
		return fmt.Errorf("open patch compressor: %w", err)
	}

	if err := Diff(fromBytes, toBytes, enc, DiffParamsFor(len(toBytes))); err != nil {
		enc.Close()
		pf.Abort()
		idx.record(ctx, "create-patch", from.String(), to.String(), JournalError, err.Error())
		return fmt.Errorf("compute diff `%s`->`%s`: %w", from, to, err)
	}
	if err := enc.Close(); err != nil {
		pf.Abort()
		return fmt.Errorf("finish patch compression: %w", err)
	}
	if err := pf.Finish(); err != nil {
		idx.record(ctx, "create-patch", from.String(), to.String(), JournalError, err.Error())
		return fmt.Errorf("finalize patch file: %w", err)
	}

	size, err := pf.Size()
	if err != nil {
		return fmt.Errorf("stat new patch file: %w", err)
	}
	if err := idx.graph.AddPatch(from, to, Entry{Storage: StorageLocal, Path: destPath, Size: size}, StorageLocal); err != nil {
		return fmt.Errorf("record new patch `%s`->`%s`: %w", from, to, err)
	}
	idx.record(ctx, "create-patch", from.String(), to.String(), JournalOK, "synthesized")
	return nil
}

func (idx *Index) decompressedBuild(v Version, entry Entry) ([]byte, error) {
	if cached, ok := idx.cache.Get(v.String()); ok {
		return cached, nil
	}
	compressed, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("read `%s`: %w", entry.Path, err)
	}
	decompressed, err := Decompress(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress `%s`: %w", entry.Path, err)
	}
	idx.cache.Add(v.String(), decompressed)
	return decompressed, nil
}

// UpgradeToBuild reaches version to from version from, preferring the
// cheapest patch chain over a direct download, falling back to a direct
// download if any step of the chain fails.
func (idx *Index) UpgradeToBuild(ctx context.Context, from, to Version) (Entry, error) {
	if !idx.graph.HasBuild(from) {
		return Entry{}, fmt.Errorf("%w: `%s`", ErrUnknownBuild, from)
	}
	if !idx.graph.HasBuild(to) {
		return Entry{}, fmt.Errorf("%w: `%s`", ErrUnknownBuild, to)
	}

	plan, err := idx.graph.FindUpgradePath(from, to)
	if err != nil {
		idx.record(ctx, "upgrade", from.String(), to.String(), JournalError, err.Error())
		return Entry{}, err
	}

	if plan.Kind == UpgradeApplyPatches {
		cur := from
		ok := true
		for _, p := range plan.Patches {
			if idx.graph.HasLocalBuild(p.To) {
				cur = p.To
				continue
			}
			if _, err := idx.AddBuildFromPatch(ctx, NewPatch(cur, p.To)); err != nil {
				idx.logger.Warn("patch chain step failed, falling back to direct download", "from", cur, "to", p.To, "error", err)
				ok = false
				break
			}
			cur = p.To
		}
		if ok {
			idx.record(ctx, "upgrade", from.String(), to.String(), JournalOK, "applied patch chain")
		}
	}

	entry, err := idx.GetBuild(ctx, to)
	if err != nil {
		idx.record(ctx, "upgrade", from.String(), to.String(), JournalError, err.Error())
		return Entry{}, err
	}
	return entry, nil
}

// AddBuildFromPatch fetches patch.From's build and patch's own bytes, then
// applies the delta to synthesize and register patch.To locally.
func (idx *Index) AddBuildFromPatch(ctx context.Context, patch Patch) (Entry, error) {
	sourceEntry, err := idx.GetBuild(ctx, patch.From)
	if err != nil {
		return Entry{}, fmt.Errorf("materialize source build `%s`: %w", patch.From, err)
	}
	patchEntry, err := idx.GetPatch(ctx, patch.From, patch.To)
	if err != nil {
		return Entry{}, fmt.Errorf("materialize patch `%s`->`%s`: %w", patch.From, patch.To, err)
	}

	sourceBytes, err := idx.decompressedBuild(patch.From, sourceEntry)
	if err != nil {
		return Entry{}, fmt.Errorf("decompress source build `%s`: %w", patch.From, err)
	}
	patchBytes, err := os.ReadFile(patchEntry.Path)
	if err != nil {
		return Entry{}, fmt.Errorf("read patch file `%s`: %w", patchEntry.Path, err)
	}
	patchReader, err := Decompress(bytes.NewReader(patchBytes))
	if err != nil {
		return Entry{}, fmt.Errorf("decompress patch `%s`->`%s`: %w", patch.From, patch.To, err)
	}

	reconstructed, err := ApplyPatch(sourceBytes, bytes.NewReader(patchReader))
	if err != nil {
		idx.record(ctx, "auto-patch", patch.From.String(), patch.To.String(), JournalError, err.Error())
		return Entry{}, fmt.Errorf("apply patch `%s`->`%s`: %w", patch.From, patch.To, err)
	}
	newBytes, err := io.ReadAll(reconstructed)
	if err != nil {
		return Entry{}, fmt.Errorf("materialize patched build: %w", err)
	}

	localTarget, ok := idx.local.LocalPath()
	if !ok {
		return Entry{}, fmt.Errorf("%w: local storage has no path", ErrStorageMisuse)
	}
	destPath := filepath.Join(localTarget, BuildPathFromVersion(patch.To))

	pf, err := CreatePartialFile(destPath)
	if err != nil {
		return Entry{}, fmt.Errorf("open build destination: %w", err)
	}
	level := CompressionLevel(DefaultCompressionLevel, idx.logger)
	enc, err := Compress(pf, level)
	if err != nil {
		pf.Abort()
		return Entry{}, fmt.Errorf("open build compressor: %w", err)
	}
	if _, err := enc.Write(newBytes); err != nil {
		enc.Close()
		pf.Abort()
		return Entry{}, fmt.Errorf("write patched build bytes: %w", err)
	}
	if err := enc.Close(); err != nil {
		pf.Abort()
		return Entry{}, fmt.Errorf("finish build compression: %w", err)
	}
	if err := pf.Finish(); err != nil {
		return Entry{}, fmt.Errorf("finalize build file: %w", err)
	}
	size, err := pf.Size()
	if err != nil {
		return Entry{}, fmt.Errorf("stat new build file: %w", err)
	}

	entry := Entry{Storage: StorageLocal, Path: destPath, Size: size}
	if err := idx.graph.AddBuild(patch.To, entry, StorageLocal); err != nil {
		return Entry{}, fmt.Errorf("record patched build `%s`: %w", patch.To, err)
	}
	idx.cache.Add(patch.To.String(), newBytes)
	idx.record(ctx, "auto-patch", patch.From.String(), patch.To.String(), JournalOK, "applied patch")
	return entry, nil
}

// AddLocalBuild imports an externally-produced archive as a Build.
func (idx *Index) AddLocalBuild(ctx context.Context, externalPath string) (Entry, error) {
	localTarget, ok := idx.local.LocalPath()
	if !ok {
		return Entry{}, fmt.Errorf("%w: local storage has no path", ErrStorageMisuse)
	}
	abs, err := filepath.Abs(externalPath)
	if err != nil {
		return Entry{}, fmt.Errorf("canonicalize `%s`: %w", externalPath, err)
	}
	if within(abs, localTarget) {
		return Entry{}, fmt.Errorf("%w: `%s` is already inside the local store", ErrStorageMisuse, externalPath)
	}

	srcEntry, err := EntryFromPath(abs, StorageLocal)
	if err != nil {
		return Entry{}, fmt.Errorf("stat `%s`: %w", externalPath, err)
	}
	version, err := BuildVersionFromPath(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("derive version from `%s`: %w", externalPath, err)
	}

	destPath := filepath.Join(localTarget, BuildPathFromVersion(version))
	entry, err := idx.local.AddFile(ctx, File{Entry: srcEntry, InPath: abs}, destPath, nil)
	if err != nil {
		idx.record(ctx, "add", version.String(), "", JournalError, err.Error())
		return Entry{}, fmt.Errorf("import build `%s`: %w", version, err)
	}
	if entry.Size == 0 {
		return Entry{}, fmt.Errorf("%w: imported build `%s` has zero size", ErrStorageMisuse, version)
	}
	if err := idx.graph.AddBuild(version, entry, StorageLocal); err != nil {
		return Entry{}, fmt.Errorf("record imported build `%s`: %w", version, err)
	}
	idx.record(ctx, "add", version.String(), "", JournalOK, "imported")
	return entry, nil
}

// AddPatch imports an externally-produced patch file.
func (idx *Index) AddPatch(ctx context.Context, externalPath string) (Entry, error) {
	localTarget, ok := idx.local.LocalPath()
	if !ok {
		return Entry{}, fmt.Errorf("%w: local storage has no path", ErrStorageMisuse)
	}
	abs, err := filepath.Abs(externalPath)
	if err != nil {
		return Entry{}, fmt.Errorf("canonicalize `%s`: %w", externalPath, err)
	}
	if within(abs, localTarget) {
		return Entry{}, fmt.Errorf("%w: `%s` is already inside the local store", ErrStorageMisuse, externalPath)
	}

	from, to, err := PatchVersionsFromPath(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("derive versions from `%s`: %w", externalPath, err)
	}
	srcEntry, err := EntryFromPath(abs, StorageLocal)
	if err != nil {
		return Entry{}, fmt.Errorf("stat `%s`: %w", externalPath, err)
	}

	destPath := filepath.Join(localTarget, PatchStoragePath(from, to))
	entry, err := idx.local.AddFile(ctx, File{Entry: srcEntry, InPath: abs}, destPath, nil)
	if err != nil {
		idx.record(ctx, "add", from.String(), to.String(), JournalError, err.Error())
		return Entry{}, fmt.Errorf("import patch `%s`->`%s`: %w", from, to, err)
	}
	if err := idx.graph.AddPatch(from, to, entry, StorageLocal); err != nil {
		return Entry{}, fmt.Errorf("record imported patch `%s`->`%s`: %w", from, to, err)
	}
	idx.record(ctx, "add", from.String(), to.String(), JournalOK, "imported")
	return entry, nil
}

// Push uploads every local-only Build and then every local-only Patch to
// remote, at most 3 concurrently. It aborts on the first failure.
func (idx *Index) Push(ctx context.Context) error {
	const maxConcurrent = 3

	builds := idx.graph.LocalOnlyBuilds()
	if err := idx.pushAll(ctx, len(builds), maxConcurrent, func(i int) (Version, Entry, string) {
		b := builds[i]
		return b.Version, *b.Local, BuildPathFromVersion(b.Version)
	}); err != nil {
		return fmt.Errorf("push builds: %w", err)
	}

	patches := idx.graph.LocalOnlyPatches()
	if err := idx.pushAll(ctx, len(patches), maxConcurrent, func(i int) (Version, Entry, string) {
		p := patches[i]
		return p.From, *p.Local, PatchStoragePath(p.From, p.To)
	}); err != nil {
		return fmt.Errorf("push patches: %w", err)
	}
	return nil
}

func (idx *Index) pushAll(ctx context.Context, n, maxConcurrent int, item func(i int) (Version, Entry, string)) error {
	if n == 0 {
		return nil
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, maxConcurrent)
	errCh := make(chan error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		sem <- struct{}{}
		if uploadCtx.Err() != nil {
			<-sem
			break
		}
		v, entry, storagePath := item(i)
		wg.Add(1)
		go func(v Version, entry Entry, storagePath string) {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := os.ReadFile(entry.Path)
			if err != nil {
				errCh <- fmt.Errorf("read `%s` for upload: %w", entry.Path, err)
				cancel()
				return
			}
			if _, err := idx.remote.AddFile(uploadCtx, File{Entry: entry, Bytes: data}, storagePath, nil); err != nil {
				idx.record(ctx, "sync", v.String(), "", JournalError, err.Error())
				errCh <- fmt.Errorf("upload `%s`: %w", storagePath, err)
				cancel()
				return
			}
			idx.record(ctx, "sync", v.String(), "", JournalOK, "uploaded")
		}(v, entry, storagePath)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}

// AllBuilds returns every Build known to the Index, local or remote.
func (idx *Index) AllBuilds() []Build {
	return idx.graph.AllBuilds()
}

// AllPatches returns every Patch known to the Index, local or remote.
func (idx *Index) AllPatches() []Patch {
	return idx.graph.AllPatches()
}

// GetBuildForTag returns the Version of a known Build whose tokenized form
// (TagHeuristic tokenization) equals the tokenized form of tag.
func (idx *Index) GetBuildForTag(tag string) (Version, bool) {
	want := tagToTokensString(tag)
	nodes := idx.graph.g.Nodes()
	for nodes.Next() {
		n := nodes.Node().(*buildNode)
		if tagToTokensString(n.build.Version.String()) == want {
			return n.build.Version, true
		}
	}
	return Version{}, false
}

func tagToTokensString(s string) string {
	tokens := tagToTokens(s)
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += "\x00"
		}
		out += t
	}
	return out
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasDotDotPrefix(rel)
}

func filepathHasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}
