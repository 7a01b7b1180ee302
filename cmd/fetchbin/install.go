package main

import (
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fetchbin/fetchbin/internal/ferrors"
	"github.com/fetchbin/fetchbin/internal/ghrelease"
	"github.com/fetchbin/fetchbin/internal/httpclient"
	"github.com/fetchbin/fetchbin/internal/installpath"
	"github.com/fetchbin/fetchbin/internal/manifest"
	"github.com/fetchbin/fetchbin/internal/pkgdata"
	"github.com/fetchbin/fetchbin/internal/registry"
	"github.com/fetchbin/fetchbin/internal/resolver"
)

const defaultRegistryRoot = "https://index.example-registry.org"

var (
	installNoSymlinks    bool
	installDryRun        bool
	installForce         bool
	installLocked        bool
	installVersionReq    string
	installBinDir        string
	installPath          string
	installCargoRoot     string
	installDisableMirror bool
	installRegistryRoot  string
)

var installCmd = &cobra.Command{
	Use:   "install <package...>",
	Short: "Install one or more packages as prebuilt binaries",
	Long: `Install resolves each package's registry metadata, races every
candidate prebuilt-artifact URL across the host's runnable targets, and
places the winner's binaries into the install directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installNoSymlinks, "no-symlinks", false, "copy binaries instead of symlinking them")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "resolve and download but do not place or record")
	installCmd.Flags().BoolVar(&installForce, "force", false, "reinstall even when a satisfying version is already recorded")
	installCmd.Flags().BoolVar(&installLocked, "locked", false, "refuse upgrades past the currently recorded version")
	installCmd.Flags().StringVar(&installVersionReq, "version", "", "override the version requirement for every package on this invocation")
	installCmd.Flags().StringVar(&installBinDir, "bin-dir", "", "override bin_dir for every package on this invocation")
	installCmd.Flags().StringVar(&installPath, "install-path", "", "destination directory for installed binaries")
	installCmd.Flags().StringVar(&installCargoRoot, "root", "", "config root for the manifest files")
	installCmd.Flags().BoolVar(&installDisableMirror, "no-mirror", false, "disable the third-party prebuilt mirror fetcher")
	installCmd.Flags().StringVar(&installRegistryRoot, "registry", defaultRegistryRoot, "sparse registry root URL")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refs := make([]pkgdata.PackageRef, 0, len(args))
	for _, a := range args {
		ref, err := pkgdata.ParsePackageRef(a)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	refs = pkgdata.DedupRefs(refs)

	res, err := installpath.Resolve(installPath)
	if err != nil {
		return err
	}
	cargoRoot := installCargoRoot
	if cargoRoot == "" {
		cargoRoot = filepath.Dir(res.Dir)
	}

	store, err := manifest.Open(cargoRoot)
	if err != nil {
		return err
	}
	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()
	if store.HasLegacyManifest() {
		cmd.PrintErrln("warning: a legacy .crates2.json manifest exists alongside the managed manifest; it is read-only and will not be updated")
	}

	existing, err := store.Load()
	if err != nil {
		return err
	}
	byName := make(map[string]pkgdata.InstallRecord, len(existing))
	for _, rec := range existing {
		byName[rec.Name] = rec
	}

	hc := httpclient.New()
	ghToken := os.Getenv("GITHUB_TOKEN")
	ghReleaseClient := ghrelease.NewClient(hc.Raw(), func() string { return ghToken })

	r := &resolver.Resolver{
		HTTP:      hc,
		Registry:  registry.NewSparseClient(installRegistryRoot, hc),
		GHRelease: ghReleaseClient,
	}

	extractRoot, err := os.MkdirTemp("", "fetchbin-extract-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(extractRoot)

	opts := resolver.Options{
		NoSymlinks:            installNoSymlinks,
		DryRun:                installDryRun,
		Force:                 installForce,
		Locked:                installLocked,
		VersionReq:            installVersionReq,
		DisablePrebuiltMirror: installDisableMirror,
	}
	if installBinDir != "" {
		opts.CLIOverride = &resolver.CLIOverride{BinDir: installBinDir}
	}

	limit := runtime.GOMAXPROCS(0)
	if v := os.Getenv("FETCHBIN_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results := make([]pkgdata.InstallRecord, len(refs))
	failures := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		i, ref := i, ref
		if existingRec, ok := byName[ref.Name]; ok && !installForce {
			cmd.Printf("%s %s already installed, skipping (use --force to reinstall)\n", ref.Name, existingRec.InstalledVersion)
			continue
		}
		g.Go(func() error {
			pkgDir, err := os.MkdirTemp(extractRoot, ref.Name+"-")
			if err != nil {
				failures[i] = err
				return nil
			}
			rec, prog := r.Resolve(gctx, ref, pkgDir, res.Dir, opts)
			if prog.State == resolver.Failed {
				failures[i] = prog.Err
				return nil
			}
			results[i] = *rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var fatalErr error
	toCommit := append([]pkgdata.InstallRecord(nil), existing...)
	for i, rec := range results {
		if failures[i] != nil {
			cmd.PrintErrf("%s: %v\n", refs[i].Name, failures[i])
			if fatalErr == nil {
				fatalErr = failures[i]
			}
			continue
		}
		if rec.Name == "" {
			continue // skipped above
		}
		cmd.Printf("installed %s %s\n", rec.Name, rec.InstalledVersion)
		toCommit = upsertRecord(toCommit, rec)
	}

	if installDryRun {
		return exitFromErr(fatalErr)
	}
	if err := store.Save(toCommit); err != nil {
		return err
	}
	return exitFromErr(fatalErr)
}

func upsertRecord(records []pkgdata.InstallRecord, rec pkgdata.InstallRecord) []pkgdata.InstallRecord {
	for i, r := range records {
		if r.Name == rec.Name {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

// exitFromErr maps the core's structured error taxonomy to the process
// exit code the spec's exit-kind table calls for: Success on nil,
// otherwise a code derived from the error's ferrors.Category.
func exitFromErr(err error) error {
	if err == nil {
		return nil
	}
	var fe *ferrors.Error
	if errors.As(err, &fe) {
		switch fe.Category {
		case ferrors.CategoryAbort:
			return exitError{code: 130, err: fe}
		case ferrors.CategoryArtifact, ferrors.CategoryRegistry:
			return exitError{code: 2, err: fe}
		case ferrors.CategoryNetwork:
			return exitError{code: 3, err: fe}
		case ferrors.CategorySignature:
			return exitError{code: 4, err: fe}
		case ferrors.CategoryManifest:
			return exitError{code: 5, err: fe}
		default:
			return exitError{code: 1, err: fe}
		}
	}
	var he *ferrors.HTTPError
	if errors.As(err, &he) {
		return exitError{code: 3, err: err}
	}
	return exitError{code: 1, err: err}
}

// exitError carries the exit code runInstall wants main to use, since
// cobra's RunE only reports success/failure, not a code.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
