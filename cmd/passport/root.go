package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/logging"
	"github.com/mesh-intelligence/passport/internal/paths"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app holds the global flags and the state loaded before a subcommand runs.
type app struct {
	configDir string
	dataDir   string
	jsonOut   bool
	role      string

	// started is set once flags and arguments have been accepted.
	started bool

	cfg    settings
	logger *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "passport",
		Short: "Digital product passport traceability",
		Long: `Passport records where the materials of a product come from.

Each product has a tree of trace records (raw materials, subcomponents,
assemblies) with their supplier, origin and compliance status. Passport
checks the tree on every write, keeps an audit trail of status changes and
serves a public, read-only view of each product's passport.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.ValidateRequiredFlags(); err != nil {
				return err
			}
			if err := cmd.ValidateFlagGroups(); err != nil {
				return err
			}
			a.started = true
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DataDirName+")")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON")
	root.PersistentFlags().StringVar(&a.role, "role", string(types.RoleAdmin), "acting role (admin, company, supplier, verifier)")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newTraceCmd(a),
		newSupplierCmd(a),
		newQRCmd(a),
		newEmailCmd(a),
		newAssessCmd(a),
		newPublishCmd(a),
		newServeCmd(a),
		newSeedCmd(a),
	)
	return root
}

// load reads config.yaml and builds the logger.
func (a *app) load() error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir

	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	if a.cfg, err = decodeSettings(v); err != nil {
		return err
	}

	a.logger, err = logging.New(a.cfg.LogMode, a.cfg.LogLevel)
	if err != nil {
		return userError(fmt.Errorf("config: %w", err))
	}
	return nil
}

// actor returns the role given by --role.
func (a *app) actor() (types.Role, error) {
	r, err := types.ParseRole(a.role)
	if err != nil {
		return "", fmt.Errorf("--role %q: %w", a.role, err)
	}
	return r, nil
}

// resolveDataDir applies flag > config.yaml > env > default.
func (a *app) resolveDataDir() (string, error) {
	dir, err := paths.ResolveDataDir(a.dataDir, a.cfg.DataDir)
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return dir, nil
}

// withService attaches the configured store, runs fn with a compliance
// service over it and detaches. A detach failure is reported when fn
// succeeded.
func (a *app) withService(ctx context.Context, fn func(ctx context.Context, svc *compliance.Service, store types.Store) error) (err error) {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if derr := store.Detach(); derr != nil && err == nil {
			err = fmt.Errorf("detach store: %w", derr)
		}
	}()
	return fn(ctx, compliance.NewService(store, a.logger), store)
}

// exitErr pins the exit code of an error.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }

func (e *exitErr) Unwrap() error { return e.err }

func userError(err error) error { return &exitErr{code: exitUserError, err: err} }

// userErrors are the failures caused by the request rather than the system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrDuplicateID,
	types.ErrDanglingParent,
	types.ErrProductMismatch,
	types.ErrTierMismatch,
	types.ErrCycle,
	types.ErrHasChildren,
	types.ErrUnknownSupplier,
	types.ErrInvalidStatus,
	types.ErrInvalidTransition,
	types.ErrInvalidRole,
	types.ErrForbidden,
}

// exitCode maps an error to exitUserError or exitSysError.
func exitCode(err error) int {
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}
