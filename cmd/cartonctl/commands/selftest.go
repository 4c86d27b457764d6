package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartonfs/carton/internal/logger"
	"github.com/cartonfs/carton/pkg/config"
	"github.com/cartonfs/carton/pkg/freelist"
	"github.com/cartonfs/carton/pkg/metrics"
	"github.com/cartonfs/carton/pkg/runtime"
	"github.com/cartonfs/carton/pkg/version"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run a full init/terminate cycle",
	Long: `Initialize a library runtime, register shutdown callbacks, exercise
the free lists and the handle registry, then terminate and report. The
self-test uses its own runtime instance, not the process default.`,
	RunE: runSelftest,
}

func runSelftest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	out := cmd.OutOrStdout()

	rt := runtime.New(
		runtime.WithAttempts(cfg.Terminate.Attempts),
		runtime.WithGate(version.NewGate()),
	)

	if err := rt.Initialize(); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	if cfg.Debug.Mask != "" {
		rt.ApplyDebugMask(cfg.Debug.Mask)
	}
	fmt.Fprintf(out, "initialized %s\n", version.String())

	callbacks := 0
	for i := 0; i < 3; i++ {
		if err := rt.Atclose(func(ctx any) { callbacks++ }, i); err != nil {
			return fmt.Errorf("atclose registration failed: %w", err)
		}
	}
	fmt.Fprintf(out, "registered %d atclose callbacks\n", rt.AtcloseLen())

	if err := rt.FreeLists().SetLimits(cfg.FreeList.Limits()); err != nil {
		return err
	}

	// Exercise the free lists and the handle registry so the phase loop
	// has real work to drain.
	buf := rt.FreeLists().Get(freelist.ClassRegular, 1<<16)
	rt.FreeLists().Put(freelist.ClassRegular, buf)

	typ := rt.IDs().RegisterType(nil)
	if _, err := rt.IDs().Register(typ, "selftest-handle"); err != nil {
		return err
	}
	fmt.Fprintf(out, "registered %d handles\n", rt.IDs().TotalCount())

	rt.Terminate()

	if callbacks != 3 {
		return fmt.Errorf("expected 3 callbacks, got %d", callbacks)
	}
	if rt.IsInitialized() || rt.IsTerminating() {
		return fmt.Errorf("runtime did not settle")
	}

	fmt.Fprintln(out, "terminate drained all callbacks and resources")
	fmt.Fprintln(out, "selftest passed")
	return nil
}
