// Package main is the entry point for the flowgate binary.
// It compiles stage-set specifications into execution plans and runs them
// through the policy facade.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowgate/flowgate/pkg/config"
	"github.com/flowgate/flowgate/pkg/domain"
	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/logging"
	"github.com/flowgate/flowgate/pkg/overrides"
	"github.com/flowgate/flowgate/pkg/policy"
	"github.com/flowgate/flowgate/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flowgate",
		Short: "Dependency-driven pipeline engine",
		Long: `Compiles declared stage sets into validated, deterministically ordered
execution plans and runs them behind a policy rule chain.

Example:
  flowgate run --config flowgate.yaml --plan default --slot region=eu`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile the stage-set spec and execute a plan",
		RunE:  runPlan,
	}
	cmd.Flags().StringP("plan", "p", "", "Plan name to execute (defaults to the first plan in the spec)")
	cmd.Flags().StringArrayP("slot", "s", nil, "Initial slot as key=value (repeatable)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Compile every plan in the stage-set spec and report versions",
		RunE:  validateSpec,
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	planName, err := cmd.Flags().GetString("plan")
	if err != nil {
		return err
	}
	slotArgs, err := cmd.Flags().GetStringArray("slot")
	if err != nil {
		return err
	}
	initial, err := parseSlots(slotArgs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "flowgate",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup failed: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	provider, err := config.NewFileSpecProvider(cfg.Pipeline.File, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	stages := engine.NewStageRegistry(logger)
	plans := engine.NewPlanRegistry(logger)

	spec, err := provider.Current()
	if err != nil {
		return err
	}
	if err := engine.LoadSpec(stages, plans, spec); err != nil {
		return err
	}

	ov, err := cfg.RuntimeOverrides()
	if err != nil {
		return err
	}
	if overrides.HasActiveOverrides(ov) {
		result := overrides.ApplyRuntimeOverrides(overrides.OverridableConfig{
			CircuitBreakerEnabled: true,
		}, ov, overrides.ApplyOptions{
			OnOverrideApplied: func(key overrides.OverrideKey, _, _ overrides.OverridableConfig) {
				telemetry.RecordOverrideApplied(ctx, string(key))
				logger.Warn("runtime override applied", "key", key)
			},
		})
		logger.Info("runtime overrides active", "keys", result.ActiveKeys)
	}

	facade := policy.NewFacade(policy.Options{
		Logger:  logger,
		Metrics: telemetry.NewDecisionMetrics(),
		OnAuditEvent: func(event policy.AuditEvent) {
			logger.Warn("policy audit event",
				"event_id", event.ID,
				"event_kind", event.Kind,
				"rule_index", event.RuleIndex,
				"reason", event.Reason,
			)
		},
	})

	execute := func(spec config.StageSetSpec) error {
		name, planCfg, err := selectPlan(spec, planName)
		if err != nil {
			return err
		}
		plan, err := plans.Get(name)
		if err != nil {
			return err
		}
		runCfg := overrides.ApplyToPipeline(planCfg.ToDomain(), ov)

		result := facade.Execute(ctx, plan, runCfg, initial)
		return printResult(cmd, name, result)
	}

	if err := execute(spec); err != nil {
		return err
	}

	if !cfg.Pipeline.Watch {
		return nil
	}

	logger.Info("watching for spec changes", "file", cfg.Pipeline.File)
	updates := provider.Subscribe()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case spec := <-updates:
			if err := engine.LoadSpec(stages, plans, spec); err != nil {
				logger.Error("reloaded spec rejected, keeping previous plans", "error", err)
				continue
			}
			if err := execute(spec); err != nil {
				logger.Error("run after reload failed", "error", err)
			}
		}
	}
}

func validateSpec(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	provider, err := config.NewFileSpecProvider(cfg.Pipeline.File, logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	spec, err := provider.Current()
	if err != nil {
		return err
	}

	stages := engine.NewStageRegistry(logger)
	compiled, err := engine.CompileSpec(stages, spec)
	if err != nil {
		return err
	}

	for _, planSpec := range spec.Plans {
		plan := compiled[planSpec.Name]
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tversion=%s\tstages=%d\n",
			planSpec.Name, plan.Version, len(plan.ExecutionOrder))
	}
	return nil
}

func selectPlan(spec config.StageSetSpec, name string) (string, config.PipelineConfigSpec, error) {
	if len(spec.Plans) == 0 {
		return "", config.PipelineConfigSpec{}, fmt.Errorf("spec declares no plans")
	}
	if name == "" {
		return spec.Plans[0].Name, spec.Plans[0].Config, nil
	}
	for _, planSpec := range spec.Plans {
		if planSpec.Name == name {
			return planSpec.Name, planSpec.Config, nil
		}
	}
	return "", config.PipelineConfigSpec{}, fmt.Errorf("%w: %q", domain.ErrPlanNotFound, name)
}

func parseSlots(args []string) (domain.SlotMap, error) {
	if len(args) == 0 {
		return nil, nil
	}
	slots := make(domain.SlotMap, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid slot %q, expected key=value", arg)
		}
		slots[domain.SlotKey(key)] = value
	}
	return slots, nil
}

func printResult(cmd *cobra.Command, planName string, result domain.FacadeResult) error {
	out := cmd.OutOrStdout()
	switch {
	case result.OK && result.Execution != nil:
		fmt.Fprintf(out, "plan %s: run %s succeeded\n", planName, result.Execution.RunID)
		for _, id := range result.Execution.ExecutionOrder {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	case result.Kind == domain.ResultPolicyRejected:
		return fmt.Errorf("plan %s rejected by policy: %s", planName, result.Reason)
	default:
		return fmt.Errorf("plan %s failed (%s): %s", planName, result.Kind, result.Reason)
	}
}
