package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"titra/internal/app"
	"titra/internal/config"
	"titra/internal/db"
	"titra/internal/domain"
	"titra/internal/history"
	"titra/internal/metrics"
	"titra/internal/notify"
	"titra/internal/repo"
	"titra/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "titra",
	Short: "Titra CLI",
	Long: `Titra runs a phased medication and activity schedule out of a local workspace.
Core concepts:
- Workspace: your .titra data dir holding the database and the daily snapshot.
- Profile: the medication plan, generated in phases from the start date.
- Today: the working set of events for the current day; completing one archives it.
- History: resolved events (completed or missed), grouped by day.
- Blood pressure: sitting/standing pairs recorded together under one correlation id.
- Event log: diary of changes, view with 'titra log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TITRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(todayCmd())
	rootCmd.AddCommand(upcomingCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(bpCmd())
	rootCmd.AddCommand(deviceCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func profileCmd() *cobra.Command {
	prof := &cobra.Command{Use: "profile", Short: "Manage the medication profile"}
	prof.AddCommand(profileSetCmd())
	prof.AddCommand(profileShowCmd())
	return prof
}

func profileSetCmd() *cobra.Command {
	var startDate, surname, name, gender string
	var age int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the medication start date and patient details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if cmd.Flags().Changed("surname") || cmd.Flags().Changed("name") ||
					cmd.Flags().Changed("gender") || cmd.Flags().Changed("age") {
					p, err := a.Repo.GetPatient(ctx)
					if err != nil && !errors.Is(err, repo.ErrNotFound) {
						return err
					}
					if cmd.Flags().Changed("surname") {
						p.Surname = surname
					}
					if cmd.Flags().Changed("name") {
						p.Name = name
					}
					if cmd.Flags().Changed("gender") {
						p.Gender = gender
					}
					if cmd.Flags().Changed("age") {
						p.Age = age
					}
					if err := a.Repo.SetPatient(ctx, p); err != nil {
						return err
					}
				}
				if startDate != "" {
					t, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
					if err != nil {
						return fmt.Errorf("invalid --start-date: %w", err)
					}
					if err := a.Scheduler.SetStartDate(ctx, t); err != nil {
						return err
					}
				}
				return showProfile(ctx, a)
			})
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "medication start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&surname, "surname", "", "patient surname")
	cmd.Flags().StringVar(&name, "name", "", "patient first name")
	cmd.Flags().StringVar(&gender, "gender", "", "patient gender (man, lady)")
	cmd.Flags().IntVar(&age, "age", 0, "patient age")
	return cmd
}

func profileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the medication profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return showProfile(ctx, a)
			})
		},
	}
	return cmd
}

func showProfile(ctx context.Context, a *app.App) error {
	if !a.Scheduler.Configured() {
		fmt.Println("No start date set. Run 'titra profile set --start-date YYYY-MM-DD'.")
		return nil
	}
	start, err := a.Scheduler.StartDate(ctx)
	if err != nil {
		return err
	}
	patient, err := a.Repo.GetPatient(ctx)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	out := map[string]any{
		"start_date": start.Format("2006-01-02"),
		"name_key":   a.Config.Profile.NameKey,
		"patient":    patient,
	}
	if profile := a.Scheduler.Profile(); profile != nil {
		phases := make([]map[string]any, 0, len(profile.Phases))
		for i, ph := range profile.Phases {
			entry := map[string]any{
				"phase":      i + 1,
				"start_date": ph.StartDate.Format("2006-01-02"),
				"events":     len(ph.Events),
			}
			if ph.EndDate != nil {
				entry["end_date"] = ph.EndDate.Format("2006-01-02")
			}
			phases = append(phases, entry)
		}
		out["phases"] = phases
	}
	return printJSONOrTable(out)
}

func todayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events := a.Scheduler.Today()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"events": events})
				}
				if !a.Scheduler.Configured() {
					fmt.Println("No start date set. Run 'titra profile set --start-date YYYY-MM-DD'.")
					return nil
				}
				printEventTable(events)
				return nil
			})
		},
	}
	return cmd
}

func upcomingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Show the next pending events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events := a.Scheduler.Upcoming()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"events": events})
				}
				printEventTable(events)
				return nil
			})
		},
	}
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <event-id>",
		Short: "Mark a schedule event done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Scheduler.Complete(ctx, args[0]); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"event_id": args[0],
					"upcoming": a.Scheduler.Upcoming(),
				})
			})
		},
	}
	return cmd
}

func historyCmd() *cobra.Command {
	var from, to, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show resolved events grouped by day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				records, skipped, err := a.Repo.ListArchive(ctx, repo.ArchiveFilter{
					FromDay: from,
					ToDay:   to,
					Status:  domain.EventStatus(status),
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				days := history.GroupByDay(records)
				if skipped > 0 {
					fmt.Fprintf(os.Stderr, "warning: skipped %d malformed history records\n", skipped)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"days": days})
				}
				for _, d := range days {
					fmt.Println(d.Day)
					for _, rec := range d.Records {
						fmt.Printf("  %s  %-9s  %-14s  %s\n", rec.Timestamp, rec.Status, rec.Type, rec.TitleKey)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "earliest day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "status filter (completed, missed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max records")
	return cmd
}

func bpCmd() *cobra.Command {
	bp := &cobra.Command{Use: "bp", Short: "Manage blood pressure readings"}
	bp.AddCommand(bpAddCmd())
	bp.AddCommand(bpListCmd())
	return bp
}

func bpAddCmd() *cobra.Command {
	var sittingSys, sittingDia, standingSys, standingDia int
	var eventID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a sitting/standing blood pressure pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sitting := domain.BPReading{Position: "sitting", Systolic: sittingSys, Diastolic: sittingDia}
				standing := domain.BPReading{Position: "standing", Systolic: standingSys, Diastolic: standingDia}
				correlationID, err := a.Scheduler.RecordBloodPressure(ctx, sitting, standing, eventID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"correlation_id": correlationID})
			})
		},
	}
	cmd.Flags().IntVar(&sittingSys, "sitting-sys", 0, "sitting systolic")
	cmd.Flags().IntVar(&sittingDia, "sitting-dia", 0, "sitting diastolic")
	cmd.Flags().IntVar(&standingSys, "standing-sys", 0, "standing systolic")
	cmd.Flags().IntVar(&standingDia, "standing-dia", 0, "standing diastolic")
	cmd.Flags().StringVar(&eventID, "event", "", "schedule event to complete")
	_ = cmd.MarkFlagRequired("sitting-sys")
	_ = cmd.MarkFlagRequired("sitting-dia")
	_ = cmd.MarkFlagRequired("standing-sys")
	_ = cmd.MarkFlagRequired("standing-dia")
	return cmd
}

func bpListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent blood pressure pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				readings, err := a.Repo.ListBPReadings(ctx, 0)
				if err != nil {
					return err
				}
				pairs := history.PairReadings(readings)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"pairs": pairs})
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Time", "Sitting", "Standing"})
				for _, p := range pairs {
					t.AppendRow(table.Row{
						p.Timestamp,
						fmt.Sprintf("%d/%d", p.SittingSystolic, p.SittingDiastolic),
						fmt.Sprintf("%d/%d", p.StandingSystolic, p.StandingDiastolic),
					})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func deviceCmd() *cobra.Command {
	dev := &cobra.Command{Use: "device", Short: "Manage device API keys"}
	dev.AddCommand(deviceAddCmd())
	dev.AddCommand(deviceListCmd())
	dev.AddCommand(deviceRemoveCmd())
	return dev
}

func deviceAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a device API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rawKey := uuid.NewString()
				key := domain.DeviceKey{
					ID:        uuid.NewString(),
					Name:      name,
					KeyHash:   repo.HashDeviceKey(rawKey),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.InsertDeviceKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "name": key.Name, "key": rawKey})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "device name")
	return cmd
}

func deviceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List device API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListDeviceKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func deviceRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a device API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteDeviceKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the schedule template"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default template to titra.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective schedule template",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.ListEvents(ctx, evtType, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, jwtSecret string
	var open bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()
			sugar := logger.Sugar()

			if jwtSecret == "" {
				jwtSecret = os.Getenv("TITRA_JWT_SECRET")
			}
			if jwtSecret == "" && !open {
				return fmt.Errorf("TITRA_JWT_SECRET is required for bearer auth (or pass --open)")
			}

			reg := prometheus.NewRegistry()
			collector := metrics.NewCollector(reg)
			a, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				Notifier:  notify.NewLogger(sugar),
				Metrics:   collector,
			})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Scheduler.Activate(cmd.Context()); err != nil {
				return err
			}

			handler, err := server.New(server.Config{
				Scheduler: a.Scheduler,
				Repo:      a.Repo,
				Metrics:   collector,
				Registry:  reg,
				BasePath:  basePath,
				Auth:      server.AuthConfig{JWTSecret: jwtSecret, Open: open, Logger: sugar},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			sugar.Infow("serving titra api", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Titra API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "JWT signing secret")
	cmd.Flags().BoolVar(&open, "open", false, "disable authentication (local use only)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Notifier:  notify.Noop{},
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Scheduler.Activate(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func printEventTable(events []domain.Event) {
	if len(events) == 0 {
		fmt.Println("No events.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Time", "Type", "Title", "Status", "ID"})
	for _, ev := range events {
		t.AppendRow(table.Row{ev.Time.Format("15:04"), ev.Type, ev.TitleKey, ev.Status, ev.ID})
	}
	t.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
