package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operational commands for the clinic service database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return config.LoadFile(path)
		},
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("CONFIG_FILE"), "optional config file (yaml, json, toml or .env)")
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(checkDeletableCmd())

	ctx, stop := runtime.SignalContext()
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openPool(ctx context.Context) (*db.Pool, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, dbURL, db.PoolConfig{MaxConns: 2})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the clinic schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun, _ := cmd.Flags().GetBool("print"); dryRun {
				_, err := fmt.Fprint(cmd.OutOrStdout(), storage.Schema())
				return err
			}
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := storage.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
	cmd.Flags().Bool("print", false, "print the schema instead of applying it")
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List bookable slots for a doctor on a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			rawDate, _ := cmd.Flags().GetString("date")
			duration, _ := cmd.Flags().GetInt("duration")
			stride, _ := cmd.Flags().GetInt("stride")

			date, err := model.ParseDate(rawDate)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			resolver := availability.NewResolver(
				storage.NewScheduleRepository(pool),
				storage.NewBookingRepository(pool, outbox.NewRepository(pool)),
				availability.Config{Stride: time.Duration(stride) * time.Minute},
			)
			slots, err := resolver.ComputeSlots(cmd.Context(), doctorID, date, duration)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no slots available")
				return nil
			}
			for _, s := range slots {
				fmt.Fprintln(cmd.OutOrStdout(), s.String())
			}
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("date", "", "calendar day, YYYY-MM-DD")
	cmd.Flags().Int("duration", 30, "appointment length in minutes")
	cmd.Flags().Int("stride", int(availability.DefaultStride/time.Minute), "slot stride in minutes")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func checkDeletableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-deletable",
		Short: "Report whether a doctor or patient can be removed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			patientID, _ := cmd.Flags().GetString("patient")
			var party model.Party
			switch {
			case doctorID != "" && patientID == "":
				party = model.Party{Kind: model.PartyDoctor, ID: doctorID}
			case patientID != "" && doctorID == "":
				party = model.Party{Kind: model.PartyPatient, ID: patientID}
			default:
				return errors.New("exactly one of --doctor or --patient is required")
			}

			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			l := ledger.New(storage.NewBookingRepository(pool, outbox.NewRepository(pool)), logger, ledger.Config{})
			err = l.EnsureDeletable(cmd.Context(), party)
			if errors.Is(err, ledger.ErrActiveAppointments) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s has active appointments\n", party.Kind, party.ID)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s can be deleted\n", party.Kind, party.ID)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("patient", "", "patient id")
	return cmd
}
