package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"booking-system/bootstrap"
)

type seedEvent struct {
	Name  string
	Seats int
}

// 기본 시드 데이터
var defaultSeedEvents = []seedEvent{
	{Name: "Rock Concert", Seats: 100},
	{Name: "Tech Conference", Seats: 50},
}

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "events / bookings 테이블과 인덱스를 생성합니다",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(); err != nil {
				return err
			}
			store, err := bootstrap.OpenStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated (%s)\n", opts.cfg.DBDriver)
			return nil
		},
	}
}

func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var (
		name  string
		seats int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "이벤트를 생성합니다 (플래그가 없으면 기본 이벤트 2개)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := seedEvents(name, seats)
			if err != nil {
				return err
			}
			if err := opts.load(); err != nil {
				return err
			}
			store, err := bootstrap.OpenStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, e := range events {
				created, err := store.CreateEvent(cmd.Context(), e.Name, e.Seats)
				if err != nil {
					return fmt.Errorf("create event %q: %w", e.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %d: %s (%d seats)\n", created.ID, created.Name, created.TotalSeats)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "이벤트 이름")
	cmd.Flags().IntVar(&seats, "seats", 0, "총 좌석 수")

	return cmd
}

func seedEvents(name string, seats int) ([]seedEvent, error) {
	if name == "" && seats == 0 {
		return defaultSeedEvents, nil
	}
	if name == "" {
		return nil, errors.New("--name is required with --seats")
	}
	if seats <= 0 {
		return nil, errors.New("--seats must be positive")
	}
	return []seedEvent{{Name: name, Seats: seats}}, nil
}
