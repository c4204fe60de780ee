package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"booking-system/config"
)

// RootOptions 모든 하위 명령 공통 플래그
type RootOptions struct {
	EnvFile string

	cfg    *config.Config
	logger *slog.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "bookingctl",
		Short:         "예약 시스템 운영 도구",
		Long:          "스키마 마이그레이션, 이벤트 시드, DLQ 재처리, 부하 테스트를 실행합니다.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "환경 변수 파일")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewRecoverDLQCommand(opts))
	cmd.AddCommand(NewLoadTestCommand())

	return cmd
}

// load 설정이 필요한 명령에서만 호출합니다. (loadtest 는 HTTP 만 사용)
func (o *RootOptions) load() error {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	o.cfg = cfg
	o.logger = config.NewLogger(cfg.LogLevel).With("component", "bookingctl")
	return nil
}
