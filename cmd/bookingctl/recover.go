package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"booking-system/bootstrap"
	"booking-system/config"
	"booking-system/worker"
)

// NewRecoverDLQCommand DLQ 에 쌓인 예약 메시지를 승인 프로토콜로 한 번 재처리합니다.
// 자동 재시도는 없고 운영자가 직접 실행합니다.
func NewRecoverDLQCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover-dlq",
		Short: "Kafka DLQ 메시지를 재처리합니다",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(); err != nil {
				return err
			}
			if opts.cfg.QueueDriver != config.QueueKafka {
				return errors.New("recover-dlq requires QUEUE_DRIVER=kafka (RabbitMQ nacks are dropped, not dead-lettered)")
			}

			app, err := bootstrap.New(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			w := worker.NewKafkaRecoveryWorker(worker.KafkaWorkerConfig{
				Brokers:         opts.cfg.KafkaBrokers,
				DLQTopic:        opts.cfg.KafkaDLQTopic,
				RecoveryGroupID: opts.cfg.KafkaRecoveryID,
			}, worker.NewProcessor(app.Service, opts.logger), opts.logger)
			defer w.Close()

			processed, failed := w.ProcessDLQ(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "DLQ 복구 완료: processed=%d failed=%d\n", processed, failed)
			return nil
		},
	}
}
