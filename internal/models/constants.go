package models

import "time"

const (
	// DefaultReportMonths período padrão do relatório financeiro, em meses
	DefaultReportMonths = 3

	// UpcomingEventsDays janela de check-ins/check-outs exibida no painel
	UpcomingEventsDays = 7

	// DashboardHorizonDays quanto à frente o painel procura o próximo check-in
	DashboardHorizonDays = 90

	// RecentTransactionsLimit itens no extrato de transações recentes
	RecentTransactionsLimit = 20

	// SyncLockTTL tempo máximo de uma sincronização por integração, em segundos
	SyncLockTTL = 120

	// MaxSyncBatchSize registros aceitos por lote de sincronização
	MaxSyncBatchSize = 500

	// WorkerQueueSize tamanho da fila em memória do worker
	WorkerQueueSize = 128
)

// CompletedTaskRetention quanto tempo tarefas concluídas ficam na sync_queue
const CompletedTaskRetention = 7 * 24 * time.Hour

// Sync queue task states.
const (
	SyncTaskPending   = "pending"
	SyncTaskRetry     = "retry"
	SyncTaskCompleted = "completed"
	SyncTaskFailed    = "failed"
)
