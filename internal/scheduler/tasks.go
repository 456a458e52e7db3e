package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskMigrationRun = "migration.run"

const TaskSubscriberImport = "subscribers.import"

const TaskCatalogScan = "catalog.scan"

type MigrationRunPayload struct {
	RunID      string `json:"runId"`
	MerchantID string `json:"merchantId"`
}

// MerchantPayload carries the merchant of merchant-wide tasks.
type MerchantPayload struct {
	MerchantID string `json:"merchantId"`
}

func NewMigrationRunTask(merchantID, runID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(MigrationRunPayload{RunID: runID.String(), MerchantID: merchantID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMigrationRun, data), nil
}

func ParseMigrationRunPayload(task *asynq.Task) (merchantID, runID uuid.UUID, err error) {
	var payload MigrationRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	if merchantID, err = uuid.Parse(payload.MerchantID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("merchant id: %w", err)
	}
	if runID, err = uuid.Parse(payload.RunID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("run id: %w", err)
	}
	return merchantID, runID, nil
}

func NewMerchantTask(taskType string, merchantID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(MerchantPayload{MerchantID: merchantID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func ParseMerchantPayload(task *asynq.Task) (uuid.UUID, error) {
	var payload MerchantPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.Nil, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	merchantID, err := uuid.Parse(payload.MerchantID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("merchant id: %w", err)
	}
	return merchantID, nil
}
