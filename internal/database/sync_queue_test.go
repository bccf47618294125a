package database

import (
	"context"
	"testing"
	"time"

	"practiceapi/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	task := &models.SyncTask{
		TaskType: "booking_upsert",
		EntityID: 100,
		Payload:  `{"test": true}`,
	}

	err := db.CreateSyncTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, task.Status)

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].EntityID)

	err = db.UpdateSyncTaskStatus(ctx, tasks[0].ID, models.SyncStatusCompleted, "", nil)
	require.NoError(t, err)

	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	assert.Len(t, tasks, 0)

	errMsg := "some error"
	err = db.CreateSyncTask(ctx, &models.SyncTask{TaskType: "bid_append", EntityID: 101, Status: models.SyncStatusFailed, LastError: &errMsg})
	require.NoError(t, err)
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "some error", *failed[0].LastError)

	task2 := &models.SyncTask{TaskType: "booking_delete", EntityID: 102}
	require.NoError(t, db.CreateSyncTask(ctx, task2))

	nextRetry := time.Now().Add(time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task2.ID, models.SyncStatusRetry, "temporary error", &nextRetry)
	require.NoError(t, err)

	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	for _, task := range tasks {
		if task.ID == task2.ID {
			assert.Fail(t, "task with future retry should not be pending")
		}
	}

	pastRetry := time.Now().Add(-time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task2.ID, models.SyncStatusRetry, "temporary error", &pastRetry)
	require.NoError(t, err)
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	found := false
	for _, task := range tasks {
		if task.ID == task2.ID {
			found = true
			assert.Equal(t, 2, task.RetryCount)
		}
	}
	assert.True(t, found)

	assert.ErrorIs(t, db.UpdateSyncTaskStatus(ctx, 999, models.SyncStatusCompleted, "", nil), ErrTaskNotFound)
}
