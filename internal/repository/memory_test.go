package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-iop/internal/models"
)

func TestMemoryPatientsRepo(t *testing.T) {
	repo := NewMemoryPatientsRepo()
	ctx := context.Background()

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "P001", all[0].DisplayID)
	assert.Equal(t, "P005", all[4].DisplayID)

	byName, _ := repo.List(ctx, "sharma")
	require.Len(t, byName, 1)
	assert.Equal(t, "Suresh Sharma", byName[0].Name)

	byID, _ := repo.List(ctx, "p00")
	assert.Len(t, byID, 5)

	p, err := repo.Get(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "P003", p.DisplayID)

	_, err = repo.Get(ctx, "P003")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestMemoryMeasurementsRepo(t *testing.T) {
	repo := NewMemoryMeasurementsRepo()
	ctx := context.Background()

	rec, err := repo.Latest(ctx, "P001")
	require.NoError(t, err)
	assert.Nil(t, rec)

	older := &models.MeasurementRecord{RecordID: "a", PatientDisplayID: "P001", CapturedAt: time.Now().Add(-time.Hour)}
	newer := &models.MeasurementRecord{RecordID: "b", PatientDisplayID: "P001", CapturedAt: time.Now()}
	require.NoError(t, repo.Insert(ctx, newer))
	require.NoError(t, repo.Insert(ctx, older))
	assert.ErrorIs(t, repo.Insert(ctx, newer), ErrDuplicateRecord)
	assert.Error(t, repo.Insert(ctx, &models.MeasurementRecord{RecordID: "c"}))

	rec, err = repo.Latest(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, "b", rec.RecordID)
	assert.Equal(t, 2, repo.Count())
}
