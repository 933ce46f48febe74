package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHive_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT id, name, location_lat, location_lng`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "location_lat", "location_lng", "created_at", "updated_at"}))

	hive, err := db.GetHive(context.Background(), 9)

	require.NoError(t, err)
	assert.Nil(t, hive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHive_MissingLocation(t *testing.T) {
	db, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, name, location_lat, location_lng`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "location_lat", "location_lng", "created_at", "updated_at"}).
			AddRow(3, "Hive 3", nil, nil, now, now))

	hive, err := db.GetHive(context.Background(), 3)

	require.NoError(t, err)
	require.NotNil(t, hive)
	assert.Equal(t, "Hive 3", hive.Name)
	assert.Nil(t, hive.Lat)
	assert.Nil(t, hive.Lon)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateHive(t *testing.T) {
	db, mock := setupMockDB(t)
	lat := 7.1

	mock.ExpectExec(`UPDATE hives`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE hives`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := db.UpdateHive(context.Background(), 1, nil, &lat, nil)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = db.UpdateHive(context.Background(), 99, nil, &lat, nil)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}
