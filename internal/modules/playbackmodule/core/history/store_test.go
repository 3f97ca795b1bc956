package history

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.PlaybackSessionRecord{}, &database.SessionEvent{}))
	return db
}

func snap(id string, position float64) core.Snapshot {
	return core.Snapshot{
		ID:        id,
		Mount:     "main",
		SourceURL: "https://cdn.example.com/v.m3u8",
		MediaKind: core.MediaVideo,
		Pipeline:  core.PipelineHLS,
		State:     core.StatePlaying,
		Position:  position,
		Duration:  120,
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(hclog.NewNullLogger(), db)

	s.RecordStart(snap("sess-1", 0))

	var record database.PlaybackSessionRecord
	require.NoError(t, db.First(&record, "id = ?", "sess-1").Error)
	assert.Equal(t, "main", record.Mount)
	assert.Equal(t, "hls", record.Pipeline)
	assert.Nil(t, record.EndTime)

	var events []database.SessionEvent
	require.NoError(t, db.Where("session_id = ?", "sess-1").Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "session_start", events[0].EventType)

	s.RecordProgress(snap("sess-1", 42.5))
	require.NoError(t, db.First(&record, "id = ?", "sess-1").Error)
	assert.Equal(t, 42.5, record.Position)

	s.RecordEnd(snap("sess-1", 90), core.EndClosed)
	require.NoError(t, db.First(&record, "id = ?", "sess-1").Error)
	require.NotNil(t, record.EndTime)
	assert.Equal(t, string(core.EndClosed), record.EndReason)

	var events2 []database.SessionEvent
	require.NoError(t, db.Where("session_id = ?", "sess-1").Order("event_time").Find(&events2).Error)
	require.Len(t, events2, 2)
	assert.Equal(t, "session_end", events2[1].EventType)
}

func TestStore_NilDBIsNoop(t *testing.T) {
	s := NewStore(hclog.NewNullLogger(), nil)
	s.RecordStart(snap("x", 0))
	s.RecordProgress(snap("x", 1))
	s.RecordEnd(snap("x", 2), core.EndErrored)
}

func TestStore_Recent(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(hclog.NewNullLogger(), db)

	s.RecordStart(snap("a", 0))
	s.RecordStart(snap("b", 0))

	records, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
