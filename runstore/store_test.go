package runstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/noticesync/models"
)

func running(id, identity string) models.Run {
	return models.Run{ID: id, Identity: identity, Status: models.RunStatusRunning, StartedAt: time.Now()}
}

func TestStore_PutGetUpdate(t *testing.T) {
	s := New(10, time.Hour)
	defer s.Close()

	s.Put(running("a", "23XX10012"))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, models.RunStatusRunning, got.Status)

	ok = s.Update("a", func(r *models.Run) {
		r.Status = models.RunStatusSucceeded
		r.Delivered = 3
	})
	require.True(t, ok)

	got, _ = s.Get("a")
	assert.Equal(t, models.RunStatusSucceeded, got.Status)
	assert.Equal(t, 3, got.Delivered)

	assert.False(t, s.Update("missing", func(*models.Run) {}))
	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New(10, time.Hour)
	defer s.Close()

	s.Put(running("a", "x"))
	got, _ := s.Get("a")
	got.Status = models.RunStatusFailed

	again, _ := s.Get("a")
	assert.Equal(t, models.RunStatusRunning, again.Status)
}

func TestStore_Running(t *testing.T) {
	s := New(10, time.Hour)
	defer s.Close()

	s.Put(running("a", "23XX10012"))
	s.Put(models.Run{ID: "b", Identity: "24YY20001", Status: models.RunStatusFailed})

	id, ok := s.Running("23XX10012")
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	_, ok = s.Running("24YY20001")
	assert.False(t, ok)
}

func TestStore_EvictsOldestFinishedOnly(t *testing.T) {
	s := New(3, time.Hour)
	defer s.Close()

	s.Put(running("live", "x"))
	s.Put(models.Run{ID: "old", Status: models.RunStatusSucceeded})
	time.Sleep(2 * time.Millisecond)
	s.Put(models.Run{ID: "newer", Status: models.RunStatusFailed})

	s.Put(running("fresh", "y"))

	assert.Equal(t, 3, s.Len())
	_, ok := s.Get("old")
	assert.False(t, ok)
	for _, id := range []string{"live", "newer", "fresh"} {
		_, ok := s.Get(id)
		assert.True(t, ok, id)
	}
}

func TestStore_FullOfRunningStillAccepts(t *testing.T) {
	s := New(2, time.Hour)
	defer s.Close()

	for i := 0; i < 3; i++ {
		s.Put(running(fmt.Sprint(i), fmt.Sprint(i)))
	}
	assert.Equal(t, 3, s.Len())
}

func TestStore_Expire(t *testing.T) {
	s := New(10, time.Hour)
	defer s.Close()

	s.Put(running("live", "x"))
	s.Put(models.Run{ID: "done", Status: models.RunStatusSucceeded})

	n := s.expire(time.Now().Add(time.Minute))
	assert.Equal(t, 1, n)

	_, ok := s.Get("live")
	assert.True(t, ok)
	_, ok = s.Get("done")
	assert.False(t, ok)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := New(1, time.Hour)
	s.Close()
	s.Close()
}
