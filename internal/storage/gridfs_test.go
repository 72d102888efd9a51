package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedGridFS(remove func(primitive.ObjectID) error) (*GridFSStore, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return &GridFSStore{log: zap.New(core).Sugar(), remove: remove}, logs
}

func TestGridFSDropRevisions_LogsFailures(t *testing.T) {
	gone := primitive.NewObjectID()
	stuck := primitive.NewObjectID()
	var removed []primitive.ObjectID
	s, logs := observedGridFS(func(id primitive.ObjectID) error {
		removed = append(removed, id)
		switch id {
		case gone:
			return gridfs.ErrFileNotFound
		case stuck:
			return errors.New("socket closed")
		}
		return nil
	})

	ok := primitive.NewObjectID()
	s.dropRevisions("weeks/2025-02-23/theme.json", []gridFile{{ID: gone}, {ID: stuck}, {ID: ok}}, nil)

	assert.Equal(t, []primitive.ObjectID{gone, stuck, ok}, removed)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "drop superseded revision failed", entry.Message)
	assert.Equal(t, stuck.Hex(), entry.ContextMap()["id"])
}

func TestGridFSDropRevisions_LogsFindError(t *testing.T) {
	s, logs := observedGridFS(func(primitive.ObjectID) error {
		t.Fatal("nothing to remove when the lookup failed")
		return nil
	})

	s.dropRevisions("weeks/2025-02-23/theme.json", nil, errors.New("cursor timeout"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "find superseded revisions failed", logs.All()[0].Message)
	assert.Equal(t, "weeks/2025-02-23/theme.json", logs.All()[0].ContextMap()["path"])
}
