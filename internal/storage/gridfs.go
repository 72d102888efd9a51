package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/utils"
)

// GridFSStore keeps objects in a GridFS bucket, using the logical pathname as
// the GridFS filename. Locators are file ObjectIDs, so a pathname can move to
// a new locator every time it is rewritten.
type GridFSStore struct {
	bucket    *gridfs.Bucket
	urlPrefix string
	log       *zap.SugaredLogger
	remove    func(primitive.ObjectID) error
}

type gridFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"filename"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
}

func NewGridFSStore(db *mongo.Database, bucketName, urlPrefix string, logger *zap.SugaredLogger) (*GridFSStore, error) {
	b, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GridFSStore{
		bucket:    b,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		log:       logger,
		remove:    func(id primitive.ObjectID) error { return b.Delete(id) },
	}, nil
}

func (s *GridFSStore) find(ctx context.Context, filter bson.M) ([]gridFile, error) {
	cur, err := s.bucket.Find(filter, options.GridFSFind().SetSort(bson.D{
		{Key: "filename", Value: 1},
		{Key: "uploadDate", Value: 1},
	}))
	if err != nil {
		return nil, err
	}
	var files []gridFile
	if err := cur.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *GridFSStore) object(f gridFile) Object {
	return Object{
		Path:       f.Name,
		Locator:    f.ID.Hex(),
		URL:        s.urlPrefix + "/" + f.Name,
		Size:       f.Length,
		ModifiedAt: f.UploadDate,
	}
}

func (s *GridFSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	files, err := s.find(ctx, bson.M{"filename": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}})
	if err != nil {
		return nil, utils.Storage("list "+prefix, err)
	}
	// Older revisions of a rewritten path sort first; only the newest counts.
	var out []Object
	for _, f := range files {
		if n := len(out); n > 0 && out[n-1].Path == f.Name {
			out[n-1] = s.object(f)
			continue
		}
		out = append(out, s.object(f))
	}
	return out, nil
}

func (s *GridFSStore) Put(ctx context.Context, p string, data []byte, contentType string) (Object, error) {
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := s.bucket.UploadFromStream(p, bytes.NewReader(data), opts)
	if err != nil {
		return Object{}, utils.Storage("put "+p, err)
	}

	// Last write wins: drop superseded revisions of the same path.
	old, err := s.find(ctx, bson.M{"filename": p, "_id": bson.M{"$ne": id}})
	s.dropRevisions(p, old, err)
	return Object{
		Path:       p,
		Locator:    id.Hex(),
		URL:        s.urlPrefix + "/" + p,
		Size:       int64(len(data)),
		ModifiedAt: time.Now(),
	}, nil
}

// dropRevisions removes older files stored under p. The write already
// succeeded, so failures are logged and left for List to shadow.
func (s *GridFSStore) dropRevisions(p string, old []gridFile, findErr error) {
	if findErr != nil {
		s.log.Warnw("find superseded revisions failed", "path", p, "error", findErr)
		return
	}
	for _, f := range old {
		if err := s.remove(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			s.log.Warnw("drop superseded revision failed", "path", p, "id", f.ID.Hex(), "error", err)
		}
	}
}

func (s *GridFSStore) Delete(_ context.Context, locator string) error {
	id, err := primitive.ObjectIDFromHex(locator)
	if err != nil {
		return fmt.Errorf("delete %s: %w", locator, utils.ErrNotFound)
	}
	if err := s.remove(id); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("delete %s: %w", locator, utils.ErrNotFound)
		}
		return utils.Storage("delete "+locator, err)
	}
	return nil
}

func (s *GridFSStore) Get(_ context.Context, p string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStreamByName(p, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("get %s: %w", p, utils.ErrNotFound)
		}
		return nil, utils.Storage("get "+p, err)
	}
	return buf.Bytes(), nil
}
