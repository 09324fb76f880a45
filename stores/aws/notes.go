package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"notes-server/core"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// objectAPI is the part of the S3 client the store needs.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Store struct {
	client objectAPI
	bucket string
	prefix string
	// mu serializes read-modify-write cycles issued by this process.
	mu sync.Mutex
}

// NewNoteStore creates a store keeping one JSON object per note in bucket,
// under prefix.
func NewNoteStore(ctx context.Context, bucketName, prefix string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return newS3Store(s3.NewFromConfig(cfg), bucketName, prefix), nil
}

func newS3Store(client objectAPI, bucketName, prefix string) *s3Store {
	return &s3Store{
		client: client,
		bucket: bucketName,
		prefix: prefix,
	}
}

const roomsObject = "rooms.json"

func (s *s3Store) roomsKey() string {
	return path.Join(s.prefix, roomsObject)
}

func (s *s3Store) noteKey(id string) (string, error) {
	if err := core.ValidateNoteID(id); err != nil {
		return "", err
	}
	return path.Join(s.prefix, id+".json"), nil
}

func (s *s3Store) FindByID(ctx context.Context, id string) (*core.Note, error) {
	key, err := s.noteKey(id)
	if err != nil {
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}

	note, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}

	logrus.WithField("note_id", id).Debug("Note retrieved successfully")
	return note, nil
}

func (s *s3Store) UpdateContent(ctx context.Context, id, content string) (*core.Note, error) {
	key, err := s.noteKey(id)
	if err != nil {
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	note, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}

	note.Content = content
	note.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, key, note); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"note_id":        id,
		"content_length": len(content),
	}).Debug("Note updated successfully")
	return note, nil
}

func (s *s3Store) Create(ctx context.Context, title string) (*core.Note, error) {
	note := &core.Note{
		ID:        ulid.Make().String(),
		Title:     title,
		UpdatedAt: time.Now().UTC(),
	}

	key, err := s.noteKey(note.ID)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, key, note); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"note_id": note.ID,
		"bucket":  s.bucket,
	}).Info("Note created successfully")
	return note, nil
}

func (s *s3Store) get(ctx context.Context, key string) (*core.Note, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("note object %s: %w", key, core.ErrNoteNotFound)
		}
		return nil, fmt.Errorf("failed to get note object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read note data: %w", err)
	}

	var note core.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note data: %w", err)
	}
	return &note, nil
}

func (s *s3Store) put(ctx context.Context, key string, note *core.Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal note: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", note.ID, err)
	}
	return nil
}

func (s *s3Store) readRooms(ctx context.Context) (map[string]int64, error) {
	rooms := make(map[string]int64)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.roomsKey()),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return rooms, nil
		}
		return nil, fmt.Errorf("failed to get rooms index: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rooms index: %w", err)
	}
	return rooms, nil
}

// TouchRoom records activity in a single index object. Concurrent writers in
// other processes may overwrite each other's timestamps.
func (s *s3Store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.readRooms(ctx)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to read rooms index")
		return err
	}
	rooms[roomID] = time.Now().UnixMilli()

	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to marshal rooms index: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.roomsKey()),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save rooms index: %w", err)
	}
	return nil
}

func (s *s3Store) ListRooms(ctx context.Context) ([]core.Room, error) {
	rooms, err := s.readRooms(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, err
	}

	list := make([]core.Room, 0, len(rooms))
	for id, last := range rooms {
		list = append(list, core.Room{ID: id, LastActive: last})
	}
	core.SortRooms(list)
	return list, nil
}
