package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

// DetailsFetcher looks up descriptive metadata for a source video.
type DetailsFetcher interface {
	FetchVideoDetails(ctx context.Context, videoID string) (*domain.VideoDetails, error)
}

// LibraryService manages library videos and the collections that group them.
type LibraryService interface {
	// EnsureVideo returns the stored video, fetching metadata and creating it
	// when it is not in the library yet.
	EnsureVideo(ctx context.Context, videoID string) (*domain.Video, error)
	// LookupVideo always refreshes the video's metadata from the source.
	LookupVideo(ctx context.Context, videoID string) (*domain.Video, error)
	GetVideo(ctx context.Context, id int64) (*domain.Video, error)
	ListVideos(ctx context.Context) ([]domain.Video, error)
	DeleteVideo(ctx context.Context, id int64) error

	CreateCollection(ctx context.Context, name, description string, position int) (*domain.Collection, error)
	UpdateCollection(ctx context.Context, collection *domain.Collection) error
	DeleteCollection(ctx context.Context, id int64) error
	GetCollection(ctx context.Context, id int64) (*domain.Collection, error)
	ListCollections(ctx context.Context) ([]domain.Collection, error)
	AddToCollection(ctx context.Context, collectionID int64, videoID string) error
	RemoveFromCollection(ctx context.Context, collectionID int64, videoID string) error
	ListCollectionVideos(ctx context.Context, collectionID int64) ([]domain.Video, error)
}

type libraryService struct {
	videos      repository.VideoRepository
	collections repository.CollectionRepository
	fetcher     DetailsFetcher
}

func NewLibraryService(videos repository.VideoRepository, collections repository.CollectionRepository, fetcher DetailsFetcher) LibraryService {
	return &libraryService{
		videos:      videos,
		collections: collections,
		fetcher:     fetcher,
	}
}

func (s *libraryService) EnsureVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	videoID = strings.TrimSpace(videoID)
	if !domain.ValidVideoID(videoID) {
		return nil, ErrInvalidVideoID
	}

	video, err := s.videos.GetByVideoID(ctx, videoID)
	if err == nil {
		return video, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.LookupVideo(ctx, videoID)
}

func (s *libraryService) LookupVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	videoID = strings.TrimSpace(videoID)
	if !domain.ValidVideoID(videoID) {
		return nil, ErrInvalidVideoID
	}
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: no metadata source configured", ErrMetadataFetch)
	}

	details, err := s.fetcher.FetchVideoDetails(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataFetch, err)
	}

	video := &domain.Video{VideoID: videoID, Details: *details}
	if err := s.videos.Upsert(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

func (s *libraryService) GetVideo(ctx context.Context, id int64) (*domain.Video, error) {
	return s.videos.Get(ctx, id)
}

func (s *libraryService) ListVideos(ctx context.Context) ([]domain.Video, error) {
	return s.videos.List(ctx)
}

func (s *libraryService) DeleteVideo(ctx context.Context, id int64) error {
	return s.videos.Delete(ctx, id)
}

func (s *libraryService) CreateCollection(ctx context.Context, name, description string, position int) (*domain.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("collection name is required")
	}
	collection := &domain.Collection{
		Name:        name,
		Description: strings.TrimSpace(description),
		Position:    position,
	}
	if _, err := s.collections.Create(ctx, collection); err != nil {
		return nil, err
	}
	return collection, nil
}

func (s *libraryService) UpdateCollection(ctx context.Context, collection *domain.Collection) error {
	collection.Name = strings.TrimSpace(collection.Name)
	if collection.Name == "" {
		return invalidf("collection name is required")
	}
	return s.collections.Update(ctx, collection)
}

func (s *libraryService) DeleteCollection(ctx context.Context, id int64) error {
	return s.collections.Delete(ctx, id)
}

func (s *libraryService) GetCollection(ctx context.Context, id int64) (*domain.Collection, error) {
	return s.collections.Get(ctx, id)
}

func (s *libraryService) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	return s.collections.List(ctx)
}

func (s *libraryService) AddToCollection(ctx context.Context, collectionID int64, videoID string) error {
	if _, err := s.collections.Get(ctx, collectionID); err != nil {
		return err
	}
	video, err := s.EnsureVideo(ctx, videoID)
	if err != nil {
		return err
	}
	return s.collections.AddVideo(ctx, collectionID, video.ID)
}

func (s *libraryService) RemoveFromCollection(ctx context.Context, collectionID int64, videoID string) error {
	video, err := s.videos.GetByVideoID(ctx, strings.TrimSpace(videoID))
	if err != nil {
		return err
	}
	return s.collections.RemoveVideo(ctx, collectionID, video.ID)
}

func (s *libraryService) ListCollectionVideos(ctx context.Context, collectionID int64) ([]domain.Video, error) {
	if _, err := s.collections.Get(ctx, collectionID); err != nil {
		return nil, err
	}
	return s.collections.ListVideos(ctx, collectionID)
}
