package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shambascan/internal/domain"
	"shambascan/internal/media"
	"shambascan/internal/plantcheck"
	"shambascan/internal/redis"
	"shambascan/internal/repository"
)

// diseaseCatalog is the small fixed catalog the simulated diagnosis picks
// from. There is no inference behind it.
var diseaseCatalog = []domain.Disease{
	{
		ID:          "late-blight",
		Name:        "Late Blight",
		Crop:        "Tomato / Potato",
		Description: "Dark water-soaked lesions on leaves and stems that spread rapidly in cool, wet weather.",
		Treatment:   "Remove affected foliage, improve airflow, and apply a copper-based fungicide.",
		Severity:    "high",
	},
	{
		ID:          "powdery-mildew",
		Name:        "Powdery Mildew",
		Crop:        "Many crops",
		Description: "White powdery fungal growth on the upper side of leaves.",
		Treatment:   "Prune for airflow and spray with sulphur or potassium bicarbonate.",
		Severity:    "medium",
	},
	{
		ID:          "leaf-rust",
		Name:        "Leaf Rust",
		Crop:        "Maize / Beans",
		Description: "Orange-brown pustules scattered across the leaf surface.",
		Treatment:   "Plant resistant varieties and rotate crops; fungicide if severe.",
		Severity:    "medium",
	},
	{
		ID:          "bacterial-spot",
		Name:        "Bacterial Spot",
		Crop:        "Tomato / Pepper",
		Description: "Small dark greasy spots on leaves and fruit, often with yellow halos.",
		Treatment:   "Use certified seed, avoid overhead watering, and apply copper sprays early.",
		Severity:    "medium",
	},
	{
		ID:          "healthy",
		Name:        "Healthy Plant",
		Crop:        "Any",
		Description: "No visible disease symptoms detected.",
		Treatment:   "Keep up the current care routine and monitor regularly.",
		Severity:    "none",
	},
}

// DiseaseCatalog returns a copy of the diagnosis catalog.
func DiseaseCatalog() []domain.Disease {
	catalog := make([]domain.Disease, len(diseaseCatalog))
	copy(catalog, diseaseCatalog)
	return catalog
}

// ScanService runs the scan pipeline: plausibility check, media upload,
// simulated diagnosis, persistence, and history fan-out.
type ScanService struct {
	repo     repository.ScanRepository
	media    media.Store
	cache    *redis.CacheStore
	history  redis.HistoryStoreInterface
	notifier *NotificationService
	logger   *zap.Logger

	// delay simulates diagnosis processing time.
	delay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScanService creates a new ScanService.
func NewScanService(
	repo repository.ScanRepository,
	mediaStore media.Store,
	cache *redis.CacheStore,
	history redis.HistoryStoreInterface,
	notifier *NotificationService,
	delay time.Duration,
	logger *zap.Logger,
) *ScanService {
	return &ScanService{
		repo:     repo,
		media:    mediaStore,
		cache:    cache,
		history:  history,
		notifier: notifier,
		logger:   logger.Named("scan"),
		delay:    delay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Analyze processes one uploaded photo. The plausibility check is advisory:
// a rejected photo still receives a diagnosis, carrying the checker's note
// so the caller can warn the user.
func (s *ScanService) Analyze(ctx context.Context, userID string, image []byte) (*domain.Scan, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	verdict := plantcheck.Check(image)

	hash := sha1.Sum(image)
	scanID := uuid.New().String()

	imageURL, err := s.media.Upload(ctx, scanID, image)
	if err != nil {
		// Media storage is best-effort; the diagnosis proceeds without a URL.
		s.logger.Warn("image upload failed", zap.String("scan_id", scanID), zap.Error(err))
		imageURL = ""
	}

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	disease, confidence := s.pickDiagnosis()

	scan := &domain.Scan{
		ID:          scanID,
		UserID:      userID,
		ImageURL:    imageURL,
		ImageSHA1:   hex.EncodeToString(hash[:]),
		IsPlant:     verdict.IsPlant,
		CheckNote:   verdict.Message,
		DiseaseID:   disease.ID,
		DiseaseName: disease.Name,
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetScan(ctx, &redis.CachedScan{
			ID:          scan.ID,
			UserID:      scan.UserID,
			ImageURL:    scan.ImageURL,
			IsPlant:     scan.IsPlant,
			DiseaseName: scan.DiseaseName,
			Confidence:  scan.Confidence,
		})
	}

	if s.history != nil {
		if err := s.history.Append(ctx, "timeline:"+userID, scan); err != nil {
			s.logger.Warn("failed to append timeline entry", zap.Error(err))
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyScanReady(ctx, scan)
	}

	return scan, nil
}

// GetScan retrieves one scan, enforcing ownership.
func (s *ScanService) GetScan(ctx context.Context, scanID, userID string) (*domain.Scan, error) {
	if scanID == "" {
		return nil, ErrInvalidScanID
	}

	scan, err := s.repo.GetByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return scan, nil
}

// ListScans returns the user's scan history, newest first.
func (s *ScanService) ListScans(ctx context.Context, userID string, limit int) ([]*domain.Scan, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *ScanService) pickDiagnosis() (domain.Disease, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	disease := diseaseCatalog[s.rng.Intn(len(diseaseCatalog))]
	confidence := 0.70 + s.rng.Float64()*0.25
	return disease, confidence
}
