package exports

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// ExportQueue is the queue the mailing consumer listens on.
const ExportQueue = "export:notes"

var noOpLogger = zap.NewNop()

type exportMessage struct {
	UserID      string `json:"userId"`
	TargetEmail string `json:"targetEmail"`
}

// ServiceConfig describes the dependencies for the export service.
type ServiceConfig struct {
	Publisher Publisher
	Logger    *zap.Logger
}

// Service turns export requests into queued jobs carrying everything the
// consumer needs: whose notes to collect and where to mail them.
type Service struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewService constructs the export service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{publisher: cfg.Publisher, logger: logger}, nil
}

// RequestExport enqueues an export job for the user's notes.
func (s *Service) RequestExport(ctx context.Context, userID, targetEmail string) error {
	body, err := json.Marshal(exportMessage{UserID: userID, TargetEmail: targetEmail})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, ExportQueue, body); err != nil {
		s.logger.Error("export publish failed", zap.Error(err), zap.String("user_id", userID))
		return err
	}
	return nil
}
