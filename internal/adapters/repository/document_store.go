package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

// ErrDocumentMissing is returned by a Backend when no record exists for a key.
var ErrDocumentMissing = errors.New("document missing")

// Backend reads and writes raw document bytes. Write must replace the record
// as a single unit so readers never see a partial document.
type Backend interface {
	Name() string
	Read(ctx context.Context, key entities.DocumentKey) ([]byte, error)
	Write(ctx context.Context, key entities.DocumentKey, data []byte) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// DocumentStoreImpl implements ports.DocumentStore on top of a Backend
type DocumentStoreImpl struct {
	backend  Backend
	defaults entities.Defaults
	logger   *logger.Logger
}

// NewDocumentStore creates a document store that self-heals missing or
// unparsable documents by writing the default for the key. A document that
// parses but does not fit its type is reported and left untouched.
func NewDocumentStore(backend Backend, defaults entities.Defaults, log *logger.Logger) ports.DocumentStore {
	return &DocumentStoreImpl{
		backend:  backend,
		defaults: defaults,
		logger:   log.WithComponent("store").WithFields("backend", backend.Name()),
	}
}

func (s *DocumentStoreImpl) Get(ctx context.Context, key entities.DocumentKey, dst interface{}) error {
	if !key.Valid() {
		return fmt.Errorf("get %q: %w", key, entities.ErrUnknownDocument)
	}

	start := time.Now()
	data, err := s.backend.Read(ctx, key)
	s.logger.LogStoreOperation("read", string(key), time.Since(start), ignoreMissing(err))

	switch {
	case errors.Is(err, ErrDocumentMissing):
		s.logger.Infow("Initialising document", "document", key)
		return s.reset(ctx, key, dst)
	case err != nil:
		return fmt.Errorf("read %s: %w", key, err)
	}

	if !parsesAsContainer(data) {
		s.logger.Warnw("Replacing unparsable document with default", "document", key)
		return s.reset(ctx, key, dst)
	}

	if err := decodeDocument(key, data, dst); err != nil {
		s.logger.Errorw("Document does not fit its type", "document", key, "error", err)
		return fmt.Errorf("decode %s: %w", key, err)
	}

	return nil
}

func (s *DocumentStoreImpl) Save(ctx context.Context, key entities.DocumentKey, doc interface{}) error {
	if !key.Valid() {
		return fmt.Errorf("save %q: %w", key, entities.ErrUnknownDocument)
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	start := time.Now()
	err = s.backend.Write(ctx, key, data)
	s.logger.LogStoreOperation("write", string(key), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	return nil
}

func (s *DocumentStoreImpl) HealthCheck(ctx context.Context) error {
	return s.backend.HealthCheck(ctx)
}

func (s *DocumentStoreImpl) Close() error {
	return s.backend.Close()
}

// reset persists the default for key and decodes it into dst.
func (s *DocumentStoreImpl) reset(ctx context.Context, key entities.DocumentKey, dst interface{}) error {
	def, err := s.defaults.Document(key)
	if err != nil {
		return err
	}

	data, err := encodeDocument(def)
	if err != nil {
		return fmt.Errorf("encode default %s: %w", key, err)
	}

	if err := s.backend.Write(ctx, key, data); err != nil {
		return fmt.Errorf("write default %s: %w", key, err)
	}

	return json.Unmarshal(data, dst)
}

// encodeDocument renders doc as indented, human-readable JSON.
func encodeDocument(doc interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// parsesAsContainer reports whether data is a JSON object or array.
func parsesAsContainer(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// decodeDocument decodes data into dst, converting scalars between numbers
// and strings where the field type asks for it so hand-edited files survive.
func decodeDocument(key entities.DocumentKey, data []byte, dst interface{}) error {
	if err := entities.CheckShape(key, data); err != nil {
		return err
	}

	if raw, ok := dst.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrInvalidDocument, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(generic); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrInvalidDocument, err)
	}
	return nil
}

func ignoreMissing(err error) error {
	if errors.Is(err, ErrDocumentMissing) {
		return nil
	}
	return err
}
